package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/outbox/payloads"
)

func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.Exec(`
CREATE TABLE outbox_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME,
	published_at DATETIME,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT
)`).Error)
	return conn
}

func retryEvent(orderID string) DomainEvent {
	return DomainEvent{
		EventType:     enums.EventWalletApplyRetry,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "demo.myshop.com:" + orderID,
		Actor:         &ActorRef{ActorID: "admin-1", Role: "admin"},
		Version:       payloads.WalletApplyRetryVersion,
		Data: payloads.WalletApplyRetryEvent{
			Store:   "demo.myshop.com",
			OrderID: orderID,
			Status:  enums.OrderStatusConfirmed,
			ActorID: "admin-1",
		},
	}
}

func TestEmitAndFetchUnpublished(t *testing.T) {
	ctx := context.Background()
	conn := setupOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	require.NoError(t, svc.Emit(ctx, conn, retryEvent("1001")))
	require.NoError(t, svc.EmitIfNotExists(ctx, conn, retryEvent("1001")))
	require.NoError(t, svc.EmitIfNotExists(ctx, conn, retryEvent("1002")))

	rows, err := repo.FetchUnpublished(ctx, enums.EventWalletApplyRetry, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	env, err := Open(rows[0])
	require.NoError(t, err)
	require.Equal(t, payloads.WalletApplyRetryVersion, env.Version)
	require.NotEmpty(t, env.EventID)

	var data payloads.WalletApplyRetryEvent
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "demo.myshop.com", data.Store)
}

func TestMarkFailedStopsAtMaxAttempts(t *testing.T) {
	ctx := context.Background()
	conn := setupOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	require.NoError(t, svc.Emit(ctx, conn, retryEvent("2001")))
	rows, err := repo.FetchUnpublished(ctx, enums.EventWalletApplyRetry, 10, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, repo.MarkFailed(ctx, rows[0].ID, errors.New("db down")))
	require.NoError(t, repo.MarkFailed(ctx, rows[0].ID, errors.New(strings.Repeat("x", 2000))))

	rows, err = repo.FetchUnpublished(ctx, enums.EventWalletApplyRetry, 10, 2)
	require.NoError(t, err)
	require.Empty(t, rows)

	rows, err = repo.FetchUnpublished(ctx, enums.EventWalletApplyRetry, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 2, rows[0].AttemptCount)
	require.Len(t, *rows[0].LastError, maxErrorLen)
}

func TestMarkPublishedRemovesFromQueue(t *testing.T) {
	ctx := context.Background()
	conn := setupOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	require.NoError(t, svc.Emit(ctx, conn, retryEvent("3001")))
	rows, err := repo.FetchUnpublished(ctx, enums.EventWalletApplyRetry, 10, 0)
	require.NoError(t, err)
	require.NoError(t, repo.MarkPublished(ctx, rows[0].ID))

	rows, err = repo.FetchUnpublished(ctx, enums.EventWalletApplyRetry, 10, 0)
	require.NoError(t, err)
	require.Empty(t, rows)

	require.NoError(t, svc.EmitIfNotExists(ctx, conn, retryEvent("3001")))
	rows, err = repo.FetchUnpublished(ctx, enums.EventWalletApplyRetry, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1, "a published event must not block a new retry")
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, retryEvent("1")))
}

func TestEmitRejectsMissingAggregate(t *testing.T) {
	conn := setupOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)
	event := retryEvent("1")
	event.AggregateID = ""
	err := svc.Emit(context.Background(), conn, event)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func encodedRow(t *testing.T, version int, data string) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(Envelope{Version: version, EventID: "evt-1", Data: json.RawMessage(data)})
	require.NoError(t, err)
	return models.OutboxEvent{EventType: enums.EventWalletApplyRetry, Payload: raw}
}

func TestDecodersResolveByVersion(t *testing.T) {
	d := NewDecoders()
	Register[payloads.WalletApplyRetryEvent](d, enums.EventWalletApplyRetry, 1)

	env, out, err := d.Decode(encodedRow(t, 1, `{"store":"s","order_id":"o","status":"rto"}`))
	require.NoError(t, err)
	require.Equal(t, "evt-1", env.EventID)
	require.Equal(t, enums.OrderStatusRTO, out.(payloads.WalletApplyRetryEvent).Status)

	_, _, err = d.Decode(encodedRow(t, 2, `{}`))
	require.ErrorContains(t, err, "no decoder")

	_, _, err = d.Decode(models.OutboxEvent{Payload: json.RawMessage(`not json`)})
	require.Error(t, err)
}

func TestDefaultDecodersHandleWalletRetry(t *testing.T) {
	_, out, err := DefaultDecoders().Decode(encodedRow(t, payloads.WalletApplyRetryVersion, `{"store":"s","order_id":"o","status":"cancelled","actor_id":"a"}`))
	require.NoError(t, err)
	evt, ok := out.(payloads.WalletApplyRetryEvent)
	require.True(t, ok)
	require.Equal(t, "o", evt.OrderID)
	require.Equal(t, enums.OrderStatusCancelled, evt.Status)
}

func TestDeletePublishedBefore(t *testing.T) {
	conn := setupOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Emit(ctx, conn, retryEvent("1")))
	require.NoError(t, svc.Emit(ctx, conn, retryEvent("2")))
	rows, err := repo.FetchUnpublished(ctx, enums.EventWalletApplyRetry, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NoError(t, repo.MarkPublished(ctx, rows[0].ID))

	deleted, err := repo.DeletePublishedBefore(ctx, conn, enums.EventWalletApplyRetry, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	rows, err = repo.FetchUnpublished(ctx, enums.EventWalletApplyRetry, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1, "pending rows are never pruned")
}
