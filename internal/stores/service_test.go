package stores

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marginledger-backend/internal/dbtest"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
)

func TestConnectAndLookup(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)

	seller := uuid.New()
	conn, err := svc.Connect(ctx, ConnectInput{SellerID: seller, StoreDomain: " Demo.MyShop.com ", AccessToken: "shpat_1"})
	require.NoError(t, err)
	require.Equal(t, "demo.myshop.com", conn.StoreDomain)
	require.True(t, conn.Active)

	got, err := svc.SellerFor(ctx, "DEMO.myshop.com")
	require.NoError(t, err)
	require.Equal(t, seller, got)

	_, err = svc.Get(ctx, "missing.myshop.com")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDisconnectAndReconnect(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)

	seller := uuid.New()
	_, err = svc.Connect(ctx, ConnectInput{SellerID: seller, StoreDomain: "a.myshop.com", AccessToken: "t1"})
	require.NoError(t, err)
	_, err = svc.Connect(ctx, ConnectInput{SellerID: seller, StoreDomain: "b.myshop.com", AccessToken: "t2"})
	require.NoError(t, err)

	changed, err := svc.Disconnect(ctx, "a.myshop.com")
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = svc.Disconnect(ctx, "a.myshop.com")
	require.NoError(t, err)
	require.False(t, changed, "second uninstall is a no-op")

	active, err := svc.ListActive(ctx, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "b.myshop.com", active[0].StoreDomain)

	conn, err := svc.Connect(ctx, ConnectInput{SellerID: seller, StoreDomain: "a.myshop.com", AccessToken: "t3"})
	require.NoError(t, err)
	require.True(t, conn.Active)
	require.Nil(t, conn.UninstalledAt)
	require.Equal(t, "t3", conn.AccessToken)

	active, err = svc.ListActive(ctx, []string{" A.myshop.com"})
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestMarkSynced(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)

	_, err = svc.Connect(ctx, ConnectInput{SellerID: uuid.New(), StoreDomain: "a.myshop.com"})
	require.NoError(t, err)

	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, svc.MarkSynced(ctx, "a.myshop.com", at))

	conn, err := svc.Get(ctx, "a.myshop.com")
	require.NoError(t, err)
	require.NotNil(t, conn.LastSyncedAt)
	require.True(t, conn.LastSyncedAt.Equal(at))
}

func TestConnectValidation(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)))
	require.NoError(t, err)

	_, err = svc.Connect(context.Background(), ConnectInput{StoreDomain: "a.myshop.com"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.Connect(context.Background(), ConnectInput{SellerID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
