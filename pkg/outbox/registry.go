package outbox

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	"github.com/angelmondragon/marginledger-backend/pkg/outbox/payloads"
)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Decoders maps an event type and envelope version to its payload type.
type Decoders struct {
	mu    sync.RWMutex
	funcs map[decoderKey]func(json.RawMessage) (any, error)
}

func NewDecoders() *Decoders {
	return &Decoders{funcs: make(map[decoderKey]func(json.RawMessage) (any, error))}
}

// Register binds eventType at version to payload type T.
func Register[T any](d *Decoders, eventType enums.OutboxEventType, version int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.funcs[decoderKey{eventType, version}] = func(raw json.RawMessage) (any, error) {
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Decode opens the row's envelope and decodes its data into the registered
// payload type.
func (d *Decoders) Decode(row models.OutboxEvent) (Envelope, any, error) {
	env, err := Open(row)
	if err != nil {
		return Envelope{}, nil, err
	}
	d.mu.RLock()
	fn, ok := d.funcs[decoderKey{row.EventType, env.Version}]
	d.mu.RUnlock()
	if !ok {
		return env, nil, fmt.Errorf("no decoder for %s v%d", row.EventType, env.Version)
	}
	payload, err := fn(env.Data)
	if err != nil {
		return env, nil, fmt.Errorf("decode %s v%d: %w", row.EventType, env.Version, err)
	}
	return env, payload, nil
}

// DefaultDecoders knows every event this service emits.
func DefaultDecoders() *Decoders {
	d := NewDecoders()
	Register[payloads.WalletApplyRetryEvent](d, enums.EventWalletApplyRetry, payloads.WalletApplyRetryVersion)
	return d
}
