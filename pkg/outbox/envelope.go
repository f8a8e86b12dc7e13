package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marginledger-backend/pkg/db/models"
)

// ActorRef identifies who caused the event.
type ActorRef struct {
	ActorID string `json:"actorId"`
	Role    string `json:"role,omitempty"`
}

// Envelope is the JSON document stored in outbox_events.payload. Data holds
// the versioned event body; decode it through a Decoders set.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func seal(event DomainEvent) (Envelope, []byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("marshal %s data: %w", event.EventType, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	env := Envelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: occurred,
		Actor:      event.Actor,
		Data:       data,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return env, raw, nil
}

// Open reads the envelope out of a stored row.
func Open(row models.OutboxEvent) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("outbox row %s: %w", row.ID, err)
	}
	return env, nil
}
