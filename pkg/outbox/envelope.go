package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is stamped on every envelope Emit writes.
const EnvelopeVersion = 1

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope wraps the event body stored in outbox_events.payload.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func sealEnvelope(e DomainEvent) (PayloadEnvelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal %s payload: %w", e.EventType, err)
	}
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Actor:      e.Actor,
		Data:       data,
	}, nil
}

// OpenEnvelope decodes a stored payload column. Envelopes written by a newer
// producer are refused so they are never half-read.
func OpenEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	switch data := bytes.TrimSpace(env.Data); {
	case env.Version > EnvelopeVersion:
		return env, fmt.Errorf("envelope version %d not supported", env.Version)
	case env.EventID == "":
		return env, errors.New("envelope missing event id")
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return env, errors.New("envelope carries no data")
	}
	return env, nil
}
