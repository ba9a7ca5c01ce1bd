package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestParkCopiesEvent(t *testing.T) {
	event := OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  7,
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("cst", -6*3600))

	parked := event.Park(enums.OutboxDLQReasonMaxAttempts, errors.New("deadline exceeded"), at)

	assert.Equal(t, uuid.Nil, parked.ID)
	assert.Equal(t, event.ID, parked.EventID)
	assert.Equal(t, event.AggregateID, parked.AggregateID)
	assert.JSONEq(t, `{"version":1}`, string(parked.Payload))
	assert.Equal(t, 7, parked.AttemptCount)
	assert.Equal(t, time.UTC, parked.FailedAt.Location())
	require.NotNil(t, parked.ErrorMessage)
	assert.Equal(t, "deadline exceeded", *parked.ErrorMessage)

	assert.Nil(t, event.Park(enums.OutboxDLQReasonMaxAttempts, nil, at).ErrorMessage)
}
