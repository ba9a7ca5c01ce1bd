package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// DomainEvent is what callers hand to Emit. Data is serialized as the
// envelope body; OccurredAt defaults to now.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	var errs []error
	if !e.EventType.IsValid() {
		errs = append(errs, fmt.Errorf("unknown event type %q", e.EventType))
	}
	if !e.AggregateType.IsValid() {
		errs = append(errs, fmt.Errorf("unknown aggregate type %q", e.AggregateType))
	}
	if e.EventType.IsValid() && e.AggregateType.IsValid() && e.EventType.Aggregate() != e.AggregateType {
		errs = append(errs, fmt.Errorf("%s events belong to %s aggregates", e.EventType, e.EventType.Aggregate()))
	}
	if e.AggregateID == uuid.Nil {
		errs = append(errs, errors.New("aggregate id required"))
	}
	return errors.Join(errs...)
}

// Service queues domain events in outbox_events.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit stores event in the caller's transaction so it commits or rolls back
// together with the state change it describes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}
	env, err := sealEnvelope(event)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       env.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}
