package timeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	pkgerrors "github.com/kukusoko/kukusoko-backend/pkg/errors"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
)

// Entry describes one timeline event to record.
type Entry struct {
	OrderID     uuid.UUID
	Action      enums.TimelineAction
	ActorRole   enums.ActorRole
	ActorID     *uuid.UUID
	ActorName   *string
	OldStatus   *string
	NewStatus   *string
	Description string
	Metadata    json.RawMessage
}

// Service records and reads order timeline events. Record is best-effort:
// a persistence failure is logged and swallowed so it can never break the
// order or payment flow it is documenting.
type Service interface {
	Record(ctx context.Context, entry Entry)
	List(ctx context.Context, orderID uuid.UUID) ([]models.OrderTimelineEvent, error)
}

type service struct {
	repo   Repository
	logger *logger.Logger
}

// NewService builds the timeline logger.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("timeline repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logger: logg}, nil
}

func (s *service) Record(ctx context.Context, entry Entry) {
	if entry.OrderID == uuid.Nil || !entry.Action.IsValid() {
		s.logger.Warn(s.logger.WithField(ctx, "action", string(entry.Action)), "skipping malformed timeline entry")
		return
	}

	event := &models.OrderTimelineEvent{
		OrderID:     entry.OrderID,
		Action:      entry.Action,
		ActorRole:   entry.ActorRole,
		ActorID:     entry.ActorID,
		ActorName:   entry.ActorName,
		OldStatus:   entry.OldStatus,
		NewStatus:   entry.NewStatus,
		Description: entry.Description,
		Metadata:    entry.Metadata,
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		ctx = s.logger.WithOrderID(ctx, entry.OrderID.String())
		s.logger.Error(ctx, "failed to record timeline event", err)
	}
}

func (s *service) List(ctx context.Context, orderID uuid.UUID) ([]models.OrderTimelineEvent, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	events, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list timeline events")
	}
	return events, nil
}
