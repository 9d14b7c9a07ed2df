package timeline

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
)

// Repository persists and reads the append-only order timeline.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateEvent(ctx context.Context, event *models.OrderTimelineEvent) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderTimelineEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a timeline repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateEvent(ctx context.Context, event *models.OrderTimelineEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderTimelineEvent, error) {
	var events []models.OrderTimelineEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
