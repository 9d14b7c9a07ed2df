package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kukusoko/kukusoko-backend/pkg/enums"
)

// OrderTimelineEvent is an append-only audit record of one order action.
// Rows are never updated or deleted.
type OrderTimelineEvent struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	Action      enums.TimelineAction `gorm:"column:action;type:text;not null"`
	ActorRole   enums.ActorRole      `gorm:"column:actor_role;type:text;not null"`
	ActorID     *uuid.UUID           `gorm:"column:actor_id;type:uuid"`
	ActorName   *string              `gorm:"column:actor_name"`
	OldStatus   *string              `gorm:"column:old_status"`
	NewStatus   *string              `gorm:"column:new_status"`
	Description string               `gorm:"column:description;not null"`
	Metadata    json.RawMessage      `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
}
