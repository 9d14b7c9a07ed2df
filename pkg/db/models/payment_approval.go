package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kukusoko/kukusoko-backend/pkg/enums"
)

// PaymentApproval is an immutable audit row recording a payment decision.
type PaymentApproval struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID uuid.UUID           `gorm:"column:payment_id;type:uuid;not null"`
	OrderID   uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	Status    enums.PaymentStatus `gorm:"column:status;type:text;not null"`
	ActorRole enums.ActorRole     `gorm:"column:actor_role;type:text;not null"`
	Notes     *string             `gorm:"column:notes"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
}
