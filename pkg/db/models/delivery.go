package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kukusoko/kukusoko-backend/pkg/enums"
)

// Delivery captures the optional delivery record created with an order.
type Delivery struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_deliveries_order_id"`
	Address   string               `gorm:"column:address;not null"`
	Phone     string               `gorm:"column:phone"`
	Fee       decimal.Decimal      `gorm:"column:fee;type:numeric(12,2);not null;default:0"`
	Status    enums.DeliveryStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
