package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kukusoko/kukusoko-backend/pkg/enums"
)

// OrderItem snapshots one purchased line. Unit price and discount are the
// amounts actually charged; they never change after order creation.
type OrderItem struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	ProductID    uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	SellerID     uuid.UUID         `gorm:"column:seller_id;type:uuid;not null"`
	ProductName  string            `gorm:"column:product_name;not null"`
	ProductType  enums.ProductType `gorm:"column:product_type;type:text;not null"`
	UnitPrice    decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	UnitDiscount decimal.Decimal   `gorm:"column:unit_discount;type:numeric(12,2);not null;default:0"`
	Quantity     int               `gorm:"column:quantity;not null"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
}
