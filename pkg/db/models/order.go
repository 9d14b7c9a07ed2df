package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kukusoko/kukusoko-backend/pkg/enums"
)

// Order represents one checkout. Totals are frozen at creation; only status
// fields move afterwards.
type Order struct {
	ID                  uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID          uuid.UUID                `gorm:"column:customer_id;type:uuid;not null"`
	Status              enums.OrderStatus        `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus       enums.OrderPaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	PaymentType         enums.PaymentMethod      `gorm:"column:payment_type;type:text;not null"`
	Subtotal            decimal.Decimal          `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountAmount      decimal.Decimal          `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	DeliveryFee         decimal.Decimal          `gorm:"column:delivery_fee;type:numeric(12,2);not null;default:0"`
	Total               decimal.Decimal          `gorm:"column:total;type:numeric(12,2);not null"`
	VoucherCode         *string                  `gorm:"column:voucher_code"`
	DeliveryVoucherCode *string                  `gorm:"column:delivery_voucher_code"`
	Notes               *string                  `gorm:"column:notes"`
	Items               []OrderItem              `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Delivery            *Delivery                `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment             *Payment                 `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
