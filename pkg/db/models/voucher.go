package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/kukusoko/kukusoko-backend/pkg/enums"
)

// Voucher is a product discount code. The used_count/max_uses pair is only
// moved by the atomic consume inside the order transaction.
type Voucher struct {
	ID                     uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code                   string             `gorm:"column:code;not null;uniqueIndex:idx_vouchers_code"`
	DiscountType           enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	DiscountValue          decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MaxDiscountAmount      *decimal.Decimal   `gorm:"column:max_discount_amount;type:numeric(12,2)"`
	MinOrderAmount         *decimal.Decimal   `gorm:"column:min_order_amount;type:numeric(12,2)"`
	ApplicableProductTypes pq.StringArray     `gorm:"column:applicable_product_types;type:text[]"`
	UsedCount              int                `gorm:"column:used_count;not null;default:0"`
	MaxUses                int                `gorm:"column:max_uses;not null"`
	StartsAt               time.Time          `gorm:"column:starts_at;not null"`
	ExpiresAt              time.Time          `gorm:"column:expires_at;not null"`
	IsActive               bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt              time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// DeliveryVoucher discounts the delivery fee; kept in its own table so a
// customer can stack one with a product voucher.
type DeliveryVoucher struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code           string             `gorm:"column:code;not null;uniqueIndex:idx_delivery_vouchers_code"`
	DiscountType   enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	DiscountValue  decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MinOrderAmount *decimal.Decimal   `gorm:"column:min_order_amount;type:numeric(12,2)"`
	UsedCount      int                `gorm:"column:used_count;not null;default:0"`
	MaxUses        int                `gorm:"column:max_uses;not null"`
	StartsAt       time.Time          `gorm:"column:starts_at;not null"`
	ExpiresAt      time.Time          `gorm:"column:expires_at;not null"`
	IsActive       bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
