package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kukusoko/kukusoko-backend/pkg/enums"
)

// Product represents a seller listing. The order pipeline only reads the
// price/discount fields and decrements stock; product lifecycle is owned
// elsewhere.
type Product struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID          uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	Name              string              `gorm:"column:name;not null"`
	Type              enums.ProductType   `gorm:"column:type;type:text;not null"`
	Price             decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	HasDiscount       bool                `gorm:"column:has_discount;not null;default:false"`
	DiscountType      *enums.DiscountType `gorm:"column:discount_type;type:text"`
	DiscountAmount    decimal.Decimal     `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	DiscountStartDate *time.Time          `gorm:"column:discount_start_date"`
	DiscountEndDate   *time.Time          `gorm:"column:discount_end_date"`
	StockCount        int                 `gorm:"column:stock_count;not null;default:0"`
	IsActive          bool                `gorm:"column:is_active;not null;default:true"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
