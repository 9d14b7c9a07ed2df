package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kukusoko/kukusoko-backend/pkg/enums"
)

// Payment is the single payment attempt tied to an order. The unique index
// on order_id enforces the one-payment-per-order invariant.
type Payment struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_payments_order_id"`
	Amount             decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Method             enums.PaymentMethod `gorm:"column:method;type:text;not null"`
	Status             enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	PhoneNumber        string              `gorm:"column:phone_number"`
	TransactionRef     string              `gorm:"column:transaction_ref;index"`
	ExternalRef        string              `gorm:"column:external_ref"`
	MpesaReceipt       *string             `gorm:"column:mpesa_receipt"`
	CallbackData       json.RawMessage     `gorm:"column:callback_data;type:jsonb"`
	FailureReason      *string             `gorm:"column:failure_reason"`
	CallbackReceivedAt *time.Time          `gorm:"column:callback_received_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
