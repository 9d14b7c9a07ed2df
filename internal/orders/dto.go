package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	"github.com/kukusoko/kukusoko-backend/pkg/pagination"
)

// ItemInput is one client-submitted cart line. Quantities are re-priced
// server-side; the client never supplies prices per line.
type ItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// DeliveryInput carries the optional delivery address.
type DeliveryInput struct {
	Address string `json:"address" validate:"required"`
	Phone   string `json:"phone,omitempty"`
}

// PaymentDetailsInput carries mobile-money specifics. Reference is the
// SMS confirmation code when the customer already paid out-of-band.
type PaymentDetailsInput struct {
	Phone     string `json:"phone,omitempty"`
	Reference string `json:"reference,omitempty"`
	Details   string `json:"details,omitempty"`
}

// CreateOrderInput is the full checkout submission. The client-computed
// totals are cross-checked against server repricing before anything is
// written.
type CreateOrderInput struct {
	Items               []ItemInput          `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress     *DeliveryInput       `json:"delivery_address,omitempty"`
	PaymentType         enums.PaymentMethod  `json:"payment_type" validate:"required"`
	PaymentDetails      *PaymentDetailsInput `json:"payment_details,omitempty"`
	VoucherCode         *string              `json:"voucher_code,omitempty"`
	DeliveryVoucherCode *string              `json:"delivery_voucher_code,omitempty"`
	Subtotal            decimal.Decimal      `json:"subtotal"`
	DiscountAmount      decimal.Decimal      `json:"discount_amount"`
	DeliveryFee         decimal.Decimal      `json:"delivery_fee"`
	Total               decimal.Decimal      `json:"total"`
	Notes               *string              `json:"notes,omitempty"`
}

// UpdateStatusInput moves an order along the fulfillment lifecycle.
type UpdateStatusInput struct {
	Status enums.OrderStatus `json:"status" validate:"required"`
	Notes  *string           `json:"notes,omitempty"`
}

// ListFilters scope an order listing. The service fills the role-derived
// fields; status comes from the query string.
type ListFilters struct {
	CustomerID *uuid.UUID
	SellerID   *uuid.UUID
	Status     *enums.OrderStatus
}

// OrderList is one page of orders with its pagination metadata.
type OrderList struct {
	Items []models.Order  `json:"items"`
	Meta  pagination.Meta `json:"meta"`
}
