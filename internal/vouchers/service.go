package vouchers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	pkgerrors "github.com/kukusoko/kukusoko-backend/pkg/errors"
)

// ProductVoucherResult is the priced outcome of a valid product voucher.
type ProductVoucherResult struct {
	Voucher  *models.Voucher
	Discount decimal.Decimal
}

// DeliveryVoucherResult is the priced outcome of a valid delivery voucher.
type DeliveryVoucherResult struct {
	Voucher  *models.DeliveryVoucher
	Discount decimal.Decimal
	FinalFee decimal.Decimal
}

// Service validates and prices voucher codes. Read-only: the counters the
// checks gate are only moved by the order transaction's consume.
type Service interface {
	ValidateProductVoucher(ctx context.Context, code string, subtotal decimal.Decimal, productTypes []enums.ProductType) (*ProductVoucherResult, error)
	ValidateDeliveryVoucher(ctx context.Context, code string, subtotal, deliveryFee decimal.Decimal) (*DeliveryVoucherResult, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds the voucher validator.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("vouchers repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) ValidateProductVoucher(ctx context.Context, code string, subtotal decimal.Decimal, productTypes []enums.ProductType) (*ProductVoucherResult, error) {
	voucher, err := s.repo.FindVoucherByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidVoucher(code)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}

	now := s.now().UTC()
	if !voucher.IsActive || now.Before(voucher.StartsAt) || now.After(voucher.ExpiresAt) || voucher.UsedCount >= voucher.MaxUses {
		return nil, invalidVoucher(code)
	}

	if len(voucher.ApplicableProductTypes) > 0 && !typesOverlap(voucher.ApplicableProductTypes, productTypes) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher not applicable to items in this order").
			WithDetails(map[string]string{"code": voucher.Code})
	}

	if voucher.MinOrderAmount != nil && subtotal.LessThan(*voucher.MinOrderAmount) {
		return nil, minimumOrderNotMet(voucher.Code, *voucher.MinOrderAmount)
	}

	discount := discountFor(voucher.DiscountType, voucher.DiscountValue, subtotal)
	if voucher.MaxDiscountAmount != nil && discount.GreaterThan(*voucher.MaxDiscountAmount) {
		discount = *voucher.MaxDiscountAmount
	}

	return &ProductVoucherResult{Voucher: voucher, Discount: discount}, nil
}

func (s *service) ValidateDeliveryVoucher(ctx context.Context, code string, subtotal, deliveryFee decimal.Decimal) (*DeliveryVoucherResult, error) {
	voucher, err := s.repo.FindDeliveryVoucherByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidVoucher(code)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery voucher")
	}

	now := s.now().UTC()
	if !voucher.IsActive || now.Before(voucher.StartsAt) || now.After(voucher.ExpiresAt) || voucher.UsedCount >= voucher.MaxUses {
		return nil, invalidVoucher(code)
	}

	if voucher.MinOrderAmount != nil && subtotal.LessThan(*voucher.MinOrderAmount) {
		return nil, minimumOrderNotMet(voucher.Code, *voucher.MinOrderAmount)
	}

	var discount decimal.Decimal
	if voucher.DiscountType == enums.DiscountTypeFreeShipping {
		discount = deliveryFee
	} else {
		discount = discountFor(voucher.DiscountType, voucher.DiscountValue, deliveryFee)
	}

	finalFee := deliveryFee.Sub(discount)
	if finalFee.IsNegative() {
		finalFee = decimal.Zero
		discount = deliveryFee
	}

	return &DeliveryVoucherResult{Voucher: voucher, Discount: discount, FinalFee: finalFee}, nil
}

// discountFor prices percentage against the base amount and caps fixed
// discounts at the base so a voucher can never push a total negative.
func discountFor(discountType enums.DiscountType, value, base decimal.Decimal) decimal.Decimal {
	switch discountType {
	case enums.DiscountTypePercentage:
		return base.Mul(value).Div(decimal.NewFromInt(100)).Round(2)
	case enums.DiscountTypeFixedAmount:
		if value.GreaterThan(base) {
			return base
		}
		return value
	default:
		return decimal.Zero
	}
}

func typesOverlap(applicable []string, cart []enums.ProductType) bool {
	for _, allowed := range applicable {
		for _, t := range cart {
			if allowed == t.String() {
				return true
			}
		}
	}
	return false
}

func invalidVoucher(code string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired voucher").
		WithDetails(map[string]string{"code": code})
}

func minimumOrderNotMet(code string, minimum decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "order does not meet the voucher minimum").
		WithDetails(map[string]any{"code": code, "min_order_amount": minimum.StringFixed(2)})
}
