package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	pkgerrors "github.com/kukusoko/kukusoko-backend/pkg/errors"
)

// CartItem is one proposed line of a checkout.
type CartItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// QuoteLine carries the authoritative per-unit price for one cart line,
// snapshotted from the product at quote time.
type QuoteLine struct {
	ProductID    uuid.UUID
	SellerID     uuid.UUID
	ProductName  string
	ProductType  enums.ProductType
	ListPrice    decimal.Decimal
	UnitPrice    decimal.Decimal
	UnitDiscount decimal.Decimal
	Quantity     int
}

// Quote is the server-side repricing of a cart. Pure data; nothing here
// has touched stock or voucher counters yet.
type Quote struct {
	Lines        []QuoteLine
	Subtotal     decimal.Decimal
	ProductTypes []enums.ProductType
}

// Service reprices carts against the live catalog.
type Service interface {
	Quote(ctx context.Context, items []CartItem) (*Quote, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds the pricing resolver.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Quote(ctx context.Context, items []CartItem) (*Quote, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]string{"product_id": item.ProductID.String()})
		}
		ids = append(ids, item.ProductID)
	}

	products, err := s.repo.FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	now := s.now().UTC()
	quote := &Quote{Subtotal: decimal.Zero}
	seenTypes := make(map[enums.ProductType]struct{})

	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok || !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product unavailable").
				WithDetails(map[string]string{"product_id": item.ProductID.String()})
		}
		if product.StockCount < item.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
				WithDetails(map[string]any{
					"product_id": product.ID.String(),
					"product":    product.Name,
					"available":  product.StockCount,
					"requested":  item.Quantity,
				})
		}

		unitPrice := EffectiveUnitPrice(product, now)
		line := QuoteLine{
			ProductID:    product.ID,
			SellerID:     product.SellerID,
			ProductName:  product.Name,
			ProductType:  product.Type,
			ListPrice:    product.Price,
			UnitPrice:    unitPrice,
			UnitDiscount: product.Price.Sub(unitPrice),
			Quantity:     item.Quantity,
		}
		quote.Lines = append(quote.Lines, line)
		quote.Subtotal = quote.Subtotal.Add(unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))

		if _, seen := seenTypes[product.Type]; !seen {
			seenTypes[product.Type] = struct{}{}
			quote.ProductTypes = append(quote.ProductTypes, product.Type)
		}
	}

	return quote, nil
}

// EffectiveUnitPrice returns the price a unit is charged at right now,
// applying the product's discount only while its window is open.
func EffectiveUnitPrice(product models.Product, now time.Time) decimal.Decimal {
	if !product.HasDiscount || product.DiscountType == nil {
		return product.Price
	}
	if product.DiscountStartDate != nil && now.Before(*product.DiscountStartDate) {
		return product.Price
	}
	if product.DiscountEndDate != nil && now.After(*product.DiscountEndDate) {
		return product.Price
	}

	switch *product.DiscountType {
	case enums.DiscountTypePercentage:
		factor := decimal.NewFromInt(1).Sub(product.DiscountAmount.Div(decimal.NewFromInt(100)))
		price := product.Price.Mul(factor).Round(2)
		if price.IsNegative() {
			return decimal.Zero
		}
		return price
	case enums.DiscountTypeFixedAmount:
		price := product.Price.Sub(product.DiscountAmount)
		if price.IsNegative() {
			return decimal.Zero
		}
		return price
	default:
		return product.Price
	}
}
