package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kukusoko/kukusoko-backend/internal/catalog"
	"github.com/kukusoko/kukusoko-backend/internal/notifications"
	"github.com/kukusoko/kukusoko-backend/internal/timeline"
	"github.com/kukusoko/kukusoko-backend/internal/vouchers"
	"github.com/kukusoko/kukusoko-backend/pkg/auth"
	"github.com/kukusoko/kukusoko-backend/pkg/config"
	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	pkgerrors "github.com/kukusoko/kukusoko-backend/pkg/errors"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
	"github.com/kukusoko/kukusoko-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the order lifecycle entry point: transactional creation,
// role-scoped reads, and fulfillment status transitions.
type Service interface {
	Create(ctx context.Context, principal auth.Principal, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, principal auth.Principal, status *enums.OrderStatus, params pagination.Params) (*OrderList, error)
	UpdateStatus(ctx context.Context, principal auth.Principal, orderID uuid.UUID, input UpdateStatusInput) (*models.Order, error)
	Timeline(ctx context.Context, principal auth.Principal, orderID uuid.UUID) ([]models.OrderTimelineEvent, error)
}

type service struct {
	repo        Repository
	catalogSvc  catalog.Service
	catalogRepo catalog.Repository
	voucherSvc  vouchers.Service
	voucherRepo vouchers.Repository
	timeline    timeline.Service
	notifier    notifications.Dispatcher
	tx          txRunner
	cfg         config.OrdersConfig
	logger      *logger.Logger
}

// Deps bundles the collaborators the order service needs.
type Deps struct {
	Repo        Repository
	CatalogSvc  catalog.Service
	CatalogRepo catalog.Repository
	VoucherSvc  vouchers.Service
	VoucherRepo vouchers.Repository
	Timeline    timeline.Service
	Notifier    notifications.Dispatcher
	Tx          txRunner
	Config      config.OrdersConfig
	Logger      *logger.Logger
}

// NewService validates dependencies and builds the order service.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.CatalogSvc == nil || deps.CatalogRepo == nil:
		return nil, fmt.Errorf("catalog service and repository required")
	case deps.VoucherSvc == nil || deps.VoucherRepo == nil:
		return nil, fmt.Errorf("voucher service and repository required")
	case deps.Timeline == nil:
		return nil, fmt.Errorf("timeline service required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notification dispatcher required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if deps.Config.CommitTimeout <= 0 {
		deps.Config.CommitTimeout = 15 * time.Second
	}
	return &service{
		repo:        deps.Repo,
		catalogSvc:  deps.CatalogSvc,
		catalogRepo: deps.CatalogRepo,
		voucherSvc:  deps.VoucherSvc,
		voucherRepo: deps.VoucherRepo,
		timeline:    deps.Timeline,
		notifier:    deps.Notifier,
		tx:          deps.Tx,
		cfg:         deps.Config,
		logger:      deps.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, principal auth.Principal, input CreateOrderInput) (*models.Order, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.PaymentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment type")
	}

	preConfirmed := false
	if input.PaymentType == enums.PaymentMethodMpesa && input.PaymentDetails != nil && input.PaymentDetails.Reference != "" {
		if input.PaymentDetails.Phone == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "mobile money payment requires a phone number and reference")
		}
		preConfirmed = true
	}

	cart := make([]catalog.CartItem, 0, len(input.Items))
	for _, item := range input.Items {
		cart = append(cart, catalog.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	quote, err := s.catalogSvc.Quote(ctx, cart)
	if err != nil {
		return nil, err
	}

	discount := decimal.Zero
	if input.VoucherCode != nil && *input.VoucherCode != "" {
		result, err := s.voucherSvc.ValidateProductVoucher(ctx, *input.VoucherCode, quote.Subtotal, quote.ProductTypes)
		if err != nil {
			return nil, err
		}
		discount = result.Discount
	}

	deliveryFee := decimal.Zero
	if input.DeliveryAddress != nil {
		deliveryFee = decimal.NewFromFloat(s.cfg.DeliveryFee)
		if input.DeliveryVoucherCode != nil && *input.DeliveryVoucherCode != "" {
			result, err := s.voucherSvc.ValidateDeliveryVoucher(ctx, *input.DeliveryVoucherCode, quote.Subtotal, deliveryFee)
			if err != nil {
				return nil, err
			}
			deliveryFee = result.FinalFee
		}
	}

	total := quote.Subtotal.Sub(discount).Add(deliveryFee)
	if err := s.reconcile(input, quote.Subtotal, discount, total); err != nil {
		return nil, err
	}

	status := enums.OrderStatusPending
	paymentStatus := enums.OrderPaymentStatusUnpaid
	if preConfirmed {
		status = enums.OrderStatusConfirmed
		paymentStatus = enums.OrderPaymentStatusPaid
	}

	order := &models.Order{
		CustomerID:          principal.UserID,
		Status:              status,
		PaymentStatus:       paymentStatus,
		PaymentType:         input.PaymentType,
		Subtotal:            quote.Subtotal,
		DiscountAmount:      discount,
		DeliveryFee:         deliveryFee,
		Total:               total,
		VoucherCode:         input.VoucherCode,
		DeliveryVoucherCode: input.DeliveryVoucherCode,
		Notes:               input.Notes,
	}

	txCtx, cancel := context.WithTimeout(ctx, s.cfg.CommitTimeout)
	defer cancel()

	err = s.tx.WithTx(txCtx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		catalogRepo := s.catalogRepo.WithTx(tx)
		voucherRepo := s.voucherRepo.WithTx(tx)

		if err := repo.CreateOrder(txCtx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		items := make([]models.OrderItem, 0, len(quote.Lines))
		for _, line := range quote.Lines {
			items = append(items, models.OrderItem{
				OrderID:      order.ID,
				ProductID:    line.ProductID,
				SellerID:     line.SellerID,
				ProductName:  line.ProductName,
				ProductType:  line.ProductType,
				UnitPrice:    line.UnitPrice,
				UnitDiscount: line.UnitDiscount,
				Quantity:     line.Quantity,
			})
		}
		if err := repo.CreateOrderItems(txCtx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		if input.DeliveryAddress != nil {
			delivery := &models.Delivery{
				OrderID: order.ID,
				Address: input.DeliveryAddress.Address,
				Phone:   input.DeliveryAddress.Phone,
				Fee:     deliveryFee,
				Status:  enums.DeliveryStatusPending,
			}
			if err := repo.CreateDelivery(txCtx, delivery); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery")
			}
		}

		if preConfirmed {
			payment := &models.Payment{
				OrderID:        order.ID,
				Amount:         total,
				Method:         input.PaymentType,
				Status:         enums.PaymentStatusConfirmed,
				PhoneNumber:    input.PaymentDetails.Phone,
				TransactionRef: input.PaymentDetails.Reference,
			}
			if err := repo.CreatePayment(txCtx, payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
			}
		}

		// Guarded decrement serializes concurrent checkouts: whoever
		// loses the race gets rows-affected 0 and rolls back here.
		for _, line := range quote.Lines {
			ok, err := catalogRepo.DecrementStock(txCtx, line.ProductID, line.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
					WithDetails(map[string]string{"product_id": line.ProductID.String(), "product": line.ProductName})
			}
		}

		if input.VoucherCode != nil && *input.VoucherCode != "" {
			ok, err := voucherRepo.ConsumeVoucher(txCtx, *input.VoucherCode)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume voucher")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired voucher").
					WithDetails(map[string]string{"code": *input.VoucherCode})
			}
		}
		if input.DeliveryAddress != nil && input.DeliveryVoucherCode != nil && *input.DeliveryVoucherCode != "" {
			ok, err := voucherRepo.ConsumeDeliveryVoucher(txCtx, *input.DeliveryVoucherCode)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume delivery voucher")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired voucher").
					WithDetails(map[string]string{"code": *input.DeliveryVoucherCode})
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCreate(ctx, principal, order, quote)

	created, loadErr := s.repo.FindOrderByID(ctx, order.ID)
	if loadErr != nil {
		s.logger.Error(s.logger.WithOrderID(ctx, order.ID.String()), "failed to reload created order", loadErr)
		return order, nil
	}
	return created, nil
}

// afterCreate runs the post-commit side effects: the timeline entry and
// one notification per distinct seller. Both are best-effort.
func (s *service) afterCreate(ctx context.Context, principal auth.Principal, order *models.Order, quote *catalog.Quote) {
	actorID := principal.UserID
	actorName := principal.Name
	s.timeline.Record(ctx, timeline.Entry{
		OrderID:     order.ID,
		Action:      enums.TimelineActionOrderCreated,
		ActorRole:   enums.ActorRoleCustomer,
		ActorID:     &actorID,
		ActorName:   &actorName,
		Description: fmt.Sprintf("Order placed for KES %s", order.Total.StringFixed(2)),
	})

	sellers := make(map[uuid.UUID]struct{})
	messages := make([]notifications.Message, 0)
	orderID := order.ID
	for _, line := range quote.Lines {
		if _, seen := sellers[line.SellerID]; seen {
			continue
		}
		sellers[line.SellerID] = struct{}{}
		messages = append(messages, notifications.Message{
			RecipientID: line.SellerID,
			Kind:        enums.NotificationKindOrderCreated,
			Title:       "New order received",
			Body:        fmt.Sprintf("A customer ordered your products (order %s)", order.ID),
			OrderID:     &orderID,
			SendEmail:   true,
		})
	}
	s.notifier.Dispatch(ctx, messages)
}

func (s *service) reconcile(input CreateOrderInput, subtotal, discount, total decimal.Decimal) error {
	tolerance := decimal.NewFromFloat(s.cfg.AmountTolerance)
	if tolerance.LessThanOrEqual(decimal.Zero) {
		tolerance = decimal.NewFromInt(1)
	}

	type check struct {
		name   string
		server decimal.Decimal
		client decimal.Decimal
	}
	for _, c := range []check{
		{"subtotal", subtotal, input.Subtotal},
		{"discount_amount", discount, input.DiscountAmount},
		{"total", total, input.Total},
	} {
		if c.server.Sub(c.client).Abs().GreaterThan(tolerance) {
			return pkgerrors.New(pkgerrors.CodeValidation, "order amounts do not match server pricing").
				WithDetails(map[string]string{
					"field":  c.name,
					"server": c.server.StringFixed(2),
					"client": c.client.StringFixed(2),
				})
		}
	}
	return nil
}

func (s *service) Get(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadAuthorized(ctx, principal, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) List(ctx context.Context, principal auth.Principal, status *enums.OrderStatus, params pagination.Params) (*OrderList, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	filters := ListFilters{Status: status}
	switch {
	case principal.IsCustomer():
		id := principal.UserID
		filters.CustomerID = &id
	case principal.IsSeller():
		id := principal.UserID
		filters.SellerID = &id
	case principal.IsAdmin():
		// unscoped
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
	}

	rows, total, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return &OrderList{Items: rows, Meta: pagination.NewMeta(params, total)}, nil
}

func (s *service) UpdateStatus(ctx context.Context, principal auth.Principal, orderID uuid.UUID, input UpdateStatusInput) (*models.Order, error) {
	if !principal.IsSeller() && !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers or admins can update order status")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	order, err := s.loadAuthorized(ctx, principal, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == input.Status {
		return order, nil
	}
	if !CanTransition(order.Status, input.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateChange, "status transition not allowed").
			WithDetails(map[string]string{"from": order.Status.String(), "to": input.Status.String()})
	}

	if err := s.repo.UpdateOrderStatus(ctx, order.ID, input.Status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}

	oldStatus := order.Status.String()
	newStatus := input.Status.String()
	actorID := principal.UserID
	actorName := principal.Name
	description := fmt.Sprintf("Order status changed from %s to %s", oldStatus, newStatus)
	if input.Notes != nil && *input.Notes != "" {
		description = fmt.Sprintf("%s: %s", description, *input.Notes)
	}
	s.timeline.Record(ctx, timeline.Entry{
		OrderID:     order.ID,
		Action:      enums.TimelineActionStatusChanged,
		ActorRole:   principal.Role,
		ActorID:     &actorID,
		ActorName:   &actorName,
		OldStatus:   &oldStatus,
		NewStatus:   &newStatus,
		Description: description,
	})

	id := order.ID
	s.notifier.Dispatch(ctx, []notifications.Message{{
		RecipientID: order.CustomerID,
		Kind:        enums.NotificationKindOrderStatus,
		Title:       "Order update",
		Body:        fmt.Sprintf("Your order is now %s", newStatus),
		OrderID:     &id,
	}})

	order.Status = input.Status
	return order, nil
}

func (s *service) Timeline(ctx context.Context, principal auth.Principal, orderID uuid.UUID) ([]models.OrderTimelineEvent, error) {
	if _, err := s.loadAuthorized(ctx, principal, orderID); err != nil {
		return nil, err
	}
	return s.timeline.List(ctx, orderID)
}

// loadAuthorized fetches an order and enforces ownership: customers see
// their own orders, sellers see orders containing their products, admins
// see everything.
func (s *service) loadAuthorized(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*models.Order, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	switch {
	case principal.IsAdmin():
		return order, nil
	case principal.IsCustomer():
		if order.CustomerID != principal.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		return order, nil
	case principal.IsSeller():
		has, err := s.repo.OrderHasSellerItems(ctx, order.ID, principal.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check seller items")
		}
		if !has {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not contain seller products")
		}
		return order, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot view orders")
	}
}
