package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

type stubTx struct {
	calls int
}

func (s *stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.calls++
	return fn(nil)
}

type stubOrdersRepo struct {
	orders         map[uuid.UUID]*models.Order
	items          []models.OrderItem
	deliveries     []models.Delivery
	payments       []models.Payment
	sellerID       uuid.UUID
	listFilters    ListFilters
	listRows       []models.Order
	listTotal      int64
	statusMoves    map[uuid.UUID]enums.OrderStatus
	createDeadline bool
}

func newStubOrdersRepo() *stubOrdersRepo {
	return &stubOrdersRepo{
		orders:      make(map[uuid.UUID]*models.Order),
		statusMoves: make(map[uuid.UUID]enums.OrderStatus),
	}
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubOrdersRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	_, s.createDeadline = ctx.Deadline()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	copied := *order
	s.orders[order.ID] = &copied
	return nil
}

func (s *stubOrdersRepo) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	s.items = append(s.items, items...)
	return nil
}

func (s *stubOrdersRepo) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	s.deliveries = append(s.deliveries, *delivery)
	return nil
}

func (s *stubOrdersRepo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	s.payments = append(s.payments, *payment)
	return nil
}

func (s *stubOrdersRepo) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *stubOrdersRepo) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, int64, error) {
	s.listFilters = filters
	return s.listRows, s.listTotal, nil
}

func (s *stubOrdersRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	s.statusMoves[id] = status
	if order, ok := s.orders[id]; ok {
		order.Status = status
	}
	return nil
}

func (s *stubOrdersRepo) OrderHasSellerItems(ctx context.Context, orderID, sellerID uuid.UUID) (bool, error) {
	return sellerID == s.sellerID, nil
}

type stubStockRepo struct {
	products          []models.Product
	decrements        map[uuid.UUID]int
	exhausted         map[uuid.UUID]bool
	decrementDeadline bool
}

func (s *stubStockRepo) WithTx(tx *gorm.DB) catalog.Repository { return s }

func (s *stubStockRepo) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	return s.products, nil
}

func (s *stubStockRepo) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	_, s.decrementDeadline = ctx.Deadline()
	if s.exhausted[productID] {
		return false, nil
	}
	if s.decrements == nil {
		s.decrements = make(map[uuid.UUID]int)
	}
	s.decrements[productID] += qty
	return true, nil
}

func (s *stubStockRepo) IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	return nil
}

type stubVoucherStore struct {
	voucher          *models.Voucher
	deliveryVoucher  *models.DeliveryVoucher
	consumed         []string
	deliveryConsumed []string
	refuseConsume    bool
}

func (s *stubVoucherStore) WithTx(tx *gorm.DB) vouchers.Repository { return s }

func (s *stubVoucherStore) FindVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	if s.voucher == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.voucher, nil
}

func (s *stubVoucherStore) FindDeliveryVoucherByCode(ctx context.Context, code string) (*models.DeliveryVoucher, error) {
	if s.deliveryVoucher == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.deliveryVoucher, nil
}

func (s *stubVoucherStore) ConsumeVoucher(ctx context.Context, code string) (bool, error) {
	if s.refuseConsume {
		return false, nil
	}
	s.consumed = append(s.consumed, code)
	return true, nil
}

func (s *stubVoucherStore) ConsumeDeliveryVoucher(ctx context.Context, code string) (bool, error) {
	s.deliveryConsumed = append(s.deliveryConsumed, code)
	return true, nil
}

type recordedTimeline struct {
	entries []timeline.Entry
}

func (r *recordedTimeline) Record(ctx context.Context, entry timeline.Entry) {
	r.entries = append(r.entries, entry)
}

func (r *recordedTimeline) List(ctx context.Context, orderID uuid.UUID) ([]models.OrderTimelineEvent, error) {
	return nil, nil
}

type recordedNotifier struct {
	messages []notifications.Message
}

func (r *recordedNotifier) Dispatch(ctx context.Context, messages []notifications.Message) {
	r.messages = append(r.messages, messages...)
}

type fixture struct {
	svc      Service
	repo     *stubOrdersRepo
	stock    *stubStockRepo
	vstore   *stubVoucherStore
	timeline *recordedTimeline
	notifier *recordedNotifier
	tx       *stubTx
}

func newFixture(t *testing.T, products []models.Product, voucher *models.Voucher) *fixture {
	t.Helper()

	repo := newStubOrdersRepo()
	stock := &stubStockRepo{products: products}
	vstore := &stubVoucherStore{voucher: voucher}
	tl := &recordedTimeline{}
	notifier := &recordedNotifier{}
	tx := &stubTx{}

	catalogSvc, err := catalog.NewService(stock)
	require.NoError(t, err)
	voucherSvc, err := vouchers.NewService(vstore)
	require.NoError(t, err)

	svc, err := NewService(Deps{
		Repo:        repo,
		CatalogSvc:  catalogSvc,
		CatalogRepo: stock,
		VoucherSvc:  voucherSvc,
		VoucherRepo: vstore,
		Timeline:    tl,
		Notifier:    notifier,
		Tx:          tx,
		Config:      config.OrdersConfig{CommitTimeout: 15 * time.Second, AmountTolerance: 1.0, DeliveryFee: 200},
		Logger:      logger.New(logger.Options{ServiceName: "orders-test"}),
	})
	require.NoError(t, err)

	return &fixture{svc: svc, repo: repo, stock: stock, vstore: vstore, timeline: tl, notifier: notifier, tx: tx}
}

func testProduct(price float64, stock int, seller uuid.UUID) models.Product {
	return models.Product{
		ID:         uuid.New(),
		SellerID:   seller,
		Name:       "Improved Kienyeji Chicks",
		Type:       enums.ProductTypeChicks,
		Price:      decimal.NewFromFloat(price),
		StockCount: stock,
		IsActive:   true,
	}
}

func customer() auth.Principal {
	return auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleCustomer, Name: "Wanjiku"}
}

func TestCreateOrderHappyPath(t *testing.T) {
	seller := uuid.New()
	p := testProduct(100, 10, seller)
	f := newFixture(t, []models.Product{p}, nil)

	order, err := f.svc.Create(context.Background(), customer(), CreateOrderInput{
		Items:           []ItemInput{{ProductID: p.ID, Quantity: 2}},
		DeliveryAddress: &DeliveryInput{Address: "Kasarani, Nairobi", Phone: "0712345678"},
		PaymentType:     enums.PaymentMethodCashOnDelivery,
		Subtotal:        decimal.NewFromInt(200),
		DeliveryFee:     decimal.NewFromInt(200),
		Total:           decimal.NewFromInt(400),
	})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.OrderPaymentStatusUnpaid, order.PaymentStatus)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(400)), "total %s", order.Total)
	assert.Equal(t, 1, f.tx.calls)
	assert.Equal(t, 2, f.stock.decrements[p.ID])
	require.Len(t, f.repo.items, 1)
	assert.Equal(t, seller, f.repo.items[0].SellerID)
	require.Len(t, f.repo.deliveries, 1)
	assert.Empty(t, f.repo.payments)

	require.Len(t, f.timeline.entries, 1)
	assert.Equal(t, enums.TimelineActionOrderCreated, f.timeline.entries[0].Action)

	require.Len(t, f.notifier.messages, 1)
	assert.Equal(t, seller, f.notifier.messages[0].RecipientID)
}

func TestCreateOrderPreConfirmedMpesa(t *testing.T) {
	p := testProduct(500, 5, uuid.New())
	f := newFixture(t, []models.Product{p}, nil)

	order, err := f.svc.Create(context.Background(), customer(), CreateOrderInput{
		Items:       []ItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentType: enums.PaymentMethodMpesa,
		PaymentDetails: &PaymentDetailsInput{
			Phone:     "0712345678",
			Reference: "SBC1XYZ123",
		},
		Subtotal: decimal.NewFromInt(500),
		Total:    decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusConfirmed, order.Status)
	assert.Equal(t, enums.OrderPaymentStatusPaid, order.PaymentStatus)
	require.Len(t, f.repo.payments, 1)
	assert.Equal(t, enums.PaymentStatusConfirmed, f.repo.payments[0].Status)
	assert.Equal(t, "SBC1XYZ123", f.repo.payments[0].TransactionRef)
}

func TestCreateOrderMpesaReferenceRequiresPhone(t *testing.T) {
	p := testProduct(500, 5, uuid.New())
	f := newFixture(t, []models.Product{p}, nil)

	_, err := f.svc.Create(context.Background(), customer(), CreateOrderInput{
		Items:          []ItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentType:    enums.PaymentMethodMpesa,
		PaymentDetails: &PaymentDetailsInput{Reference: "SBC1XYZ123"},
		Subtotal:       decimal.NewFromInt(500),
		Total:          decimal.NewFromInt(500),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestCreateOrderWritesRunUnderCommitDeadline(t *testing.T) {
	p := testProduct(100, 10, uuid.New())
	f := newFixture(t, []models.Product{p}, nil)

	_, err := f.svc.Create(context.Background(), customer(), CreateOrderInput{
		Items:       []ItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentType: enums.PaymentMethodCashOnDelivery,
		Subtotal:    decimal.NewFromInt(100),
		Total:       decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	// The caller's context has no deadline, so one seen inside the
	// transaction can only come from the commit timeout.
	assert.True(t, f.repo.createDeadline, "order insert must carry the commit deadline")
	assert.True(t, f.stock.decrementDeadline, "stock decrement must carry the commit deadline")
}

func TestCreateOrderRejectsTamperedTotal(t *testing.T) {
	p := testProduct(100, 10, uuid.New())
	f := newFixture(t, []models.Product{p}, nil)

	_, err := f.svc.Create(context.Background(), customer(), CreateOrderInput{
		Items:       []ItemInput{{ProductID: p.ID, Quantity: 2}},
		PaymentType: enums.PaymentMethodCashOnDelivery,
		Subtotal:    decimal.NewFromInt(200),
		Total:       decimal.NewFromInt(150),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Contains(t, typed.Message(), "do not match")
	assert.Equal(t, 0, f.tx.calls, "no transaction should run for a tampered cart")
}

func TestCreateOrderToleratesRoundingDrift(t *testing.T) {
	p := testProduct(100, 10, uuid.New())
	f := newFixture(t, []models.Product{p}, nil)

	_, err := f.svc.Create(context.Background(), customer(), CreateOrderInput{
		Items:       []ItemInput{{ProductID: p.ID, Quantity: 2}},
		PaymentType: enums.PaymentMethodCashOnDelivery,
		Subtotal:    decimal.NewFromFloat(200.50),
		Total:       decimal.NewFromFloat(200.50),
	})
	require.NoError(t, err)
}

func TestCreateOrderAbortsWhenStockRaceLost(t *testing.T) {
	p := testProduct(100, 1, uuid.New())
	f := newFixture(t, []models.Product{p}, nil)
	f.stock.exhausted = map[uuid.UUID]bool{p.ID: true}

	_, err := f.svc.Create(context.Background(), customer(), CreateOrderInput{
		Items:       []ItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentType: enums.PaymentMethodCashOnDelivery,
		Subtotal:    decimal.NewFromInt(100),
		Total:       decimal.NewFromInt(100),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Contains(t, typed.Message(), "insufficient stock")
	assert.Empty(t, f.timeline.entries)
	assert.Empty(t, f.notifier.messages)
}

func TestCreateOrderConsumesVoucherAtomically(t *testing.T) {
	p := testProduct(200, 10, uuid.New())
	voucher := &models.Voucher{
		ID:            uuid.New(),
		Code:          "SAVE10",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		MaxUses:       10,
		StartsAt:      time.Now().Add(-time.Hour),
		ExpiresAt:     time.Now().Add(time.Hour),
		IsActive:      true,
	}
	f := newFixture(t, []models.Product{p}, voucher)

	code := "SAVE10"
	order, err := f.svc.Create(context.Background(), customer(), CreateOrderInput{
		Items:          []ItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentType:    enums.PaymentMethodCashOnDelivery,
		VoucherCode:    &code,
		Subtotal:       decimal.NewFromInt(200),
		DiscountAmount: decimal.NewFromInt(20),
		Total:          decimal.NewFromInt(180),
	})
	require.NoError(t, err)
	assert.True(t, order.DiscountAmount.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, []string{"SAVE10"}, f.vstore.consumed)
}

func TestCreateOrderFailsWhenVoucherCapLostInTransaction(t *testing.T) {
	p := testProduct(200, 10, uuid.New())
	voucher := &models.Voucher{
		ID:            uuid.New(),
		Code:          "SAVE10",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		MaxUses:       10,
		StartsAt:      time.Now().Add(-time.Hour),
		ExpiresAt:     time.Now().Add(time.Hour),
		IsActive:      true,
	}
	f := newFixture(t, []models.Product{p}, voucher)
	f.vstore.refuseConsume = true

	code := "SAVE10"
	_, err := f.svc.Create(context.Background(), customer(), CreateOrderInput{
		Items:          []ItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentType:    enums.PaymentMethodCashOnDelivery,
		VoucherCode:    &code,
		Subtotal:       decimal.NewFromInt(200),
		DiscountAmount: decimal.NewFromInt(20),
		Total:          decimal.NewFromInt(180),
	})
	require.Error(t, err)
	assert.Empty(t, f.timeline.entries)
}

func TestListScopesByRole(t *testing.T) {
	f := newFixture(t, nil, nil)

	cust := customer()
	_, err := f.svc.List(context.Background(), cust, nil, pagination.Params{})
	require.NoError(t, err)
	require.NotNil(t, f.repo.listFilters.CustomerID)
	assert.Equal(t, cust.UserID, *f.repo.listFilters.CustomerID)
	assert.Nil(t, f.repo.listFilters.SellerID)

	sellerPrincipal := auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleSeller}
	_, err = f.svc.List(context.Background(), sellerPrincipal, nil, pagination.Params{})
	require.NoError(t, err)
	require.NotNil(t, f.repo.listFilters.SellerID)
	assert.Equal(t, sellerPrincipal.UserID, *f.repo.listFilters.SellerID)
	assert.Nil(t, f.repo.listFilters.CustomerID)

	admin := auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	_, err = f.svc.List(context.Background(), admin, nil, pagination.Params{})
	require.NoError(t, err)
	assert.Nil(t, f.repo.listFilters.CustomerID)
	assert.Nil(t, f.repo.listFilters.SellerID)
}

func TestUpdateStatusFollowsTransitionTable(t *testing.T) {
	f := newFixture(t, nil, nil)
	admin := auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleAdmin, Name: "Ops"}

	order := &models.Order{ID: uuid.New(), CustomerID: uuid.New(), Status: enums.OrderStatusPaid}
	f.repo.orders[order.ID] = order

	updated, err := f.svc.UpdateStatus(context.Background(), admin, order.ID, UpdateStatusInput{Status: enums.OrderStatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, updated.Status)

	require.Len(t, f.timeline.entries, 1)
	entry := f.timeline.entries[0]
	assert.Equal(t, enums.TimelineActionStatusChanged, entry.Action)
	assert.Equal(t, "paid", *entry.OldStatus)
	assert.Equal(t, "processing", *entry.NewStatus)

	require.Len(t, f.notifier.messages, 1)
	assert.Equal(t, order.CustomerID, f.notifier.messages[0].RecipientID)
}

func TestUpdateStatusRejectsIllegalJump(t *testing.T) {
	f := newFixture(t, nil, nil)
	admin := auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleAdmin}

	order := &models.Order{ID: uuid.New(), CustomerID: uuid.New(), Status: enums.OrderStatusPending}
	f.repo.orders[order.ID] = order

	_, err := f.svc.UpdateStatus(context.Background(), admin, order.ID, UpdateStatusInput{Status: enums.OrderStatusDelivered})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateChange, typed.Code())
}

func TestUpdateStatusForbiddenForCustomers(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.svc.UpdateStatus(context.Background(), customer(), uuid.New(), UpdateStatusInput{Status: enums.OrderStatusConfirmed})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newFixture(t, nil, nil)

	owner := customer()
	order := &models.Order{ID: uuid.New(), CustomerID: owner.UserID, Status: enums.OrderStatusPending}
	f.repo.orders[order.ID] = order

	got, err := f.svc.Get(context.Background(), owner, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.Get(context.Background(), customer(), order.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())

	_, err = f.svc.Get(context.Background(), owner, uuid.New())
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(enums.OrderStatusPending, enums.OrderStatusConfirmed))
	assert.True(t, CanTransition(enums.OrderStatusShipped, enums.OrderStatusDelivered))
	assert.False(t, CanTransition(enums.OrderStatusCompleted, enums.OrderStatusPending))
	assert.False(t, CanTransition(enums.OrderStatusCancelled, enums.OrderStatusConfirmed))
	assert.False(t, CanTransition(enums.OrderStatusShipped, enums.OrderStatusCancelled))
}
