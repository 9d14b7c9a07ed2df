package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kukusoko/kukusoko-backend/internal/timeline"
	"github.com/kukusoko/kukusoko-backend/pkg/auth"
	"github.com/kukusoko/kukusoko-backend/pkg/config"
	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	pkgerrors "github.com/kukusoko/kukusoko-backend/pkg/errors"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
	"github.com/kukusoko/kukusoko-backend/pkg/mpesa"
)

type stubPaymentsRepo struct {
	order          *models.Order
	payment        *models.Payment
	created        []models.Payment
	orderPayStatus enums.OrderPaymentStatus
	createErr      error
}

func (s *stubPaymentsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubPaymentsRepo) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubPaymentsRepo) FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	if s.payment == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.payment, nil
}

func (s *stubPaymentsRepo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if s.createErr != nil {
		return s.createErr
	}
	payment.ID = uuid.New()
	s.created = append(s.created, *payment)
	return nil
}

func (s *stubPaymentsRepo) UpdateOrderPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderPaymentStatus) error {
	s.orderPayStatus = status
	return nil
}

type stubGateway struct {
	result *mpesa.STKPushResult
	err    error
	gotReq mpesa.STKPushRequest
}

func (s *stubGateway) InitiateSTKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResult, error) {
	s.gotReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubGateway) NewExternalReference(prefix string) string {
	return prefix + "-test-ref"
}

type noopTimeline struct {
	entries []timeline.Entry
}

func (n *noopTimeline) Record(ctx context.Context, entry timeline.Entry) {
	n.entries = append(n.entries, entry)
}

func (n *noopTimeline) List(ctx context.Context, orderID uuid.UUID) ([]models.OrderTimelineEvent, error) {
	return nil, nil
}

func newPaymentsFixture(t *testing.T, repo *stubPaymentsRepo, gateway *stubGateway) (Service, *noopTimeline) {
	t.Helper()
	tl := &noopTimeline{}
	svc, err := NewService(repo, gateway, tl, nil, config.MpesaConfig{
		CallbackBaseURL: "https://api.kukusoko.test",
	}, logger.New(logger.Options{ServiceName: "payments-test"}))
	require.NoError(t, err)
	return svc, tl
}

func pendingOrder(customerID uuid.UUID) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		CustomerID:    customerID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.OrderPaymentStatusUnpaid,
		PaymentType:   enums.PaymentMethodMpesa,
		Total:         decimal.NewFromInt(750),
	}
}

func TestInitiateSTKPushPersistsPendingPayment(t *testing.T) {
	customerID := uuid.New()
	order := pendingOrder(customerID)
	repo := &stubPaymentsRepo{order: order}
	gateway := &stubGateway{result: &mpesa.STKPushResult{TransactionReference: "TX-99", Message: "sent"}}
	svc, tl := newPaymentsFixture(t, repo, gateway)

	result, err := svc.Initiate(context.Background(), auth.Principal{UserID: customerID, Role: enums.ActorRoleCustomer}, InitiateInput{
		OrderID:     order.ID,
		Method:      enums.PaymentMethodMpesa,
		PhoneNumber: "0712345678",
		STKPush:     true,
	})
	require.NoError(t, err)

	require.NotNil(t, result.STKPush)
	assert.True(t, result.STKPush.Initiated)
	assert.Equal(t, "TX-99", result.STKPush.TransactionReference)

	require.Len(t, repo.created, 1)
	created := repo.created[0]
	assert.Equal(t, enums.PaymentStatusPending, created.Status)
	assert.Equal(t, "254712345678", created.PhoneNumber)
	assert.Equal(t, "TX-99", created.TransactionRef)
	assert.Equal(t, "order-test-ref", created.ExternalRef)
	assert.True(t, created.Amount.Equal(order.Total))

	assert.Equal(t, "254712345678", gateway.gotReq.Phone)
	assert.Contains(t, gateway.gotReq.CallbackURL, "/api/payments/callback/order/"+order.ID.String())

	assert.Equal(t, enums.OrderPaymentStatusPending, repo.orderPayStatus)
	require.Len(t, tl.entries, 1)
	assert.Equal(t, enums.TimelineActionPaymentSubmitted, tl.entries[0].Action)
}

func TestInitiateRejectsDoubleInitiation(t *testing.T) {
	customerID := uuid.New()
	order := pendingOrder(customerID)
	repo := &stubPaymentsRepo{order: order, payment: &models.Payment{ID: uuid.New(), OrderID: order.ID}}
	svc, _ := newPaymentsFixture(t, repo, &stubGateway{})

	_, err := svc.Initiate(context.Background(), auth.Principal{UserID: customerID, Role: enums.ActorRoleCustomer}, InitiateInput{
		OrderID: order.ID,
		Method:  enums.PaymentMethodMpesa,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestInitiateSurfacesGatewayCustomerMessage(t *testing.T) {
	customerID := uuid.New()
	order := pendingOrder(customerID)
	repo := &stubPaymentsRepo{order: order}
	gateway := &stubGateway{err: &mpesa.GatewayError{
		Code:            "insufficient_balance",
		Message:         "balance below amount",
		CustomerMessage: "You do not have enough funds to complete this payment.",
		HTTPStatus:      400,
	}}
	svc, _ := newPaymentsFixture(t, repo, gateway)

	_, err := svc.Initiate(context.Background(), auth.Principal{UserID: customerID, Role: enums.ActorRoleCustomer}, InitiateInput{
		OrderID:     order.ID,
		Method:      enums.PaymentMethodMpesa,
		PhoneNumber: "0712345678",
		STKPush:     true,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeGateway, typed.Code())
	assert.Equal(t, "You do not have enough funds to complete this payment.", typed.Message())
	assert.Empty(t, repo.created, "no payment row on failed push")
}

func TestInitiateManualMethod(t *testing.T) {
	customerID := uuid.New()
	order := pendingOrder(customerID)
	order.PaymentType = enums.PaymentMethodBankTransfer
	repo := &stubPaymentsRepo{order: order}
	svc, _ := newPaymentsFixture(t, repo, &stubGateway{})

	result, err := svc.Initiate(context.Background(), auth.Principal{UserID: customerID, Role: enums.ActorRoleCustomer}, InitiateInput{
		OrderID:         order.ID,
		Method:          enums.PaymentMethodBankTransfer,
		TransactionCode: "BT-555",
	})
	require.NoError(t, err)
	assert.Nil(t, result.STKPush)
	require.Len(t, repo.created, 1)
	assert.Equal(t, enums.PaymentStatusPending, repo.created[0].Status)
	assert.Equal(t, "BT-555", repo.created[0].TransactionRef)
}

func TestInitiateRejectsInvalidPhone(t *testing.T) {
	customerID := uuid.New()
	order := pendingOrder(customerID)
	repo := &stubPaymentsRepo{order: order}
	svc, _ := newPaymentsFixture(t, repo, &stubGateway{})

	_, err := svc.Initiate(context.Background(), auth.Principal{UserID: customerID, Role: enums.ActorRoleCustomer}, InitiateInput{
		OrderID:     order.ID,
		Method:      enums.PaymentMethodMpesa,
		PhoneNumber: "12345",
		STKPush:     true,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.True(t, errors.Is(typed, mpesa.ErrInvalidPhoneFormat) || typed.Unwrap() != nil)
}

func TestInitiateForbiddenForOtherCustomer(t *testing.T) {
	order := pendingOrder(uuid.New())
	repo := &stubPaymentsRepo{order: order}
	svc, _ := newPaymentsFixture(t, repo, &stubGateway{})

	_, err := svc.Initiate(context.Background(), auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleCustomer}, InitiateInput{
		OrderID: order.ID,
		Method:  enums.PaymentMethodMpesa,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestInitiateUnknownOrder(t *testing.T) {
	repo := &stubPaymentsRepo{}
	svc, _ := newPaymentsFixture(t, repo, &stubGateway{})

	_, err := svc.Initiate(context.Background(), auth.Principal{UserID: uuid.New(), Role: enums.ActorRoleCustomer}, InitiateInput{
		OrderID: uuid.New(),
		Method:  enums.PaymentMethodMpesa,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
