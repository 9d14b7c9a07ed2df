package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kukusoko/kukusoko-backend/internal/timeline"
	"github.com/kukusoko/kukusoko-backend/pkg/auth"
	"github.com/kukusoko/kukusoko-backend/pkg/config"
	"github.com/kukusoko/kukusoko-backend/pkg/db"
	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	pkgerrors "github.com/kukusoko/kukusoko-backend/pkg/errors"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
	"github.com/kukusoko/kukusoko-backend/pkg/metrics"
	"github.com/kukusoko/kukusoko-backend/pkg/mpesa"
)

// pushGateway is the slice of the M-Pesa client this service uses.
type pushGateway interface {
	InitiateSTKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResult, error)
	NewExternalReference(prefix string) string
}

// InitiateInput is the payment submission for an existing order.
type InitiateInput struct {
	OrderID         uuid.UUID           `json:"order_id" validate:"required"`
	Method          enums.PaymentMethod `json:"method" validate:"required"`
	PhoneNumber     string              `json:"phone_number,omitempty"`
	TransactionCode string              `json:"transaction_code,omitempty"`
	MpesaMessage    string              `json:"mpesa_message,omitempty"`
	STKPush         bool                `json:"stk_push,omitempty"`
}

// STKPushInfo reports the gateway acknowledgement to the client.
type STKPushInfo struct {
	Initiated            bool   `json:"initiated"`
	TransactionReference string `json:"transaction_reference"`
	Message              string `json:"message,omitempty"`
}

// InitiateResult is the created payment plus push details when applicable.
type InitiateResult struct {
	Payment *models.Payment `json:"payment"`
	STKPush *STKPushInfo    `json:"stk_push,omitempty"`
}

// Service starts payments for orders. The STK push path calls the gateway
// first and only persists the PENDING payment once the push was accepted,
// so no transaction is held open across the network call.
type Service interface {
	Initiate(ctx context.Context, principal auth.Principal, input InitiateInput) (*InitiateResult, error)
}

type service struct {
	repo     Repository
	gateway  pushGateway
	timeline timeline.Service
	metrics  *metrics.PaymentMetrics
	cfg      config.MpesaConfig
	logger   *logger.Logger
}

// NewService validates dependencies and builds the payment initiator.
func NewService(repo Repository, gateway pushGateway, tl timeline.Service, m *metrics.PaymentMetrics, cfg config.MpesaConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if tl == nil {
		return nil, fmt.Errorf("timeline service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, gateway: gateway, timeline: tl, metrics: m, cfg: cfg, logger: logg}, nil
}

func (s *service) Initiate(ctx context.Context, principal auth.Principal, input InitiateInput) (*InitiateResult, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	order, err := s.repo.FindOrderByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !principal.IsAdmin() && order.CustomerID != principal.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}

	// One payment per order; double initiation is always rejected.
	if _, err := s.repo.FindPaymentByOrder(ctx, order.ID); err == nil {
		return nil, paymentAlreadyExists(order.ID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing payment")
	}

	if input.STKPush && input.Method == enums.PaymentMethodMpesa {
		return s.initiatePush(ctx, order, input)
	}
	return s.initiateManual(ctx, order, input)
}

func (s *service) initiatePush(ctx context.Context, order *models.Order, input InitiateInput) (*InitiateResult, error) {
	if input.PhoneNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone number required for STK push")
	}
	normalized, err := mpesa.NormalizePhone(input.PhoneNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid phone number")
	}

	externalRef := s.gateway.NewExternalReference("order")
	callbackURL := fmt.Sprintf("%s/api/payments/callback/order/%s", s.cfg.CallbackBaseURL, order.ID)

	start := time.Now()
	result, err := s.gateway.InitiateSTKPush(ctx, mpesa.STKPushRequest{
		Phone:       normalized,
		Amount:      order.Total,
		ExternalRef: externalRef,
		CallbackURL: callbackURL,
	})
	if err != nil {
		s.metrics.ObservePush("failure", time.Since(start))
		var gatewayErr *mpesa.GatewayError
		if errors.As(err, &gatewayErr) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, gatewayErr, gatewayErr.CustomerMessage).
				WithDetails(map[string]string{"code": gatewayErr.Code, "field": gatewayErr.Field})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment gateway unreachable")
	}
	s.metrics.ObservePush("success", time.Since(start))

	payment := &models.Payment{
		OrderID:        order.ID,
		Amount:         order.Total,
		Method:         enums.PaymentMethodMpesa,
		Status:         enums.PaymentStatusPending,
		PhoneNumber:    normalized,
		TransactionRef: result.TransactionReference,
		ExternalRef:    externalRef,
	}
	if err := s.persistPending(ctx, order, payment); err != nil {
		return nil, err
	}

	s.recordSubmitted(ctx, order, fmt.Sprintf("STK push sent to %s", normalized))

	return &InitiateResult{
		Payment: payment,
		STKPush: &STKPushInfo{
			Initiated:            true,
			TransactionReference: result.TransactionReference,
			Message:              result.Message,
		},
	}, nil
}

func (s *service) initiateManual(ctx context.Context, order *models.Order, input InitiateInput) (*InitiateResult, error) {
	payment := &models.Payment{
		OrderID:        order.ID,
		Amount:         order.Total,
		Method:         input.Method,
		Status:         enums.PaymentStatusPending,
		PhoneNumber:    input.PhoneNumber,
		TransactionRef: input.TransactionCode,
	}
	if err := s.persistPending(ctx, order, payment); err != nil {
		return nil, err
	}

	s.recordSubmitted(ctx, order, fmt.Sprintf("Payment submitted via %s", input.Method))

	return &InitiateResult{Payment: payment}, nil
}

func (s *service) persistPending(ctx context.Context, order *models.Order, payment *models.Payment) error {
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, "idx_payments_order_id") {
			return paymentAlreadyExists(order.ID)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}
	if err := s.repo.UpdateOrderPaymentStatus(ctx, order.ID, enums.OrderPaymentStatusPending); err != nil {
		s.logger.Error(s.logger.WithOrderID(ctx, order.ID.String()), "failed to mark order payment pending", err)
	}
	return nil
}

func (s *service) recordSubmitted(ctx context.Context, order *models.Order, description string) {
	actorID := order.CustomerID
	s.timeline.Record(ctx, timeline.Entry{
		OrderID:     order.ID,
		Action:      enums.TimelineActionPaymentSubmitted,
		ActorRole:   enums.ActorRoleCustomer,
		ActorID:     &actorID,
		Description: description,
	})
}

func paymentAlreadyExists(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "a payment already exists for this order").
		WithDetails(map[string]string{"order_id": orderID.String()})
}
