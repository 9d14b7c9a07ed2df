package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kukusoko/kukusoko-backend/internal/catalog"
	"github.com/kukusoko/kukusoko-backend/internal/notifications"
	"github.com/kukusoko/kukusoko-backend/internal/timeline"
	"github.com/kukusoko/kukusoko-backend/pkg/config"
	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
	pkgerrors "github.com/kukusoko/kukusoko-backend/pkg/errors"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
	"github.com/kukusoko/kukusoko-backend/pkg/metrics"
	"github.com/kukusoko/kukusoko-backend/pkg/mpesa"
	"github.com/kukusoko/kukusoko-backend/pkg/redis"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CallbackResult is what the gateway-facing handler acknowledges with.
type CallbackResult struct {
	PaymentStatus enums.PaymentStatus
	Duplicate     bool
}

// Service applies gateway callbacks to payments exactly once. The state
// machine is PENDING → CONFIRMED | REJECTED | FAILED; all three targets
// are terminal, and replays of terminal payments are acknowledged no-ops.
type Service interface {
	HandleCallback(ctx context.Context, orderID uuid.UUID, payload mpesa.CallbackPayload) (*CallbackResult, error)
}

type service struct {
	repo        Repository
	catalogRepo catalog.Repository
	timeline    timeline.Service
	notifier    notifications.Dispatcher
	tx          txRunner
	idempotency redis.IdempotencyStore
	metrics     *metrics.PaymentMetrics
	cfg         config.MpesaConfig
	logger      *logger.Logger
}

// Deps bundles the reconciler collaborators.
type Deps struct {
	Repo        Repository
	CatalogRepo catalog.Repository
	Timeline    timeline.Service
	Notifier    notifications.Dispatcher
	Tx          txRunner
	Idempotency redis.IdempotencyStore
	Metrics     *metrics.PaymentMetrics
	Config      config.MpesaConfig
	Logger      *logger.Logger
}

const idempotencyScope = "mpesa-callback"

// errPaymentFinalized aborts an update transaction when the guarded
// payment update matched no rows, meaning a concurrent delivery closed
// the payment first.
var errPaymentFinalized = errors.New("payment already finalized")

// NewService validates dependencies and builds the reconciler.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("reconcile repository required")
	case deps.CatalogRepo == nil:
		return nil, fmt.Errorf("catalog repository required")
	case deps.Timeline == nil:
		return nil, fmt.Errorf("timeline service required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notification dispatcher required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if deps.Config.IdempotencyTTL <= 0 {
		deps.Config.IdempotencyTTL = 72 * time.Hour
	}
	return &service{
		repo:        deps.Repo,
		catalogRepo: deps.CatalogRepo,
		timeline:    deps.Timeline,
		notifier:    deps.Notifier,
		tx:          deps.Tx,
		idempotency: deps.Idempotency,
		metrics:     deps.Metrics,
		cfg:         deps.Config,
		logger:      deps.Logger,
	}, nil
}

func (s *service) HandleCallback(ctx context.Context, orderID uuid.UUID, payload mpesa.CallbackPayload) (*CallbackResult, error) {
	if orderID == uuid.Nil || payload.TransactionReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and transaction reference required")
	}
	ctx = s.logger.WithOrderID(ctx, orderID.String())

	// Fast replay short-circuit. Redis being down is not fatal: the
	// terminal-status check below still guarantees idempotency.
	guardKey, fresh := s.claimIdempotency(ctx, payload.TransactionReference)
	if !fresh {
		return s.acknowledgeReplay(ctx, orderID, payload.TransactionReference)
	}

	payment, err := s.repo.FindPaymentByOrderAndRef(ctx, orderID, payload.TransactionReference)
	if err != nil {
		s.releaseIdempotency(ctx, guardKey)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment matches this callback")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	if payment.Status.IsTerminal() {
		s.metrics.IncCallbackReplay()
		s.logger.Info(ctx, "duplicate callback for terminal payment ignored")
		return &CallbackResult{PaymentStatus: payment.Status, Duplicate: true}, nil
	}

	var result *CallbackResult
	if payload.ResultCode == mpesa.ResultCodeSuccess {
		result, err = s.confirm(ctx, payment, payload)
	} else {
		result, err = s.fail(ctx, payment, payload)
	}
	if err != nil {
		s.releaseIdempotency(ctx, guardKey)
		return nil, err
	}
	if result.Duplicate {
		s.metrics.IncCallbackReplay()
	} else {
		s.metrics.IncCallback(result.PaymentStatus.String())
	}
	return result, nil
}

func (s *service) confirm(ctx context.Context, payment *models.Payment, payload mpesa.CallbackPayload) (*CallbackResult, error) {
	raw, _ := json.Marshal(payload)
	now := time.Now().UTC()

	order, err := s.repo.FindOrderByID(ctx, payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		updates := map[string]any{
			"status":               enums.PaymentStatusConfirmed,
			"callback_data":        json.RawMessage(raw),
			"callback_received_at": now,
		}
		if payload.MpesaReceiptNumber != "" {
			updates["mpesa_receipt"] = payload.MpesaReceiptNumber
		}
		affected, err := repo.UpdatePayment(ctx, payment.ID, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
		}
		if affected == 0 {
			return errPaymentFinalized
		}
		if err := repo.UpdateOrderPaymentState(ctx, payment.OrderID, enums.OrderStatusPaid, enums.OrderPaymentStatusConfirmed); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		return repo.CreateApproval(ctx, &models.PaymentApproval{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			Status:    enums.PaymentStatusApproved,
			ActorRole: enums.ActorRoleSystem,
		})
	})
	if err != nil {
		if errors.Is(err, errPaymentFinalized) {
			return s.finalizedElsewhere(ctx, payment)
		}
		return nil, err
	}

	s.timeline.Record(ctx, timeline.Entry{
		OrderID:     payment.OrderID,
		Action:      enums.TimelineActionPaymentConfirmed,
		ActorRole:   enums.ActorRoleSystem,
		Description: fmt.Sprintf("M-Pesa payment of KES %s confirmed (receipt %s)", payment.Amount.StringFixed(2), payload.MpesaReceiptNumber),
		Metadata:    raw,
	})
	s.notifyConfirmed(ctx, order)

	return &CallbackResult{PaymentStatus: enums.PaymentStatusConfirmed}, nil
}

// fail handles rejection and failure callbacks. Stock was decremented when
// the order was committed, so a terminal failure releases it and cancels
// the order in the same transaction that closes the payment.
func (s *service) fail(ctx context.Context, payment *models.Payment, payload mpesa.CallbackPayload) (*CallbackResult, error) {
	raw, _ := json.Marshal(payload)
	now := time.Now().UTC()

	status := enums.PaymentStatusFailed
	reason := payload.ResultDesc
	if payload.ResultCode == mpesa.ResultCodeUserCancelled {
		status = enums.PaymentStatusRejected
		reason = "Payment cancelled by user"
	}
	if reason == "" {
		reason = fmt.Sprintf("Gateway result code %d", payload.ResultCode)
	}

	items, err := s.repo.FindOrderItems(ctx, payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	order, err := s.repo.FindOrderByID(ctx, payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		catalogRepo := s.catalogRepo.WithTx(tx)

		affected, err := repo.UpdatePayment(ctx, payment.ID, map[string]any{
			"status":               status,
			"failure_reason":       reason,
			"callback_data":        json.RawMessage(raw),
			"callback_received_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if affected == 0 {
			return errPaymentFinalized
		}

		for _, item := range items {
			if err := catalogRepo.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock product")
			}
		}

		return repo.UpdateOrderPaymentState(ctx, payment.OrderID, enums.OrderStatusCancelled, enums.OrderPaymentStatusFailed)
	})
	if err != nil {
		if errors.Is(err, errPaymentFinalized) {
			return s.finalizedElsewhere(ctx, payment)
		}
		return nil, err
	}

	s.timeline.Record(ctx, timeline.Entry{
		OrderID:     payment.OrderID,
		Action:      enums.TimelineActionPaymentFailed,
		ActorRole:   enums.ActorRoleSystem,
		Description: fmt.Sprintf("M-Pesa payment failed: %s", reason),
		Metadata:    raw,
	})

	orderID := payment.OrderID
	s.notifier.Dispatch(ctx, []notifications.Message{{
		RecipientID: order.CustomerID,
		Kind:        enums.NotificationKindPaymentFailed,
		Title:       "Payment unsuccessful",
		Body:        fmt.Sprintf("Your payment could not be completed: %s. The order has been cancelled.", reason),
		OrderID:     &orderID,
		SendEmail:   true,
		SendSMS:     true,
	}})

	return &CallbackResult{PaymentStatus: status}, nil
}

// finalizedElsewhere reloads the payment after a guarded update matched
// no rows: a concurrent delivery won the PENDING → terminal race, so this
// one becomes an acknowledged no-op.
func (s *service) finalizedElsewhere(ctx context.Context, payment *models.Payment) (*CallbackResult, error) {
	current, err := s.repo.FindPaymentByOrderAndRef(ctx, payment.OrderID, payment.TransactionRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	s.logger.Info(ctx, "payment finalized by concurrent callback, skipping")
	return &CallbackResult{PaymentStatus: current.Status, Duplicate: true}, nil
}

func (s *service) notifyConfirmed(ctx context.Context, order *models.Order) {
	orderID := order.ID
	messages := []notifications.Message{{
		RecipientID: order.CustomerID,
		Kind:        enums.NotificationKindPaymentConfirmed,
		Title:       "Payment received",
		Body:        fmt.Sprintf("We received your payment of KES %s. Your order is being prepared.", order.Total.StringFixed(2)),
		OrderID:     &orderID,
		SendEmail:   true,
		SendSMS:     true,
	}}

	items, err := s.repo.FindOrderItems(ctx, order.ID)
	if err != nil {
		s.logger.Error(ctx, "failed to load items for seller notifications", err)
	} else {
		sellers := make(map[uuid.UUID]struct{})
		for _, item := range items {
			if _, seen := sellers[item.SellerID]; seen {
				continue
			}
			sellers[item.SellerID] = struct{}{}
			messages = append(messages, notifications.Message{
				RecipientID: item.SellerID,
				Kind:        enums.NotificationKindPaymentConfirmed,
				Title:       "Order paid",
				Body:        fmt.Sprintf("Order %s has been paid. You can start preparing it.", order.ID),
				OrderID:     &orderID,
				SendEmail:   true,
			})
		}
	}
	s.notifier.Dispatch(ctx, messages)
}

// claimIdempotency marks the transaction reference as seen. It reports
// whether this callback is the first claim; errors degrade to "fresh" so
// the DB terminal check remains the source of truth.
func (s *service) claimIdempotency(ctx context.Context, transactionRef string) (string, bool) {
	if s.idempotency == nil {
		return "", true
	}
	key := s.idempotency.IdempotencyKey(idempotencyScope, transactionRef)
	fresh, err := s.idempotency.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.cfg.IdempotencyTTL)
	if err != nil {
		s.logger.Warn(ctx, "idempotency guard unavailable, relying on payment status")
		return key, true
	}
	return key, fresh
}

// releaseIdempotency frees the guard after a processing failure so the
// gateway's retry can be applied.
func (s *service) releaseIdempotency(ctx context.Context, key string) {
	if s.idempotency == nil || key == "" {
		return
	}
	if err := s.idempotency.Del(ctx, key); err != nil {
		s.logger.Warn(ctx, "failed to release idempotency guard")
	}
}

func (s *service) acknowledgeReplay(ctx context.Context, orderID uuid.UUID, transactionRef string) (*CallbackResult, error) {
	s.metrics.IncCallbackReplay()
	payment, err := s.repo.FindPaymentByOrderAndRef(ctx, orderID, transactionRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment matches this callback")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	s.logger.Info(ctx, "duplicate callback short-circuited by idempotency guard")
	return &CallbackResult{PaymentStatus: payment.Status, Duplicate: true}, nil
}
