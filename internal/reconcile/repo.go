package reconcile

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
	"github.com/kukusoko/kukusoko-backend/pkg/enums"
)

// Repository gives the reconciler its matching reads and state writes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPaymentByOrderAndRef(ctx context.Context, orderID uuid.UUID, transactionRef string) (*models.Payment, error)
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error)
	UpdateOrderPaymentState(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, paymentStatus enums.OrderPaymentStatus) error
	CreateApproval(ctx context.Context, approval *models.PaymentApproval) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reconcile repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPaymentByOrderAndRef(ctx context.Context, orderID uuid.UUID, transactionRef string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND transaction_ref = ?", orderID, transactionRef).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpdatePayment finalizes a pending payment. The status guard keeps the
// PENDING → terminal move atomic: a concurrent delivery that already
// closed the payment leaves zero rows for this update.
func (r *repository) UpdatePayment(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateOrderPaymentState(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, paymentStatus enums.OrderPaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"status":         status,
			"payment_status": paymentStatus,
		}).Error
}

func (r *repository) CreateApproval(ctx context.Context, approval *models.PaymentApproval) error {
	return r.db.WithContext(ctx).Create(approval).Error
}
