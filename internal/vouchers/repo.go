package vouchers

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/kukusoko/kukusoko-backend/pkg/db/models"
)

// Repository reads voucher rows and performs the atomic consume that keeps
// used_count under the cap even for concurrent redemptions of the last use.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindVoucherByCode(ctx context.Context, code string) (*models.Voucher, error)
	FindDeliveryVoucherByCode(ctx context.Context, code string) (*models.DeliveryVoucher, error)
	ConsumeVoucher(ctx context.Context, code string) (bool, error)
	ConsumeDeliveryVoucher(ctx context.Context, code string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a vouchers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).
		Where("code = ?", normalizeCode(code)).
		First(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) FindDeliveryVoucherByCode(ctx context.Context, code string) (*models.DeliveryVoucher, error) {
	var voucher models.DeliveryVoucher
	err := r.db.WithContext(ctx).
		Where("code = ?", normalizeCode(code)).
		First(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// ConsumeVoucher is a compare-and-increment: it only succeeds while
// used_count is still below max_uses, so N remaining uses yield exactly N
// successful consumes under any interleaving.
func (r *repository) ConsumeVoucher(ctx context.Context, code string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE vouchers
		SET used_count = used_count + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE code = ? AND used_count < max_uses
	`, normalizeCode(code))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ConsumeDeliveryVoucher(ctx context.Context, code string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE delivery_vouchers
		SET used_count = used_count + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE code = ? AND used_count < max_uses
	`, normalizeCode(code))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
