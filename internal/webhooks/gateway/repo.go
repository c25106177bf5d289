package gatewaywebhook

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brunovalongo/fretepay-backend/pkg/db/models"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

// Repository is the persistence surface of webhook event application.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindPaymentByInvoiceID(ctx context.Context, gatewayInvoiceID string) (*models.ConsolidatedPayment, error)
	UpdatePayment(ctx context.Context, payment *models.ConsolidatedPayment) error
	UpdateDeliveriesLinkage(ctx context.Context, ids []uuid.UUID, linkage enums.PaymentLinkage) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a webhook repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPaymentByInvoiceID(ctx context.Context, gatewayInvoiceID string) (*models.ConsolidatedPayment, error) {
	var payment models.ConsolidatedPayment
	err := r.db.WithContext(ctx).
		Where("gateway_invoice_id = ?", gatewayInvoiceID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdatePayment(ctx context.Context, payment *models.ConsolidatedPayment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) UpdateDeliveriesLinkage(ctx context.Context, ids []uuid.UUID, linkage enums.PaymentLinkage) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.DeliveryOrder{}).
		Where("id IN ?", ids).
		Update("payment_linkage", linkage).Error
}
