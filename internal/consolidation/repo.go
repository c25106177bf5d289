package consolidation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brunovalongo/fretepay-backend/pkg/db/models"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

// Repository is the persistence surface of the consolidation engine.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListEligibleClientIDs(ctx context.Context) ([]uuid.UUID, error)
	FindEligibleDeliveries(ctx context.Context, clientID uuid.UUID) ([]models.DeliveryOrder, error)
	FindClientByID(ctx context.Context, id uuid.UUID) (*models.Client, error)
	FindCourierByID(ctx context.Context, id uuid.UUID) (*models.Courier, error)
	FindOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)

	ClaimDeliveries(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	ReleaseDeliveries(ctx context.Context, ids []uuid.UUID) error
	CreatePayment(ctx context.Context, payment *models.ConsolidatedPayment) error
	UpdatePayment(ctx context.Context, payment *models.ConsolidatedPayment) error
	LinkDeliveries(ctx context.Context, ids []uuid.UUID, paymentID uuid.UUID) error

	FindStalePendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.ConsolidatedPayment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a consolidation repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListEligibleClientIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.DeliveryOrder{}).
		Distinct("client_id").
		Where("status = ?", enums.DeliveryStatusCompleted).
		Where("payment_linkage IN ?", enums.EligibleLinkages).
		Pluck("client_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) FindEligibleDeliveries(ctx context.Context, clientID uuid.UUID) ([]models.DeliveryOrder, error) {
	var deliveries []models.DeliveryOrder
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Where("status = ?", enums.DeliveryStatusCompleted).
		Where("payment_linkage IN ?", enums.EligibleLinkages).
		Order("completed_at ASC").
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repository) FindClientByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *repository) FindCourierByID(ctx context.Context, id uuid.UUID) (*models.Courier, error) {
	var courier models.Courier
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&courier).Error; err != nil {
		return nil, err
	}
	return &courier, nil
}

func (r *repository) FindOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

// ClaimDeliveries moves the given orders to linkage=pending, row by row, and
// returns the ids it actually won. An order a concurrent run already claimed
// is simply absent from the result, so it can never be double-billed.
func (r *repository) ClaimDeliveries(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	claimed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		result := r.db.WithContext(ctx).
			Model(&models.DeliveryOrder{}).
			Where("id = ?", id).
			Where("status = ?", enums.DeliveryStatusCompleted).
			Where("payment_linkage IN ?", enums.EligibleLinkages).
			Update("payment_linkage", enums.PaymentLinkagePending)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected > 0 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

// ReleaseDeliveries puts claimed orders back into the eligible pool after a
// terminal submit failure.
func (r *repository) ReleaseDeliveries(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.DeliveryOrder{}).
		Where("id IN ?", ids).
		Where("payment_linkage = ?", enums.PaymentLinkagePending).
		Updates(map[string]any{
			"payment_linkage":         enums.PaymentLinkageNone,
			"consolidated_payment_id": nil,
		}).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.ConsolidatedPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) UpdatePayment(ctx context.Context, payment *models.ConsolidatedPayment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) LinkDeliveries(ctx context.Context, ids []uuid.UUID, paymentID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.DeliveryOrder{}).
		Where("id IN ?", ids).
		Update("consolidated_payment_id", paymentID).Error
}

func (r *repository) FindStalePendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.ConsolidatedPayment, error) {
	var payments []models.ConsolidatedPayment
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.ConsolidatedPaymentStatusPending).
		Where("created_at < ?", olderThan).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
