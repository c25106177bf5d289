package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

// DeliveryOrder is owned by the delivery workflow. The payments core reads
// it and mutates only the payment linkage columns.
type DeliveryOrder struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID              uuid.UUID            `gorm:"column:client_id;type:uuid;not null;index"`
	CourierID             *uuid.UUID           `gorm:"column:courier_id;type:uuid"`
	OrganizationID        *uuid.UUID           `gorm:"column:organization_id;type:uuid"`
	TotalAmount           decimal.Decimal      `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status                enums.DeliveryStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentLinkage        enums.PaymentLinkage `gorm:"column:payment_linkage;type:text;not null;default:'none'"`
	ConsolidatedPaymentID *uuid.UUID           `gorm:"column:consolidated_payment_id;type:uuid;index"`
	CompletedAt           *time.Time           `gorm:"column:completed_at"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
