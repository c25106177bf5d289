package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/brunovalongo/fretepay-backend/pkg/db/types"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

// RecipientSplit is one split entry of a consolidated payment. It is never
// persisted on its own; it lives in the gateway request and, for audit, in
// the jsonb splits column of the payment that carried it.
type RecipientSplit struct {
	Role             enums.RecipientRole `json:"role"`
	AccountID        *string             `json:"account_id,omitempty"`
	AmountCents      int64               `json:"amount_cents"`
	Percent          string              `json:"percent"`
	ResidualAbsorber bool                `json:"residual_absorber,omitempty"`
}

// ConsolidatedPayment is one invoice submitted to a gateway for a batch of
// a client's delivery orders. Rows are append-only; terminal states are
// recorded on the same row, never by replacing it.
type ConsolidatedPayment struct {
	ID               uuid.UUID                       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientID         uuid.UUID                       `gorm:"column:client_id;type:uuid;not null;index"`
	DeliveryIDs      dbtypes.UUIDArray               `gorm:"column:delivery_ids;type:uuid[];not null"`
	TotalCents       int64                           `gorm:"column:total_cents;not null"`
	Splits           []RecipientSplit                `gorm:"column:splits;type:jsonb;serializer:json"`
	Gateway          enums.GatewayKind               `gorm:"column:gateway;type:text;not null"`
	GatewayInvoiceID string                          `gorm:"column:gateway_invoice_id;not null;uniqueIndex"`
	PaymentMethod    enums.PaymentMethod             `gorm:"column:payment_method;type:text;not null"`
	Status           enums.ConsolidatedPaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	SecureURL        string                          `gorm:"column:secure_url"`
	PixQRCode        *string                         `gorm:"column:pix_qr_code"`
	PixQRCodeImage   *string                         `gorm:"column:pix_qr_code_image"`
	RawRequest       json.RawMessage                 `gorm:"column:raw_request;type:jsonb"`
	RawResponse      json.RawMessage                 `gorm:"column:raw_response;type:jsonb"`
	ExpiresAt        *time.Time                      `gorm:"column:expires_at"`
	CompletedAt      *time.Time                      `gorm:"column:completed_at"`
	CreatedAt        time.Time                       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                       `gorm:"column:updated_at;autoUpdateTime"`
}
