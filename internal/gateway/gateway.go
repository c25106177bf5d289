package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

// InvoiceStatus is the normalized status vocabulary across providers.
// Provider clients translate their own wire statuses into these.
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "pending"
	InvoiceStatusPaid     InvoiceStatus = "paid"
	InvoiceStatusFailed   InvoiceStatus = "failed"
	InvoiceStatusExpired  InvoiceStatus = "expired"
	InvoiceStatusCanceled InvoiceStatus = "canceled"
)

// SplitEntry is one recipient of an invoice. A nil AccountID means the
// platform's own account on that provider.
type SplitEntry struct {
	AccountID   *string `json:"account_id"`
	Cents       int64   `json:"cents"`
	Description string  `json:"description"`
}

// CreateInvoiceInput is the provider-agnostic invoice request.
type CreateInvoiceInput struct {
	Reference     string
	TotalCents    int64
	Method        enums.PaymentMethod
	PayerName     string
	PayerEmail    string
	PayerDocument string
	ExpiresAt     time.Time
	Splits        []SplitEntry
}

// Invoice is the normalized invoice representation returned by providers.
// RawRequest/RawResponse carry the wire payloads for the audit columns.
type Invoice struct {
	ID             string
	Status         InvoiceStatus
	SecureURL      string
	PixQRCode      *string
	PixQRCodeImage *string
	RawRequest     json.RawMessage
	RawResponse    json.RawMessage
}

// Account reports a sub-account's state on the provider side.
type Account struct {
	ID       string
	Verified bool
	Active   bool
}

// Client is the contract every payment provider implements. The variant
// set is closed: each implementation maps to one enums.GatewayKind.
type Client interface {
	Kind() enums.GatewayKind
	Supports(method enums.PaymentMethod) bool
	CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	SigningSecret() string
}
