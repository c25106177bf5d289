package dryrun

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brunovalongo/fretepay-backend/internal/gateway"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

// Client fabricates invoices without any network calls. Dry-run mode
// registers only this client, so no real provider is ever reached.
// Created invoices are held in memory so status polls resolve.
type Client struct {
	mu       sync.Mutex
	invoices map[string]*gateway.Invoice
}

// NewClient builds the fabricating client.
func NewClient() *Client {
	return &Client{invoices: make(map[string]*gateway.Invoice)}
}

// Kind implements gateway.Client.
func (c *Client) Kind() enums.GatewayKind {
	return enums.GatewayKindDryRun
}

// Supports implements gateway.Client. Every known method is accepted so
// dry-run exercises the full selection table.
func (c *Client) Supports(method enums.PaymentMethod) bool {
	return method.IsValid()
}

// SigningSecret implements gateway.Client. Dry-run has no inbound
// webhooks, so there is nothing to verify against.
func (c *Client) SigningSecret() string {
	return ""
}

// CreateInvoice implements gateway.Client.
func (c *Client) CreateInvoice(ctx context.Context, input gateway.CreateInvoiceInput) (*gateway.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sum int64
	for _, split := range input.Splits {
		sum += split.Cents
	}
	if len(input.Splits) > 0 && sum != input.TotalCents {
		return nil, gateway.NewTerminalError(c.Kind(), "create_invoice", 0,
			fmt.Sprintf("splits sum %d does not match total %d", sum, input.TotalCents), nil)
	}

	id := "dry_" + uuid.NewString()
	rawRequest, _ := json.Marshal(input)

	invoice := &gateway.Invoice{
		ID:         id,
		Status:     gateway.InvoiceStatusPending,
		SecureURL:  "https://dry-run.invalid/invoices/" + id,
		RawRequest: rawRequest,
	}
	if input.Method == enums.PaymentMethodPix {
		qr := "00020126dryrun" + id
		qrImage := invoice.SecureURL + "/qr.png"
		invoice.PixQRCode = &qr
		invoice.PixQRCodeImage = &qrImage
	}
	invoice.RawResponse, _ = json.Marshal(map[string]string{
		"id":         id,
		"status":     string(invoice.Status),
		"secure_url": invoice.SecureURL,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})

	c.mu.Lock()
	c.invoices[id] = invoice
	c.mu.Unlock()

	return invoice, nil
}

// GetInvoice implements gateway.Client.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*gateway.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	invoice, ok := c.invoices[invoiceID]
	if !ok {
		return nil, gateway.NewTerminalError(c.Kind(), "get_invoice", 404, "invoice not found", nil)
	}
	copied := *invoice
	return &copied, nil
}

// GetAccount implements gateway.Client. Every account is reported
// verified and active so dry-run never blocks a group.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*gateway.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &gateway.Account{ID: accountID, Verified: true, Active: true}, nil
}

// SetStatus overrides a fabricated invoice's status. Used to script
// reconcile scenarios against the dry-run provider.
func (c *Client) SetStatus(invoiceID string, status gateway.InvoiceStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	invoice, ok := c.invoices[invoiceID]
	if !ok {
		return false
	}
	invoice.Status = status
	return true
}
