package pagarme

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brunovalongo/fretepay-backend/internal/gateway"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

const (
	defaultBaseURL             = "https://api.pagar.me/core/v5"
	errorBodyReadLimit   int64 = 2048
	defaultClientTimeout       = 15 * time.Second
)

var errAPIKeyRequired = errors.New("pagarme api key is required")

// Client talks to the provider's invoice API. It carries boleto and card
// but not PIX, so the selector only routes those methods here.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	webhookSecret string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the provider client given a secret API key and the
// webhook signing secret (empty when not configured).
func NewClient(apiKey, webhookSecret string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:        trimmedKey,
		webhookSecret: strings.TrimSpace(webhookSecret),
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: defaultClientTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// Kind implements gateway.Client.
func (c *Client) Kind() enums.GatewayKind {
	return enums.GatewayKindPagarme
}

// Supports implements gateway.Client.
func (c *Client) Supports(method enums.PaymentMethod) bool {
	switch method {
	case enums.PaymentMethodBoleto, enums.PaymentMethodCreditCard:
		return true
	default:
		return false
	}
}

// SigningSecret implements gateway.Client.
func (c *Client) SigningSecret() string {
	return c.webhookSecret
}

type invoiceRequest struct {
	Code          string       `json:"code"`
	Amount        int64        `json:"amount"`
	PaymentMethod string       `json:"payment_method"`
	DueAt         string       `json:"due_at"`
	Customer      customer     `json:"customer"`
	Split         []splitEntry `json:"split"`
}

type customer struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Document string `json:"document,omitempty"`
}

type splitEntry struct {
	RecipientID *string `json:"recipient_id"`
	Amount      int64   `json:"amount"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
}

type invoiceResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateInvoice implements gateway.Client.
func (c *Client) CreateInvoice(ctx context.Context, input gateway.CreateInvoiceInput) (*gateway.Invoice, error) {
	const op = "create_invoice"

	split := make([]splitEntry, 0, len(input.Splits))
	for _, entry := range input.Splits {
		split = append(split, splitEntry{
			RecipientID: entry.AccountID,
			Amount:      entry.Cents,
			Type:        "flat",
			Description: entry.Description,
		})
	}

	body := invoiceRequest{
		Code:          input.Reference,
		Amount:        input.TotalCents,
		PaymentMethod: paymentMethod(input.Method),
		DueAt:         input.ExpiresAt.Format(time.RFC3339),
		Customer: customer{
			Name:     input.PayerName,
			Email:    input.PayerEmail,
			Document: input.PayerDocument,
		},
		Split: split,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gateway.NewTerminalError(c.Kind(), op, 0, "marshal invoice request", err)
	}

	var apiResp invoiceResponse
	if err := c.do(ctx, op, http.MethodPost, "invoices", payload, &apiResp); err != nil {
		return nil, err
	}

	responseRaw, _ := json.Marshal(apiResp)
	return &gateway.Invoice{
		ID:          apiResp.ID,
		Status:      mapStatus(apiResp.Status),
		SecureURL:   apiResp.CheckoutURL,
		RawRequest:  payload,
		RawResponse: responseRaw,
	}, nil
}

// GetInvoice implements gateway.Client.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*gateway.Invoice, error) {
	const op = "get_invoice"

	trimmed := strings.TrimSpace(invoiceID)
	if trimmed == "" {
		return nil, gateway.NewTerminalError(c.Kind(), op, 0, "invoice id is required", nil)
	}

	var apiResp invoiceResponse
	if err := c.do(ctx, op, http.MethodGet, "invoices/"+url.PathEscape(trimmed), nil, &apiResp); err != nil {
		return nil, err
	}

	responseRaw, _ := json.Marshal(apiResp)
	return &gateway.Invoice{
		ID:          apiResp.ID,
		Status:      mapStatus(apiResp.Status),
		SecureURL:   apiResp.CheckoutURL,
		RawResponse: responseRaw,
	}, nil
}

// GetAccount implements gateway.Client.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*gateway.Account, error) {
	const op = "get_account"

	trimmed := strings.TrimSpace(accountID)
	if trimmed == "" {
		return nil, gateway.NewTerminalError(c.Kind(), op, 0, "account id is required", nil)
	}

	var apiResp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		KYC    struct {
			Status string `json:"status"`
		} `json:"kyc_details"`
	}
	if err := c.do(ctx, op, http.MethodGet, "recipients/"+url.PathEscape(trimmed), nil, &apiResp); err != nil {
		return nil, err
	}

	id := apiResp.ID
	if id == "" {
		id = trimmed
	}
	return &gateway.Account{
		ID:       id,
		Verified: strings.EqualFold(apiResp.KYC.Status, "approved"),
		Active:   strings.EqualFold(apiResp.Status, "active"),
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return gateway.NewTerminalError(c.Kind(), op, 0, "build request", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.apiKey+":")))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gateway.NewTransientError(c.Kind(), op, 0, "execute request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return gateway.NewTransientError(c.Kind(), op, resp.StatusCode, strings.TrimSpace(string(msg)), nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return gateway.NewTerminalError(c.Kind(), op, resp.StatusCode, strings.TrimSpace(string(msg)), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return gateway.NewTransientError(c.Kind(), op, resp.StatusCode, "decode response", err)
	}
	return nil
}

func paymentMethod(method enums.PaymentMethod) string {
	switch method {
	case enums.PaymentMethodBoleto:
		return "boleto"
	case enums.PaymentMethodCreditCard:
		return "credit_card"
	default:
		return string(method)
	}
}

func mapStatus(status string) gateway.InvoiceStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid":
		return gateway.InvoiceStatusPaid
	case "pending", "processing":
		return gateway.InvoiceStatusPending
	case "overdue", "expired":
		return gateway.InvoiceStatusExpired
	case "canceled", "voided":
		return gateway.InvoiceStatusCanceled
	default:
		return gateway.InvoiceStatusFailed
	}
}
