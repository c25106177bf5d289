package iugu

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
	defaultBaseURL             = "https://api.iugu.com/v1"
	errorBodyReadLimit   int64 = 2048
	defaultClientTimeout       = 15 * time.Second
)

var errAPITokenRequired = errors.New("iugu api token is required")

// Client talks to the provider's invoice API. It is the baseline rail:
// the only registered provider that takes PIX, alongside boleto and card.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiToken      string
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

// WithBaseURL overrides the API base URL, used for sandbox endpoints
// and test servers.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the provider client given an API token and the
// webhook signing secret (empty when not configured).
func NewClient(apiToken, webhookSecret string, opts ...Option) (*Client, error) {
	trimmedToken := strings.TrimSpace(apiToken)
	if trimmedToken == "" {
		return nil, errAPITokenRequired
	}

	client := &Client{
		apiToken:      trimmedToken,
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
	return enums.GatewayKindIugu
}

// Supports implements gateway.Client.
func (c *Client) Supports(method enums.PaymentMethod) bool {
	switch method {
	case enums.PaymentMethodPix, enums.PaymentMethodBoleto, enums.PaymentMethodCreditCard:
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
	Reference      string       `json:"reference"`
	TotalCents     int64        `json:"total_cents"`
	PayableWith    string       `json:"payable_with"`
	PayerName      string       `json:"payer_name,omitempty"`
	Email          string       `json:"email"`
	PayerCPFCNPJ   string       `json:"payer_cpf_cnpj,omitempty"`
	DueDate        string       `json:"due_date"`
	ExpiresAtISO   string       `json:"expires_at"`
	Splits         []splitEntry `json:"splits"`
	IgnoreDueEmail bool         `json:"ignore_due_email"`
}

type splitEntry struct {
	RecipientAccountID *string `json:"recipient_account_id"`
	Cents              int64   `json:"cents"`
	Description        string  `json:"description,omitempty"`
}

type invoiceResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	SecureURL    string  `json:"secure_url"`
	PixQRCode    *string `json:"pix_qrcode_text"`
	PixQRCodeImg *string `json:"pix_qrcode_image_url"`
}

// CreateInvoice implements gateway.Client.
func (c *Client) CreateInvoice(ctx context.Context, input gateway.CreateInvoiceInput) (*gateway.Invoice, error) {
	const op = "create_invoice"

	splits := make([]splitEntry, 0, len(input.Splits))
	for _, split := range input.Splits {
		splits = append(splits, splitEntry{
			RecipientAccountID: split.AccountID,
			Cents:              split.Cents,
			Description:        split.Description,
		})
	}

	body := invoiceRequest{
		Reference:      input.Reference,
		TotalCents:     input.TotalCents,
		PayableWith:    payableWith(input.Method),
		PayerName:      input.PayerName,
		Email:          input.PayerEmail,
		PayerCPFCNPJ:   input.PayerDocument,
		DueDate:        input.ExpiresAt.Format("2006-01-02"),
		ExpiresAtISO:   input.ExpiresAt.Format(time.RFC3339),
		Splits:         splits,
		IgnoreDueEmail: true,
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
		ID:             apiResp.ID,
		Status:         mapStatus(apiResp.Status),
		SecureURL:      apiResp.SecureURL,
		PixQRCode:      apiResp.PixQRCode,
		PixQRCodeImage: apiResp.PixQRCodeImg,
		RawRequest:     payload,
		RawResponse:    responseRaw,
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
		ID:             apiResp.ID,
		Status:         mapStatus(apiResp.Status),
		SecureURL:      apiResp.SecureURL,
		PixQRCode:      apiResp.PixQRCode,
		PixQRCodeImage: apiResp.PixQRCodeImg,
		RawResponse:    responseRaw,
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
		AccountID     string `json:"account_id"`
		IsVerified    bool   `json:"is_verified"`
		CanReceive    bool   `json:"can_receive"`
		Verification  string `json:"verification_status"`
		Configuration struct {
			Active bool `json:"active"`
		} `json:"configuration"`
	}
	if err := c.do(ctx, op, http.MethodGet, "accounts/"+url.PathEscape(trimmed), nil, &apiResp); err != nil {
		return nil, err
	}

	id := apiResp.AccountID
	if id == "" {
		id = trimmed
	}
	return &gateway.Account{
		ID:       id,
		Verified: apiResp.IsVerified || strings.EqualFold(apiResp.Verification, "accepted"),
		Active:   apiResp.CanReceive || apiResp.Configuration.Active,
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
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.apiToken+":")))

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

func payableWith(method enums.PaymentMethod) string {
	switch method {
	case enums.PaymentMethodPix:
		return "pix"
	case enums.PaymentMethodBoleto:
		return "bank_slip"
	case enums.PaymentMethodCreditCard:
		return "credit_card"
	default:
		return "all"
	}
}

func mapStatus(status string) gateway.InvoiceStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "externally_paid":
		return gateway.InvoiceStatusPaid
	case "pending", "draft", "partially_paid", "in_analysis":
		return gateway.InvoiceStatusPending
	case "expired":
		return gateway.InvoiceStatusExpired
	case "canceled", "refunded", "chargeback":
		return gateway.InvoiceStatusCanceled
	default:
		return gateway.InvoiceStatusFailed
	}
}
