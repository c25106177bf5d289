package dryrun

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunovalongo/fretepay-backend/internal/gateway"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

func TestCreateAndPollInvoice(t *testing.T) {
	client := NewClient()
	assert.Equal(t, enums.GatewayKindDryRun, client.Kind())
	assert.True(t, client.Supports(enums.PaymentMethodPix))
	assert.True(t, client.Supports(enums.PaymentMethodBoleto))
	assert.False(t, client.Supports(enums.PaymentMethod("cash")))

	account := "acc_1"
	invoice, err := client.CreateInvoice(context.Background(), gateway.CreateInvoiceInput{
		Reference:  "cp_dry",
		TotalCents: 10000,
		Method:     enums.PaymentMethodPix,
		ExpiresAt:  time.Now().Add(time.Hour),
		Splits: []gateway.SplitEntry{
			{AccountID: &account, Cents: 8700},
			{AccountID: nil, Cents: 1300},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, gateway.InvoiceStatusPending, invoice.Status)
	assert.NotEmpty(t, invoice.SecureURL)
	require.NotNil(t, invoice.PixQRCode)
	assert.NotEmpty(t, invoice.RawResponse)

	polled, err := client.GetInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, polled.ID)

	require.True(t, client.SetStatus(invoice.ID, gateway.InvoiceStatusPaid))
	polled, err = client.GetInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, gateway.InvoiceStatusPaid, polled.Status)
}

func TestCreateInvoiceRejectsMismatchedSplits(t *testing.T) {
	client := NewClient()

	_, err := client.CreateInvoice(context.Background(), gateway.CreateInvoiceInput{
		Reference:  "cp_bad",
		TotalCents: 10000,
		Method:     enums.PaymentMethodBoleto,
		ExpiresAt:  time.Now().Add(time.Hour),
		Splits:     []gateway.SplitEntry{{Cents: 9999}},
	})
	require.Error(t, err)
	assert.False(t, gateway.IsTransient(err))
}

func TestGetInvoiceUnknown(t *testing.T) {
	client := NewClient()

	_, err := client.GetInvoice(context.Background(), "dry_missing")
	require.Error(t, err)
}

func TestGetAccountAlwaysVerified(t *testing.T) {
	client := NewClient()

	account, err := client.GetAccount(context.Background(), "acc_any")
	require.NoError(t, err)
	assert.True(t, account.Verified)
	assert.True(t, account.Active)
}
