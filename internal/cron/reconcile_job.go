package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/brunovalongo/fretepay-backend/internal/gateway"
	gatewaywebhook "github.com/brunovalongo/fretepay-backend/internal/webhooks/gateway"
	"github.com/brunovalongo/fretepay-backend/pkg/db/models"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
)

const defaultReconcileBatch = 100

type stalePaymentReader interface {
	FindStalePendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.ConsolidatedPayment, error)
}

type providerGetter interface {
	Get(kind enums.GatewayKind) (gateway.Client, bool)
}

type eventApplier interface {
	HandleEvent(ctx context.Context, provider enums.GatewayKind, event *gatewaywebhook.Event) error
}

// ReconcileJobParams configure the pending-payment sweep.
type ReconcileJobParams struct {
	Logger    *logger.Logger
	Repo      stalePaymentReader
	Gateways  providerGetter
	Webhooks  eventApplier
	After     time.Duration
	BatchSize int
}

// NewReconcileJob builds the sweep that polls the gateway for payments
// stuck in PENDING, covering webhooks that were lost or delayed. Status
// changes go through the same idempotent transition path the webhook
// handler uses.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payment reader required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway getter required")
	}
	if params.Webhooks == nil {
		return nil, fmt.Errorf("webhook service required")
	}
	if params.After <= 0 {
		params.After = 30 * time.Minute
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultReconcileBatch
	}
	return &reconcileJob{
		logg:      params.Logger,
		repo:      params.Repo,
		gateways:  params.Gateways,
		webhooks:  params.Webhooks,
		after:     params.After,
		batchSize: params.BatchSize,
		now:       time.Now,
	}, nil
}

type reconcileJob struct {
	logg      *logger.Logger
	repo      stalePaymentReader
	gateways  providerGetter
	webhooks  eventApplier
	after     time.Duration
	batchSize int
	now       func() time.Time
}

func (j *reconcileJob) Name() string { return "payment_reconcile" }

func (j *reconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	payments, err := j.repo.FindStalePendingPayments(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("listing stale pending payments: %w", err)
	}
	if len(payments) == 0 {
		return nil
	}
	j.logg.Info(j.logg.WithField(ctx, "payments", len(payments)), "reconciling stale pending payments")

	var errs error
	for _, payment := range payments {
		if err := j.reconcile(ctx, payment); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", payment.ID, err))
		}
	}
	return errs
}

func (j *reconcileJob) reconcile(ctx context.Context, payment models.ConsolidatedPayment) error {
	client, ok := j.gateways.Get(payment.Gateway)
	if !ok {
		return fmt.Errorf("no client registered for gateway %s", payment.Gateway)
	}

	invoice, err := client.GetInvoice(ctx, payment.GatewayInvoiceID)
	if err != nil {
		return fmt.Errorf("polling invoice %s: %w", payment.GatewayInvoiceID, err)
	}
	if invoice.Status == gateway.InvoiceStatusPending {
		return nil
	}

	event := &gatewaywebhook.Event{
		ID:   "reconcile_" + payment.ID.String(),
		Type: "invoice.status_changed",
		Data: gatewaywebhook.EventData{
			InvoiceID: payment.GatewayInvoiceID,
			Status:    string(invoice.Status),
		},
	}
	return j.webhooks.HandleEvent(ctx, payment.Gateway, event)
}
