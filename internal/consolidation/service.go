package consolidation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/brunovalongo/fretepay-backend/internal/gateway"
	"github.com/brunovalongo/fretepay-backend/internal/split"
	"github.com/brunovalongo/fretepay-backend/pkg/db/models"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
	pkgerrors "github.com/brunovalongo/fretepay-backend/pkg/errors"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
	"github.com/brunovalongo/fretepay-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewaySelector interface {
	Select(method enums.PaymentMethod) (gateway.Client, error)
}

type retryExecutor interface {
	Execute(ctx context.Context, op func(ctx context.Context) error) error
}

// TriggerScheduled and TriggerManual label who started a run.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// RunResult aggregates the outcome of one consolidation pass. One failed
// group never aborts the rest of the run; its reason lands in Errors.
type RunResult struct {
	ClientsProcessed   int      `json:"clients_processed"`
	PaymentsCreated    int      `json:"payments_created"`
	DeliveriesIncluded int      `json:"deliveries_included"`
	Errors             []string `json:"errors,omitempty"`
}

func (r *RunResult) merge(other *RunResult) {
	if other == nil {
		return
	}
	r.ClientsProcessed += other.ClientsProcessed
	r.PaymentsCreated += other.PaymentsCreated
	r.DeliveriesIncluded += other.DeliveriesIncluded
	r.Errors = append(r.Errors, other.Errors...)
}

// EngineParams carries the engine dependencies.
type EngineParams struct {
	Tx          txRunner
	Repo        Repository
	Calculator  *split.Calculator
	Selector    gatewaySelector
	Retry       retryExecutor
	Logger      *logger.Logger
	Metrics     *metrics.ConsolidationMetrics
	MaxOrders   int
	Expiry      time.Duration
	Concurrency int
}

// Engine runs the consolidation pipeline: scan eligible orders, group them
// per client, submit one invoice per group, persist the outcome.
type Engine struct {
	tx          txRunner
	repo        Repository
	calc        *split.Calculator
	selector    gatewaySelector
	retry       retryExecutor
	log         *logger.Logger
	metrics     *metrics.ConsolidationMetrics
	maxOrders   int
	expiry      time.Duration
	concurrency int
	now         func() time.Time
}

// NewEngine builds the consolidation engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("split calculator required")
	}
	if params.Selector == nil {
		return nil, fmt.Errorf("gateway selector required")
	}
	if params.Retry == nil {
		return nil, fmt.Errorf("retry policy required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.MaxOrders < 1 {
		params.MaxOrders = 10
	}
	if params.Expiry <= 0 {
		params.Expiry = 72 * time.Hour
	}
	if params.Concurrency < 1 {
		params.Concurrency = 1
	}
	return &Engine{
		tx:          params.Tx,
		repo:        params.Repo,
		calc:        params.Calculator,
		selector:    params.Selector,
		retry:       params.Retry,
		log:         params.Logger,
		metrics:     params.Metrics,
		maxOrders:   params.MaxOrders,
		expiry:      params.Expiry,
		concurrency: params.Concurrency,
		now:         time.Now,
	}, nil
}

// ProcessAllClients runs one consolidation pass over every client with
// eligible orders. Clients are processed concurrently with a bounded
// worker count; per-client failures are aggregated, never propagated.
func (e *Engine) ProcessAllClients(ctx context.Context, trigger string) (*RunResult, error) {
	clientIDs, err := e.repo.ListEligibleClientIDs(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing clients with eligible orders")
	}

	e.metrics.IncRun(trigger)
	e.log.Info(e.log.WithField(ctx, "clients", len(clientIDs)), "consolidation run started")

	total := &RunResult{}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)
	for _, clientID := range clientIDs {
		clientID := clientID
		group.Go(func() error {
			result, err := e.ProcessClient(groupCtx, clientID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				total.Errors = append(total.Errors, fmt.Sprintf("client %s: %v", clientID, err))
				return nil
			}
			total.merge(result)
			return nil
		})
	}
	_ = group.Wait()

	e.metrics.AddPayments(total.PaymentsCreated)
	e.metrics.AddDeliveries(total.DeliveriesIncluded)
	e.log.Info(e.log.WithFields(ctx, map[string]any{
		"clients_processed":   total.ClientsProcessed,
		"payments_created":    total.PaymentsCreated,
		"deliveries_included": total.DeliveriesIncluded,
		"errors":              len(total.Errors),
	}), "consolidation run finished")
	return total, nil
}

// ProcessClient consolidates one client's eligible orders. Orders are
// grouped by their (courier, organization) pair so every invoice carries a
// single consistent split; each group is capped at maxOrders and the
// surplus waits for the next run.
func (e *Engine) ProcessClient(ctx context.Context, clientID uuid.UUID) (*RunResult, error) {
	ctx = e.log.WithClientID(ctx, clientID.String())

	client, err := e.repo.FindClientByID(ctx, clientID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "loading client")
	}
	if !client.Active {
		e.log.Info(ctx, "skipping inactive client")
		return &RunResult{}, nil
	}

	deliveries, err := e.repo.FindEligibleDeliveries(ctx, clientID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "scanning eligible deliveries")
	}
	if len(deliveries) == 0 {
		return &RunResult{}, nil
	}

	result := &RunResult{ClientsProcessed: 1}
	for _, batch := range groupDeliveries(deliveries, e.maxOrders) {
		payment, err := e.submitGroup(ctx, client, batch)
		if err != nil {
			e.metrics.IncFailure(failureReason(err))
			e.log.Error(ctx, "invoice group failed", err)
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if payment == nil {
			continue
		}
		result.PaymentsCreated++
		result.DeliveriesIncluded += len(payment.DeliveryIDs)
	}
	return result, nil
}

// invoiceGroup is one batch of orders sharing a (courier, organization)
// pair, already capped at the per-invoice maximum.
type invoiceGroup struct {
	courierID  *uuid.UUID
	orgID      *uuid.UUID
	deliveries []models.DeliveryOrder
}

// groupDeliveries partitions orders by their recipient pair and chunks
// each partition. Partition order is deterministic so runs are replayable.
func groupDeliveries(deliveries []models.DeliveryOrder, maxOrders int) []invoiceGroup {
	type pairKey struct {
		courier string
		org     string
	}
	partitions := make(map[pairKey][]models.DeliveryOrder)
	keys := make([]pairKey, 0)
	for _, delivery := range deliveries {
		key := pairKey{}
		if delivery.CourierID != nil {
			key.courier = delivery.CourierID.String()
		}
		if delivery.OrganizationID != nil {
			key.org = delivery.OrganizationID.String()
		}
		if _, seen := partitions[key]; !seen {
			keys = append(keys, key)
		}
		partitions[key] = append(partitions[key], delivery)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].courier != keys[j].courier {
			return keys[i].courier < keys[j].courier
		}
		return keys[i].org < keys[j].org
	})

	var groups []invoiceGroup
	for _, key := range keys {
		batch := partitions[key]
		for start := 0; start < len(batch); start += maxOrders {
			end := start + maxOrders
			if end > len(batch) {
				end = len(batch)
			}
			chunk := batch[start:end]
			groups = append(groups, invoiceGroup{
				courierID:  chunk[0].CourierID,
				orgID:      chunk[0].OrganizationID,
				deliveries: chunk,
			})
		}
	}
	return groups
}

func (e *Engine) submitGroup(ctx context.Context, client *models.Client, group invoiceGroup) (*models.ConsolidatedPayment, error) {
	if group.courierID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery group has no courier")
	}

	courier, err := e.repo.FindCourierByID(ctx, *group.courierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "loading courier")
	}
	accounts := split.Accounts{CourierAccountID: courier.GatewayAccountID}
	if group.orgID != nil {
		org, err := e.repo.FindOrganizationByID(ctx, *group.orgID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "loading organization")
		}
		accounts.ManagerAccountID = &org.GatewayAccountID
	}

	provider, err := e.selector.Select(client.PaymentMethod)
	if err != nil {
		return nil, err
	}
	ctx = e.log.WithGateway(ctx, provider.Kind().String())

	account, err := provider.GetAccount(ctx, courier.GatewayAccountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking courier sub-account")
	}
	if !account.Verified || !account.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("courier sub-account %s is not verified on %s", courier.GatewayAccountID, provider.Kind()))
	}

	ids := make([]uuid.UUID, 0, len(group.deliveries))
	for _, delivery := range group.deliveries {
		ids = append(ids, delivery.ID)
	}

	paymentID := uuid.New()
	expiresAt := e.now().UTC().Add(e.expiry)

	// Claim the orders and persist the pending payment in one transaction,
	// before touching the gateway. Orders a concurrent run got to first are
	// simply excluded; if the process dies after the gateway call the
	// pending row is still on disk for the stale-payment sweep to finish.
	var payment *models.ConsolidatedPayment
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		claimed, err := repo.ClaimDeliveries(ctx, ids)
		if err != nil {
			return err
		}
		if len(claimed) < len(ids) {
			e.log.Debug(e.log.WithFields(ctx, map[string]any{
				"requested": len(ids),
				"claimed":   len(claimed),
			}), "excluding deliveries another run claimed first")
		}
		if len(claimed) == 0 {
			return nil
		}

		won := make(map[uuid.UUID]struct{}, len(claimed))
		for _, id := range claimed {
			won[id] = struct{}{}
		}
		total := decimal.Zero
		for _, delivery := range group.deliveries {
			if _, ok := won[delivery.ID]; ok {
				total = total.Add(delivery.TotalAmount)
			}
		}
		splits, err := e.calc.Compute(total, accounts)
		if err != nil {
			return err
		}

		payment = &models.ConsolidatedPayment{
			ID:          paymentID,
			ClientID:    client.ID,
			DeliveryIDs: claimed,
			TotalCents:  split.SumCents(splits),
			Splits:      splits,
			Gateway:     provider.Kind(),
			// No invoice exists yet; the reference stands in for the
			// invoice id until the gateway answers.
			GatewayInvoiceID: paymentID.String(),
			PaymentMethod:    client.PaymentMethod,
			Status:           enums.ConsolidatedPaymentStatusPending,
			ExpiresAt:        &expiresAt,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return err
		}
		return repo.LinkDeliveries(ctx, claimed, paymentID)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claiming deliveries")
	}
	if payment == nil {
		e.log.Debug(ctx, "every delivery in the group was claimed by another run")
		return nil, nil
	}

	input := gateway.CreateInvoiceInput{
		Reference:     paymentID.String(),
		TotalCents:    payment.TotalCents,
		Method:        client.PaymentMethod,
		PayerName:     client.Name,
		PayerEmail:    client.Email,
		PayerDocument: client.Document,
		ExpiresAt:     expiresAt,
		Splits:        toGatewaySplits(payment.Splits),
	}

	var invoice *gateway.Invoice
	err = e.retry.Execute(ctx, func(ctx context.Context) error {
		created, err := provider.CreateInvoice(ctx, input)
		if err != nil {
			return err
		}
		invoice = created
		return nil
	})
	if err != nil {
		payment.Status = enums.ConsolidatedPaymentStatusFailed
		if releaseErr := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := e.repo.WithTx(tx)
			if err := repo.ReleaseDeliveries(ctx, payment.DeliveryIDs); err != nil {
				return err
			}
			return repo.UpdatePayment(ctx, payment)
		}); releaseErr != nil {
			e.log.Error(ctx, "releasing claimed deliveries failed", releaseErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating gateway invoice")
	}

	payment.GatewayInvoiceID = invoice.ID
	payment.SecureURL = invoice.SecureURL
	payment.PixQRCode = invoice.PixQRCode
	payment.PixQRCodeImage = invoice.PixQRCodeImage
	payment.RawRequest = invoice.RawRequest
	payment.RawResponse = invoice.RawResponse
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return e.repo.WithTx(tx).UpdatePayment(ctx, payment)
	})
	if err != nil {
		// The pending row already links the claimed orders, so the
		// stale-payment sweep will finish the reconciliation.
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording gateway invoice")
	}

	e.log.Info(e.log.WithFields(ctx, map[string]any{
		"payment_id":  payment.ID.String(),
		"invoice_id":  invoice.ID,
		"total_cents": payment.TotalCents,
		"deliveries":  len(payment.DeliveryIDs),
	}), "consolidated invoice created")
	return payment, nil
}

func toGatewaySplits(splits []models.RecipientSplit) []gateway.SplitEntry {
	entries := make([]gateway.SplitEntry, 0, len(splits))
	for _, s := range splits {
		entries = append(entries, gateway.SplitEntry{
			AccountID:   s.AccountID,
			Cents:       s.AmountCents,
			Description: string(s.Role) + " share",
		})
	}
	return entries
}

func hasCode(err error, code pkgerrors.Code) bool {
	appErr := pkgerrors.As(err)
	return appErr != nil && appErr.Code() == code
}

func failureReason(err error) string {
	switch {
	case hasCode(err, pkgerrors.CodeValidation):
		return "validation"
	case gateway.IsTransient(err):
		return "gateway_transient"
	case hasCode(err, pkgerrors.CodeDependency):
		return "gateway_terminal"
	default:
		return "internal"
	}
}
