package consolidation

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/brunovalongo/fretepay-backend/internal/gateway"
	"github.com/brunovalongo/fretepay-backend/internal/split"
	"github.com/brunovalongo/fretepay-backend/pkg/db/models"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRepo struct {
	mu         sync.Mutex
	clients    map[uuid.UUID]*models.Client
	couriers   map[uuid.UUID]*models.Courier
	orgs       map[uuid.UUID]*models.Organization
	deliveries map[uuid.UUID]*models.DeliveryOrder
	payments   []*models.ConsolidatedPayment

	claimShortfall int
	updateErr      error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		clients:    make(map[uuid.UUID]*models.Client),
		couriers:   make(map[uuid.UUID]*models.Courier),
		orgs:       make(map[uuid.UUID]*models.Organization),
		deliveries: make(map[uuid.UUID]*models.DeliveryOrder),
	}
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) ListEligibleClientIDs(ctx context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for _, d := range f.deliveries {
		if d.Status == enums.DeliveryStatusCompleted && d.PaymentLinkage.IsEligible() && !seen[d.ClientID] {
			seen[d.ClientID] = true
			ids = append(ids, d.ClientID)
		}
	}
	return ids, nil
}

func (f *fakeRepo) FindEligibleDeliveries(ctx context.Context, clientID uuid.UUID) ([]models.DeliveryOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DeliveryOrder
	for _, d := range f.deliveries {
		if d.ClientID == clientID && d.Status == enums.DeliveryStatusCompleted && d.PaymentLinkage.IsEligible() {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindClientByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	client, ok := f.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return client, nil
}

func (f *fakeRepo) FindCourierByID(ctx context.Context, id uuid.UUID) (*models.Courier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	courier, ok := f.couriers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return courier, nil
}

func (f *fakeRepo) FindOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return org, nil
}

func (f *fakeRepo) ClaimDeliveries(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lost := f.claimShortfall
	claimed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		d, ok := f.deliveries[id]
		if !ok || d.Status != enums.DeliveryStatusCompleted || !d.PaymentLinkage.IsEligible() {
			continue
		}
		if lost > 0 {
			lost--
			continue
		}
		d.PaymentLinkage = enums.PaymentLinkagePending
		claimed = append(claimed, id)
	}
	return claimed, nil
}

func (f *fakeRepo) ReleaseDeliveries(ctx context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if d, ok := f.deliveries[id]; ok && d.PaymentLinkage == enums.PaymentLinkagePending {
			d.PaymentLinkage = enums.PaymentLinkageNone
			d.ConsolidatedPaymentID = nil
		}
	}
	return nil
}

func (f *fakeRepo) CreatePayment(ctx context.Context, payment *models.ConsolidatedPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *payment
	f.payments = append(f.payments, &stored)
	return nil
}

func (f *fakeRepo) UpdatePayment(ctx context.Context, payment *models.ConsolidatedPayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	for i, p := range f.payments {
		if p.ID == payment.ID {
			stored := *payment
			f.payments[i] = &stored
		}
	}
	return nil
}

func (f *fakeRepo) LinkDeliveries(ctx context.Context, ids []uuid.UUID, paymentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if d, ok := f.deliveries[id]; ok {
			linked := paymentID
			d.ConsolidatedPaymentID = &linked
		}
	}
	return nil
}

func (f *fakeRepo) FindStalePendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.ConsolidatedPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ConsolidatedPayment
	for _, p := range f.payments {
		if p.Status != enums.ConsolidatedPaymentStatusPending || !p.CreatedAt.Before(olderThan) {
			continue
		}
		out = append(out, *p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeGateway struct {
	mu            sync.Mutex
	created       []gateway.CreateInvoiceInput
	createErr     error
	unverified    map[string]bool
	accountErr    error
	invoiceStatus gateway.InvoiceStatus
}

func (f *fakeGateway) Kind() enums.GatewayKind             { return enums.GatewayKindIugu }
func (f *fakeGateway) Supports(m enums.PaymentMethod) bool { return true }
func (f *fakeGateway) SigningSecret() string               { return "" }

func (f *fakeGateway) CreateInvoice(ctx context.Context, input gateway.CreateInvoiceInput) (*gateway.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, input)
	status := f.invoiceStatus
	if status == "" {
		status = gateway.InvoiceStatusPending
	}
	return &gateway.Invoice{
		ID:        "inv_" + input.Reference,
		Status:    status,
		SecureURL: "https://pay.test/" + input.Reference,
	}, nil
}

func (f *fakeGateway) GetInvoice(ctx context.Context, invoiceID string) (*gateway.Invoice, error) {
	return &gateway.Invoice{ID: invoiceID, Status: gateway.InvoiceStatusPending}, nil
}

func (f *fakeGateway) GetAccount(ctx context.Context, accountID string) (*gateway.Account, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return &gateway.Account{ID: accountID, Verified: !f.unverified[accountID], Active: true}, nil
}

type staticSelector struct{ client gateway.Client }

func (s staticSelector) Select(method enums.PaymentMethod) (gateway.Client, error) {
	return s.client, nil
}

type passthroughRetry struct{}

func (passthroughRetry) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	return op(ctx)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func defaultRates(t *testing.T) *split.Calculator {
	t.Helper()
	calc, err := split.NewCalculator(split.Rates{
		Courier:  decimal.NewFromInt(87),
		Manager:  decimal.NewFromInt(5),
		Platform: decimal.NewFromInt(8),
	}, decimal.RequireFromString("1.00"))
	require.NoError(t, err)
	return calc
}

func newTestEngine(t *testing.T, repo *fakeRepo, gw *fakeGateway, maxOrders int) *Engine {
	t.Helper()
	engine, err := NewEngine(EngineParams{
		Tx:          fakeTx{},
		Repo:        repo,
		Calculator:  defaultRates(t),
		Selector:    staticSelector{client: gw},
		Retry:       passthroughRetry{},
		Logger:      testLogger(),
		MaxOrders:   maxOrders,
		Expiry:      72 * time.Hour,
		Concurrency: 2,
	})
	require.NoError(t, err)
	return engine
}

func seedClient(repo *fakeRepo, method enums.PaymentMethod) *models.Client {
	client := &models.Client{
		ID:            uuid.New(),
		Name:          "Cliente",
		Email:         "cliente@example.com",
		Document:      "12345678900",
		PaymentMethod: method,
		Active:        true,
	}
	repo.clients[client.ID] = client
	return client
}

func seedCourier(repo *fakeRepo, account string) *models.Courier {
	courier := &models.Courier{ID: uuid.New(), Name: "Entregador", GatewayAccountID: account, Active: true}
	repo.couriers[courier.ID] = courier
	return courier
}

func seedFakeDelivery(repo *fakeRepo, clientID uuid.UUID, courierID *uuid.UUID, orgID *uuid.UUID, amount string) *models.DeliveryOrder {
	completed := time.Now().UTC()
	delivery := &models.DeliveryOrder{
		ID:             uuid.New(),
		ClientID:       clientID,
		CourierID:      courierID,
		OrganizationID: orgID,
		TotalAmount:    decimal.RequireFromString(amount),
		Status:         enums.DeliveryStatusCompleted,
		PaymentLinkage: enums.PaymentLinkageNone,
		CompletedAt:    &completed,
	}
	repo.deliveries[delivery.ID] = delivery
	return delivery
}

func TestProcessClientCreatesOnePaymentPerPair(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	engine := newTestEngine(t, repo, gw, 10)

	client := seedClient(repo, enums.PaymentMethodPix)
	courier := seedCourier(repo, "acc_courier")
	d1 := seedFakeDelivery(repo, client.ID, &courier.ID, nil, "100.00")
	d2 := seedFakeDelivery(repo, client.ID, &courier.ID, nil, "50.00")

	result, err := engine.ProcessClient(context.Background(), client.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ClientsProcessed)
	assert.Equal(t, 1, result.PaymentsCreated)
	assert.Equal(t, 2, result.DeliveriesIncluded)
	assert.Empty(t, result.Errors)

	require.Len(t, repo.payments, 1)
	payment := repo.payments[0]
	assert.Equal(t, int64(15000), payment.TotalCents)
	assert.Equal(t, enums.ConsolidatedPaymentStatusPending, payment.Status)
	assert.Len(t, payment.DeliveryIDs, 2)
	assert.Equal(t, int64(15000), split.SumCents(payment.Splits))

	assert.Equal(t, enums.PaymentLinkagePending, repo.deliveries[d1.ID].PaymentLinkage)
	require.NotNil(t, repo.deliveries[d2.ID].ConsolidatedPaymentID)
	assert.Equal(t, payment.ID, *repo.deliveries[d2.ID].ConsolidatedPaymentID)

	require.Len(t, gw.created, 1)
	assert.Equal(t, int64(15000), gw.created[0].TotalCents)
}

func TestProcessClientSplitsHeterogeneousCouriers(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	engine := newTestEngine(t, repo, gw, 10)

	client := seedClient(repo, enums.PaymentMethodPix)
	courierA := seedCourier(repo, "acc_a")
	courierB := seedCourier(repo, "acc_b")
	seedFakeDelivery(repo, client.ID, &courierA.ID, nil, "10.00")
	seedFakeDelivery(repo, client.ID, &courierA.ID, nil, "20.00")
	seedFakeDelivery(repo, client.ID, &courierB.ID, nil, "30.00")

	result, err := engine.ProcessClient(context.Background(), client.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.PaymentsCreated)
	assert.Equal(t, 3, result.DeliveriesIncluded)
	assert.Len(t, repo.payments, 2)
}

func TestProcessClientCapsOrdersPerInvoice(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	engine := newTestEngine(t, repo, gw, 10)

	client := seedClient(repo, enums.PaymentMethodPix)
	courier := seedCourier(repo, "acc_courier")
	for i := 0; i < 12; i++ {
		seedFakeDelivery(repo, client.ID, &courier.ID, nil, "10.00")
	}

	result, err := engine.ProcessClient(context.Background(), client.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.PaymentsCreated)
	assert.Equal(t, 12, result.DeliveriesIncluded)
	require.Len(t, repo.payments, 2)

	sizes := []int{len(repo.payments[0].DeliveryIDs), len(repo.payments[1].DeliveryIDs)}
	assert.ElementsMatch(t, []int{10, 2}, sizes)
}

func TestProcessClientIncludesManagerSplit(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	engine := newTestEngine(t, repo, gw, 10)

	client := seedClient(repo, enums.PaymentMethodPix)
	org := &models.Organization{ID: uuid.New(), Name: "Org", GatewayAccountID: "acc_org", Active: true}
	repo.orgs[org.ID] = org
	courier := seedCourier(repo, "acc_courier")
	seedFakeDelivery(repo, client.ID, &courier.ID, &org.ID, "100.00")

	_, err := engine.ProcessClient(context.Background(), client.ID)
	require.NoError(t, err)

	require.Len(t, repo.payments, 1)
	splits := repo.payments[0].Splits
	require.Len(t, splits, 3)
	assert.Equal(t, int64(8700), splits[0].AmountCents)
	assert.Equal(t, int64(500), splits[1].AmountCents)
	assert.Equal(t, int64(800), splits[2].AmountCents)
}

func TestProcessClientReleasesClaimsOnTerminalFailure(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{createErr: gateway.NewTerminalError(enums.GatewayKindIugu, "create_invoice", 422, "split rejected", nil)}
	engine := newTestEngine(t, repo, gw, 10)

	client := seedClient(repo, enums.PaymentMethodPix)
	courier := seedCourier(repo, "acc_courier")
	delivery := seedFakeDelivery(repo, client.ID, &courier.ID, nil, "100.00")

	result, err := engine.ProcessClient(context.Background(), client.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, result.PaymentsCreated)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, enums.PaymentLinkageNone, repo.deliveries[delivery.ID].PaymentLinkage, "claim released")

	require.Len(t, repo.payments, 1)
	assert.Equal(t, enums.ConsolidatedPaymentStatusFailed, repo.payments[0].Status)
}

func TestProcessClientSkipsUnverifiedCourier(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{unverified: map[string]bool{"acc_courier": true}}
	engine := newTestEngine(t, repo, gw, 10)

	client := seedClient(repo, enums.PaymentMethodPix)
	courier := seedCourier(repo, "acc_courier")
	delivery := seedFakeDelivery(repo, client.ID, &courier.ID, nil, "100.00")

	result, err := engine.ProcessClient(context.Background(), client.ID)
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "not verified")
	assert.Empty(t, gw.created, "no invoice submitted")
	assert.Equal(t, enums.PaymentLinkageNone, repo.deliveries[delivery.ID].PaymentLinkage, "nothing claimed")
}

func TestProcessClientExcludesDeliveriesLostToConcurrentClaim(t *testing.T) {
	repo := newFakeRepo()
	repo.claimShortfall = 1
	gw := &fakeGateway{}
	engine := newTestEngine(t, repo, gw, 10)

	client := seedClient(repo, enums.PaymentMethodPix)
	courier := seedCourier(repo, "acc_courier")
	seedFakeDelivery(repo, client.ID, &courier.ID, nil, "10.00")
	seedFakeDelivery(repo, client.ID, &courier.ID, nil, "10.00")
	seedFakeDelivery(repo, client.ID, &courier.ID, nil, "10.00")

	result, err := engine.ProcessClient(context.Background(), client.ID)
	require.NoError(t, err)

	// The lost order drops out silently; the rest of the group is billed
	// with a total and splits recomputed over the claimed subset.
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.PaymentsCreated)
	assert.Equal(t, 2, result.DeliveriesIncluded)

	require.Len(t, repo.payments, 1)
	payment := repo.payments[0]
	assert.Len(t, payment.DeliveryIDs, 2)
	assert.Equal(t, int64(2000), payment.TotalCents)
	assert.Equal(t, int64(2000), split.SumCents(payment.Splits))

	require.Len(t, gw.created, 1)
	assert.Equal(t, int64(2000), gw.created[0].TotalCents)
}

func TestProcessClientSkipsGroupWhenEveryClaimIsLost(t *testing.T) {
	repo := newFakeRepo()
	repo.claimShortfall = 2
	gw := &fakeGateway{}
	engine := newTestEngine(t, repo, gw, 10)

	client := seedClient(repo, enums.PaymentMethodPix)
	courier := seedCourier(repo, "acc_courier")
	seedFakeDelivery(repo, client.ID, &courier.ID, nil, "10.00")
	seedFakeDelivery(repo, client.ID, &courier.ID, nil, "20.00")

	result, err := engine.ProcessClient(context.Background(), client.ID)
	require.NoError(t, err)

	assert.Empty(t, result.Errors)
	assert.Equal(t, 0, result.PaymentsCreated)
	assert.Equal(t, 0, result.DeliveriesIncluded)
	assert.Empty(t, repo.payments)
	assert.Empty(t, gw.created)
}

func TestProcessClientKeepsPendingPaymentWhenInvoiceRecordingFails(t *testing.T) {
	repo := newFakeRepo()
	repo.updateErr = errors.New("connection reset by peer")
	gw := &fakeGateway{}
	engine := newTestEngine(t, repo, gw, 10)

	client := seedClient(repo, enums.PaymentMethodPix)
	courier := seedCourier(repo, "acc_courier")
	delivery := seedFakeDelivery(repo, client.ID, &courier.ID, nil, "100.00")

	result, err := engine.ProcessClient(context.Background(), client.ID)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "recording gateway invoice")

	// The claim and the pending row survive, keyed by the reference sent
	// to the provider, so the stale-payment sweep can finish the job.
	require.Len(t, repo.payments, 1)
	payment := repo.payments[0]
	assert.Equal(t, enums.ConsolidatedPaymentStatusPending, payment.Status)
	assert.Equal(t, payment.ID.String(), payment.GatewayInvoiceID)
	assert.Equal(t, enums.PaymentLinkagePending, repo.deliveries[delivery.ID].PaymentLinkage)
	require.NotNil(t, repo.deliveries[delivery.ID].ConsolidatedPaymentID)
	assert.Equal(t, payment.ID, *repo.deliveries[delivery.ID].ConsolidatedPaymentID)

	stale, err := repo.FindStalePendingPayments(context.Background(), time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, payment.ID, stale[0].ID)
}

func TestProcessClientSkipsInactiveClient(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	engine := newTestEngine(t, repo, gw, 10)

	client := seedClient(repo, enums.PaymentMethodPix)
	client.Active = false
	courier := seedCourier(repo, "acc_courier")
	seedFakeDelivery(repo, client.ID, &courier.ID, nil, "100.00")

	result, err := engine.ProcessClient(context.Background(), client.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ClientsProcessed)
	assert.Empty(t, gw.created)
}

func TestProcessAllClientsAggregates(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	engine := newTestEngine(t, repo, gw, 10)

	clientA := seedClient(repo, enums.PaymentMethodPix)
	clientB := seedClient(repo, enums.PaymentMethodPix)
	courier := seedCourier(repo, "acc_courier")
	seedFakeDelivery(repo, clientA.ID, &courier.ID, nil, "10.00")
	seedFakeDelivery(repo, clientB.ID, &courier.ID, nil, "20.00")

	// A third client exists in deliveries but not in the clients table, so
	// its failure must land in Errors without sinking the run.
	seedFakeDelivery(repo, uuid.New(), &courier.ID, nil, "30.00")

	result, err := engine.ProcessAllClients(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 2, result.ClientsProcessed)
	assert.Equal(t, 2, result.PaymentsCreated)
	assert.Equal(t, 2, result.DeliveriesIncluded)
	assert.Len(t, result.Errors, 1)
}
