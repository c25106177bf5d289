package gatewaywebhook

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/brunovalongo/fretepay-backend/pkg/db/models"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
	pkgerrors "github.com/brunovalongo/fretepay-backend/pkg/errors"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRepo struct {
	payments map[string]*models.ConsolidatedPayment
	linkages map[uuid.UUID]enums.PaymentLinkage
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		payments: make(map[string]*models.ConsolidatedPayment),
		linkages: make(map[uuid.UUID]enums.PaymentLinkage),
	}
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) FindPaymentByInvoiceID(ctx context.Context, gatewayInvoiceID string) (*models.ConsolidatedPayment, error) {
	payment, ok := f.payments[gatewayInvoiceID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *payment
	return &copied, nil
}

func (f *fakeRepo) UpdatePayment(ctx context.Context, payment *models.ConsolidatedPayment) error {
	f.payments[payment.GatewayInvoiceID] = payment
	return nil
}

func (f *fakeRepo) UpdateDeliveriesLinkage(ctx context.Context, ids []uuid.UUID, linkage enums.PaymentLinkage) error {
	for _, id := range ids {
		f.linkages[id] = linkage
	}
	return nil
}

type recordingNotifier struct {
	notified []*models.ConsolidatedPayment
}

func (r *recordingNotifier) PaymentStatusChanged(ctx context.Context, payment *models.ConsolidatedPayment) {
	r.notified = append(r.notified, payment)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func newTestService(t *testing.T, repo *fakeRepo, notifier Notifier) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Repo:              repo,
		TransactionRunner: fakeTx{},
		Logger:            testLogger(),
		Notifier:          notifier,
	})
	require.NoError(t, err)
	return service
}

func seedPayment(repo *fakeRepo, invoiceID string, status enums.ConsolidatedPaymentStatus) *models.ConsolidatedPayment {
	payment := &models.ConsolidatedPayment{
		ID:               uuid.New(),
		ClientID:         uuid.New(),
		DeliveryIDs:      []uuid.UUID{uuid.New(), uuid.New()},
		TotalCents:       15000,
		Gateway:          enums.GatewayKindIugu,
		GatewayInvoiceID: invoiceID,
		PaymentMethod:    enums.PaymentMethodPix,
		Status:           status,
	}
	repo.payments[invoiceID] = payment
	return payment
}

func TestHandleEventPaid(t *testing.T) {
	repo := newFakeRepo()
	notifier := &recordingNotifier{}
	service := newTestService(t, repo, notifier)

	payment := seedPayment(repo, "inv_1", enums.ConsolidatedPaymentStatusPending)
	paidAt := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	err := service.HandleEvent(context.Background(), enums.GatewayKindIugu, &Event{
		ID:   "evt_1",
		Type: "invoice.paid",
		Data: EventData{InvoiceID: "inv_1", PaidAt: &paidAt},
	})
	require.NoError(t, err)

	stored := repo.payments["inv_1"]
	assert.Equal(t, enums.ConsolidatedPaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, paidAt, *stored.CompletedAt)

	for _, id := range payment.DeliveryIDs {
		assert.Equal(t, enums.PaymentLinkagePaid, repo.linkages[id])
	}
	require.Len(t, notifier.notified, 1)
	assert.Equal(t, payment.ID, notifier.notified[0].ID)
}

func TestHandleEventFailedReleasesOrders(t *testing.T) {
	repo := newFakeRepo()
	service := newTestService(t, repo, nil)

	payment := seedPayment(repo, "inv_2", enums.ConsolidatedPaymentStatusPending)

	err := service.HandleEvent(context.Background(), enums.GatewayKindIugu, &Event{
		ID:   "evt_2",
		Type: "invoice.payment_failed",
		Data: EventData{InvoiceID: "inv_2"},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.ConsolidatedPaymentStatusFailed, repo.payments["inv_2"].Status)
	assert.Nil(t, repo.payments["inv_2"].CompletedAt)
	for _, id := range payment.DeliveryIDs {
		linkage := repo.linkages[id]
		assert.Equal(t, enums.PaymentLinkageFailed, linkage)
		assert.True(t, linkage.IsEligible(), "failed orders flow back into the next run")
	}
}

func TestHandleEventExpired(t *testing.T) {
	repo := newFakeRepo()
	service := newTestService(t, repo, nil)

	payment := seedPayment(repo, "inv_3", enums.ConsolidatedPaymentStatusPending)

	err := service.HandleEvent(context.Background(), enums.GatewayKindIugu, &Event{
		ID:   "evt_3",
		Type: "invoice.expired",
		Data: EventData{InvoiceID: "inv_3"},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.ConsolidatedPaymentStatusExpired, repo.payments["inv_3"].Status)
	for _, id := range payment.DeliveryIDs {
		assert.Equal(t, enums.PaymentLinkageExpired, repo.linkages[id])
	}
}

func TestHandleEventTerminalIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	notifier := &recordingNotifier{}
	service := newTestService(t, repo, notifier)

	payment := seedPayment(repo, "inv_4", enums.ConsolidatedPaymentStatusCompleted)
	completedAt := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	payment.CompletedAt = &completedAt

	err := service.HandleEvent(context.Background(), enums.GatewayKindIugu, &Event{
		ID:   "evt_4",
		Type: "invoice.expired",
		Data: EventData{InvoiceID: "inv_4"},
	})
	require.NoError(t, err)

	stored := repo.payments["inv_4"]
	assert.Equal(t, enums.ConsolidatedPaymentStatusCompleted, stored.Status, "first terminal transition wins")
	assert.Equal(t, completedAt, *stored.CompletedAt)
	assert.Empty(t, repo.linkages, "orders untouched")
	assert.Empty(t, notifier.notified)
}

func TestHandleEventUnknownInvoice(t *testing.T) {
	repo := newFakeRepo()
	service := newTestService(t, repo, nil)

	err := service.HandleEvent(context.Background(), enums.GatewayKindIugu, &Event{
		ID:   "evt_5",
		Type: "invoice.paid",
		Data: EventData{InvoiceID: "inv_missing"},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}

func TestHandleEventProviderMismatch(t *testing.T) {
	repo := newFakeRepo()
	service := newTestService(t, repo, nil)

	seedPayment(repo, "inv_6", enums.ConsolidatedPaymentStatusPending)

	err := service.HandleEvent(context.Background(), enums.GatewayKindPagarme, &Event{
		ID:   "evt_6",
		Type: "invoice.paid",
		Data: EventData{InvoiceID: "inv_6"},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
	assert.Equal(t, enums.ConsolidatedPaymentStatusPending, repo.payments["inv_6"].Status)
}

func TestHandleEventStatusChangedMapping(t *testing.T) {
	repo := newFakeRepo()
	service := newTestService(t, repo, nil)

	seedPayment(repo, "inv_7", enums.ConsolidatedPaymentStatusPending)

	err := service.HandleEvent(context.Background(), enums.GatewayKindIugu, &Event{
		ID:   "evt_7",
		Type: "invoice.status_changed",
		Data: EventData{InvoiceID: "inv_7", Status: "overdue"},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ConsolidatedPaymentStatusExpired, repo.payments["inv_7"].Status)

	// Non-terminal report leaves the payment alone.
	seedPayment(repo, "inv_8", enums.ConsolidatedPaymentStatusPending)
	err = service.HandleEvent(context.Background(), enums.GatewayKindIugu, &Event{
		ID:   "evt_8",
		Type: "invoice.status_changed",
		Data: EventData{InvoiceID: "inv_8", Status: "pending"},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ConsolidatedPaymentStatusPending, repo.payments["inv_8"].Status)
}

func TestHandleEventIgnoresUnrecognizedTypes(t *testing.T) {
	repo := newFakeRepo()
	service := newTestService(t, repo, nil)

	err := service.HandleEvent(context.Background(), enums.GatewayKindIugu, &Event{
		ID:   "evt_9",
		Type: "customer.updated",
	})
	require.NoError(t, err)

	err = service.HandleEvent(context.Background(), enums.GatewayKindIugu, &Event{
		ID:   "evt_10",
		Type: "payout.completed",
		Data: EventData{InvoiceID: "inv_any"},
	})
	require.NoError(t, err)
}

func TestHandleEventValidation(t *testing.T) {
	repo := newFakeRepo()
	service := newTestService(t, repo, nil)

	err := service.HandleEvent(context.Background(), enums.GatewayKindIugu, nil)
	require.Error(t, err)

	err = service.HandleEvent(context.Background(), enums.GatewayKindIugu, &Event{
		ID:   "evt_11",
		Type: "invoice.paid",
	})
	require.Error(t, err)
}
