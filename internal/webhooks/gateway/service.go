package gatewaywebhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/brunovalongo/fretepay-backend/pkg/db/models"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
	pkgerrors "github.com/brunovalongo/fretepay-backend/pkg/errors"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier dispatches payment outcome notifications to the outer platform.
// Dispatch happens after commit; a notifier failure never rolls back the
// state transition.
type Notifier interface {
	PaymentStatusChanged(ctx context.Context, payment *models.ConsolidatedPayment)
}

type noopNotifier struct{}

func (noopNotifier) PaymentStatusChanged(context.Context, *models.ConsolidatedPayment) {}

// Event is the normalized inbound webhook payload. Providers differ in
// envelope details; the controller maps both onto this shape.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"event"`
	Data EventData `json:"data"`
}

// EventData carries the invoice reference of an event.
type EventData struct {
	InvoiceID string     `json:"invoice_id"`
	Status    string     `json:"status"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

// ServiceParams carries the webhook service dependencies.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
	Notifier          Notifier
}

// Service applies gateway webhook events to consolidated payments.
type Service struct {
	repo     Repository
	txRunner txRunner
	log      *logger.Logger
	notifier Notifier
}

// NewService builds the webhook application service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Notifier == nil {
		params.Notifier = noopNotifier{}
	}
	return &Service{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		log:      params.Logger,
		notifier: params.Notifier,
	}, nil
}

// HandleEvent routes one verified webhook event. Unrecognized event types
// are acknowledged and dropped so providers never retry them.
func (s *Service) HandleEvent(ctx context.Context, provider enums.GatewayKind, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event payload required")
	}
	ctx = s.log.WithGateway(ctx, provider.String())

	switch strings.ToLower(strings.TrimSpace(event.Type)) {
	case "invoice.paid", "invoice.payment_confirmed":
		return s.applyStatus(ctx, provider, event, enums.ConsolidatedPaymentStatusCompleted)
	case "invoice.status_changed":
		return s.applyReportedStatus(ctx, provider, event)
	case "invoice.payment_failed":
		return s.applyStatus(ctx, provider, event, enums.ConsolidatedPaymentStatusFailed)
	case "invoice.expired":
		return s.applyStatus(ctx, provider, event, enums.ConsolidatedPaymentStatusExpired)
	case "payout.completed":
		s.log.Info(s.log.WithField(ctx, "invoice_id", event.Data.InvoiceID), "payout completed")
		return nil
	default:
		s.log.Info(s.log.WithField(ctx, "event_type", event.Type), "ignoring unrecognized webhook event")
		return nil
	}
}

func (s *Service) applyReportedStatus(ctx context.Context, provider enums.GatewayKind, event *Event) error {
	switch strings.ToLower(strings.TrimSpace(event.Data.Status)) {
	case "paid":
		return s.applyStatus(ctx, provider, event, enums.ConsolidatedPaymentStatusCompleted)
	case "expired", "overdue":
		return s.applyStatus(ctx, provider, event, enums.ConsolidatedPaymentStatusExpired)
	case "failed", "refused":
		return s.applyStatus(ctx, provider, event, enums.ConsolidatedPaymentStatusFailed)
	case "canceled", "cancelled":
		return s.applyStatus(ctx, provider, event, enums.ConsolidatedPaymentStatusCancelled)
	default:
		s.log.Info(s.log.WithField(ctx, "status", event.Data.Status), "ignoring non-terminal status report")
		return nil
	}
}

// linkageFor maps a payment outcome to the linkage its orders move to.
// Failed and expired orders become eligible again on the next run.
func linkageFor(status enums.ConsolidatedPaymentStatus) enums.PaymentLinkage {
	switch status {
	case enums.ConsolidatedPaymentStatusCompleted:
		return enums.PaymentLinkagePaid
	case enums.ConsolidatedPaymentStatusExpired:
		return enums.PaymentLinkageExpired
	default:
		return enums.PaymentLinkageFailed
	}
}

func (s *Service) applyStatus(ctx context.Context, provider enums.GatewayKind, event *Event, status enums.ConsolidatedPaymentStatus) error {
	invoiceID := strings.TrimSpace(event.Data.InvoiceID)
	if invoiceID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice id missing from event")
	}

	var updated *models.ConsolidatedPayment
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindPaymentByInvoiceID(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no payment for invoice "+invoiceID)
			}
			return err
		}
		if payment.Gateway != provider {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				"invoice "+invoiceID+" belongs to "+payment.Gateway.String()+", not "+provider.String())
		}
		if payment.Status.IsTerminal() {
			// Redelivered or late event; the first terminal transition wins.
			s.log.Info(s.log.WithFields(ctx, map[string]any{
				"payment_id": payment.ID.String(),
				"status":     payment.Status.String(),
				"event":      event.Type,
			}), "payment already terminal, ignoring event")
			return nil
		}

		payment.Status = status
		if status == enums.ConsolidatedPaymentStatusCompleted {
			completedAt := time.Now().UTC()
			if event.Data.PaidAt != nil {
				completedAt = event.Data.PaidAt.UTC()
			}
			payment.CompletedAt = &completedAt
		}
		if err := repo.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		if err := repo.UpdateDeliveriesLinkage(ctx, payment.DeliveryIDs, linkageFor(status)); err != nil {
			return err
		}
		updated = payment
		return nil
	})
	if err != nil {
		return err
	}

	if updated != nil {
		s.log.Info(s.log.WithFields(ctx, map[string]any{
			"payment_id": updated.ID.String(),
			"invoice_id": invoiceID,
			"status":     updated.Status.String(),
		}), "payment status applied")
		s.notifier.PaymentStatusChanged(ctx, updated)
	}
	return nil
}
