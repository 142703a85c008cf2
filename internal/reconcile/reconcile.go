// Package reconcile merges payment signals from two independent channels —
// the synchronous client checkout callback and the asynchronous gateway
// webhook — into one consistent registration state.
//
// The two channels race freely and the gateway may redeliver webhooks, so
// every path here is idempotent and all coordination happens in the store
// (see store.ConfirmRegistration). The rules:
//
//	pending ──(either channel verifies payment)──▶ confirmed + bib assigned
//	pending ──(webhook reports failure)─────────▶ cancelled (sticky)
//
// confirmed and cancelled are terminal for this machine. A payment.captured
// arriving after a payment.failed corroborates the transaction record but
// never resurrects the cancelled registration.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/salutemarathon/backend/internal/models"
	"github.com/salutemarathon/backend/internal/notify"
	"github.com/salutemarathon/backend/internal/security"
	"github.com/salutemarathon/backend/internal/store"
)

var (
	// ErrTransactionNotFound means the (order id, registration id) pair
	// matched nothing; no state changes.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidSignature means the client callback failed HMAC
	// verification; the transaction is recorded failed but the registration
	// is untouched (the webhook channel may still confirm it).
	ErrInvalidSignature = errors.New("payment verification failed - invalid signature")
	// ErrRegistrationCancelled means a success signal arrived for a
	// registration that a failure already cancelled. Cancelled is sticky.
	ErrRegistrationCancelled = store.ErrCancelled
)

// Notifier receives the confirmation event from the single caller that wins
// the bib assignment. Satisfied by *notify.Dispatcher.
type Notifier interface {
	Enqueue(c notify.Confirmation)
}

// Reconciler is the state machine service. Construct once, inject the store
// and notifier; it holds no mutable state of its own.
type Reconciler struct {
	store         *store.Store
	notifier      Notifier
	paymentSecret string
	log           *slog.Logger
}

func New(st *store.Store, notifier Notifier, paymentSecret string, log *slog.Logger) *Reconciler {
	return &Reconciler{store: st, notifier: notifier, paymentSecret: paymentSecret, log: log}
}

// VerifyResult is returned to the checkout frontend after a successful
// client-side verification.
type VerifyResult struct {
	RegistrationID string
	PaymentID      string
	BibNumber      int
	Participant    models.Participant
}

// VerifyClientPayment handles the synchronous channel: the browser reports
// (orderID, paymentID, signature) immediately after checkout.
//
// A bad signature marks the transaction failed and leaves the registration
// pending — either the webhook confirms it later or a human follows up. A
// good signature marks the transaction paid and runs the shared
// confirmation step.
func (r *Reconciler) VerifyClientPayment(ctx context.Context, req models.VerifyPaymentRequest) (*VerifyResult, error) {
	txn, err := r.store.FindTransactionByOrderAndRegistration(ctx, req.GatewayOrderID, req.RegistrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	if !security.VerifyPaymentSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature, r.paymentSecret) {
		if err := r.store.MarkTransactionFailed(ctx, txn.ID, "invalid signature verification", false); err != nil {
			r.log.Error("could not record failed verification", "transaction_id", txn.ID, "err", err)
		}
		return nil, ErrInvalidSignature
	}

	if err := r.store.MarkTransactionPaid(ctx, txn.ID, req.GatewayPaymentID, req.Signature, "", false); err != nil {
		return nil, err
	}

	bib, err := r.confirm(ctx, req.RegistrationID)
	if err != nil {
		return nil, err
	}

	participant, err := r.store.GetParticipantByRegistration(ctx, req.RegistrationID)
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		RegistrationID: req.RegistrationID,
		PaymentID:      req.GatewayPaymentID,
		BibNumber:      bib,
		Participant:    *participant,
	}, nil
}

// HandleWebhookEvent handles the asynchronous channel. The transport layer
// has already verified the webhook signature — nothing unauthenticated
// reaches this method. Redeliveries are expected: every branch is a no-op
// when its effect is already applied.
func (r *Reconciler) HandleWebhookEvent(ctx context.Context, event models.WebhookEvent) error {
	switch event.Event {
	case "payment.captured":
		return r.paymentCaptured(ctx, event.Payload.Payment.Entity)
	case "payment.failed":
		return r.paymentFailed(ctx, event.Payload.Payment.Entity)
	case "order.paid":
		return r.orderPaid(ctx, event.Payload.Order.Entity)
	default:
		r.log.Info("unhandled webhook event", "event", event.Event)
		return nil
	}
}

func (r *Reconciler) paymentCaptured(ctx context.Context, p models.PaymentEntity) error {
	txn, err := r.store.FindTransactionByOrder(ctx, p.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.log.Error("webhook for unknown order", "order_id", p.OrderID)
			return nil
		}
		return err
	}

	if err := r.store.MarkTransactionPaid(ctx, txn.ID, p.ID, "", p.Method, true); err != nil {
		return err
	}

	if _, err := r.confirm(ctx, txn.RegistrationID); err != nil {
		if errors.Is(err, ErrRegistrationCancelled) {
			// A failure signal won earlier; the capture corroborates the
			// transaction but the registration stays cancelled.
			r.log.Warn("late capture for cancelled registration",
				"registration_id", txn.RegistrationID, "order_id", p.OrderID)
			return nil
		}
		return err
	}

	r.log.Info("payment captured", "order_id", p.OrderID, "payment_id", p.ID)
	return nil
}

func (r *Reconciler) paymentFailed(ctx context.Context, p models.PaymentEntity) error {
	txn, err := r.store.FindTransactionByOrder(ctx, p.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.log.Error("webhook for unknown order", "order_id", p.OrderID)
			return nil
		}
		return err
	}

	reason := fmt.Sprintf("%s: %s", p.ErrorCode, p.ErrorDescription)
	if err := r.store.MarkTransactionFailed(ctx, txn.ID, reason, true); err != nil {
		return err
	}
	// Cancels only a pending registration; confirmed stays confirmed.
	if err := r.store.CancelRegistration(ctx, txn.RegistrationID); err != nil {
		return err
	}

	r.log.Info("payment failed", "order_id", p.OrderID, "reason", reason)
	return nil
}

// orderPaid is corroboration only: when the gateway reports the order fully
// paid, mark the transaction paid and webhook-verified. Confirmation and bib
// assignment happen via the payment.captured path.
func (r *Reconciler) orderPaid(ctx context.Context, o models.OrderEntity) error {
	if o.Amount != o.AmountPaid {
		r.log.Warn("order.paid with partial amount", "order_id", o.ID,
			"amount", o.Amount, "amount_paid", o.AmountPaid)
		return nil
	}

	txn, err := r.store.FindTransactionByOrder(ctx, o.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.log.Error("webhook for unknown order", "order_id", o.ID)
			return nil
		}
		return err
	}

	if err := r.store.MarkTransactionPaid(ctx, txn.ID, "", "", "", true); err != nil {
		return err
	}
	r.log.Info("order fully paid", "order_id", o.ID)
	return nil
}

// confirm is the shared confirmation step both channels funnel into. The
// store serializes the bib assignment; exactly one caller observes
// already=false, and only that caller emits the notification event. Repeat
// calls return the same bib with no side effects.
func (r *Reconciler) confirm(ctx context.Context, regID string) (int, error) {
	bib, already, err := r.store.ConfirmRegistration(ctx, regID)
	if err != nil {
		return 0, err
	}
	if already {
		return bib, nil
	}

	reg, err := r.store.GetRegistration(ctx, regID)
	if err != nil {
		return bib, nil // confirmed; notification is best-effort
	}
	participant, err := r.store.GetParticipantByRegistration(ctx, regID)
	if err != nil {
		return bib, nil
	}
	r.notifier.Enqueue(notify.Confirmation{
		Registration: *reg,
		Participant:  *participant,
		BibNumber:    bib,
	})
	return bib, nil
}
