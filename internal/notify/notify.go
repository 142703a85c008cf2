// Package notify delivers the registration confirmation email.
//
// The reconciliation state machine never waits on delivery: it enqueues a
// Confirmation event onto the Dispatcher and moves on. A notification
// failure is logged and the registration stays confirmed — the two concerns
// are deliberately decoupled.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/salutemarathon/backend/internal/models"
)

// Confirmation is the event emitted once per confirmed registration, by the
// single caller that won the bib assignment.
type Confirmation struct {
	Registration models.Registration
	Participant  models.Participant
	BibNumber    int
}

// Sender delivers one confirmation. Implemented by Mailer and by test fakes.
type Sender interface {
	SendConfirmation(ctx context.Context, c Confirmation) error
}

// SentMarker records a successful delivery on the registration. Satisfied by
// *store.Store.
type SentMarker interface {
	MarkConfirmationEmailSent(ctx context.Context, registrationID string) error
}

// sendTimeout bounds one SMTP conversation.
const sendTimeout = 30 * time.Second

// Dispatcher consumes confirmation events on its own goroutine.
type Dispatcher struct {
	sender Sender
	marker SentMarker
	log    *slog.Logger

	events chan Confirmation
	done   chan struct{}
}

// NewDispatcher starts the consumer goroutine. Call Close during shutdown
// to drain queued events.
func NewDispatcher(sender Sender, marker SentMarker, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		sender: sender,
		marker: marker,
		log:    log,
		events: make(chan Confirmation, 64),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue hands a confirmation to the consumer without ever blocking the
// caller. A full queue drops the event with a log line — the registration
// is already confirmed, and a missing email is recoverable by support.
func (d *Dispatcher) Enqueue(c Confirmation) {
	select {
	case d.events <- c:
	default:
		d.log.Error("notification queue full, dropping confirmation email",
			"registration_id", c.Registration.RegistrationID)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	close(d.events)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for c := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := d.sender.SendConfirmation(ctx, c)
		if err != nil {
			d.log.Error("confirmation email failed",
				"registration_id", c.Registration.RegistrationID, "err", err)
			cancel()
			continue
		}
		if err := d.marker.MarkConfirmationEmailSent(ctx, c.Registration.RegistrationID); err != nil {
			d.log.Error("could not record email sent",
				"registration_id", c.Registration.RegistrationID, "err", err)
		}
		d.log.Info("confirmation email sent",
			"registration_id", c.Registration.RegistrationID, "bib", c.BibNumber)
		cancel()
	}
}
