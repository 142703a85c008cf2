// Package store is the durable registration store. It owns every write to
// participants, transactions and registrations, and it is the only place
// cross-request coordination happens: uniqueness constraints and
// compare-and-set updates in SQLite, never process memory, so the service
// can run as multiple instances against the same database file or a shared
// volume.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/salutemarathon/backend/internal/models"
	"github.com/salutemarathon/backend/internal/security"
)

// Sentinel errors mapped to HTTP statuses at the handler boundary.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateIdentity = errors.New("participant with this email or phone already registered")
	ErrIDExhausted       = errors.New("unable to generate unique registration id")
	ErrCancelled         = errors.New("registration is cancelled")
)

// maxIDAttempts bounds the registration-ID collision retry loop.
const maxIDAttempts = 5

// confirmAttempts bounds the compare-and-set retry loop in
// ConfirmRegistration. Each retry re-reads, so a retry only happens when a
// concurrent confirmation for the same category landed in between.
const confirmAttempts = 5

// Store wraps the SQL handle. It is constructed once at process start and
// injected into everything that needs persistence.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for lifecycle management (Close) and
// tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Submission is the validated, normalized input to CreateSubmission.
type Submission struct {
	Participant models.Participant
	ClientIP    string
	UserAgent   string
}

// Created is the result of one accepted submission.
type Created struct {
	Participant  models.Participant
	Transaction  models.Transaction
	Registration models.Registration
}

// CreateSubmission atomically creates the Participant, Transaction and
// Registration for one submission.
//
// Duplicate identity (same email OR phone) is rejected by a pre-check, with
// the UNIQUE constraints as the defensive fallback for two submissions
// racing past the check. The registration ID is generated with up to five
// lookup-verified attempts; exhausting them is a hard failure, distinct
// from validation.
func (s *Store) CreateSubmission(ctx context.Context, sub Submission) (*Created, error) {
	p := sub.Participant

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM participants WHERE email = ? OR phone = ?)`,
		p.Email, p.Phone,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		return nil, ErrDuplicateIdentity
	}

	regID, err := s.uniqueRegistrationID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.RegistrationID = regID
	p.CreatedAt = now
	p.UpdatedAt = now

	txn := models.Transaction{
		ID:             uuid.NewString(),
		ParticipantID:  p.ID,
		RegistrationID: regID,
		AmountPaise:    models.FeePaise(p.RaceCategory),
		Currency:       models.Currency,
		Status:         models.TransactionCreated,
		RaceCategory:   p.RaceCategory,
		Meta: models.TransactionMeta{
			ClientIP:  sub.ClientIP,
			UserAgent: sub.UserAgent,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	reg := models.Registration{
		RegistrationID: regID,
		ParticipantID:  p.ID,
		TransactionID:  txn.ID,
		Status:         models.RegistrationPending,
		RaceCategory:   p.RaceCategory,
		AmountRupees:   models.FeeRupees(p.RaceCategory),
		PaymentStatus:  models.PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO participants (id, registration_id, first_name, last_name, email, phone, age, gender,
		    race_category, emergency_contact_name, emergency_contact_phone, medical_conditions, tshirt_size,
		    street, city, state, pincode, terms_accepted, waiver, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RegistrationID, p.FirstName, p.LastName, p.Email, p.Phone, p.Age, p.Gender,
		p.RaceCategory, p.EmergencyContactName, p.EmergencyContactPhone, p.MedicalConditions, p.TshirtSize,
		p.Address.Street, p.Address.City, p.Address.State, p.Address.Pincode,
		p.TermsAccepted, p.Waiver, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("insert participant: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, participant_id, registration_id, amount_paise, currency, status,
		    race_category, webhook_verified, client_ip, user_agent, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		txn.ID, txn.ParticipantID, txn.RegistrationID, txn.AmountPaise, txn.Currency, txn.Status,
		txn.RaceCategory, txn.Meta.ClientIP, txn.Meta.UserAgent, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO registrations (registration_id, participant_id, transaction_id, status, race_category,
		    amount_rupees, payment_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.RegistrationID, reg.ParticipantID, reg.TransactionID, reg.Status, reg.RaceCategory,
		reg.AmountRupees, reg.PaymentStatus, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &Created{Participant: p, Transaction: txn, Registration: reg}, nil
}

// uniqueRegistrationID generates a registration ID and verifies it against
// the store, retrying on collision.
func (s *Store) uniqueRegistrationID(ctx context.Context) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := security.NewRegistrationID()
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM participants WHERE registration_id = ?)`, id,
		).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("registration id lookup: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

// GetRegistration loads a registration by its opaque identifier.
func (s *Store) GetRegistration(ctx context.Context, regID string) (*models.Registration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT registration_id, participant_id, transaction_id, bib_number, status, race_category,
		    amount_rupees, payment_status, confirmation_email_sent, kit_collected, race_completed,
		    created_at, updated_at
		 FROM registrations WHERE registration_id = ?`, regID)
	return scanRegistration(row)
}

// GetParticipantByRegistration loads the participant that owns a registration.
func (s *Store) GetParticipantByRegistration(ctx context.Context, regID string) (*models.Participant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, registration_id, first_name, last_name, email, phone, age, gender, race_category,
		    emergency_contact_name, emergency_contact_phone, medical_conditions, tshirt_size,
		    street, city, state, pincode, terms_accepted, waiver, created_at, updated_at
		 FROM participants WHERE registration_id = ?`, regID)

	var p models.Participant
	err := row.Scan(&p.ID, &p.RegistrationID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Age,
		&p.Gender, &p.RaceCategory, &p.EmergencyContactName, &p.EmergencyContactPhone,
		&p.MedicalConditions, &p.TshirtSize, &p.Address.Street, &p.Address.City, &p.Address.State,
		&p.Address.Pincode, &p.TermsAccepted, &p.Waiver, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return &p, nil
}

// FindTransactionByOrder looks a transaction up by its gateway order id.
func (s *Store) FindTransactionByOrder(ctx context.Context, orderID string) (*models.Transaction, error) {
	return s.findTransaction(ctx,
		`WHERE gateway_order_id = ?`, orderID)
}

// FindTransactionByOrderAndRegistration requires both identifiers to match,
// which is the client-verification lookup: a mismatch means "transaction not
// found", not a signature problem.
func (s *Store) FindTransactionByOrderAndRegistration(ctx context.Context, orderID, regID string) (*models.Transaction, error) {
	return s.findTransaction(ctx,
		`WHERE gateway_order_id = ? AND registration_id = ?`, orderID, regID)
}

func (s *Store) findTransaction(ctx context.Context, where string, args ...any) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, participant_id, registration_id, gateway_order_id, gateway_payment_id, gateway_signature,
		    amount_paise, currency, status, race_category, payment_method, failure_reason, webhook_verified,
		    client_ip, user_agent, order_created_at, paid_at, failed_at, webhook_received_at,
		    created_at, updated_at
		 FROM transactions `+where, args...)

	var (
		t                         models.Transaction
		orderID, paymentID, sig   sql.NullString
		orderAt, paidAt, failedAt sql.NullTime
		webhookAt                 sql.NullTime
	)
	err := row.Scan(&t.ID, &t.ParticipantID, &t.RegistrationID, &orderID, &paymentID, &sig,
		&t.AmountPaise, &t.Currency, &t.Status, &t.RaceCategory, &t.PaymentMethod, &t.FailureReason,
		&t.WebhookVerified, &t.Meta.ClientIP, &t.Meta.UserAgent, &orderAt, &paidAt, &failedAt,
		&webhookAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	t.GatewayOrderID = orderID.String
	t.GatewayPaymentID = paymentID.String
	t.GatewaySignature = sig.String
	if orderAt.Valid {
		t.Meta.OrderCreatedAt = &orderAt.Time
	}
	if paidAt.Valid {
		t.Meta.PaidAt = &paidAt.Time
	}
	if failedAt.Valid {
		t.Meta.FailedAt = &failedAt.Time
	}
	if webhookAt.Valid {
		t.Meta.WebhookReceivedAt = &webhookAt.Time
	}
	return &t, nil
}

// AttachOrder stamps the gateway order id onto the transaction once the
// payment order has been issued. Registration state is untouched.
func (s *Store) AttachOrder(ctx context.Context, transactionID, orderID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET gateway_order_id = ?, status = 'created', order_created_at = ?, updated_at = ?
		 WHERE id = ?`,
		orderID, now, now, transactionID,
	)
	if err != nil {
		return fmt.Errorf("attach order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTransactionPaid records a successful payment signal from either
// channel. Empty paymentID/signature/method arguments leave the existing
// values alone, so a webhook that lacks the signature never erases what the
// client callback stored. webhook_verified only ever goes from 0 to 1.
func (s *Store) MarkTransactionPaid(ctx context.Context, transactionID, paymentID, signature, method string, viaWebhook bool) error {
	now := time.Now().UTC()
	var webhookAt any
	if viaWebhook {
		webhookAt = now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET
		    status = 'paid',
		    gateway_payment_id = COALESCE(NULLIF(?, ''), gateway_payment_id),
		    gateway_signature  = COALESCE(NULLIF(?, ''), gateway_signature),
		    payment_method     = CASE WHEN ? != '' THEN ? ELSE payment_method END,
		    webhook_verified   = webhook_verified OR ?,
		    paid_at            = COALESCE(paid_at, ?),
		    webhook_received_at = COALESCE(?, webhook_received_at),
		    updated_at = ?
		 WHERE id = ?`,
		paymentID, signature, method, method, viaWebhook, now, webhookAt, now, transactionID,
	)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTransactionFailed records a failed payment signal with its reason.
// A transaction already paid stays paid — failure signals arriving after a
// success are corroboration noise, not a regression.
func (s *Store) MarkTransactionFailed(ctx context.Context, transactionID, reason string, viaWebhook bool) error {
	now := time.Now().UTC()
	var webhookAt any
	if viaWebhook {
		webhookAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET
		    status = 'failed',
		    failure_reason = ?,
		    webhook_verified = webhook_verified OR ?,
		    failed_at = COALESCE(failed_at, ?),
		    webhook_received_at = COALESCE(?, webhook_received_at),
		    updated_at = ?
		 WHERE id = ? AND status != 'paid'`,
		reason, viaWebhook, now, webhookAt, now, transactionID,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// CancelRegistration moves a pending registration to cancelled/failed.
// Confirmed and already-cancelled rows are left alone: the WHERE clause is
// the transition function for the failure path — only pending regresses.
func (s *Store) CancelRegistration(ctx context.Context, regID string) error {
	now := time.Now().UTC()
	target := models.DeriveStatus(models.RegistrationPending, models.PaymentFailed)
	_, err := s.db.ExecContext(ctx,
		`UPDATE registrations SET status = ?, payment_status = 'failed', updated_at = ?
		 WHERE registration_id = ? AND status = 'pending'`,
		target, now, regID,
	)
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	return nil
}

// ConfirmRegistration is the critical section of the whole pipeline: the
// idempotent confirmation step both payment channels funnel into.
//
// The check-then-act sequence ("is a bib assigned yet? if not, allocate")
// is made safe without any in-process lock:
//
//  1. Read the registration. A bib already present means a previous call
//     won; return it with already=true and change nothing.
//  2. Cancelled/refunded is sticky — a tardy success signal must not
//     resurrect it (ErrCancelled).
//  3. Compute max(bib)+1 for the category (or the category base), then
//     attempt the compare-and-set write: the UPDATE only matches while
//     bib_number IS NULL, so of two concurrent confirmations exactly one
//     affects a row.
//  4. A lost race (0 rows, or the UNIQUE(race_category, bib_number)
//     constraint firing because another registration took the number)
//     loops back to step 1 and re-reads.
//
// The caller that gets already=false is the one — and only — confirmation
// winner, and is the only caller allowed to trigger the notification.
func (s *Store) ConfirmRegistration(ctx context.Context, regID string) (bib int, already bool, err error) {
	for attempt := 0; attempt < confirmAttempts; attempt++ {
		reg, err := s.GetRegistration(ctx, regID)
		if err != nil {
			return 0, false, err
		}
		if reg.BibNumber != nil {
			return *reg.BibNumber, true, nil
		}
		if reg.Status == models.RegistrationCancelled || reg.Status == models.RegistrationRefunded {
			return 0, false, ErrCancelled
		}

		next, err := s.nextBibNumber(ctx, reg.RaceCategory)
		if err != nil {
			return 0, false, err
		}

		// The transition function decides the target state; the WHERE
		// clause enforces its precondition under concurrency.
		target := models.DeriveStatus(reg.Status, models.PaymentCompleted)
		now := time.Now().UTC()
		res, err := s.db.ExecContext(ctx,
			`UPDATE registrations
			 SET status = ?, payment_status = 'completed', bib_number = ?, updated_at = ?
			 WHERE registration_id = ? AND bib_number IS NULL AND status NOT IN ('cancelled','refunded')`,
			target, next, now, regID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				continue // another registration took this bib; re-read and retry
			}
			return 0, false, fmt.Errorf("confirm registration: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return next, false, nil
		}
		// Lost the per-registration race; the next read sees the winner's bib.
	}
	return 0, false, fmt.Errorf("confirm registration %s: retries exhausted", regID)
}

// nextBibNumber returns the next unused bib in the category's block:
// highest existing number plus one, or the block base when the category has
// no confirmed runners yet. Safe only because the caller's compare-and-set
// write plus the (race_category, bib_number) UNIQUE constraint reject any
// duplicate this read could produce under concurrency.
func (s *Store) nextBibNumber(ctx context.Context, category models.RaceCategory) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(bib_number) + 1, ?) FROM registrations WHERE race_category = ?`,
		models.BibBase(category), category,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next bib number: %w", err)
	}
	return next, nil
}

// MarkConfirmationEmailSent records that the confirmation mail went out.
func (s *Store) MarkConfirmationEmailSent(ctx context.Context, regID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE registrations SET confirmation_email_sent = 1, updated_at = ? WHERE registration_id = ?`,
		time.Now().UTC(), regID,
	)
	if err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}

// Stats aggregates the registration counters in one query.
func (s *Store) Stats(ctx context.Context) (models.StatsSummary, error) {
	var sum models.StatsSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT
		    COUNT(*),
		    COALESCE(SUM(CASE WHEN status = 'confirmed' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN payment_status = 'completed' THEN amount_rupees ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN race_category = '5K' THEN 1 ELSE 0 END), 0),
		    COALESCE(SUM(CASE WHEN race_category = '10K' THEN 1 ELSE 0 END), 0)
		 FROM registrations`,
	).Scan(&sum.TotalRegistrations, &sum.ConfirmedRegistrations, &sum.PendingRegistrations,
		&sum.TotalRevenue, &sum.Race5K, &sum.Race10K)
	if err != nil {
		return models.StatsSummary{}, fmt.Errorf("stats: %w", err)
	}
	return sum, nil
}

func scanRegistration(row *sql.Row) (*models.Registration, error) {
	var (
		r   models.Registration
		bib sql.NullInt64
	)
	err := row.Scan(&r.RegistrationID, &r.ParticipantID, &r.TransactionID, &bib, &r.Status,
		&r.RaceCategory, &r.AmountRupees, &r.PaymentStatus, &r.ConfirmationEmailSent,
		&r.KitCollected, &r.RaceCompleted, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	if bib.Valid {
		n := int(bib.Int64)
		r.BibNumber = &n
	}
	return &r, nil
}

// isUniqueViolation sniffs the driver error text for a UNIQUE constraint
// failure; modernc.org/sqlite does not expose a typed error for it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}
