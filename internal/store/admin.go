package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/salutemarathon/backend/internal/models"
)

// ListFilter narrows the admin registration listing.
type ListFilter struct {
	Page     int
	Limit    int
	Status   string
	Category string
	// Search matches participant first/last name, email or phone,
	// case-insensitively.
	Search string
}

// AdminRegistration is a registration joined with its participant identity
// and payment summary for the organizer dashboard.
type AdminRegistration struct {
	models.Registration
	Participant models.UserDetails `json:"participant"`
	TshirtSize  string             `json:"tshirt_size"`
	PaymentID   string             `json:"gateway_payment_id,omitempty"`
	TxStatus    string             `json:"transaction_status"`
}

// ListRegistrations returns one page of registrations plus the total row
// count for the filter.
func (s *Store) ListRegistrations(ctx context.Context, f ListFilter) ([]AdminRegistration, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}

	where := ` WHERE 1=1`
	var args []any
	if f.Status != "" {
		where += ` AND r.status = ?`
		args = append(args, f.Status)
	}
	if f.Category != "" {
		where += ` AND r.race_category = ?`
		args = append(args, f.Category)
	}
	if f.Search != "" {
		where += ` AND (p.first_name LIKE ? OR p.last_name LIKE ? OR p.email LIKE ? OR p.phone LIKE ?)`
		like := "%" + f.Search + "%"
		args = append(args, like, like, like, like)
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations r JOIN participants p ON p.id = r.participant_id`+where,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	query := `SELECT r.registration_id, r.participant_id, r.transaction_id, r.bib_number, r.status,
	    r.race_category, r.amount_rupees, r.payment_status, r.confirmation_email_sent,
	    r.kit_collected, r.race_completed, r.created_at, r.updated_at,
	    p.first_name, p.last_name, p.email, p.phone, p.tshirt_size,
	    t.gateway_payment_id, t.status
	 FROM registrations r
	 JOIN participants p ON p.id = r.participant_id
	 JOIN transactions t ON t.id = r.transaction_id` + where +
		` ORDER BY r.created_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	// Empty slice, not nil, so JSON encodes as [] rather than null.
	regs := []AdminRegistration{}
	for rows.Next() {
		var (
			a                     AdminRegistration
			bib                   sql.NullInt64
			firstName, lastName   string
			paymentID             sql.NullString
		)
		if err := rows.Scan(&a.RegistrationID, &a.ParticipantID, &a.TransactionID, &bib, &a.Status,
			&a.RaceCategory, &a.AmountRupees, &a.PaymentStatus, &a.ConfirmationEmailSent,
			&a.KitCollected, &a.RaceCompleted, &a.CreatedAt, &a.UpdatedAt,
			&firstName, &lastName, &a.Participant.Email, &a.Participant.Phone, &a.TshirtSize,
			&paymentID, &a.TxStatus); err != nil {
			return nil, 0, fmt.Errorf("scan registration: %w", err)
		}
		if bib.Valid {
			n := int(bib.Int64)
			a.BibNumber = &n
		}
		a.Participant.Name = firstName + " " + lastName
		a.Participant.RaceCategory = a.RaceCategory
		a.PaymentID = paymentID.String
		regs = append(regs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows: %w", err)
	}

	return regs, total, nil
}

// ExportRegistration returns the full record set behind one registration.
func (s *Store) ExportRegistration(ctx context.Context, regID string) (*Created, error) {
	reg, err := s.GetRegistration(ctx, regID)
	if err != nil {
		return nil, err
	}
	p, err := s.GetParticipantByRegistration(ctx, regID)
	if err != nil {
		return nil, err
	}
	txn, err := s.findTransaction(ctx, `WHERE id = ?`, reg.TransactionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &Created{Participant: *p, Transaction: *txn, Registration: *reg}, nil
}
