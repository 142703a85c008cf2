package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/salutemarathon/backend/internal/db"
	"github.com/salutemarathon/backend/internal/models"
)

var testDBCounter uint64

// newTestStore creates a Store backed by a unique in-memory SQLite database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	// Each test gets its own named shared-cache memory DB so connections
	// in the pool all see the same tables without interfering across tests.
	id := atomic.AddUint64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared&_foreign_keys=on", id)
	testDB, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("newTestStore: open db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return New(testDB)
}

// testParticipant builds a valid participant with identity fields derived
// from n so multiple submissions never collide.
func testParticipant(n int, category models.RaceCategory) models.Participant {
	return models.Participant{
		FirstName:             "Runner",
		LastName:              fmt.Sprintf("Number%d", n),
		Email:                 fmt.Sprintf("runner%d@example.com", n),
		Phone:                 fmt.Sprintf("98765%05d", n),
		Age:                   25,
		Gender:                "Female",
		RaceCategory:          category,
		EmergencyContactName:  "Contact",
		EmergencyContactPhone: fmt.Sprintf("91234%05d", n),
		TshirtSize:            "M",
		Address: models.Address{
			Street:  "12 Beach Road",
			City:    "Chennai",
			State:   "Tamil Nadu",
			Pincode: "600001",
		},
		TermsAccepted: true,
		Waiver:        true,
	}
}

func mustSubmit(t *testing.T, s *Store, n int, category models.RaceCategory) *Created {
	t.Helper()
	created, err := s.CreateSubmission(context.Background(), Submission{
		Participant: testParticipant(n, category),
		ClientIP:    "203.0.113.9",
		UserAgent:   "test-agent",
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	return created
}

func TestCreateSubmission(t *testing.T) {
	s := newTestStore(t)
	created := mustSubmit(t, s, 1, models.Race5K)

	if !strings.HasPrefix(created.Registration.RegistrationID, "SM25-") {
		t.Errorf("registration id %q lacks event prefix", created.Registration.RegistrationID)
	}
	if created.Registration.Status != models.RegistrationPending {
		t.Errorf("status = %s, want pending", created.Registration.Status)
	}
	if created.Registration.PaymentStatus != models.PaymentPending {
		t.Errorf("payment status = %s, want pending", created.Registration.PaymentStatus)
	}
	if created.Registration.AmountRupees != 333 {
		t.Errorf("amount = %d, want 333", created.Registration.AmountRupees)
	}
	if created.Transaction.AmountPaise != 33300 {
		t.Errorf("amount paise = %d, want 33300", created.Transaction.AmountPaise)
	}
	if created.Transaction.Meta.ClientIP != "203.0.113.9" {
		t.Errorf("client ip = %q", created.Transaction.Meta.ClientIP)
	}

	// The three rows must be readable back under the same identifiers.
	reg, err := s.GetRegistration(context.Background(), created.Registration.RegistrationID)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if reg.BibNumber != nil {
		t.Error("fresh registration must not have a bib")
	}
	p, err := s.GetParticipantByRegistration(context.Background(), created.Registration.RegistrationID)
	if err != nil {
		t.Fatalf("GetParticipantByRegistration: %v", err)
	}
	if p.Email != "runner1@example.com" {
		t.Errorf("participant email = %q", p.Email)
	}
}

func TestCreateSubmission_DuplicateIdentity(t *testing.T) {
	s := newTestStore(t)
	mustSubmit(t, s, 1, models.Race5K)

	// Same email, different phone.
	dup := testParticipant(2, models.Race5K)
	dup.Email = "runner1@example.com"
	_, err := s.CreateSubmission(context.Background(), Submission{Participant: dup})
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Errorf("duplicate email: got %v, want ErrDuplicateIdentity", err)
	}

	// Same phone, different email.
	dup = testParticipant(3, models.Race5K)
	dup.Phone = testParticipant(1, models.Race5K).Phone
	_, err = s.CreateSubmission(context.Background(), Submission{Participant: dup})
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Errorf("duplicate phone: got %v, want ErrDuplicateIdentity", err)
	}
}

func TestGetRegistration_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRegistration(context.Background(), "SM25-missing-0000")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestAttachOrderAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := mustSubmit(t, s, 1, models.Race10K)
	regID := created.Registration.RegistrationID

	if err := s.AttachOrder(ctx, created.Transaction.ID, "order_abc"); err != nil {
		t.Fatalf("AttachOrder: %v", err)
	}

	txn, err := s.FindTransactionByOrder(ctx, "order_abc")
	if err != nil {
		t.Fatalf("FindTransactionByOrder: %v", err)
	}
	if txn.ID != created.Transaction.ID {
		t.Errorf("found transaction %q, want %q", txn.ID, created.Transaction.ID)
	}
	if txn.Meta.OrderCreatedAt == nil {
		t.Error("expected order_created_at to be stamped")
	}

	if _, err := s.FindTransactionByOrderAndRegistration(ctx, "order_abc", regID); err != nil {
		t.Fatalf("FindTransactionByOrderAndRegistration: %v", err)
	}
	// A mismatched registration id must behave as not found, not as a
	// signature problem.
	_, err = s.FindTransactionByOrderAndRegistration(ctx, "order_abc", "SM25-other-0000")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("mismatched pair: got %v, want ErrNotFound", err)
	}

	if err := s.AttachOrder(ctx, "no-such-transaction", "order_xyz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AttachOrder on unknown transaction: got %v, want ErrNotFound", err)
	}
}

func TestMarkTransactionPaid_DoesNotEraseValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := mustSubmit(t, s, 1, models.Race5K)

	if err := s.AttachOrder(ctx, created.Transaction.ID, "order_abc"); err != nil {
		t.Fatalf("AttachOrder: %v", err)
	}

	// Client callback stores payment id and signature.
	if err := s.MarkTransactionPaid(ctx, created.Transaction.ID, "pay_1", "sigvalue", "", false); err != nil {
		t.Fatalf("MarkTransactionPaid (client): %v", err)
	}
	// Webhook redelivery carries no signature but adds the method.
	if err := s.MarkTransactionPaid(ctx, created.Transaction.ID, "", "", "upi", true); err != nil {
		t.Fatalf("MarkTransactionPaid (webhook): %v", err)
	}

	txn, err := s.FindTransactionByOrder(ctx, "order_abc")
	if err != nil {
		t.Fatalf("FindTransactionByOrder: %v", err)
	}
	if txn.Status != models.TransactionPaid {
		t.Errorf("status = %s, want paid", txn.Status)
	}
	if txn.GatewayPaymentID != "pay_1" {
		t.Errorf("payment id erased: %q", txn.GatewayPaymentID)
	}
	if txn.GatewaySignature != "sigvalue" {
		t.Errorf("signature erased: %q", txn.GatewaySignature)
	}
	if txn.PaymentMethod != "upi" {
		t.Errorf("method = %q, want upi", txn.PaymentMethod)
	}
	if !txn.WebhookVerified {
		t.Error("webhook_verified should be set after webhook signal")
	}
	if txn.Meta.PaidAt == nil || txn.Meta.WebhookReceivedAt == nil {
		t.Error("lifecycle timestamps missing")
	}
}

func TestMarkTransactionFailed_PaidStaysPaid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := mustSubmit(t, s, 1, models.Race5K)

	if err := s.AttachOrder(ctx, created.Transaction.ID, "order_abc"); err != nil {
		t.Fatalf("AttachOrder: %v", err)
	}
	if err := s.MarkTransactionPaid(ctx, created.Transaction.ID, "pay_1", "", "", false); err != nil {
		t.Fatalf("MarkTransactionPaid: %v", err)
	}
	if err := s.MarkTransactionFailed(ctx, created.Transaction.ID, "late failure", true); err != nil {
		t.Fatalf("MarkTransactionFailed: %v", err)
	}

	txn, err := s.FindTransactionByOrder(ctx, "order_abc")
	if err != nil {
		t.Fatalf("FindTransactionByOrder: %v", err)
	}
	if txn.Status != models.TransactionPaid {
		t.Errorf("status = %s, want paid after late failure signal", txn.Status)
	}
}

func TestConfirmRegistration_AssignsBaseBib(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reg5 := mustSubmit(t, s, 1, models.Race5K).Registration.RegistrationID
	reg10 := mustSubmit(t, s, 2, models.Race10K).Registration.RegistrationID

	bib, already, err := s.ConfirmRegistration(ctx, reg5)
	if err != nil {
		t.Fatalf("ConfirmRegistration: %v", err)
	}
	if already || bib != models.BibBase5K {
		t.Errorf("first 5K bib = (%d, %v), want (%d, false)", bib, already, models.BibBase5K)
	}

	bib, already, err = s.ConfirmRegistration(ctx, reg10)
	if err != nil {
		t.Fatalf("ConfirmRegistration: %v", err)
	}
	if already || bib != models.BibBase10K {
		t.Errorf("first 10K bib = (%d, %v), want (%d, false)", bib, already, models.BibBase10K)
	}

	reg, err := s.GetRegistration(ctx, reg5)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if reg.Status != models.RegistrationConfirmed || reg.PaymentStatus != models.PaymentCompleted {
		t.Errorf("state = (%s, %s), want (confirmed, completed)", reg.Status, reg.PaymentStatus)
	}
}

func TestConfirmRegistration_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	regID := mustSubmit(t, s, 1, models.Race5K).Registration.RegistrationID

	first, already, err := s.ConfirmRegistration(ctx, regID)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if already {
		t.Fatal("first confirm must report already=false")
	}

	second, already, err := s.ConfirmRegistration(ctx, regID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if !already {
		t.Error("second confirm must report already=true")
	}
	if second != first {
		t.Errorf("bib changed across confirms: %d then %d", first, second)
	}
}

func TestConfirmRegistration_CancelledIsSticky(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	regID := mustSubmit(t, s, 1, models.Race5K).Registration.RegistrationID

	if err := s.CancelRegistration(ctx, regID); err != nil {
		t.Fatalf("CancelRegistration: %v", err)
	}

	_, _, err := s.ConfirmRegistration(ctx, regID)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("confirm after cancel: got %v, want ErrCancelled", err)
	}

	reg, err := s.GetRegistration(ctx, regID)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if reg.Status != models.RegistrationCancelled || reg.PaymentStatus != models.PaymentFailed {
		t.Errorf("state = (%s, %s), want (cancelled, failed)", reg.Status, reg.PaymentStatus)
	}
}

func TestCancelRegistration_ConfirmedStaysConfirmed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	regID := mustSubmit(t, s, 1, models.Race5K).Registration.RegistrationID

	if _, _, err := s.ConfirmRegistration(ctx, regID); err != nil {
		t.Fatalf("ConfirmRegistration: %v", err)
	}
	if err := s.CancelRegistration(ctx, regID); err != nil {
		t.Fatalf("CancelRegistration: %v", err)
	}

	reg, err := s.GetRegistration(ctx, regID)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if reg.Status != models.RegistrationConfirmed {
		t.Errorf("status = %s, want confirmed (cancel only regresses pending)", reg.Status)
	}
}

func TestConfirmRegistration_ConcurrentSameRegistration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	regID := mustSubmit(t, s, 1, models.Race5K).Registration.RegistrationID

	const callers = 8
	var (
		wg      sync.WaitGroup
		winners int32
		bibs    [callers]int
		errs    [callers]error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bib, already, err := s.ConfirmRegistration(ctx, regID)
			bibs[i], errs[i] = bib, err
			if err == nil && !already {
				atomic.AddInt32(&winners, 1)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
	for i, bib := range bibs {
		if bib != models.BibBase5K {
			t.Errorf("caller %d saw bib %d, want %d", i, bib, models.BibBase5K)
		}
	}
}

func TestConfirmRegistration_ConcurrentDistinctBibs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const runners = 5
	regIDs := make([]string, runners)
	for i := 0; i < runners; i++ {
		regIDs[i] = mustSubmit(t, s, i+1, models.Race5K).Registration.RegistrationID
	}

	var wg sync.WaitGroup
	bibs := make([]int, runners)
	errs := make([]error, runners)
	for i := 0; i < runners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bibs[i], _, errs[i] = s.ConfirmRegistration(ctx, regIDs[i])
		}(i)
	}
	wg.Wait()

	seen := make(map[int]int)
	for i := 0; i < runners; i++ {
		if errs[i] != nil {
			t.Fatalf("runner %d: %v", i, errs[i])
		}
		if bibs[i] < models.BibBase5K || bibs[i] >= models.BibBase10K {
			t.Errorf("runner %d bib %d outside 5K block", i, bibs[i])
		}
		if prev, dup := seen[bibs[i]]; dup {
			t.Errorf("runners %d and %d share bib %d", prev, i, bibs[i])
		}
		seen[bibs[i]] = i
	}
}

func TestMarkConfirmationEmailSent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	regID := mustSubmit(t, s, 1, models.Race5K).Registration.RegistrationID

	if err := s.MarkConfirmationEmailSent(ctx, regID); err != nil {
		t.Fatalf("MarkConfirmationEmailSent: %v", err)
	}
	reg, err := s.GetRegistration(ctx, regID)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if !reg.ConfirmationEmailSent {
		t.Error("confirmation_email_sent not recorded")
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reg1 := mustSubmit(t, s, 1, models.Race5K).Registration.RegistrationID
	mustSubmit(t, s, 2, models.Race5K)
	mustSubmit(t, s, 3, models.Race10K)

	if _, _, err := s.ConfirmRegistration(ctx, reg1); err != nil {
		t.Fatalf("ConfirmRegistration: %v", err)
	}

	sum, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := models.StatsSummary{
		TotalRegistrations:     3,
		ConfirmedRegistrations: 1,
		PendingRegistrations:   2,
		TotalRevenue:           333,
		Race5K:                 2,
		Race10K:                1,
	}
	if sum != want {
		t.Errorf("Stats = %+v, want %+v", sum, want)
	}
}
