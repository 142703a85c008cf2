package models

import "time"

// RaceCategory is one of the two fixed race distances.
type RaceCategory string

const (
	Race5K  RaceCategory = "5K"
	Race10K RaceCategory = "10K"
)

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
	RegistrationRefunded  RegistrationStatus = "refunded"
)

// PaymentStatus tracks the payment side of a registration.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// TransactionStatus is the lifecycle state of a single payment attempt.
type TransactionStatus string

const (
	TransactionCreated   TransactionStatus = "created"
	TransactionAttempted TransactionStatus = "attempted"
	TransactionPaid      TransactionStatus = "paid"
	TransactionFailed    TransactionStatus = "failed"
	TransactionRefunded  TransactionStatus = "refunded"
)

// Entry fees in paise. The gateway deals in minor currency units while the
// registration table stores rupees; FeePaise and FeeRupees are the single
// source for both so the two representations can never drift apart.
const (
	Fee5KPaise  = 33300
	Fee10KPaise = 55500
)

// Bib numbering blocks are disjoint per category so a runner's distance can
// be read off the bib alone.
const (
	BibBase5K  = 1001
	BibBase10K = 2001
)

// Currency is the only accepted currency code.
const Currency = "INR"

// ValidCategory reports whether c is one of the two accepted race categories.
func ValidCategory(c RaceCategory) bool {
	return c == Race5K || c == Race10K
}

// FeePaise returns the entry fee for a category in paise.
func FeePaise(c RaceCategory) int {
	if c == Race5K {
		return Fee5KPaise
	}
	return Fee10KPaise
}

// FeeRupees returns the entry fee for a category in rupees.
func FeeRupees(c RaceCategory) int {
	return FeePaise(c) / 100
}

// BibBase returns the first bib number of a category's numbering block.
func BibBase(c RaceCategory) int {
	if c == Race5K {
		return BibBase5K
	}
	return BibBase10K
}

// DeriveStatus keeps status and paymentStatus consistent at every write.
//
// The rule: a completed payment confirms a pending registration, a failed
// payment cancels it. Terminal states (confirmed, cancelled, refunded) are
// never regressed — refund transitions are done explicitly elsewhere.
func DeriveStatus(status RegistrationStatus, payment PaymentStatus) RegistrationStatus {
	if status != RegistrationPending {
		return status
	}
	switch payment {
	case PaymentCompleted:
		return RegistrationConfirmed
	case PaymentFailed:
		return RegistrationCancelled
	default:
		return status
	}
}

// Address is a participant's postal address.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

// Participant is the identity record created once at registration
// submission and retained for event records. Email and phone are each
// globally unique.
type Participant struct {
	ID                    string       `json:"id"`
	RegistrationID        string       `json:"registration_id"`
	FirstName             string       `json:"first_name"`
	LastName              string       `json:"last_name"`
	Email                 string       `json:"email"`
	Phone                 string       `json:"phone"`
	Age                   int          `json:"age"`
	Gender                string       `json:"gender"`
	RaceCategory          RaceCategory `json:"race_category"`
	EmergencyContactName  string       `json:"emergency_contact_name"`
	EmergencyContactPhone string       `json:"emergency_contact_phone"`
	MedicalConditions     string       `json:"medical_conditions,omitempty"`
	TshirtSize            string       `json:"tshirt_size"`
	Address               Address      `json:"address"`
	TermsAccepted         bool         `json:"terms_accepted"`
	Waiver                bool         `json:"waiver"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// FullName is used in gateway order notes, email copy and API responses.
func (p Participant) FullName() string {
	return p.FirstName + " " + p.LastName
}

// TransactionMeta is the fixed set of optional metadata recorded across a
// transaction's lifecycle. Explicit columns, not a free-form bag, so the
// schema stays checkable.
type TransactionMeta struct {
	ClientIP          string     `json:"client_ip,omitempty"`
	UserAgent         string     `json:"user_agent,omitempty"`
	OrderCreatedAt    *time.Time `json:"order_created_at,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	FailedAt          *time.Time `json:"failed_at,omitempty"`
	WebhookReceivedAt *time.Time `json:"webhook_received_at,omitempty"`
}

// Transaction is one payment attempt, 1:1 with a Registration.
type Transaction struct {
	ID               string            `json:"id"`
	ParticipantID    string            `json:"participant_id"`
	RegistrationID   string            `json:"registration_id"`
	GatewayOrderID   string            `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string            `json:"gateway_payment_id,omitempty"`
	GatewaySignature string            `json:"-"`
	AmountPaise      int               `json:"amount_paise"`
	Currency         string            `json:"currency"`
	Status           TransactionStatus `json:"status"`
	RaceCategory     RaceCategory      `json:"race_category"`
	PaymentMethod    string            `json:"payment_method,omitempty"`
	FailureReason    string            `json:"failure_reason,omitempty"`
	WebhookVerified  bool              `json:"webhook_verified"`
	Meta             TransactionMeta   `json:"meta"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Registration is the central entity: one participant's intent to race,
// tracked independently of payment success.
//
// Invariant: BibNumber is non-nil exactly when Status is confirmed and
// PaymentStatus is completed; once assigned it never changes.
type Registration struct {
	RegistrationID        string             `json:"registration_id"`
	ParticipantID         string             `json:"participant_id"`
	TransactionID         string             `json:"transaction_id"`
	BibNumber             *int               `json:"bib_number,omitempty"`
	Status                RegistrationStatus `json:"status"`
	RaceCategory          RaceCategory       `json:"race_category"`
	AmountRupees          int                `json:"amount"`
	PaymentStatus         PaymentStatus      `json:"payment_status"`
	ConfirmationEmailSent bool               `json:"confirmation_email_sent"`
	KitCollected          bool               `json:"kit_collected"`
	RaceCompleted         bool               `json:"race_completed"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// ---- Request / Response DTOs ----

// RegisterRequest is the raw submission body before validation.
type RegisterRequest struct {
	FirstName             string  `json:"firstName"`
	LastName              string  `json:"lastName"`
	Email                 string  `json:"email"`
	Phone                 string  `json:"phone"`
	Age                   int     `json:"age"`
	Gender                string  `json:"gender"`
	RaceCategory          string  `json:"raceCategory"`
	EmergencyContactName  string  `json:"emergencyContactName"`
	EmergencyContactPhone string  `json:"emergencyContactPhone"`
	MedicalConditions     string  `json:"medicalConditions"`
	TshirtSize            string  `json:"tshirtSize"`
	Address               Address `json:"address"`
	TermsAccepted         bool    `json:"termsAccepted"`
	Waiver                bool    `json:"waiver"`
}

type CreateOrderRequest struct {
	RegistrationID string `json:"registrationId"`
	Amount         int    `json:"amount"`
	Currency       string `json:"currency"`
}

type VerifyPaymentRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
	RegistrationID   string `json:"registrationId"`
}

// UserDetails is the participant summary echoed to the payment frontend.
type UserDetails struct {
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone"`
	RaceCategory RaceCategory `json:"raceCategory,omitempty"`
}

// WebhookEvent is the envelope the payment gateway posts. Only the fields
// the reconciler reads are declared; the rest of the payload is ignored.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity OrderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// PaymentEntity is the payment object inside payment.* webhook events.
type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int    `json:"amount"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// OrderEntity is the order object inside order.paid webhook events.
type OrderEntity struct {
	ID         string `json:"id"`
	Amount     int    `json:"amount"`
	AmountPaid int    `json:"amount_paid"`
}

// StatsSummary is the aggregate snapshot behind GET /stats.
type StatsSummary struct {
	TotalRegistrations     int `json:"totalRegistrations"`
	ConfirmedRegistrations int `json:"confirmedRegistrations"`
	PendingRegistrations   int `json:"pendingRegistrations"`
	TotalRevenue           int `json:"totalRevenue"`
	Race5K                 int `json:"race5K"`
	Race10K                int `json:"race10K"`
}

// AdminLoginRequest authenticates the organizer dashboard.
type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
