package handlers

import (
	"errors"
	"net/http"

	"github.com/salutemarathon/backend/internal/models"
	"github.com/salutemarathon/backend/internal/payment"
	"github.com/salutemarathon/backend/internal/reconcile"
	"github.com/salutemarathon/backend/internal/store"
)

// CreateOrder handles POST /payment/order.
//
// The claimed amount is validated twice: against the global fee list, and
// against the fee implied by the registration's stored race category — the
// second check is what stops a tampered client from paying the 5K fee for a
// 10K slot. Re-issuance after a completed payment is refused outright.
func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := decode(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.RegistrationID == "" || req.Amount == 0 || req.Currency == "" {
		respondFail(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if req.Currency != models.Currency {
		respondFail(w, http.StatusBadRequest, "Invalid currency")
		return
	}
	if req.Amount != models.FeeRupees(models.Race5K) && req.Amount != models.FeeRupees(models.Race10K) {
		respondFail(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	reg, err := s.Store.GetRegistration(r.Context(), req.RegistrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondFail(w, http.StatusNotFound, "Registration not found")
			return
		}
		s.Log.Error("order creation failed", "err", err)
		respondFail(w, http.StatusInternalServerError, "Failed to create payment order. Please try again.")
		return
	}

	if reg.PaymentStatus == models.PaymentCompleted {
		respondFail(w, http.StatusBadRequest, "Payment already completed for this registration")
		return
	}
	if req.Amount != models.FeeRupees(reg.RaceCategory) {
		respondFail(w, http.StatusBadRequest, "Amount does not match race category")
		return
	}

	participant, err := s.Store.GetParticipantByRegistration(r.Context(), req.RegistrationID)
	if err != nil {
		s.Log.Error("order creation failed", "err", err)
		respondFail(w, http.StatusInternalServerError, "Failed to create payment order. Please try again.")
		return
	}

	order, err := s.Gateway.CreateOrder(r.Context(), payment.OrderRequest{
		AmountPaise: req.Amount * 100,
		Currency:    req.Currency,
		Receipt:     req.RegistrationID,
		Notes: map[string]string{
			"registrationId":   req.RegistrationID,
			"raceCategory":     string(reg.RaceCategory),
			"participantName":  participant.FullName(),
			"participantEmail": participant.Email,
			"participantPhone": participant.Phone,
		},
	})
	if err != nil {
		s.Log.Error("gateway order failed", "registration_id", req.RegistrationID, "err", err)
		respondFail(w, http.StatusInternalServerError, "Failed to create payment order. Please try again.")
		return
	}

	if err := s.Store.AttachOrder(r.Context(), reg.TransactionID, order.ID); err != nil {
		s.Log.Error("attach order failed", "order_id", order.ID, "err", err)
		respondFail(w, http.StatusInternalServerError, "Failed to create payment order. Please try again.")
		return
	}

	respondOK(w, "Order created", map[string]any{
		"orderId":        order.ID,
		"amount":         order.AmountPaise,
		"currency":       order.Currency,
		"registrationId": req.RegistrationID,
		"userDetails": models.UserDetails{
			Name:  participant.FullName(),
			Email: participant.Email,
			Phone: participant.Phone,
		},
	})
}

// VerifyPayment handles POST /payment/verify — the synchronous channel of
// the reconciliation state machine.
func (s *Server) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyPaymentRequest
	if err := decode(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" || req.RegistrationID == "" {
		respondFail(w, http.StatusBadRequest, "Missing required payment verification fields")
		return
	}

	result, err := s.Reconciler.VerifyClientPayment(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrTransactionNotFound):
			respondFail(w, http.StatusNotFound, "Transaction not found")
		case errors.Is(err, reconcile.ErrInvalidSignature):
			respondFail(w, http.StatusBadRequest, "Payment verification failed - invalid signature")
		case errors.Is(err, reconcile.ErrRegistrationCancelled):
			respondFail(w, http.StatusConflict, "Registration has been cancelled")
		case errors.Is(err, store.ErrNotFound):
			respondFail(w, http.StatusNotFound, "Registration not found")
		default:
			s.Log.Error("payment verification failed", "err", err)
			respondFail(w, http.StatusInternalServerError, "Payment verification failed. Please contact support.")
		}
		return
	}

	respondOK(w, "Payment verified successfully", map[string]any{
		"registrationId": result.RegistrationID,
		"paymentId":      result.PaymentID,
		"bibNumber":      result.BibNumber,
		"status":         models.RegistrationConfirmed,
		"userDetails": models.UserDetails{
			Name:         result.Participant.FullName(),
			Email:        result.Participant.Email,
			Phone:        result.Participant.Phone,
			RaceCategory: result.Participant.RaceCategory,
		},
	})
}
