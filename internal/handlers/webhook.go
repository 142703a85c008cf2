package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/salutemarathon/backend/internal/models"
	"github.com/salutemarathon/backend/internal/security"
)

// maxWebhookBody bounds gateway payloads; captured-payment events are a few
// hundred bytes in practice.
const maxWebhookBody = 1 << 20

// Webhook handles POST /webhooks/payment.
//
// The signature covers the raw body, so the body must be read before any
// JSON decoding. Once the signature checks out the response is always 200:
// reporting an error for a processing failure would make the gateway
// redeliver an event we have already authenticated and logged.
func (s *Server) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondFail(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	sig := r.Header.Get("X-Razorpay-Signature")
	if sig == "" {
		respondFail(w, http.StatusUnauthorized, "Missing signature")
		return
	}
	if !security.VerifyWebhookSignature(body, sig, s.WebhookSecret) {
		s.Log.Warn("webhook signature mismatch", "remote", security.ClientIP(r))
		respondFail(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.Log.Error("webhook payload unreadable", "err", err)
		respondOK(w, "Webhook processed", nil)
		return
	}

	if err := s.Reconciler.HandleWebhookEvent(r.Context(), event); err != nil {
		s.Log.Error("webhook processing failed", "event", event.Event, "err", err)
	}
	respondOK(w, "Webhook processed", nil)
}
