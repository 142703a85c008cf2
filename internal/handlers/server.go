// Package handlers contains the HTTP surface of the registration API.
//
// All handler files share this package so they can use each other's helpers
// without exporting them; the files are split by domain (register, payment,
// webhook, stats, admin) for readability. The central type is Server: a
// plain struct holding the shared dependencies, constructed in main and
// exercised directly in tests.
//
// Every endpoint answers with the uniform envelope
// {"success": bool, "message": string, ...data}, and unsupported methods on
// any registered path return 405 with the same envelope.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/salutemarathon/backend/internal/middleware"
	"github.com/salutemarathon/backend/internal/models"
	"github.com/salutemarathon/backend/internal/payment"
	"github.com/salutemarathon/backend/internal/reconcile"
	"github.com/salutemarathon/backend/internal/store"
)

// Server holds shared dependencies for all handlers. A struct rather than
// package globals: tests spin up independent Servers against their own
// in-memory databases without leaking state.
type Server struct {
	Store      *store.Store
	Reconciler *reconcile.Reconciler
	Gateway    payment.Gateway
	Limiters   *middleware.Limiters

	WebhookSecret string

	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string

	Log *slog.Logger

	// lastStats caches the most recent successful aggregate so /stats can
	// degrade to stale data instead of an error when the store is down.
	lastStats atomic.Pointer[models.StatsSummary]
}

// Routes builds the full route table. Method-specific patterns take
// precedence over the bare-path fallbacks, so any other verb on a known
// path lands in methodNotAllowed.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	limitRegistration := middleware.RateLimit(s.Limiters.Registration)
	limitPayment := middleware.RateLimit(s.Limiters.Payment)
	limitGeneral := middleware.RateLimit(s.Limiters.General)
	admin := middleware.RequireAdmin(s.JWTSecret)

	mux.Handle("POST /register", limitRegistration(http.HandlerFunc(s.Register)))
	mux.HandleFunc("/register", s.methodNotAllowed)

	mux.Handle("POST /payment/order", limitPayment(http.HandlerFunc(s.CreateOrder)))
	mux.HandleFunc("/payment/order", s.methodNotAllowed)

	mux.Handle("POST /payment/verify", limitPayment(http.HandlerFunc(s.VerifyPayment)))
	mux.HandleFunc("/payment/verify", s.methodNotAllowed)

	// The webhook endpoint is deliberately not rate limited: the gateway
	// retries on anything but 2xx and throttling it would only multiply
	// deliveries.
	mux.HandleFunc("POST /webhooks/payment", s.Webhook)
	mux.HandleFunc("/webhooks/payment", s.methodNotAllowed)

	mux.Handle("GET /stats", limitGeneral(http.HandlerFunc(s.Stats)))
	mux.HandleFunc("/stats", s.methodNotAllowed)

	mux.Handle("POST /admin/login", limitGeneral(http.HandlerFunc(s.AdminLogin)))
	mux.HandleFunc("/admin/login", s.methodNotAllowed)

	mux.Handle("GET /admin/registrations", admin(limitGeneral(http.HandlerFunc(s.AdminRegistrations))))
	mux.Handle("POST /admin/registrations", admin(http.HandlerFunc(s.AdminExport)))
	mux.HandleFunc("/admin/registrations", s.methodNotAllowed)

	return middleware.CORS(mux)
}

// respond writes the envelope as JSON. Content-Type must be set before
// WriteHeader flushes the headers.
func respond(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode errors mean the client went away mid-write; nothing useful to do.
	_ = json.NewEncoder(w).Encode(body)
}

// respondOK merges extra data fields into a success envelope.
func respondOK(w http.ResponseWriter, message string, extra map[string]any) {
	body := map[string]any{"success": true, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	respond(w, http.StatusOK, body)
}

// respondFail sends a failure envelope with the given status.
func respondFail(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]any{"success": false, "message": message})
}

// decode reads and parses a JSON request body into v.
func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	respondFail(w, http.StatusMethodNotAllowed, "Method not allowed")
}
