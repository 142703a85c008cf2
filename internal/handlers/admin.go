package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/salutemarathon/backend/internal/auth"
	"github.com/salutemarathon/backend/internal/models"
	"github.com/salutemarathon/backend/internal/store"
)

// AdminLogin handles POST /admin/login. The dashboard is single-tenant: one
// configured email and bcrypt hash. Both checks run before answering so a
// wrong email costs the same as a wrong password.
func (s *Server) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req models.AdminLoginRequest
	if err := decode(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondFail(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	emailOK := subtle.ConstantTimeCompare([]byte(req.Email), []byte(s.AdminEmail)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(s.AdminPasswordHash), []byte(req.Password))
	if !emailOK || passErr != nil {
		respondFail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateToken(req.Email, s.JWTSecret)
	if err != nil {
		s.Log.Error("token generation failed", "err", err)
		respondFail(w, http.StatusInternalServerError, "Internal server error. Please try again.")
		return
	}

	respondOK(w, "Login successful", map[string]any{"token": token})
}

// AdminRegistrations handles GET /admin/registrations: a filtered,
// paginated listing plus the same summary the public stats endpoint serves.
func (s *Server) AdminRegistrations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ListFilter{
		Page:     queryInt(q.Get("page"), 1),
		Limit:    queryInt(q.Get("limit"), 20),
		Status:   q.Get("status"),
		Category: q.Get("raceCategory"),
		Search:   q.Get("search"),
	}
	if f.Limit > 100 {
		f.Limit = 100
	}

	rows, total, err := s.Store.ListRegistrations(r.Context(), f)
	if err != nil {
		s.Log.Error("registration listing failed", "err", err)
		respondFail(w, http.StatusInternalServerError, "Failed to fetch registrations")
		return
	}

	summary, err := s.Store.Stats(r.Context())
	if err != nil {
		s.Log.Error("stats query failed", "err", err)
		summary = models.StatsSummary{}
	}

	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}

	respondOK(w, "Registrations retrieved", map[string]any{
		"registrations": rows,
		"stats":         summary,
		"pagination": map[string]any{
			"page":  f.Page,
			"limit": f.Limit,
			"total": total,
			"pages": pages,
		},
	})
}

// AdminExport handles POST /admin/registrations. The only action today is a
// single-registration export for the race-day kit desk.
func (s *Server) AdminExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action         string `json:"action"`
		RegistrationID string `json:"registrationId"`
	}
	if err := decode(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if req.Action != "export" {
		respondFail(w, http.StatusBadRequest, "Invalid action")
		return
	}
	if req.RegistrationID == "" {
		respondFail(w, http.StatusBadRequest, "Missing registrationId")
		return
	}

	record, err := s.Store.ExportRegistration(r.Context(), req.RegistrationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondFail(w, http.StatusNotFound, "Registration not found")
			return
		}
		s.Log.Error("registration export failed", "registration_id", req.RegistrationID, "err", err)
		respondFail(w, http.StatusInternalServerError, "Failed to export registration")
		return
	}

	respondOK(w, "Registration exported", map[string]any{
		"participant":  record.Participant,
		"transaction":  record.Transaction,
		"registration": record.Registration,
	})
}

func queryInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
