package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/salutemarathon/backend/internal/models"
	"github.com/salutemarathon/backend/internal/security"
	"github.com/salutemarathon/backend/internal/store"
)

// Register handles POST /register.
//
// Validation runs entirely before any persistent record exists, in a fixed
// order: required fields (every missing field reported at once), then
// sanitization/normalization, then per-field checks. Only a fully valid
// submission reaches the store, which creates participant, transaction and
// registration atomically.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decode(r, &req); err != nil {
		respondFail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if missing := security.MissingFields(req); len(missing) > 0 {
		respond(w, http.StatusBadRequest, map[string]any{
			"success":       false,
			"message":       "Missing required fields",
			"missingFields": missing,
		})
		return
	}

	p := models.Participant{
		FirstName:             security.Sanitize(req.FirstName),
		LastName:              security.Sanitize(req.LastName),
		Email:                 strings.ToLower(security.Sanitize(req.Email)),
		Phone:                 security.NormalizePhone(req.Phone),
		Age:                   req.Age,
		Gender:                req.Gender,
		RaceCategory:          models.RaceCategory(req.RaceCategory),
		EmergencyContactName:  security.Sanitize(req.EmergencyContactName),
		EmergencyContactPhone: security.NormalizePhone(req.EmergencyContactPhone),
		MedicalConditions:     security.Sanitize(req.MedicalConditions),
		TshirtSize:            req.TshirtSize,
		Address: models.Address{
			Street:  security.Sanitize(req.Address.Street),
			City:    security.Sanitize(req.Address.City),
			State:   security.Sanitize(req.Address.State),
			Pincode: strings.TrimSpace(req.Address.Pincode),
		},
		TermsAccepted: req.TermsAccepted,
		Waiver:        req.Waiver,
	}

	switch {
	case !security.ValidEmail(p.Email):
		respondFail(w, http.StatusBadRequest, "Invalid email format")
		return
	case !security.ValidPhone(p.Phone):
		respondFail(w, http.StatusBadRequest, "Invalid phone number format")
		return
	case !security.ValidPhone(p.EmergencyContactPhone):
		respondFail(w, http.StatusBadRequest, "Invalid emergency contact phone format")
		return
	case !security.ValidAge(p.Age):
		respondFail(w, http.StatusBadRequest, "Age must be between 16 and 80 years")
		return
	case !security.ValidPincode(p.Address.Pincode):
		respondFail(w, http.StatusBadRequest, "Invalid pincode format")
		return
	case !models.ValidCategory(p.RaceCategory):
		respondFail(w, http.StatusBadRequest, "Invalid race category")
		return
	case !p.TermsAccepted || !p.Waiver:
		respondFail(w, http.StatusBadRequest, "Terms and waiver must be accepted")
		return
	}

	created, err := s.Store.CreateSubmission(r.Context(), store.Submission{
		Participant: p,
		ClientIP:    security.ClientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateIdentity):
			respondFail(w, http.StatusBadRequest, "User with this email or phone already registered")
		case errors.Is(err, store.ErrIDExhausted):
			respondFail(w, http.StatusInternalServerError, "Unable to generate unique registration ID. Please try again.")
		default:
			s.Log.Error("registration failed", "err", err)
			respondFail(w, http.StatusInternalServerError, "Internal server error. Please try again.")
		}
		return
	}

	respondOK(w, "Registration created successfully", map[string]any{
		"registrationId": created.Registration.RegistrationID,
		"userId":         created.Participant.ID,
		"transactionId":  created.Transaction.ID,
		"amount":         created.Registration.AmountRupees,
		"raceCategory":   created.Registration.RaceCategory,
	})
}
