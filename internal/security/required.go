package security

import (
	"strings"

	"github.com/salutemarathon/backend/internal/models"
)

// MissingFields checks a submission against the fixed required-field list
// and reports every missing field in one pass, so the client can show all
// problems at once instead of discovering them one request at a time.
//
// Consent booleans count as "missing" when false: the field names mirror
// the JSON body, including the nested address fields.
func MissingFields(req models.RegisterRequest) []string {
	var missing []string

	blank := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}

	blank("firstName", req.FirstName)
	blank("lastName", req.LastName)
	blank("email", req.Email)
	blank("phone", req.Phone)
	if req.Age == 0 {
		missing = append(missing, "age")
	}
	blank("gender", req.Gender)
	blank("raceCategory", req.RaceCategory)
	blank("emergencyContactName", req.EmergencyContactName)
	blank("emergencyContactPhone", req.EmergencyContactPhone)
	blank("tshirtSize", req.TshirtSize)
	blank("address.street", req.Address.Street)
	blank("address.city", req.Address.City)
	blank("address.state", req.Address.State)
	blank("address.pincode", req.Address.Pincode)
	if !req.TermsAccepted {
		missing = append(missing, "termsAccepted")
	}
	if !req.Waiver {
		missing = append(missing, "waiver")
	}

	return missing
}
