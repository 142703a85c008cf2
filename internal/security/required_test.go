package security

import (
	"testing"

	"github.com/salutemarathon/backend/internal/models"
)

func completeRequest() models.RegisterRequest {
	return models.RegisterRequest{
		FirstName:             "Asha",
		LastName:              "Kumar",
		Email:                 "asha@example.com",
		Phone:                 "9876543210",
		Age:                   28,
		Gender:                "Female",
		RaceCategory:          "5K",
		EmergencyContactName:  "Ravi Kumar",
		EmergencyContactPhone: "9876500000",
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

func TestMissingFields_Complete(t *testing.T) {
	if missing := MissingFields(completeRequest()); len(missing) != 0 {
		t.Errorf("expected no missing fields, got %v", missing)
	}
}

func TestMissingFields_ReportsAllAtOnce(t *testing.T) {
	req := completeRequest()
	req.FirstName = ""
	req.Email = "   "
	req.Age = 0
	req.Address.Pincode = ""
	req.Waiver = false

	missing := MissingFields(req)
	want := []string{"firstName", "email", "age", "address.pincode", "waiver"}
	if len(missing) != len(want) {
		t.Fatalf("missing = %v, want %v", missing, want)
	}
	for i, name := range want {
		if missing[i] != name {
			t.Errorf("missing[%d] = %q, want %q", i, missing[i], name)
		}
	}
}

func TestMissingFields_ConsentFalseCountsAsMissing(t *testing.T) {
	req := completeRequest()
	req.TermsAccepted = false
	missing := MissingFields(req)
	if len(missing) != 1 || missing[0] != "termsAccepted" {
		t.Errorf("missing = %v, want [termsAccepted]", missing)
	}
}
