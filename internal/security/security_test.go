package security

import (
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"plain text untouched", "Asha Kumar", "Asha Kumar"},
		{"whitespace trimmed", "  Asha  ", "Asha"},
		{"script tag stripped", `hello<script>alert(1)</script>world`, "helloworld"},
		{"script tag case-insensitive", `<SCRIPT src="x">bad()</SCRIPT>ok`, "ok"},
		{"angle brackets escaped", "a<b>c", "a&lt;b&gt;c"},
		{"quotes escaped", `O'Brien "quoted"`, "O&#x27;Brien &quot;quoted&quot;"},
		{"ampersand escaped", "T&F club", "T&amp;F club"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sanitize(tc.in); got != tc.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidEmail(t *testing.T) {
	good := []string{"a@b.co", "first.last@example.org", "USER@EXAMPLE.COM"}
	for _, e := range good {
		if !ValidEmail(e) {
			t.Errorf("ValidEmail(%q) = false", e)
		}
	}
	bad := []string{"", "plain", "a@b", "a b@c.d", "@example.com", "a@.com "}
	for _, e := range bad {
		if ValidEmail(e) {
			t.Errorf("ValidEmail(%q) = true", e)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct{ in, want string }{
		{"9876543210", "9876543210"},
		{"98765 43210", "9876543210"},
		{"98765-43210", "9876543210"},
		{"98765", "98765"},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidPhone(t *testing.T) {
	if !ValidPhone("9876543210") {
		t.Error("expected bare 10-digit number to validate")
	}
	if !ValidPhone("98765 43210") {
		t.Error("expected formatted 10-digit number to validate")
	}
	if ValidPhone("1234567890") {
		t.Error("leading digit outside 6-9 should fail")
	}
	if ValidPhone("98765") {
		t.Error("short number should fail")
	}
	// A country-code prefix makes the digit string longer than 10; such
	// values are rejected outright, never truncated to their last 10.
	for _, long := range []string{"+91 9876543210", "009876543210", "91 98765 43210"} {
		if ValidPhone(long) {
			t.Errorf("ValidPhone(%q) = true, want rejection of >10 digits", long)
		}
	}
}

func TestValidAge(t *testing.T) {
	for _, age := range []int{16, 40, 80} {
		if !ValidAge(age) {
			t.Errorf("ValidAge(%d) = false", age)
		}
	}
	for _, age := range []int{0, 15, 81, -1} {
		if ValidAge(age) {
			t.Errorf("ValidAge(%d) = true", age)
		}
	}
}

func TestValidPincode(t *testing.T) {
	if !ValidPincode("600001") {
		t.Error("expected valid pincode")
	}
	for _, bad := range []string{"", "060001", "6000011", "60000", "6000a1"} {
		if ValidPincode(bad) {
			t.Errorf("ValidPincode(%q) = true", bad)
		}
	}
}

func TestNewRegistrationID(t *testing.T) {
	shape := regexp.MustCompile(`^SM25-[0-9a-z]+-[0-9A-F]{8}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRegistrationID()
		if !shape.MatchString(id) {
			t.Fatalf("id %q does not match expected shape", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestVerifyPaymentSignature(t *testing.T) {
	const secret = "test-secret"
	sig := SignPayment("order_1", "pay_1", secret)

	if !VerifyPaymentSignature("order_1", "pay_1", sig, secret) {
		t.Error("valid signature rejected")
	}
	if VerifyPaymentSignature("order_1", "pay_2", sig, secret) {
		t.Error("signature for different payment accepted")
	}
	if VerifyPaymentSignature("order_1", "pay_1", sig, "other-secret") {
		t.Error("signature accepted under wrong secret")
	}
	if VerifyPaymentSignature("order_1", "pay_1", "not-hex!!", secret) {
		t.Error("malformed hex accepted")
	}
	if VerifyPaymentSignature("order_1", "pay_1", sig[:16], secret) {
		t.Error("truncated signature accepted")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	const secret = "webhook-secret"
	body := []byte(`{"event":"payment.captured"}`)
	sig := SignWebhook(body, secret)

	if !VerifyWebhookSignature(body, sig, secret) {
		t.Error("valid signature rejected")
	}
	tampered := []byte(`{"event":"payment.captured" }`)
	if VerifyWebhookSignature(tampered, sig, secret) {
		t.Error("tampered body accepted")
	}
	if VerifyWebhookSignature(body, sig, "wrong") {
		t.Error("signature accepted under wrong secret")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:54321"
	if got := ClientIP(r); got != "10.0.0.1" {
		t.Errorf("ClientIP from RemoteAddr = %q", got)
	}

	r.Header.Set("X-Real-IP", "203.0.113.9")
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Errorf("ClientIP from X-Real-IP = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := ClientIP(r); got != "198.51.100.7" {
		t.Errorf("ClientIP from X-Forwarded-For = %q", got)
	}

	if got := ClientIP(httptest.NewRequest("GET", "/", nil)); strings.Contains(got, ":") {
		t.Errorf("ClientIP should strip the port, got %q", got)
	}
}
