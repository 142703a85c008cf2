// Package security holds the input hardening and payment authenticity
// primitives: sanitization, field validation, registration ID generation and
// HMAC signature verification for both payment channels.
package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// eventPrefix tags every registration ID with the event edition.
const eventPrefix = "SM25"

var (
	scriptTagRe = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	emailRe     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe     = regexp.MustCompile(`^[6-9]\d{9}$`)
	pincodeRe   = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	nonDigitRe  = regexp.MustCompile(`\D`)
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// Sanitize strips script-tag payloads outright, escapes HTML-significant
// characters and trims whitespace. Free-text fields pass through here before
// any persistent record is created.
func Sanitize(s string) string {
	s = scriptTagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(htmlEscaper.Replace(s))
}

// ValidEmail checks the local@domain.tld shape. Callers are expected to
// lowercase the address first.
func ValidEmail(email string) bool {
	return emailRe.MatchString(strings.ToLower(email))
}

// NormalizePhone strips formatting characters from an already validated
// phone value, leaving the bare digits for storage.
func NormalizePhone(phone string) string {
	return nonDigitRe.ReplaceAllString(phone, "")
}

// ValidPhone reports whether phone contains, after removing every non-digit
// character, exactly 10 digits starting with 6-9 (Indian mobile numbering).
// Longer inputs such as country-code prefixed numbers are rejected, never
// truncated.
func ValidPhone(phone string) bool {
	return phoneRe.MatchString(NormalizePhone(phone))
}

// ValidAge checks the [16, 80] participation window.
func ValidAge(age int) bool {
	return age >= 16 && age <= 80
}

// ValidPincode checks for exactly 6 digits with a non-zero leading digit.
func ValidPincode(pincode string) bool {
	return pincodeRe.MatchString(pincode)
}

// NewRegistrationID generates an opaque registration identifier:
// <event-prefix>-<millisecond timestamp, base36>-<4 random bytes, upper hex>.
// Uniqueness is verified against the store by the caller, which retries on
// collision.
func NewRegistrationID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s-%s-%s", eventPrefix, ts, strings.ToUpper(hex.EncodeToString(buf)))
}

// VerifyPaymentSignature validates the client-side checkout callback.
// The gateway signs "<orderID>|<paymentID>" with HMAC-SHA256 and hands the
// hex digest to the browser. Comparison is constant-time; malformed hex or a
// length mismatch is a verification failure, never a panic.
func VerifyPaymentSignature(orderID, paymentID, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := mac.Sum(nil)

	supplied, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, supplied)
}

// VerifyWebhookSignature validates an asynchronous gateway notification.
// The HMAC covers the raw request body bytes — the payload must not be
// reparsed or reserialized before verification, or the digest won't match
// what the gateway signed.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	supplied, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, supplied)
}

// SignPayment produces the hex HMAC digest the gateway would generate for an
// (orderID, paymentID) pair. The server never sends this anywhere; it exists
// so tests can build valid and tampered signatures.
func SignPayment(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignWebhook is the webhook-channel counterpart of SignPayment.
func SignWebhook(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ClientIP extracts the originating client address, preferring proxy headers
// over the socket peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	if host == "" {
		return "unknown"
	}
	return host
}
