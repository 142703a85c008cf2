// Package config reads all runtime settings from the environment so the
// same binary serves development, CI and production without recompiling.
package config

import (
	"os"
	"strings"
)

// Config carries every externally provided setting. Secrets (gateway keys,
// webhook secret, SMTP credentials) are collaborator credentials — none of
// them participates in business logic beyond being passed to the component
// that needs it.
type Config struct {
	Addr        string
	DatabaseURL string
	LogLevel    string

	RazorpayKeyID     string
	RazorpayKeySecret string
	WebhookSecret     string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	MailFrom     string

	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string
}

// FromEnv builds a Config from the environment, applying development
// defaults where a value is safe to default. Call godotenv.Load first if a
// .env file should participate.
func FromEnv() Config {
	return Config{
		Addr: getenv("ADDR", ":8080"),
		DatabaseURL: getenv("DATABASE_URL",
			"marathon.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		RazorpayKeyID:     getenv("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret: getenv("RAZORPAY_KEY_SECRET", "changeme-razorpay-secret"),
		WebhookSecret:     getenv("RAZORPAY_WEBHOOK_SECRET", "changeme-webhook-secret"),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUser:     getenv("SMTP_USER", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		MailFrom:     getenv("MAIL_FROM", "registrations@salutemarathon.in"),

		JWTSecret:         getenv("JWT_SECRET", "changeme-use-a-real-secret-in-production"),
		AdminEmail:        getenv("ADMIN_EMAIL", "admin@salutemarathon.in"),
		AdminPasswordHash: getenv("ADMIN_PASSWORD_HASH", ""),
	}
}

// getenv returns the value of the named environment variable, or fallback
// if the variable is not set or is empty.
func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
