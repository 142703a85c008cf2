// main is the entry point for the Salute Marathon registration API.
//
// It is the composition root: configuration, the SQLite store, the payment
// gateway client, the notification dispatcher and the reconciler are all
// constructed here and injected into the HTTP layer. No other package
// reaches for globals.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/salutemarathon/backend/internal/config"
	"github.com/salutemarathon/backend/internal/db"
	"github.com/salutemarathon/backend/internal/handlers"
	"github.com/salutemarathon/backend/internal/middleware"
	"github.com/salutemarathon/backend/internal/notify"
	"github.com/salutemarathon/backend/internal/payment"
	"github.com/salutemarathon/backend/internal/reconcile"
	"github.com/salutemarathon/backend/internal/store"
)

func main() {
	// A missing .env is fine; production supplies real environment
	// variables instead.
	_ = godotenv.Load()
	cfg := config.FromEnv()

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(cfg.LogLevel),
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	st := store.New(database)

	gateway := payment.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)

	smtpPort, err := strconv.Atoi(cfg.SMTPPort)
	if err != nil {
		smtpPort = 587
	}
	mailer := notify.NewMailer(cfg.SMTPHost, smtpPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	dispatcher := notify.NewDispatcher(mailer, st, log)

	rec := reconcile.New(st, dispatcher, cfg.RazorpayKeySecret, log)

	srv := &handlers.Server{
		Store:             st,
		Reconciler:        rec,
		Gateway:           gateway,
		Limiters:          middleware.NewLimiters(),
		WebhookSecret:     cfg.WebhookSecret,
		JWTSecret:         cfg.JWTSecret,
		AdminEmail:        cfg.AdminEmail,
		AdminPasswordHash: cfg.AdminPasswordHash,
		Log:               log,
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Drain queued confirmation emails before the process exits.
	dispatcher.Close()
	return nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
