package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"leaseflow/agreement"
	"leaseflow/auth"
	"leaseflow/config"
	"leaseflow/db"
	"leaseflow/notify"
	"leaseflow/property"
	"leaseflow/reminder"
	"leaseflow/template"
	"leaseflow/tenant"
	"leaseflow/webhook"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("api: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	agreements := agreement.NewStore(pool)
	templates := template.NewStore(pool)
	properties := property.NewService(property.NewRepository(pool))
	tenants := tenant.NewStore(pool)
	completion := tenant.NewIntegration(agreements, tenants)
	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)

	sender := notify.LogSender{}
	holder, err := reminder.NewHolder(reminder.DefaultConfig())
	if err != nil {
		return err
	}
	limiter := reminder.NewRateLimiter(cfg.ReminderRateLimit, cfg.ReminderRateWindow)
	scheduler := reminder.NewScheduler(agreements, templates, reminder.NewLog(pool), sender, holder, limiter, cfg.ReminderWorkers)
	go scheduler.Run(ctx, cfg.ReminderInterval)

	processor := webhook.NewProcessor(
		cfg.EsignWebhookSecret,
		agreements,
		scheduler,
		completionAdapter{completion},
		envelopeDocRef{},
		properties,
		sender,
	)

	server := &Server{
		authService: authSvc,
		agreements:  agreements,
		templates:   templates,
		properties:  properties,
		reminders:   scheduler,
		reminderLog: reminder.NewLog(pool),
		reminderCfg: holder,
		completion:  completion,
		webhook:     webhook.NewHandler(processor),
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("api: listening on %s", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("api: shutdown: %v", err)
	}
	processor.Wait()
	return nil
}

// completionAdapter narrows the tenant integration for the webhook pipeline,
// which only cares about success or failure; mapping warnings go to the log.
type completionAdapter struct {
	integration *tenant.Integration
}

func (a completionAdapter) ProcessCompletion(ctx context.Context, agreementID string) error {
	result, err := a.integration.ProcessCompletion(ctx, agreementID)
	if err != nil {
		return err
	}
	for _, warn := range result.Warnings {
		log.Printf("api: tenant provisioning for %s: %s", agreementID, warn)
	}
	return nil
}

// envelopeDocRef derives a stable retrieval reference for a signed envelope.
// Document download itself happens out of process against the provider API.
type envelopeDocRef struct{}

func (envelopeDocRef) Resolve(_ context.Context, envelopeID string) (string, error) {
	return fmt.Sprintf("esign://envelopes/%s/documents/combined", envelopeID), nil
}
