// Package app assembles the newsletter services from configuration. The
// HTTP server and the one-shot CLI commands share this wiring so they send
// through the same transport, ledger, and cache.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/cache"
	"github.com/tbourn/go-newsletter-backend/internal/config"
	"github.com/tbourn/go-newsletter-backend/internal/mailer"
	"github.com/tbourn/go-newsletter-backend/internal/queue"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
	"github.com/tbourn/go-newsletter-backend/internal/scheduler"
	"github.com/tbourn/go-newsletter-backend/internal/services"
)

// App holds the configured services.
type App struct {
	Config config.Config
	DB     *gorm.DB
	Cache  cache.Cache

	Issues        *services.IssueService
	Sends         *services.SendService
	Subscriptions *services.SubscriptionService
	Bounces       *services.BounceService
	Catalog       *services.CatalogService

	closers []func() error
}

// New opens the database, migrates it, connects the optional Redis cache,
// and builds the services.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := repo.Open(repo.Options{
		Driver:  cfg.DB.Driver,
		Path:    cfg.DB.Path,
		DSN:     cfg.DB.URL,
		Tracing: cfg.OTEL.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var c cache.Cache = cache.Nop{}
	var closers []func() error
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, "newsletter:")
		if err != nil {
			closeDB(db)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c = rc
		closers = append(closers, rc.Close)
	} else {
		log.Info().Msg("REDIS_URL not set; subscriber counts are not cached")
	}

	a := NewWithDB(db, c, cfg)
	a.closers = append(a.closers, closers...)
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	return a, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// NewWithDB builds the services over an already migrated database.
func NewWithDB(db *gorm.DB, c cache.Cache, cfg config.Config) *App {
	subs := services.NewSubscriptionService(db, c)
	if cfg.CacheTTL > 0 {
		subs.CountTTL = cfg.CacheTTL
	}

	dispatcher := &services.Dispatcher{
		DB:        db,
		Transport: Transport(cfg.Mail),
		Renderer: mailer.Renderer{
			BaseURL: cfg.Mail.PublicBaseURL,
			Mailto:  cfg.Mail.UnsubscribeMailto,
		},
		BatchTimeout: cfg.Delivery.BatchTimeout,
	}
	if cfg.Delivery.TransportRPS > 0 {
		dispatcher.Limiter = rate.NewLimiter(rate.Limit(cfg.Delivery.TransportRPS), 1)
	}

	sends := services.NewSendService(db, dispatcher, cfg.Mail.AdminEmail)
	if cfg.Delivery.BatchSize > 0 {
		sends.BatchSize = cfg.Delivery.BatchSize
	}

	issues := &services.IssueService{DB: db, AutoApproveDrafts: cfg.Generator.AutoApprove}
	if cfg.Generator.URL != "" {
		issues.Generator = services.NewHTTPGenerator(cfg.Generator.URL, cfg.Generator.Timeout)
	}

	return &App{
		Config:        cfg,
		DB:            db,
		Cache:         c,
		Issues:        issues,
		Sends:         sends,
		Subscriptions: subs,
		Bounces:       &services.BounceService{DB: db, Subscriptions: subs},
		Catalog:       services.NewCatalogService(db),
	}
}

// Transport returns the configured email transport.
func Transport(cfg config.MailConfig) mailer.Transport {
	if cfg.Transport == "smtp" {
		return mailer.NewSMTP(mailer.SMTPConfig{
			Host:           cfg.SMTPHost,
			Port:           cfg.SMTPPort,
			Username:       cfg.SMTPUsername,
			Password:       cfg.SMTPPassword,
			From:           cfg.From,
			Timeout:        30 * time.Second,
			StartTLSPolicy: cfg.SMTPStartTLS,
		})
	}
	return mailer.Log{}
}

// Scheduler returns the periodic broadcaster. It is a no-op when no
// subjects or interval are configured.
func (a *App) Scheduler() *scheduler.Scheduler {
	return &scheduler.Scheduler{
		Broadcaster: a.Sends,
		Subjects:    a.Config.Scheduler.Subjects,
		Interval:    a.Config.Scheduler.Interval,
	}
}

// BounceConsumer returns the AMQP bounce consumer, or nil when
// BOUNCE_AMQP_URL is unset.
func (a *App) BounceConsumer() *queue.Consumer {
	if a.Config.Bounce.AMQPURL == "" {
		return nil
	}
	return &queue.Consumer{
		URL:      a.Config.Bounce.AMQPURL,
		Queue:    a.Config.Bounce.Queue,
		Handler:  a.Bounces,
		Prefetch: a.Config.Bounce.Prefetch,
	}
}

// Close releases the cache and database connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
