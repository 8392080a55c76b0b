// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Two surfaces are mounted:
//   - the admin API under cfg.APIBasePath (catalog, issues, sends,
//     subscriptions)
//   - the public reader endpoints: POST /subscribe, and /unsubscribe (GET
//     confirmation page for emailed links, POST one-click target)
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/docs"
	"github.com/tbourn/go-newsletter-backend/internal/app"
	"github.com/tbourn/go-newsletter-backend/internal/http/handlers"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// maxBodyBytes caps request bodies; bulk subscription payloads are the largest.
const maxBodyBytes = 1 << 20

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip for JSON responses
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per client IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, a *app.App) {
	cfg := a.Config
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.Logger(middleware.LogOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression; the scrape endpoint negotiates its own encoding
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		idempotencyLookup(a.DB),
	))

	// 9) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP(), "/health", "/metrics")
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After", "Idempotent-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStorePrefix: cfg.APIBasePath,
		EnablePolicy:  true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/readiness
	r.GET("/health", health(a.DB))

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(a.Issues, a.Sends, a.Subscriptions, a.Bounces, a.Catalog)
	once := middleware.Idempotent(idempotencyRecorder(a.DB, cfg.IdempotencyTTL))

	// Public one-click unsubscribe (RFC 8058), outside the API base path so
	// the links embedded in sent emails survive API version changes.
	r.POST("/subscribe", h.Subscribe)
	r.GET("/unsubscribe", h.UnsubscribePage)
	r.POST("/unsubscribe", h.Unsubscribe)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Catalog
		api.POST("/subjects", h.CreateSubject)
		api.POST("/subjects/:id/topics", h.CreateTopic)
		api.PUT("/subjects/:id/sequence", h.SetSequence)

		// Issues
		api.GET("/issues", h.ListIssues)
		api.GET("/issues/metrics", h.IssueMetrics)
		api.GET("/issues/:id", h.GetIssue)
		api.POST("/issues/:id/approve", h.ApproveIssue)
		api.POST("/issues/:id/unapprove", h.UnapproveIssue)
		api.PUT("/issues/:id/content", h.UpdateIssueContent)
		api.POST("/issues/:id/regenerate", h.RegenerateIssue)
		api.POST("/topics/:id/issues", h.GenerateIssue)

		// Sends
		api.POST("/topics/:id/send-admin", once, h.SendToAdmin)
		api.POST("/subjects/:id/broadcast", once, h.Broadcast)
		api.POST("/issues/:id/resend", once, h.ResendIssue)
		api.GET("/issues/:id/failed-users", h.FailedUsers)
		api.GET("/issues/:id/deliveries", h.DeliveryCounts)
		api.GET("/send-results", h.ListSendResults)

		// Subscriptions
		api.GET("/subjects/:id/subscribers/count", h.SubscriberCount)
		api.POST("/subjects/:id/subscriptions", h.BulkSubscribe)
		api.PUT("/subjects/:id/subscriptions/:user_id", h.EnsureSubscription)
		api.DELETE("/subjects/:id/subscriptions/:user_id", h.AdminUnsubscribe)
		api.POST("/subjects/:id/subscriptions/:user_id/pause", h.PauseSubscription)
		api.POST("/subjects/:id/subscriptions/:user_id/reactivate", h.ReactivateSubscription)
		api.GET("/subscriptions/:id/audit", h.SubscriptionAudit)
		api.POST("/bounces", h.ReportBounce)
	}
}

// idempotencyLookup adapts the repository to the validator. Misses and
// expired records both read as "no stored response".
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, scope, key string, now time.Time) (*middleware.StoredResponse, error) {
		rec, err := repo.GetIdempotency(ctx, db, scope, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &middleware.StoredResponse{Status: rec.Status, Body: rec.Body}, nil
	}
}

// idempotencyRecorder stores a completed response for ttl. A concurrent
// request that already stored the same key wins; that is not an error.
func idempotencyRecorder(db *gorm.DB, ttl time.Duration) middleware.IdempotencyRecorder {
	return func(ctx context.Context, scope, key string, status int, body []byte) error {
		_, err := repo.CreateIdempotency(ctx, db, scope, key, status, body, ttl)
		if errors.Is(err, repo.ErrDuplicate) {
			return nil
		}
		return err
	}
}

// health reports 200 when the database answers a ping and 503 otherwise.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			middleware.LoggerFrom(c).Error().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
