// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage, mail delivery, scheduling, rate
// limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-newsletter-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the database.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite)
	URL    string // DATABASE_URL (postgres)
}

// MailConfig configures the email transport and rendered links.
type MailConfig struct {
	Transport         string // MAIL_TRANSPORT: smtp|log
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	SMTPStartTLS      string // SMTP_STARTTLS: opportunistic|mandatory|none
	From              string // MAIL_FROM
	PublicBaseURL     string // PUBLIC_BASE_URL, origin of the one-click unsubscribe endpoint
	UnsubscribeMailto string // UNSUBSCRIBE_MAILTO, optional second List-Unsubscribe target
	AdminEmail        string // ADMIN_EMAIL, recipient of previews
}

// DeliveryConfig tunes broadcast batching and pacing.
type DeliveryConfig struct {
	BatchSize    int           // BROADCAST_BATCH_SIZE
	BatchTimeout time.Duration // BATCH_TIMEOUT, bound on one transport call
	TransportRPS float64       // TRANSPORT_RPS, batches per second; 0 disables pacing
}

// SchedulerConfig drives the periodic broadcast.
type SchedulerConfig struct {
	Subjects []uint        // BROADCAST_SUBJECTS (CSV of subject ids)
	Interval time.Duration // BROADCAST_INTERVAL; 0 disables the scheduler
}

// GeneratorConfig configures the external content generator.
type GeneratorConfig struct {
	URL         string        // GENERATOR_URL; empty disables generation
	Timeout     time.Duration // GENERATOR_TIMEOUT
	AutoApprove bool          // AUTO_APPROVE, approve generated drafts without review
}

// BounceConfig configures the AMQP bounce consumer.
type BounceConfig struct {
	AMQPURL  string // BOUNCE_AMQP_URL; empty disables the consumer
	Queue    string // BOUNCE_QUEUE
	Prefetch int    // BOUNCE_PREFETCH
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // broadcasts run inline, so this is generous
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB       DBConfig
	RedisURL string        // REDIS_URL; empty uses no cache
	CacheTTL time.Duration // lifetime of cached subscriber counts

	// Newsletter
	Mail      MailConfig
	Delivery  DeliveryConfig
	Scheduler SchedulerConfig
	Generator GeneratorConfig
	Bounce    BounceConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 5*time.Minute),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "newsletter.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		RedisURL: getenv("REDIS_URL", ""),
		CacheTTL: getdur("CACHE_TTL", 5*time.Minute),

		// Newsletter
		Mail: MailConfig{
			Transport:         strings.ToLower(getenv("MAIL_TRANSPORT", "log")),
			SMTPHost:          getenv("SMTP_HOST", "localhost"),
			SMTPPort:          getint("SMTP_PORT", 587),
			SMTPUsername:      getenv("SMTP_USERNAME", ""),
			SMTPPassword:      getenv("SMTP_PASSWORD", ""),
			SMTPStartTLS:      strings.ToLower(getenv("SMTP_STARTTLS", "opportunistic")),
			From:              getenv("MAIL_FROM", "newsletter@localhost"),
			PublicBaseURL:     strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			UnsubscribeMailto: getenv("UNSUBSCRIBE_MAILTO", ""),
			AdminEmail:        getenv("ADMIN_EMAIL", "admin@localhost"),
		},
		Delivery: DeliveryConfig{
			BatchSize:    getint("BROADCAST_BATCH_SIZE", 100),
			BatchTimeout: getdur("BATCH_TIMEOUT", 60*time.Second),
			TransportRPS: getfloat("TRANSPORT_RPS", 0),
		},
		Scheduler: SchedulerConfig{
			Interval: getdur("BROADCAST_INTERVAL", 0),
		},
		Generator: GeneratorConfig{
			URL:         getenv("GENERATOR_URL", ""),
			Timeout:     getdur("GENERATOR_TIMEOUT", 2*time.Minute),
			AutoApprove: getbool("AUTO_APPROVE", false),
		},
		Bounce: BounceConfig{
			AMQPURL:  getenv("BOUNCE_AMQP_URL", ""),
			Queue:    getenv("BOUNCE_QUEUE", "newsletter.bounces"),
			Prefetch: getint("BOUNCE_PREFETCH", 20),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-newsletter-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	subjects, err := parseIDList(getenv("BROADCAST_SUBJECTS", ""))
	if err != nil {
		return cfg, err
	}
	cfg.Scheduler.Subjects = subjects

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.CacheTTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	switch cfg.Mail.Transport {
	case "log":
	case "smtp":
		if strings.TrimSpace(cfg.Mail.SMTPHost) == "" || cfg.Mail.SMTPPort <= 0 {
			return cfg, errors.New("SMTP_HOST and SMTP_PORT are required when MAIL_TRANSPORT=smtp")
		}
	default:
		return cfg, errors.New("MAIL_TRANSPORT must be one of: smtp, log")
	}
	if !strings.Contains(cfg.Mail.From, "@") {
		return cfg, errors.New("MAIL_FROM must be an email address")
	}
	if !strings.Contains(cfg.Mail.AdminEmail, "@") {
		return cfg, errors.New("ADMIN_EMAIL must be an email address")
	}
	if cfg.Delivery.BatchSize < 1 {
		return cfg, errors.New("BROADCAST_BATCH_SIZE must be >= 1")
	}
	if cfg.Delivery.BatchTimeout < 0 {
		return cfg, errors.New("BATCH_TIMEOUT must be >= 0")
	}
	if cfg.Delivery.TransportRPS < 0 {
		return cfg, errors.New("TRANSPORT_RPS must be >= 0")
	}
	if cfg.Scheduler.Interval < 0 {
		return cfg, errors.New("BROADCAST_INTERVAL must be >= 0")
	}
	if cfg.Generator.Timeout <= 0 {
		return cfg, errors.New("GENERATOR_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseIDList parses a CSV of positive ids. Unlike the scalar helpers it
// reports bad input instead of falling back to a default.
func parseIDList(s string) ([]uint, error) {
	parts := splitCSV(s)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]uint, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil || n == 0 {
			return nil, errors.New("BROADCAST_SUBJECTS must be a comma-separated list of positive ids")
		}
		out = append(out, uint(n))
	}
	return out, nil
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
