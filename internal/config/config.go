// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database connection, authentication,
// file storage, the generative model client, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zalagh/plancher-backend/internal/sysutil"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "plancher-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and parameterizes the database driver.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite path
	DSN    string // Postgres DSN (DATABASE_URL or assembled from PG* vars)
}

// AuthConfig holds token signing and bootstrap credentials.
type AuthConfig struct {
	JWTSecret            string
	TokenTTL             time.Duration
	DefaultAdminPassword string
	SeedAdminEmails      []string
}

// AIConfig configures the Gemini client.
type AIConfig struct {
	APIKey  string        // GEMINI_API_KEY (empty disables AI routes with a 500)
	Model   string        // GEMINI_MODEL
	BaseURL string        // GEMINI_BASE_URL, optional override
	Timeout time.Duration // AI_TIMEOUT

	KnowledgePath string // KNOWLEDGE_PATH, optional Markdown FAQ fed to the public assistant
}

// StorageConfig describes where uploaded and generated files live.
type StorageConfig struct {
	Root     string // parent directory of uploads/, pdfs/, pdfsigne/, planjpg/, asset/
	LogoFile string // logo used in the quote header, relative to Root/asset
}

// ArchiveConfig configures the optional S3-compatible mirror of PDFs.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an object-store mirror is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != "" && a.Bucket != ""
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s (AI calls are slow)
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap (signed PDFs arrive as base64 JSON)
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB      DBConfig
	Auth    AuthConfig
	AI      AIConfig
	Storage StorageConfig
	Archive ArchiveConfig

	// Rate limiting
	RateRPS       float64       // tokens per second (>= 0)
	RateBurst     int           // bucket size (>= 1)
	RateRedisAddr string        // when set, a Redis fixed-window limiter is used
	RateWindow    time.Duration // Redis window length

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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 25<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "")),
			Path:   getenv("DB_PATH", "plancher.db"),
			DSN:    postgresDSN(),
		},
		Auth: AuthConfig{
			JWTSecret:            getenv("JWT_SECRET", "dev-secret"),
			TokenTTL:             getdur("JWT_TTL", 8*time.Hour),
			DefaultAdminPassword: getenv("DEFAULT_ADMIN_PASSWORD", "admin123"),
			SeedAdminEmails:      splitCSV(getenv("SEED_ADMIN_EMAILS", "khalid@gmail.com,lahlou@gmail.com")),
		},
		AI: AIConfig{
			APIKey:  strings.TrimSpace(getenv("GEMINI_API_KEY", "")),
			Model:   getenv("GEMINI_MODEL", "gemini-2.0-flash"),
			BaseURL: getenv("GEMINI_BASE_URL", ""),
			Timeout: getdur("AI_TIMEOUT", 60*time.Second),

			KnowledgePath: getenv("KNOWLEDGE_PATH", ""),
		},
		Storage: StorageConfig{
			Root:     getenv("STORAGE_ROOT", "."),
			LogoFile: getenv("LOGO_FILE", "téléchargement.jpg"),
		},
		Archive: ArchiveConfig{
			Endpoint:  getenv("ARCHIVE_ENDPOINT", ""),
			AccessKey: getenv("ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getenv("ARCHIVE_SECRET_KEY", ""),
			Bucket:    getenv("ARCHIVE_BUCKET", ""),
			UseSSL:    getbool("ARCHIVE_USE_SSL", false),
		},

		// Rate limiting
		RateRPS:       getfloat("RATE_RPS", 5.0),
		RateBurst:     getint("RATE_BURST", 20),
		RateRedisAddr: getenv("RATE_REDIS_ADDR", ""),
		RateWindow:    getdur("RATE_WINDOW", time.Minute),

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
			ServiceName: getenv("OTEL_SERVICE_NAME", "plancher-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "" {
		// A configured Postgres connection wins; SQLite otherwise.
		if cfg.DB.DSN != "" {
			cfg.DB.Driver = "postgres"
		} else {
			cfg.DB.Driver = "sqlite"
		}
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
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if cfg.DB.DSN == "" {
			return cfg, errors.New("DATABASE_URL or PGHOST/PGDATABASE must be set for postgres")
		}
	default:
		return cfg, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DB.Driver)
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET must not be empty")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return cfg, errors.New("JWT_TTL must be > 0")
	}
	if cfg.AI.Timeout <= 0 {
		return cfg, errors.New("AI_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Storage.Root) == "" {
		return cfg, errors.New("STORAGE_ROOT must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.RateRedisAddr != "" && cfg.RateWindow <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
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

// postgresDSN prefers DATABASE_URL and otherwise assembles a URL from the
// libpq-style PG* variables. It returns "" when neither is configured.
func postgresDSN() string {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	host := strings.TrimSpace(os.Getenv("PGHOST"))
	name := strings.TrimSpace(os.Getenv("PGDATABASE"))
	if host == "" || name == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + sysutil.FirstNonEmpty(os.Getenv("PGPORT"), "5432"),
		Path:   "/" + name,
	}
	if user := os.Getenv("PGUSER"); user != "" {
		u.User = url.UserPassword(user, os.Getenv("PGPASSWORD"))
	}
	q := url.Values{}
	if sysutil.IsTruthy(os.Getenv("PGSSL")) {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
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
