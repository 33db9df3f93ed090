package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// clearDBEnv isolates tests from a developer's Postgres environment.
func clearDBEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DB_DRIVER", "DATABASE_URL", "PGHOST", "PGPORT", "PGDATABASE", "PGUSER", "PGPASSWORD", "PGSSL"} {
		t.Setenv(k, "")
	}
}

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	clearDBEnv(t)
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	clearDBEnv(t)

	// Server
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("MAX_BODY_BYTES", "1024")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/") // -> "/api"

	// DB / auth / AI
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("DEFAULT_ADMIN_PASSWORD", "pw")
	t.Setenv("SEED_ADMIN_EMAILS", " a@x.ma , ,b@x.ma ")
	t.Setenv("GEMINI_API_KEY", "  key  ")
	t.Setenv("GEMINI_MODEL", "gemini-test")
	t.Setenv("AI_TIMEOUT", "5s")
	t.Setenv("STORAGE_ROOT", "/srv/files")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 20
	t.Setenv("RATE_REDIS_ADDR", "localhost:6379")
	t.Setenv("RATE_WINDOW", "30s")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// Archive
	t.Setenv("ARCHIVE_ENDPOINT", "minio:9000")
	t.Setenv("ARCHIVE_BUCKET", "pdfs")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.MaxBodyBytes != 1024 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "db.sqlite" || cfg.DB.DSN != "" {
		t.Fatalf("db unexpected: %+v", cfg.DB)
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Auth.TokenTTL != time.Hour || cfg.Auth.DefaultAdminPassword != "pw" {
		t.Fatalf("auth unexpected: %+v", cfg.Auth)
	}
	if !reflect.DeepEqual(cfg.Auth.SeedAdminEmails, []string{"a@x.ma", "b@x.ma"}) {
		t.Fatalf("seed emails unexpected: %#v", cfg.Auth.SeedAdminEmails)
	}
	if cfg.AI.APIKey != "key" || cfg.AI.Model != "gemini-test" || cfg.AI.Timeout != 5*time.Second {
		t.Fatalf("ai unexpected: %+v", cfg.AI)
	}
	if cfg.Storage.Root != "/srv/files" {
		t.Fatalf("storage unexpected: %+v", cfg.Storage)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 20 || cfg.RateRedisAddr != "localhost:6379" || cfg.RateWindow != 30*time.Second {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}
	if !cfg.Archive.Enabled() {
		t.Fatalf("archive should be enabled: %+v", cfg.Archive)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearDBEnv(t)
	for _, k := range []string{"JWT_SECRET", "JWT_TTL", "GEMINI_MODEL", "SEED_ADMIN_EMAILS", "DEFAULT_ADMIN_PASSWORD", "API_BASE_PATH", "ARCHIVE_ENDPOINT", "ARCHIVE_BUCKET"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.JWTSecret != "dev-secret" || cfg.Auth.TokenTTL != 8*time.Hour || cfg.Auth.DefaultAdminPassword != "admin123" {
		t.Fatalf("auth defaults unexpected: %+v", cfg.Auth)
	}
	if !reflect.DeepEqual(cfg.Auth.SeedAdminEmails, []string{"khalid@gmail.com", "lahlou@gmail.com"}) {
		t.Fatalf("seed defaults unexpected: %#v", cfg.Auth.SeedAdminEmails)
	}
	if cfg.AI.Model != "gemini-2.0-flash" || cfg.APIBasePath != "/api" {
		t.Fatalf("defaults unexpected: %+v", cfg)
	}
	if cfg.Archive.Enabled() {
		t.Fatalf("archive should be disabled by default")
	}
}

func TestLoad_PostgresFromPGVars(t *testing.T) {
	clearDBEnv(t)
	t.Setenv("PGHOST", "db")
	t.Setenv("PGDATABASE", "zalagh")
	t.Setenv("PGUSER", "app")
	t.Setenv("PGPASSWORD", "p@ss")
	t.Setenv("PGSSL", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DB.Driver != "postgres" {
		t.Fatalf("driver = %q, want postgres", cfg.DB.Driver)
	}
	for _, want := range []string{"postgres://app:p%40ss@db:5432/zalagh", "sslmode=require"} {
		if !strings.Contains(cfg.DB.DSN, want) {
			t.Fatalf("dsn %q missing %q", cfg.DB.DSN, want)
		}
	}
}

func TestLoad_DatabaseURLWins(t *testing.T) {
	clearDBEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@h/db")
	t.Setenv("PGHOST", "ignored")
	t.Setenv("PGDATABASE", "ignored")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DB.DSN != "postgres://u:p@h/db" || cfg.DB.Driver != "postgres" {
		t.Fatalf("db unexpected: %+v", cfg.DB)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"max body bytes <= 0", map[string]string{"MAX_BODY_BYTES": "-1"}, "MAX_BODY_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"postgres without dsn", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"blank JWT secret", map[string]string{"JWT_SECRET": "  "}, "JWT_SECRET"},
		{"zero token ttl", map[string]string{"JWT_TTL": "0s"}, "JWT_TTL"},
		{"zero AI timeout", map[string]string{"AI_TIMEOUT": "0s"}, "AI_TIMEOUT"},
		{"blank storage root", map[string]string{"STORAGE_ROOT": " "}, "STORAGE_ROOT"},
		{"negative RPS", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"redis window <= 0", map[string]string{"RATE_REDIS_ADDR": "r:6379", "RATE_WINDOW": "0s"}, "RATE_WINDOW"},
		{"negative HSTS", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"zero idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"sampler out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearDBEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

// --- helpers ---

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"  ":       "/",
		"api":      "/api",
		"/api/":    "/api",
		"/api/v1/": "/api/v1",
		"/":        "/",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	if got := splitCSV(""); got != nil {
		t.Fatalf("empty input should be nil, got %#v", got)
	}
	if got := splitCSV(" a, ,b ,"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected split: %#v", got)
	}
}

func TestGetbool_UnknownFallsBack(t *testing.T) {
	t.Setenv("X_FLAG", "maybe")
	if !getbool("X_FLAG", true) || getbool("X_FLAG", false) {
		t.Fatalf("unknown values should return default")
	}
}
