// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, compression, authentication, idempotency, and rate
// limiting.
//
// Route groups:
//   - public:    logins, the public assistant, plan upload, guide
//   - admin:     back-office (role "admin")
//   - employee:  employee portal (role "employee")
//   - signed-in: endpoints shared by both roles
//
// Generated and uploaded files are served read-only from /uploads, /pdfs,
// /pdfsigne, /planjpg and /asset.
package httpapi

import (
	"context"
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

	"github.com/zalagh/plancher-backend/internal/ai"
	"github.com/zalagh/plancher-backend/internal/auth"
	"github.com/zalagh/plancher-backend/internal/config"
	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/http/handlers"
	"github.com/zalagh/plancher-backend/internal/http/middleware"
	"github.com/zalagh/plancher-backend/internal/knowledge"
	"github.com/zalagh/plancher-backend/internal/services"
	"github.com/zalagh/plancher-backend/internal/storage"
)

// Deps are the long-lived collaborators shared by every request.
type Deps struct {
	DB     *gorm.DB
	Tokens *auth.Tokens
	Files  *storage.Layout
	// Archive mirrors PDFs to object storage. Nil disables mirroring.
	Archive storage.Archiver
	// AI is the generative model; ai.Unconfigured when no key is set.
	AI ai.Generator
	// Knowledge grounds the public assistant. Nil disables it.
	Knowledge knowledge.Index
	// Limiter throttles callers. Nil builds an in-memory limiter from cfg.
	Limiter middleware.Limiter
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Global middleware order:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RequestLogger + RedactingLogger: scoped logger and scrubbed access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS, security headers, gzip
//
// Per group: RequireRole → Idempotency → RateLimit, so a replay carries its
// actor and skips the limiter.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
		SkipPaths:   []string{"/health", "/metrics"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(cfg.MaxBodyBytes))
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.CORS))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
		// Quotes are previewed in an iframe by the portals.
		FrameOptions: "SAMEORIGIN",
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedExtensions([]string{".pdf", ".png", ".jpg", ".jpeg"}),
		gzip.WithExcludedPaths([]string{"/metrics"}),
	))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(d.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	mountFiles(r, d.Files)

	h := handlers.New(buildServices(d))

	limiter := d.Limiter
	if limiter == nil && cfg.RateRPS > 0 {
		limiter = middleware.NewMemoryLimiter(cfg.RateRPS, cfg.RateBurst)
	}
	idem := middleware.Idempotency(middleware.IdempotencyOptions{MaxLen: 200}, &idempotencyStore{db: d.DB, ttl: cfg.IdempotencyTTL})
	throttle := middleware.RateLimit(limiter, middleware.KeyByUserOrIP())

	api := groupWithPrefix(r, cfg.APIBasePath)

	public := api.Group("", idem, throttle)
	{
		public.POST("/auth/login", h.AdminLogin)
		public.POST("/employee/login", h.EmployeeLogin)
		public.POST("/login", h.Login)

		public.POST("/ai/vision", h.Vision)
		public.POST("/ai/chat", h.Chat)
		public.POST("/ai/request-quote", h.RequestQuote)
		public.POST("/plan/upload", h.UploadPlan)

		public.GET("/guide/steps", h.GuideSteps)
		public.POST("/guide/transition", h.GuideTransition)
	}

	admin := api.Group("", middleware.RequireRole(d.Tokens, domain.RoleAdmin), idem, throttle)
	{
		admin.GET("/admin/me", h.AdminMe)

		admin.POST("/employees", h.CreateEmployee)
		admin.GET("/employees", h.ListEmployees)

		admin.GET("/admin/demandes", h.ListAdminDemandes)
		admin.POST("/admin/demandes/:id/upload-pdf", h.UploadSignedPDF)
		admin.GET("/admin/export", h.Export)

		admin.POST("/admin/notify", h.Broadcast)
		admin.GET("/admin/notifications", h.ListAdminNotifications)
		admin.GET("/admin/notifications/:id/replies", h.AdminReplies)
		admin.POST("/admin/notifications/:id/replies", h.AdminReply)

		admin.GET("/admin/messages/:contactId", h.Conversation)
		admin.POST("/admin/messages", h.SendMessage)

		admin.POST("/admin/ai/chat", h.AdminChat)
	}

	employee := api.Group("", middleware.RequireRole(d.Tokens, domain.RoleEmployee), idem, throttle)
	{
		employee.GET("/employee/me", h.EmployeeMe)

		employee.POST("/demandes", h.CreateDemande)
		employee.GET("/demandes", h.ListDemandes)
		employee.POST("/demandes/:id/upload-pdf", h.UploadSignedPDF)

		employee.GET("/employee/notifications", h.ListEmployeeNotifications)
		employee.POST("/employee/notifications/:id/read", h.MarkRead)
		employee.POST("/employee/notifications/:id/take", h.MarkTaken)
		employee.GET("/employee/notifications/:id/replies", h.EmployeeReplies)
		employee.POST("/employee/notifications/:id/replies", h.EmployeeReply)

		employee.GET("/messages/:contactId", h.Conversation)
		employee.POST("/messages", h.SendMessage)
	}

	signedIn := api.Group("", middleware.RequireRole(d.Tokens), idem, throttle)
	{
		signedIn.GET("/admin/list", h.ListAdmins)
		signedIn.GET("/contacts", h.Contacts)
		signedIn.POST("/demandes/:id/pdf", h.GeneratePDF)
	}
}

// buildServices assembles the application services over d.
func buildServices(d Deps) handlers.Services {
	demandes := &services.DemandeService{DB: d.DB, Files: d.Files, Archive: d.Archive}
	notifications := &services.NotificationService{DB: d.DB}
	return handlers.Services{
		Auth:          &services.AuthService{DB: d.DB, Tokens: d.Tokens},
		Employees:     &services.EmployeeService{DB: d.DB},
		Demandes:      demandes,
		Notifications: notifications,
		Messages:      &services.MessageService{DB: d.DB},
		Assistant: &services.AssistantService{
			DB:            d.DB,
			AI:            d.AI,
			Files:         d.Files,
			Knowledge:     d.Knowledge,
			Demandes:      demandes,
			Notifications: notifications,
		},
	}
}

// mountFiles serves the storage directories without directory listings.
func mountFiles(r *gin.Engine, files *storage.Layout) {
	if files == nil {
		return
	}
	for prefix, dir := range map[string]string{
		"/uploads":  files.UploadsDir(),
		"/pdfs":     files.PDFsDir(),
		"/pdfsigne": files.SignedDir(),
		"/planjpg":  files.PlansDir(),
		"/asset":    files.AssetsDir(),
	} {
		r.StaticFS(prefix, gin.Dir(dir, false))
	}
}

// health reports liveness and database reachability.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// corsMiddleware allows every origin when none is configured, otherwise only
// the allowlist. Credentials are never allowed: auth travels in the
// Authorization header.
func corsMiddleware(cc config.CORSConfig) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed},
		MaxAge:        12 * time.Hour,
	}
	if len(cc.AllowedOrigins) > 0 {
		conf.AllowOrigins = cc.AllowedOrigins
		return cors.New(conf)
	}
	conf.AllowAllOrigins = true
	allowAll := cors.New(conf)
	return func(c *gin.Context) {
		// Set even without an Origin header so plain fetches and probes see it.
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		allowAll(c)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
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
