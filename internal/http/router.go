// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication, idempotency, and rate
// limiting.
//
// Route groups:
//   - public: /health, /metrics, /swagger (optional)
//   - {base}/webhooks/elevenlabs: HMAC-signed provider callbacks, rate
//     limited per client IP
//   - {base}/calls: bearer-authenticated dashboard API, rate limited per
//     operator, idempotent actions
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
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/callcenter-backend/internal/cache"
	"github.com/tbourn/callcenter-backend/internal/classify"
	"github.com/tbourn/callcenter-backend/internal/config"
	"github.com/tbourn/callcenter-backend/internal/http/handlers"
	"github.com/tbourn/callcenter-backend/internal/http/middleware"
	"github.com/tbourn/callcenter-backend/internal/repo"
	"github.com/tbourn/callcenter-backend/internal/services"
	"github.com/tbourn/callcenter-backend/internal/webhook"
)

// maxBodyBytes caps request bodies. Webhook payloads with full transcripts
// are the largest requests.
const maxBodyBytes = 1 << 20

// Deps are the runtime dependencies of the HTTP layer.
type Deps struct {
	DB *gorm.DB
	// Cache holds dashboard snapshots; nil disables caching.
	Cache cache.Snapshots
	// Tokens verifies operator bearer tokens. Nil leaves /calls open, which
	// is only accepted in development.
	Tokens middleware.TokenVerifier
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip (except /metrics)
//  7. Metrics
//  8. CORS and Security headers
//
// Authentication, idempotency validation and rate limiting are mounted per
// group: the limiter keys operators by the authenticated user, and the
// idempotency lookup needs that user too.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{webhook.HeaderSignature},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 6) Response compression for the polling dashboard
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", health(deps.DB))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db
	callSvc := services.NewCallService(deps.DB, classify.NewKeywordClassifier())
	h := handlers.New(handlers.Options{
		Calls:    callSvc,
		Webhooks: services.NewWebhookService(deps.DB, callSvc),
		Cache:    deps.Cache,
		Secrets: webhook.Secrets{
			General: cfg.Webhook.Secret,
			Started: cfg.Webhook.SecretStarted,
			Ended:   cfg.Webhook.SecretEnded,
		},
		SignatureTolerance: cfg.Webhook.Tolerance,
		AllowUnsigned:      cfg.IsDevelopment(),
		DB:                 deps.DB,
		IdempotencyTTL:     cfg.IdempotencyTTL,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)

	// Provider webhooks
	hooks := api.Group("/webhooks/elevenlabs",
		middleware.NewRateLimiter("webhooks", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler(),
	)
	{
		hooks.POST("/call-started", h.CallStartedWebhook)
		hooks.POST("/call-ended", h.CallEndedWebhook)
	}

	// Operator API
	var guard []gin.HandlerFunc
	if deps.Tokens != nil {
		guard = append(guard, middleware.RequireBearer(deps.Tokens))
	} else {
		log.Warn().Msg("JWT_SECRET not set: /calls is mounted without authentication")
	}
	guard = append(guard,
		// Idempotency validation (before rate limiting to allow bypass on replay)
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyLookup(deps.DB)),
		middleware.NewRateLimiter("calls", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler(),
	)
	calls := api.Group("/calls", guard...)
	{
		// Read projections
		calls.GET("/status", h.CallStatus)
		calls.GET("/dashboard", h.Dashboard)
		calls.GET("/active", h.ActiveCalls)
		calls.GET("/waiting", h.WaitingCalls)
		calls.GET("/stats", h.CallStats)
		calls.GET("/history", h.CallHistory)
		calls.GET("/storage-stats", h.StorageStats)
		calls.GET("/:id/history", h.ConversationHistory)

		// Operator actions
		calls.POST("/:id/transfer", h.TransferCall)
		calls.POST("/:id/attend", h.AttendCall)
		calls.POST("/:id/hold", h.HoldCall)
		calls.POST("/:id/waiting", h.MoveToWaiting)
	}
}

// idempotencyLookup reports whether a recorded outcome exists.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, callID, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, repo.IdempotencyKey{UserID: userID, CallID: callID, Key: key}, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

// health pings the database so orchestrators notice a lost connection.
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

// corsMiddleware allows every origin when none is configured, otherwise
// echoes allowlisted origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	expose := []string{"X-Request-ID", "Content-Length", handlers.HeaderCache, "Idempotency-Replayed"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     []string{"GET", "POST", "OPTIONS"},
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    expose,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    expose,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
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
