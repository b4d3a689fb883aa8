// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/amirphl/onboarding/app/dto"
	"github.com/amirphl/onboarding/app/handlers"
	"github.com/amirphl/onboarding/app/middleware"
	"github.com/amirphl/onboarding/config"
	"github.com/amirphl/onboarding/docs"
	"github.com/amirphl/onboarding/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/swag"
	"go.uber.org/zap"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Handlers groups everything the router mounts
type Handlers struct {
	Registration handlers.RegistrationHandlerInterface
	Verification *handlers.VerificationHandler
	Auth         *middleware.AuthMiddleware
}

// FiberRouter implements routing using Fiber v3
type FiberRouter struct {
	app      *fiber.App
	cfg      *config.Config
	handlers Handlers
	checks   map[string]HealthCheck
	logger   *zap.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(cfg *config.Config, h Handlers, checks map[string]HealthCheck, log *zap.Logger) *FiberRouter {
	if log == nil {
		log = zap.NewNop()
	}

	r := &FiberRouter{
		cfg:      cfg,
		handlers: h,
		checks:   checks,
		logger:   log,
	}
	r.app = fiber.New(fiber.Config{
		AppName:      "Onboarding API",
		ErrorHandler: r.errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})
	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	r.app.Get("/health", r.healthCheck)
	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/docs/swagger.json", r.serveSwaggerJSON)

	api.Use(r.rateLimiter(r.cfg.Security.GlobalRateLimit))

	// Public registration and verification endpoints
	auth := api.Group("/auth")
	auth.Use(r.rateLimiter(r.cfg.Security.AuthRateLimit))
	auth.Post("/register", r.handlers.Registration.Register)
	auth.Post("/verify", r.handlers.Verification.Verify)
	auth.Post("/resend", r.handlers.Verification.Resend)

	// Agents are registered by an authenticated member of a business
	agents := api.Group("/agents", r.handlers.Auth.Authenticate(), r.handlers.Auth.CallerBusiness())
	agents.Post("/register", r.handlers.Registration.RegisterAgent)

	r.app.Use(r.notFoundHandler)

	r.logger.Info("routes configured")
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(middleware.RequestID())

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("panic recovered",
				zap.Any("error", e),
				zap.String("request_id", middleware.GetRequestIDFromContext(c)),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
			)
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	if len(r.cfg.Security.AllowedOrigins) > 0 {
		r.app.Use(cors.New(cors.Config{
			AllowOrigins:     r.cfg.Security.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: r.cfg.Security.AllowCredentials,
			MaxAge:           utils.CORSMaxAge,
		}))
	}

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics())
	}

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${locals:request_id}","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}"}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == r.cfg.Metrics.Path
		},
	}))
}

func (r *FiberRouter) rateLimiter(max int) fiber.Handler {
	if max <= 0 {
		return func(c fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return handlers.ErrorResponse(c, fiber.StatusTooManyRequests, "Too many requests. Please try again later.", "RATE_LIMIT_EXCEEDED", nil)
		},
	})
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.logger.Info("starting server", zap.String("address", address))
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// healthCheck pings every registered dependency
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	status := fiber.Map{}
	healthy := true
	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			healthy = false
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}

	data := fiber.Map{
		"status":    "ok",
		"timestamp": utils.UTCNow().Unix(),
		"checks":    status,
	}
	if !healthy {
		data["status"] = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.APIResponse{
			Success: false,
			Message: "Service is unhealthy",
			Data:    data,
		})
	}

	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data:    data,
	})
}

// serveSwaggerJSON serves the registered OpenAPI document
func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		return handlers.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load Swagger documentation", "SWAGGER_LOAD_ERROR", nil)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(doc)
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return handlers.ErrorResponse(c, fiber.StatusNotFound, "The requested resource was not found", "NOT_FOUND", fiber.Map{
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": middleware.GetRequestIDFromContext(c),
	})
}

func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	r.logger.Error("request failed",
		zap.Int("status", code),
		zap.String("request_id", middleware.GetRequestIDFromContext(c)),
		zap.Error(err),
	)

	return handlers.ErrorResponse(c, code, "An internal server error occurred", "INTERNAL_ERROR", fiber.Map{
		"status":     strconv.Itoa(code),
		"request_id": middleware.GetRequestIDFromContext(c),
	})
}
