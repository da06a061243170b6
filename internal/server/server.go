// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	_ "appleverse/docs" // swagger docs
	"appleverse/internal/bootstrap"
	"appleverse/internal/config"
	"appleverse/internal/database"
	"appleverse/internal/featureflags"
	"appleverse/internal/middleware"
	"appleverse/internal/models"
	"appleverse/internal/notifications"
	"appleverse/internal/repository"
	"appleverse/internal/security"
	"appleverse/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gorm.io/gorm"
)

// Deps are the already-initialized backends a Server runs on.
// Exactly one of DB or MongoDB must be set; Redis is optional.
type Deps struct {
	DB          *gorm.DB
	MongoClient *mongo.Client
	MongoDB     *mongo.Database
	Redis       *redis.Client
	// Notifier overrides the notifier built from configuration.
	Notifier notifications.Notifier
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	mongoClient    *mongo.Client
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	flags          *featureflags.Manager

	store     repository.CredentialStore
	appleRepo repository.AppleRepository
	feed      *notifications.RedisNotifier
	hub       *notifications.ReviewerHub
	lifecycle *service.LifecycleService
	sessions  *service.SessionService
	queries   *service.QueryService
	apples    *service.AppleService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{EnsureMainAdmin: true})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, Deps{
		DB:          rt.DB,
		MongoClient: rt.MongoClient,
		MongoDB:     rt.MongoDB,
		Redis:       rt.Redis,
	})
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes the store and Redis.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	s := &Server{
		config:         cfg,
		db:             deps.DB,
		mongoClient:    deps.MongoClient,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("appleverse-api"),
		flags:          featureflags.NewManager(cfg.FeatureFlags),
	}

	switch {
	case deps.MongoDB != nil:
		s.store = repository.NewMongoCredentialStore(deps.MongoClient, deps.MongoDB)
		s.appleRepo = repository.NewMongoAppleRepository(deps.MongoDB)
	case deps.DB != nil:
		s.store = repository.NewCredentialStore(deps.DB)
		s.appleRepo = repository.NewAppleRepository(deps.DB)
	default:
		return nil, errors.New("server requires a SQL or Mongo store")
	}

	s.feed = notifications.NewRedisNotifier(deps.Redis)
	s.hub = notifications.NewReviewerHub()

	notifier := deps.Notifier
	if notifier == nil {
		notifier = buildNotifier(cfg, s.feed)
	}

	issuer := security.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)
	s.lifecycle = service.NewLifecycleService(
		s.store,
		security.NewBcryptHasher(cfg.BcryptCost),
		issuer,
		notifier,
		s.feed,
		service.LifecycleConfig{
			ReviewerEmail: cfg.EmailAdmin,
			StoreTimeout:  cfg.StoreTimeout,
			NotifyTimeout: cfg.NotifyTimeout,
		},
	)
	s.sessions = service.NewSessionService(s.store, issuer, deps.Redis, cfg.StoreTimeout)
	s.queries = service.NewQueryService(s.store, cfg.StoreTimeout)
	s.apples = service.NewAppleService(s.appleRepo, deps.Redis)

	return s, nil
}

// buildNotifier fans signup notifications out to SMTP (when configured) and the Redis feed.
func buildNotifier(cfg *config.Config, feed *notifications.RedisNotifier) notifications.Notifier {
	fanout := notifications.Fanout{feed}
	mail := notifications.MailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
		Timeout:  cfg.NotifyTimeout,
	}
	if mail.Enabled() {
		fanout = append(fanout, notifications.NewMailNotifier(mail))
	} else {
		middleware.Logger.Warn("SMTP not configured, signup notifications go to the live feed only")
	}
	return fanout
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests or health probes.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || strings.HasPrefix(c.Path(), "/health")
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
				"code":  "RATE_LIMITED",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Welcome to Appleverse API")
	})

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	app.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Appleverse Backend Metrics Dashboard",
	}))

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Public signup
	app.Post("/signup-request", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.SubmitSignupRequest)

	// Public catalog reads
	apples := app.Group("/apples")
	apples.Get("/", s.ListApples)
	apples.Get("/:id", s.GetApple)

	auth := middleware.AuthRequired(s.sessions)

	// Catalog writes
	writes := s.requireFeature(featureflags.CatalogWrites)
	apples.Post("/", auth, writes, s.CreateApple)
	apples.Put("/:id", auth, writes, s.UpdateApple)
	apples.Delete("/:id", auth, writes, s.DeleteApple)

	admin := app.Group("/admin")
	admin.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)

	protected := admin.Group("", auth)
	protected.Post("/logout", s.Logout)
	protected.Post("/change-password", s.ChangePassword)
	protected.Get("/features", s.ListFeatures)

	protected.Get("/pending-requests", s.ListPendingRequests)
	protected.Get("/active-admins", s.ListActiveAdmins)
	protected.Get("/rejected-requests", s.ListRejectedRequests)

	protected.Post("/approve-request", s.ApproveRequest)
	protected.Post("/deny-request", s.DenyRequest)
	protected.Post("/reject-request", s.RejectRequest)
	protected.Post("/revoke-access", s.RevokeAccess)
	protected.Post("/reinstate-request", s.ReinstateRequest)

	// Reviewer live feed
	protected.Get("/ws", s.requireFeature(featureflags.ReviewerFeed),
		s.ReviewerFeedUpgrade, s.ReviewerFeedHandler())
}

// LivenessCheck handles liveness probe requests
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} object{status=string,time=string}
// @Router /health/live [get]
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} object{status=string}
// @Failure 503 {object} object{status=string}
// @Router /health/ready [get]
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	storeStatus := "healthy"
	if err := s.store.Ping(ctx); err != nil {
		storeStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Redis backs revocation and the live feed but the lifecycle works without it.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if storeStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"store": storeStatus,
			"redis": redisStatus,
		},
		"time": time.Now(),
	})
}

// App builds a Fiber app with middleware and routes but does not listen.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Appleverse API",
		BodyLimit: 1 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.App()

	// Wire the reviewer hub to the Redis feed if available
	if s.redis != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.feed); err != nil {
				middleware.Logger.Error("failed to start hub wiring",
					slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
			}
		}()
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the wiring goroutine
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	// Close WebSocket connections gracefully so the HTTP server can drain
	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", slog.String("error", err.Error()))
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", err.Error()))
		}
	}
	if s.mongoClient != nil {
		if err := s.mongoClient.Disconnect(ctx); err != nil {
			middleware.Logger.Error("error disconnecting mongo", slog.String("error", err.Error()))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
