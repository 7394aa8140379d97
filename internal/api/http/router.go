package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/api/http/handlers"
	"github.com/spec-kit/repairdesk/internal/auth"
	"github.com/spec-kit/repairdesk/internal/config"
	"github.com/spec-kit/repairdesk/internal/observability"
)

// uploadOverhead leaves room for form fields around the attachment bytes so the
// attachment limit, not the body limit, decides most oversized uploads.
const uploadOverhead = 1 << 20

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Users          *handlers.UsersHandler
	PaymentMethods *handlers.PaymentMethodsHandler
	AuthMiddleware *auth.AuthMiddleware
	RateLimiter    *RateLimiter
	Metrics        *observability.Metrics
}

// NewApp builds the Fiber application with global middleware installed.
func NewApp(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) *fiber.App {
	// Immutable: parsed values outlive the request when stores keep them.
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    int(cfg.Storage.MaxUploadBytes) + uploadOverhead,
		Immutable:    true,
		ErrorHandler: ErrorHandler(logger, metrics),
	})
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.App.CORSOrigins,
		AllowHeaders: strings.Join([]string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, fiber.HeaderAuthorization}, ","),
	}))
	RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	return app
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")
	limit := cfg.RateLimiter.Handle

	authGroup := api.Group("/auth")
	authGroup.Post("/register", limit, cfg.Auth.Register)
	authGroup.Post("/login", limit, cfg.Auth.Login)
	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, cfg.Auth.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)
	authGroup.Patch("/me", cfg.AuthMiddleware.Handle, limit, cfg.Auth.UpdateMe)

	tickets := api.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/unassigned", cfg.Tickets.ListUnassigned)
	tickets.Get("/counts", cfg.Tickets.CountTickets)
	tickets.Post("/", limit, cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", limit, cfg.Tickets.UpdateTicket)
	tickets.Patch("/:id", limit, cfg.Tickets.PatchTicket)
	tickets.Delete("/:id", limit, cfg.Tickets.DeleteTicket)
	tickets.Post("/:id/diagnostic", limit, cfg.Tickets.ClaimTicket)
	tickets.Get("/:id/attachments/:filename", cfg.Tickets.DownloadAttachment)

	users := api.Group("/users", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	users.Get("/", cfg.Users.ListUsers)
	users.Get("/freelancers", cfg.Users.ListFreelancers)
	users.Put("/:id/role", limit, cfg.Users.ChangeRole)

	payments := api.Group("/payment-methods", cfg.AuthMiddleware.Handle)
	payments.Get("/", cfg.PaymentMethods.List)
	payments.Post("/", limit, cfg.PaymentMethods.Create)
	payments.Delete("/:id", limit, cfg.PaymentMethods.Delete)
	payments.Put("/:id/default", limit, cfg.PaymentMethods.SetDefault)
}
