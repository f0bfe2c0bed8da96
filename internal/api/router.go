package api

import (
	"errors"

	"grts/docs"
	"grts/internal/api/handlers"
	"grts/pkg/auth"
	"grts/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

// Handlers groups everything the router mounts. Files is nil unless the
// local blob store is in use.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Wex       *handlers.WexHandler
	Receipt   *handlers.ReceiptHandler
	Reconcile *handlers.ReconcileHandler
	Report    *handlers.ReportHandler
	User      *handlers.UserHandler
	Files     *handlers.FileHandler
}

// Secrets authorise the scheduled poll endpoint without a user token.
type Secrets struct {
	ServiceKey string
	CronSecret string
}

func SetupRouter(
	h Handlers,
	jwtManager *auth.JWTManager,
	secrets Secrets,
	bodyLimit int,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: bodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Cron-Secret",
	}))
	app.Use(logger.New())

	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if h.Files != nil {
		app.Get("/files/*", h.Files.Serve)
	}

	authGroup := app.Group("/user/auth")
	authGroup.Post("/register", h.Auth.Register)
	authGroup.Post("/login", h.Auth.Login)
	authGroup.Post("/refresh", h.Auth.RefreshToken)

	app.Post("/webhooks/wex", h.Wex.Webhook)
	app.Post("/internal/wex/poll",
		middleware.ServiceOrRole(jwtManager, secrets.ServiceKey, secrets.CronSecret, appLogger, "manager"),
		h.Wex.Poll,
	)

	protected := app.Group("/api/v1", middleware.AuthMiddleware(jwtManager, appLogger))

	protected.Get("/me", h.User.Me)

	receipts := protected.Group("/receipts")
	receipts.Post("", h.Receipt.Upload)
	receipts.Get("", h.Receipt.List)
	receipts.Post("/ocr", h.Receipt.OCR)

	cards := protected.Group("/cards")
	cards.Get("", h.User.Cards)
	cards.Post("", h.User.AddCard)
	cards.Delete("/:last4", h.User.RemoveCard)

	protected.Get("/reports/tasks", h.Report.Tasks)

	manager := middleware.RequireRole(appLogger, "manager")

	reconcile := protected.Group("/reconcile", manager)
	reconcile.Post("/sweep", h.Reconcile.Sweep)
	reconcile.Post("/legacy-missing", h.Reconcile.LegacyMissing)
	reconcile.Get("/pending", h.Reconcile.Pending)
	reconcile.Get("/:id/candidates", h.Reconcile.Candidates)
	reconcile.Post("/:id/resolve-missing", h.Reconcile.ResolveMissing)
	reconcile.Post("/:id/link-receipt", h.Reconcile.LinkReceipt)
	reconcile.Post("/:id/link-transaction", h.Reconcile.LinkTransaction)
	reconcile.Delete("/:id", h.Reconcile.Discard)

	protected.Get("/transactions", manager, h.Report.Transactions)

	reports := protected.Group("/reports", manager)
	reports.Get("/daily", h.Report.Daily)
	reports.Get("/anomalies", h.Report.Anomalies)
	reports.Get("/summary", h.Report.Summary)
	reports.Get("/leaderboard", h.Report.Leaderboard)
	reports.Get("/merchants", h.Report.Merchants)
	reports.Get("/export.xlsx", h.Report.ExportXLSX)
	reports.Get("/export.csv", h.Report.ExportCSV)

	protected.Post("/notify", manager, h.User.Notify)

	users := protected.Group("/users", manager)
	users.Get("", h.User.List)
	users.Put("/:id/role", h.User.UpdateRole)

	return app
}
