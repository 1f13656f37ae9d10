package api

import (
	"expense-audit/docs"
	"expense-audit/internal/api/handlers"
	"expense-audit/pkg/auth"
	"expense-audit/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

func SetupRouter(
	authHandler *handlers.AuthHandler,
	reportHandler *handlers.ReportHandler,
	receiptHandler *handlers.ReceiptHandler,
	healthHandler *handlers.HealthHandler,
	jwtManager *auth.JWTManager,
	uploadsDir string,
	maxUploadSize int64,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: int(maxUploadSize) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	// Swagger - importing the docs package registers the spec via init()
	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	// Stored receipt images
	app.Static("/uploads", uploadsDir)

	// Health (public)
	app.Get("/api/health", healthHandler.Health)

	// Auth routes (public)
	user := app.Group("/user")
	authRoutes := user.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/refresh", authHandler.RefreshToken)

	// Protected routes
	protected := app.Group("/api", middleware.AuthMiddleware(jwtManager, appLogger))

	reports := protected.Group("/reports")
	reports.Post("", reportHandler.CreateReport)
	reports.Get("", reportHandler.ListReports)
	reports.Get("/pending", reportHandler.PendingReports)
	reports.Get("/:id", reportHandler.GetReport)
	reports.Delete("/:id", reportHandler.DeleteReport)
	reports.Post("/:id/approve", reportHandler.ApproveReport)
	reports.Post("/:id/reject", reportHandler.RejectReport)
	reports.Post("/:id/flag", reportHandler.FlagReport)
	reports.Get("/:id/audit", reportHandler.ReportAuditLog)
	reports.Post("/:id/receipts", receiptHandler.UploadReceipt)

	receipts := protected.Group("/receipts")
	receipts.Post("", receiptHandler.UploadReceipt)
	receipts.Post("/reprocess", receiptHandler.ReprocessReceipts)
	receipts.Get("", receiptHandler.ListReceipts)
	receipts.Get("/:id", receiptHandler.GetReceipt)
	receipts.Delete("/:id", receiptHandler.DeleteReceipt)

	return app
}
