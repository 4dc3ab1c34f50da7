package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jhoicas/stock-ledger/internal/application/billing"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Coordinator   *inventory.Coordinator
	Migration     *inventory.MigrationEngine
	CreateInvoice *billing.CreateInvoiceUseCase
	JWTSecret     string
	Log           *logger.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	// Métricas Prometheus (público, para el scraper)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Núcleo de stock (protegido)
	invGroup := protected.Group("/inventory")
	inventoryHandler := NewInventoryHandler(deps.Coordinator, deps.Migration, deps.Log)
	invGroup.Post("/sales", inventoryHandler.RecordSale)
	invGroup.Post("/purchases", inventoryHandler.RecordPurchase)
	invGroup.Post("/returns", inventoryHandler.RecordReturn)
	invGroup.Post("/adjustments", inventoryHandler.AdjustStock)
	invGroup.Post("/entries/:id/reverse", inventoryHandler.ReverseEntry)
	invGroup.Get("/stock/:product_id", inventoryHandler.GetCurrentStock)
	invGroup.Get("/stock/:product_id/reconcile", inventoryHandler.Reconcile)
	invGroup.Post("/stock/:product_id/rebuild", inventoryHandler.RebuildBalance)
	invGroup.Get("/movements/:product_id", inventoryHandler.ListMovements)
	invGroup.Get("/alerts", inventoryHandler.GetLowStockAlerts)
	invGroup.Post("/migrations/legacy-stock", inventoryHandler.MigrateLegacyStock)

	// Invoices (protegido)
	invoices := protected.Group("/invoices")
	invoiceHandler := NewInvoiceHandler(deps.CreateInvoice, deps.Log)
	invoices.Post("/", invoiceHandler.Create)
	invoices.Get("/:id", invoiceHandler.GetByID)
}
