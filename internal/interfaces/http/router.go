package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/jhoicas/Kardex-api/internal/application/ledger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Engine            *ledger.Engine
	Query             *ledger.QueryService
	LowStockThreshold decimal.Decimal
	JWTSecret         string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token del sistema central)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	ledgerHandler := NewLedgerHandler(deps.Engine)
	stockHandler := NewStockHandler(deps.Query, deps.LowStockThreshold)

	// Escritura del kardex (protegido)
	ledgerGroup := protected.Group("/ledger")
	ledgerGroup.Post("/movements", ledgerHandler.ApplyMovement)
	ledgerGroup.Get("/movements", stockHandler.Movements)
	ledgerGroup.Post("/rebuild", ledgerHandler.RebuildBalance)

	// Proyecciones de stock (protegido)
	stock := protected.Group("/stock")
	stock.Get("/warehouses/:id", stockHandler.ByWarehouse)
	stock.Get("/buckets/:id", stockHandler.ByBucket)
	stock.Get("/cells", stockHandler.Cell)
	stock.Get("/low", stockHandler.LowStock)
}
