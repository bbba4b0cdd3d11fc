package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"
	appledger "github.com/jhoicas/Kardex-api/internal/application/ledger"
	"github.com/jhoicas/Kardex-api/internal/domain/repository"
	"github.com/jhoicas/Kardex-api/internal/infrastructure/memory"
	"github.com/jhoicas/Kardex-api/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/Kardex-api/internal/interfaces/http"
	"github.com/jhoicas/Kardex-api/pkg/config"
	"github.com/jhoicas/Kardex-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando kardex")

	ctx := context.Background()

	var (
		txRunner   appledger.TxRunner
		stockQuery repository.StockQueryRepository
		movLog     repository.MovementLogRepository
		rejections repository.RejectionLogRepository
	)

	if cfg.App.Env == "test" {
		// Kardex en memoria: sin PostgreSQL, mismas semánticas transaccionales
		mem := memory.NewLedger()
		txRunner = mem
		stockQuery = mem
		movLog = mem
		rejections = mem.RejectionLog()
		log.Warn().Msg("usando kardex en memoria (APP_ENV=test), los datos no persisten")
	} else {
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		txRunner = postgres.NewTxRunner(pool)
		stockQuery = postgres.NewStockCellRepository(pool)
		movLog = postgres.NewMovementLogRepository(pool)
		rejections = postgres.NewRejectionLogRepository(pool)
	}

	engine := appledger.NewEngine(txRunner, rejections, log, appledger.Config{
		RetryAttempts: cfg.Ledger.RetryAttempts,
		RetryBackoff:  time.Duration(cfg.Ledger.RetryBackoffMs) * time.Millisecond,
	})
	queryService := appledger.NewQueryService(stockQuery, movLog)

	lowStockThreshold, err := decimal.NewFromString(cfg.Ledger.LowStockThreshold)
	if err != nil {
		log.Warn().Str("value", cfg.Ledger.LowStockThreshold).Msg("umbral de stock bajo inválido, usando 10")
		lowStockThreshold = decimal.NewFromInt(10)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Kardex API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Engine:            engine,
		Query:             queryService,
		LowStockThreshold: lowStockThreshold,
		JWTSecret:         cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("kardex detenido")
}
