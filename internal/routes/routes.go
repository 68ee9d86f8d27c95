package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medtreasury/medtreasury/internal/account"
	"github.com/medtreasury/medtreasury/internal/auth"
	"github.com/medtreasury/medtreasury/internal/clock"
	"github.com/medtreasury/medtreasury/internal/config"
	"github.com/medtreasury/medtreasury/internal/credential"
	"github.com/medtreasury/medtreasury/internal/events"
	"github.com/medtreasury/medtreasury/internal/httpx"
	"github.com/medtreasury/medtreasury/internal/infra"
	"github.com/medtreasury/medtreasury/internal/ledger"
	"github.com/medtreasury/medtreasury/internal/middleware"
	"github.com/medtreasury/medtreasury/internal/treasury"
)

// eventStreamMaxLen bounds the Redis event stream.
const eventStreamMaxLen = 100_000

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Clock defaults to the system clock.
	Clock clock.Clock
	// AccessLog enables fiber's plain text access log.
	AccessLog bool
}

// Setup configures middlewares and all application routes. Postgres backs the
// ledger, credentials and requests when d.DB is set; otherwise state is in memory.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}

	admin, err := account.Parse(d.Cfg.AdminAccount)
	if err != nil {
		return fmt.Errorf("ADMIN_ACCOUNT: %w", err)
	}
	deployer, err := account.Parse(d.Cfg.DeployerAccount)
	if err != nil {
		return fmt.Errorf("DEPLOYER_ACCOUNT: %w", err)
	}
	pool, err := account.Parse(d.Cfg.TreasuryAccount)
	if err != nil {
		return fmt.Errorf("TREASURY_ACCOUNT: %w", err)
	}
	supply, err := ledger.ParseUnits(d.Cfg.InitialSupply, d.Cfg.TokenDecimals)
	if err != nil {
		return fmt.Errorf("INITIAL_SUPPLY: %w", err)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.AccessLog {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	publisher := events.Multi{events.NewLoggerPublisher(d.Logger)}
	if d.Cache != nil {
		publisher = append(publisher, events.NewRedisStream(d.Cache, events.DefaultStream, eventStreamMaxLen))
	}

	var (
		tx             infra.Transactor = infra.NoopTransactor{}
		ledgerBackend  ledger.Ledger
		credentialRepo credential.Repository
		requestRepo    treasury.Repository
	)
	if d.DB != nil {
		tx = infra.NewPgxTransactor(d.DB)
		pg := ledger.NewPostgresLedger(d.DB, tx)
		if err := pg.Bootstrap(ctx, deployer, supply); err != nil {
			return fmt.Errorf("bootstrap ledger: %w", err)
		}
		ledgerBackend = pg
		credentialRepo = credential.NewPostgresRepository(d.DB)
		requestRepo = treasury.NewPostgresRepository(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory(deployer, supply)
		credentialRepo = credential.NewMemoryRepository()
		requestRepo = treasury.NewMemoryRepository()
	}

	registry, err := credential.NewRegistry(ctx, admin, credentialRepo, d.Clock, publisher, d.Logger)
	if err != nil {
		return err
	}
	treasurySvc, err := treasury.NewService(treasury.Config{Account: pool, Admin: admin}, treasury.Deps{
		Ledger:    ledgerBackend,
		Roles:     registry,
		Repo:      requestRepo,
		Tx:        tx,
		Clock:     d.Clock,
		Publisher: publisher,
		Logger:    d.Logger,
	})
	if err != nil {
		return err
	}

	limiter, err := middleware.NewLimiter(d.Cfg.RateLimit, d.Cache)
	if err != nil {
		return fmt.Errorf("RATE_LIMIT: %w", err)
	}
	signer := auth.NewSigner(d.Cfg.JWTSecret, d.Cfg.JWTIssuer, d.Cfg.TokenTTL)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(httpx.RequestIDKey).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Protected routes
	protected := api.Group("", middleware.Auth(signer, d.Logger), middleware.RateLimit(limiter, d.Logger))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterCredentialRoutes(protected, credential.NewHandler(registry))
	RegisterLedgerRoutes(protected, ledger.NewHandler(ledgerBackend, d.Cfg.TokenDecimals))
	RegisterTreasuryRoutes(protected, treasury.NewHandler(treasurySvc))

	d.Logger.Info("routes ready",
		slog.String("admin", admin.String()),
		slog.String("treasury", pool.String()),
		slog.String("initial_supply", supply.Dec()),
		slog.Bool("postgres", d.DB != nil),
		slog.Bool("redis", d.Cache != nil),
	)
	return nil
}
