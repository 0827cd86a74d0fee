package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-ims/meridian/internal/app"
	"github.com/meridian-ims/meridian/internal/auth"
	"github.com/meridian-ims/meridian/internal/billing"
	"github.com/meridian-ims/meridian/internal/masterdata/categories"
	"github.com/meridian-ims/meridian/internal/masterdata/products"
	"github.com/meridian-ims/meridian/internal/masterdata/warehouses"
	"github.com/meridian-ims/meridian/internal/movements"
	"github.com/meridian-ims/meridian/internal/observability"
	"github.com/meridian-ims/meridian/internal/rbac"
	"github.com/meridian-ims/meridian/internal/roles"
	"github.com/meridian-ims/meridian/internal/sales/customers"
	"github.com/meridian-ims/meridian/internal/sales/orders"
	"github.com/meridian-ims/meridian/internal/shared"
	"github.com/meridian-ims/meridian/internal/stock"
	"github.com/meridian-ims/meridian/internal/users"
	"github.com/meridian-ims/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	tokenStore := auth.NewTokenStore(redisClient, cfg.TokenTTL)
	authService := auth.NewService(auth.NewRepository(pool), tokenStore)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.Middleware{Service: authService, Logger: logger}

	rbacService := rbac.NewService(rbac.NewRepository(pool))
	guard := rbac.Middleware{Service: rbacService, Logger: logger}

	usersService := users.NewService(users.NewRepository(pool), auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacService, guard)

	rolesService := roles.NewService(roles.NewRepository(pool))
	rolesHandler := roles.NewHandler(logger, rolesService, rbacService, guard)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, guard)

	categoriesService := categories.NewService(categories.NewRepository(pool))
	categoriesHandler := categories.NewHandler(logger, categoriesService, guard)

	productsService := products.NewService(products.NewRepository(pool))
	productsHandler := products.NewHandler(logger, productsService, guard)

	warehousesService := warehouses.NewService(warehouses.NewRepository(pool))
	warehousesHandler := warehouses.NewHandler(logger, warehousesService, guard)

	customersService := customers.NewService(customers.NewRepository(pool))
	customersHandler := customers.NewHandler(logger, customersService, guard)

	stockService := stock.NewService(stock.NewRepository(pool), auditLogger, idempotencyStore, metrics, logger)
	stockHandler := stock.NewHandler(logger, stockService, guard)

	movementsService := movements.NewService(movements.NewRepository(pool), productsService, warehousesService, stockService, auditLogger, logger)
	movementsHandler := movements.NewHandler(logger, movementsService, guard)

	ordersService := orders.NewService(orders.NewRepository(pool), customersService, productsService, stockService, auditLogger, logger, cfg.ReservationTTL)
	ordersHandler := orders.NewHandler(logger, ordersService, guard)

	billingService := billing.NewService(billing.NewRepository(pool), ordersService, auditLogger, logger)
	billingHandler := billing.NewHandler(logger, billingService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthMiddleware:     authMiddleware,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		CategoriesHandler:  categoriesHandler,
		ProductsHandler:    productsHandler,
		WarehousesHandler:  warehousesHandler,
		CustomersHandler:   customersHandler,
		StockHandler:       stockHandler,
		MovementsHandler:   movementsHandler,
		OrdersHandler:      ordersHandler,
		BillingHandler:     billingHandler,
		JobsHandler:        jobsHandler,
		Pool:               pool,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
