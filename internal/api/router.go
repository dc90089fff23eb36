package api

import (
	"github.com/ayo6706/withdrawal-engine/internal/api/handler"
	"github.com/ayo6706/withdrawal-engine/internal/api/middleware"
	"github.com/ayo6706/withdrawal-engine/internal/api/spec"
	"github.com/ayo6706/withdrawal-engine/internal/config"
	"github.com/ayo6706/withdrawal-engine/internal/idempotency"
	"github.com/ayo6706/withdrawal-engine/internal/repository"
	"github.com/ayo6706/withdrawal-engine/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Router struct {
	cfg           *config.Config
	logger        *zap.Logger
	db            *pgxpool.Pool
	repo          *repository.Repository
	idemStore     *idempotency.Store
	redis         redis.Cmdable
	withdrawalSvc *service.WithdrawalService
	reviewSvc     *service.ReviewService
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	repo *repository.Repository,
	idemStore *idempotency.Store,
	redisClient redis.Cmdable,
	withdrawalSvc *service.WithdrawalService,
	reviewSvc *service.ReviewService,
) *Router {
	return &Router{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		repo:          repo,
		idemStore:     idemStore,
		redis:         redisClient,
		withdrawalSvc: withdrawalSvc,
		reviewSvc:     reviewSvc,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	authHandler := handler.NewAuthHandler(api.repo)
	userHandler := handler.NewUserHandler(api.repo)
	withdrawalHandler := handler.NewWithdrawalHandler(api.withdrawalSvc)
	adminHandler := handler.NewAdminHandler(api.reviewSvc)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	idem := middleware.IdempotencyMiddleware(api.idemStore, api.logger)

	// Operational endpoints
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/users", userHandler.CreateUser)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/users/{id}/balance", userHandler.GetBalance)

		r.With(idem).Post("/v1/withdrawals", withdrawalHandler.Request)
		r.With(idem).Post("/v1/withdrawals/confirm", withdrawalHandler.Confirm)
		r.Post("/v1/withdrawals/fees", withdrawalHandler.QuoteFees)
		r.Get("/v1/withdrawals", withdrawalHandler.List)
		r.Get("/v1/withdrawals/limits", withdrawalHandler.Limits)
		r.Get("/v1/withdrawals/{id}", withdrawalHandler.Get)
		r.With(idem).Delete("/v1/withdrawals/{id}", withdrawalHandler.Cancel)

		// Admin review workflow
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Get("/v1/admin/withdrawals", adminHandler.ReviewQueue)
			r.With(idem).Post("/v1/admin/withdrawals/{id}/approve", adminHandler.Approve)
			r.With(idem).Post("/v1/admin/withdrawals/{id}/reject", adminHandler.Reject)
			r.With(idem).Post("/v1/admin/withdrawals/{id}/complete", adminHandler.Complete)
		})
	})

	return r
}
