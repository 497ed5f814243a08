package server

import (
	"fmt"
	"net/http"
	"time"

	"shop-admin/internal/broadcast"
	"shop-admin/internal/config"
	"shop-admin/internal/database"
	"shop-admin/internal/metrics"
	custommiddleware "shop-admin/internal/middleware"
	"shop-admin/internal/repository"
	"shop-admin/internal/service"
	"shop-admin/internal/storage"
	"shop-admin/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the long-lived collaborators the HTTP layer is built on
type Deps struct {
	Database database.Service
	Store    repository.Store
	Assets   storage.Assets
	Hub      *broadcast.Hub
	Notifier service.Notifier
	Metrics  *metrics.Metrics
	// Redis enables rate limiting when set
	Redis *redis.Client
}

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     database.Service
}

// NewServer builds the router with every surface of the service:
// health, metrics, stored assets, the websocket endpoint, the device API
// and the admin panel.
func NewServer(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	router := NewRouter(cfg, logger, deps)

	return &Server{
		Server: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:           router,
			IdleTimeout:       time.Minute,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
		config: cfg,
		logger: logger,
		db:     deps.Database,
	}
}

// NewRouter wires handlers and middleware onto a chi router
func NewRouter(cfg *config.Config, logger *zap.Logger, deps Deps) chi.Router {
	router := chi.NewRouter()

	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	if deps.Metrics != nil {
		router.Use(custommiddleware.MetricsMiddleware(deps.Metrics))
	}
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.IsDevelopment()))
	router.Use(custommiddleware.SocketID)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.Database == nil {
			custommiddleware.RespondWithJSON(w, http.StatusOK, "", map[string]string{"status": "up"})
			return
		}
		stats := deps.Database.Health()
		status := http.StatusOK
		if stats["status"] != "up" {
			status = http.StatusServiceUnavailable
			delete(stats, "error")
		}
		custommiddleware.RespondWithJSON(w, status, "", stats)
	})
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.Handler())
	}
	if deps.Assets != nil {
		prefix := cfg.Storage.URLPrefix
		router.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(deps.Assets.HTTPFileSystem())))
	}
	if deps.Hub != nil {
		router.Handle("/ws", deps.Hub)
	}

	products := service.NewProductService(deps.Store, deps.Assets, deps.Notifier, logger)
	guests := service.NewGuestUserService(deps.Store, logger)
	orders := service.NewOrderService(deps.Store, deps.Assets, deps.Notifier, logger)
	dashboard := service.NewDashboardService(deps.Store, logger)

	pages := transport.NewPages("Shop Admin", "/build", cfg.Server.AssetVersion, logger)
	guestHandler := transport.NewGuestUserHandler(guests, logger)
	productHandler := transport.NewProductHandler(products, deps.Assets, pages, logger)
	orderHandler := transport.NewOrderHandler(orders, pages, logger)
	dashboardHandler := transport.NewDashboardHandler(dashboard, pages, logger)

	limit := func(next http.Handler) http.Handler { return next }
	if deps.Redis != nil {
		limit = custommiddleware.RateLimitMiddleware(deps.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "rate_limit:api",
		}, logger)
	}

	// device API
	router.Route("/api", func(r chi.Router) {
		r.Use(limit)
		guestHandler.RegisterRoutes(r)
		orderHandler.RegisterPublicRoutes(r)
		productHandler.RegisterPublicRoutes(r)
	})

	// the same device routes without the prefix, for older clients
	router.Group(func(r chi.Router) {
		r.Use(limit)
		guestHandler.RegisterRoutes(r)
		orderHandler.RegisterPublicRoutes(r)
	})

	// admin panel
	router.Group(func(r chi.Router) {
		r.Use(custommiddleware.AdminOnly(cfg.JWT.Secret, logger))
		dashboardHandler.RegisterRoutes(r)
		productHandler.RegisterAdminRoutes(r)
		orderHandler.RegisterAdminRoutes(r)
	})

	return router
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
			return err
		}
	}
	return nil
}
