package app

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fieldservice/backend/libs/db"
	libredis "fieldservice/backend/libs/redis"
	"fieldservice/backend/services/visit-service/internal/config"
	"fieldservice/backend/services/visit-service/internal/events"
	httpserver "fieldservice/backend/services/visit-service/internal/http"
	"fieldservice/backend/services/visit-service/internal/http/handlers"
	"fieldservice/backend/services/visit-service/internal/http/middleware"
	redisstore "fieldservice/backend/services/visit-service/internal/redis"
	"fieldservice/backend/services/visit-service/internal/repository"
	"fieldservice/backend/services/visit-service/internal/service"
)

// App wires visit-service dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	publisher   *events.Publisher
	logger      *zap.Logger
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a := &App{db: sqlDB, logger: logger}

	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, sqlDB); err != nil {
			a.Close()
			return nil, err
		}
	}

	customerRepo := repository.NewCustomerRepository(sqlDB)
	logRepo := repository.NewStationLogRepository(sqlDB)
	visitRepo := repository.NewVisitRepository(sqlDB, logRepo)

	deps := service.Deps{
		Customers: customerRepo,
		Logs:      logRepo,
		Visits:    visitRepo,
		Logger:    logger,
	}

	if cfg.Redis.Addr != "" {
		client, err := libredis.NewRedisClient(libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redisClient = client
		deps.Marker = redisstore.NewSubmittedStore(client, cfg.SubmittedTTL())
	}

	if cfg.RabbitMQ.URL != "" {
		publisher, err := events.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = publisher
		deps.Publisher = publisher
	} else {
		logger.Info("rabbitmq not configured, visit events disabled")
	}

	visitService := service.NewVisitService(deps)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		VisitHandlers: handlers.NewVisitHandlers(visitService, logger),
		HealthHandler: handlers.NewHealthHandler(),
	}, middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return a, nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
