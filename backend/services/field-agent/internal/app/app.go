package app

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libredis "fieldservice/backend/libs/redis"
	"fieldservice/backend/services/field-agent/internal/clients"
	"fieldservice/backend/services/field-agent/internal/config"
	httpserver "fieldservice/backend/services/field-agent/internal/http"
	"fieldservice/backend/services/field-agent/internal/http/handlers"
	"fieldservice/backend/services/field-agent/internal/models"
	redisstore "fieldservice/backend/services/field-agent/internal/redis"
	"fieldservice/backend/services/field-agent/internal/session"
	"fieldservice/backend/services/field-agent/internal/stations"
	"fieldservice/backend/services/field-agent/internal/workspace"
	"fieldservice/backend/services/field-agent/internal/ws"
)

// App wires field-agent dependencies.
type App struct {
	cfg         *config.Config
	server      *httpserver.Server
	hub         *ws.Hub
	workspace   *workspace.Workspace
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	gateway := clients.NewGatewayClient(
		cfg.Gateway.URL,
		cfg.Gateway.Token,
		clients.NewDefaultHTTPClient(cfg.GatewayTimeout()),
		logger,
	)
	hub := ws.NewHub(cfg.Events.WriteTimeout, logger)

	opts := session.Options{
		Listener:        hub,
		SyncStationLogs: cfg.Session.SyncStationLogs,
		Logger:          logger,
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		client, err := libredis.NewRedisClient(libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		redisClient = client
		opts.Pending = redisstore.NewPendingStore(client, cfg.Device.ID, cfg.PendingTTL())
	} else {
		logger.Info("redis not configured, unsubmitted visits are kept in memory only")
	}

	controller := session.NewController(gateway, opts)
	registry := stations.NewRegistry(logger)
	space := workspace.New(gateway, registry, controller, logger)

	routes := httpserver.Routes{
		Health:            handlers.NewHealthHandler(),
		Customers:         handlers.NewCustomersHandler(space, logger),
		State:             handlers.NewStateHandler(space),
		SelectMap:         handlers.NewSelectMapHandler(space, logger),
		BeginEdit:         handlers.NewBeginEditHandler(space),
		EndEdit:           handlers.NewEndEditHandler(space),
		AddStation:        handlers.NewAddStationHandler(space),
		RemoveStation:     handlers.NewRemoveStationHandler(space),
		RepositionStation: handlers.NewRepositionStationHandler(space),
		CommitStations:    handlers.NewCommitStationsHandler(space, logger),
		StartSession:      handlers.NewStartSessionHandler(space, cfg.Device.TechnicianID, logger),
		LogStation:        handlers.NewLogStationHandler(space),
		FinishSession:     handlers.NewFinishSessionHandler(space, logger),
		SubmitSession:     handlers.NewSubmitSessionHandler(space, logger),
		CancelSession:     handlers.NewCancelSessionHandler(space),
		Events:            hub.HandleWS,
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		cfg:         cfg,
		server:      server,
		hub:         hub,
		workspace:   space,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run restores any unsubmitted visit, then serves the device API and the
// display ticker until ctx is done.
func (a *App) Run(ctx context.Context) error {
	restored, err := a.workspace.Restore(ctx)
	if err != nil {
		a.logger.Warn("failed to restore unsubmitted visit", zap.Error(err))
	} else if restored {
		a.logger.Info("unsubmitted visit restored, awaiting submit or cancel")
	}

	tickCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.RunTicker(tickCtx, a.cfg.Session.TickInterval, a.workspace.Controller())
	}()

	err = a.server.Run(ctx)
	stop()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources.
func (a *App) Close() {
	a.hub.Close()
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}

// Customers lists customers through the backend gateway without starting
// the device API.
func Customers(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]models.Customer, error) {
	gateway := clients.NewGatewayClient(
		cfg.Gateway.URL,
		cfg.Gateway.Token,
		clients.NewDefaultHTTPClient(cfg.GatewayTimeout()),
		logger,
	)
	return gateway.GetCustomers(ctx)
}
