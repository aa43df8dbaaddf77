package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tilerush/scoreboard/common/cache"
	"github.com/tilerush/scoreboard/common/config"
	"github.com/tilerush/scoreboard/common/database"
	commonevents "github.com/tilerush/scoreboard/common/events"
	"github.com/tilerush/scoreboard/common/logger"
	"github.com/tilerush/scoreboard/common/natsjetstream"
	"github.com/tilerush/scoreboard/common/utils"
	scoringerrors "github.com/tilerush/scoreboard/services/scoring-service/internal/errors"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/events"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/handler"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/metrics"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/rankindex"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/ratelimit"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository/dynamorepo"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository/sqlrepo"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/scheduler"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/service"
)

const (
	serviceName = "scoring-service"

	limiterSweepInterval   = time.Minute
	limiterIdleTimeout     = 10 * time.Minute
	inventoryGaugeInterval = 5 * time.Minute
)

type App struct {
	cfg     *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	clock   utils.Clock

	repos      *repository.Repositories
	rankings   *service.Rankings
	natsClient *natsjetstream.Client
	publisher  service.EventPublisher
	limiter    *ratelimit.KeyedRateLimiter
	services   handler.Services

	grpcServer      *grpc.Server
	healthServer    *health.Server
	metricsServer   *http.Server
	eventSubscriber *events.EventSubscriber
	scheduler       *scheduler.Scheduler

	cleanup []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		cfg:     cfg,
		clock:   utils.SystemClock{},
		metrics: metrics.New(),
		cleanup: make([]func() error, 0),
	}

	app.initLogger()

	steps := []struct {
		name string
		init func(context.Context) error
	}{
		{"store", app.initStore},
		{"rank index", app.initRankIndex},
		{"nats", app.initNATS},
		{"services", app.initServices},
		{"grpc", app.initGRPC},
		{"metrics", app.initMetricsServer},
		{"scheduler", app.initScheduler},
	}
	for _, step := range steps {
		if err := step.init(ctx); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("failed to init %s: %w", step.name, err)
		}
	}

	return app, nil
}

func (a *App) initLogger() {
	a.logger = logger.New(logger.Config{
		Level:       a.cfg.Log.Level,
		Format:      a.cfg.Log.Format,
		ServiceName: serviceName,
		File:        a.cfg.Log.File,
		MaxSizeMB:   a.cfg.Log.MaxSizeMB,
		MaxBackups:  a.cfg.Log.MaxBackups,
		MaxAgeDays:  a.cfg.Log.MaxAgeDays,
	})
	a.cleanup = append(a.cleanup, func() error {
		_ = a.logger.Sync()
		return nil
	})
}

func (a *App) initStore(ctx context.Context) error {
	driver := a.cfg.Store.Driver

	switch driver {
	case database.DriverPostgres, database.DriverSQLite:
		db, err := database.OpenSQL(ctx, driver, a.cfg.SQL, a.logger)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.cleanup = append(a.cleanup, sqlDB.Close)
		}

		if a.cfg.SQL.AutoMigrate {
			if err := sqlrepo.Migrate(db); err != nil {
				return err
			}
			a.logger.Info("SQL schema migrated", "driver", driver)
		}
		a.repos = sqlrepo.New(db)

	case "dynamodb":
		client, err := database.NewDynamoDBClient(ctx, a.cfg)
		if err != nil {
			return err
		}
		if a.cfg.DynamoDB.CreateTable {
			if err := client.EnsureTable(ctx); err != nil {
				return err
			}
		}
		a.repos = dynamorepo.New(client)

	default:
		return scoringerrors.UnsupportedStore(driver)
	}

	a.logger.Info("Store ready", "driver", driver)
	return nil
}

func (a *App) initRankIndex(_ context.Context) error {
	backend := a.cfg.RankIndex.Backend

	switch backend {
	case "memory":
		a.rankings = service.NewRankings(rankindex.NewSkipList(), rankindex.NewSkipList())

	case "redis":
		redisClient, err := cache.NewRedisClient(a.cfg.Redis)
		if err != nil {
			return err
		}
		a.cleanup = append(a.cleanup, redisClient.Close)

		prefix := a.cfg.RankIndex.KeyPrefix
		a.rankings = service.NewRankings(
			rankindex.NewRedisIndex(redisClient.GetClient(), prefix, "daily"),
			rankindex.NewRedisIndex(redisClient.GetClient(), prefix, "total"),
		)

	default:
		return scoringerrors.UnsupportedIndexBackend(backend)
	}

	a.logger.Info("Rank indexes ready", "backend", backend)
	return nil
}

func (a *App) initNATS(ctx context.Context) error {
	if !a.cfg.NATS.Enabled {
		a.publisher = service.NopPublisher{}
		a.logger.Info("NATS disabled, events are not published")
		return nil
	}

	natsClient, appErr := natsjetstream.NewClient(&natsjetstream.Config{
		URL:           a.cfg.NATS.URL,
		MaxReconnect:  a.cfg.NATS.MaxReconnect,
		ReconnectWait: time.Duration(a.cfg.NATS.ReconnectWaitSeconds) * time.Second,
		Timeout:       time.Duration(a.cfg.NATS.TimeoutSeconds) * time.Second,
	}, a.logger)
	if appErr != nil {
		return appErr
	}
	a.natsClient = natsClient
	a.cleanup = append(a.cleanup, natsClient.Close)

	streams := map[string][]string{
		commonevents.GameEventsStream:       {commonevents.GameEventsWildcard},
		commonevents.ScoreboardEventsStream: {commonevents.ScoreboardEventsWildcard, commonevents.RewardEventsWildcard},
	}
	for name, subjects := range streams {
		if appErr := natsClient.EnsureStream(ctx, name, subjects); appErr != nil {
			a.logger.Error("Failed to ensure stream", "stream", name, "error", appErr)
			return appErr
		}
		a.logger.Info("Stream ready", "stream", name)
	}

	a.publisher = events.NewEventPublisher(natsjetstream.NewPublisher(natsClient))
	return nil
}

func (a *App) initServices(_ context.Context) error {
	a.limiter = ratelimit.New(a.cfg.Rewards.ScoreUpdateRate, a.cfg.Rewards.ScoreUpdateBurst)

	totals := service.NewTotalsService(a.repos.Users, a.repos.Totals, a.rankings, a.clock, a.publisher, a.cfg.RankIndex.BackfillPageSize, a.logger)
	rewards := service.NewRewardService(a.repos.Tiers, a.repos.Grants, a.clock, a.publisher, a.metrics, a.logger)
	promocodes := service.NewPromocodeService(a.repos.Users, a.repos.Tiers, a.repos.Grants, a.repos.Inventory, a.clock, a.metrics, a.logger)

	a.services = handler.Services{
		Users:      service.NewUserService(a.repos.Users, a.clock, a.logger),
		Games:      service.NewGameService(a.repos.Users, a.repos.Games, totals, rewards, a.limiter, a.clock, a.metrics, a.logger),
		Totals:     totals,
		Ratings:    service.NewRatingService(a.repos.Users, a.repos.Totals, a.repos.Friends, a.rankings, a.clock, a.logger),
		Promocodes: promocodes,
		Friends:    service.NewFriendService(a.repos.Users, a.repos.Friends, a.clock, a.logger),
		Stats:      service.NewStatsService(a.repos.Users, a.repos.Games, promocodes, a.clock),
	}

	if a.natsClient != nil {
		a.eventSubscriber = events.NewEventSubscriber(a.natsClient, a.services.Games, a.logger)
	}
	return nil
}

func (a *App) initGRPC(_ context.Context) error {
	scoreboardHandler := handler.NewScoreboardHandler(a.services, a.logger)

	a.grpcServer = grpc.NewServer(handler.ServerOptions(a.metrics, a.logger)...)
	handler.RegisterScoreboardServiceServer(a.grpcServer, scoreboardHandler)

	a.healthServer = health.NewServer()
	healthpb.RegisterHealthServer(a.grpcServer, a.healthServer)
	return nil
}

func (a *App) initMetricsServer(_ context.Context) error {
	if !a.cfg.Metrics.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())

	a.metricsServer = &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

func (a *App) initScheduler(_ context.Context) error {
	a.scheduler = scheduler.NewScheduler(a.clock, a.logger,
		scheduler.LimiterSweep(a.limiter, limiterSweepInterval, limiterIdleTimeout),
		scheduler.InventoryGauge(a.services.Promocodes, inventoryGaugeInterval),
	)
	return nil
}

// Run serves until ctx is cancelled, then drains in-flight RPCs.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.RankIndex.BackfillOnStart {
		if _, err := a.services.Totals.Reindex(ctx); err != nil {
			return err
		}
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if a.eventSubscriber != nil {
		if err := a.eventSubscriber.Start(ctx); err != nil {
			_ = lis.Close()
			return err
		}
		defer a.eventSubscriber.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		a.logger.Info("gRPC server listening", "port", a.cfg.Server.GRPCPort)
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	if a.metricsServer != nil {
		g.Go(func() error {
			a.logger.Info("Metrics server listening", "address", a.metricsServer.Addr)
			if err := a.metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.shutdown()
		return nil
	})

	a.logger.Info("Application started successfully")
	return g.Wait()
}

func (a *App) shutdown() {
	a.logger.Info("Stopping application...")
	a.healthServer.Shutdown()

	timeout := a.cfg.Server.ShutdownTimeout
	stopped := make(chan struct{})
	go func() {
		a.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		a.logger.Warn("Graceful stop timed out, closing connections", "timeout", timeout)
		a.grpcServer.Stop()
	}

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs error
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.cleanup[i]())
	}
	a.cleanup = nil

	if errs != nil && a.logger != nil {
		a.logger.Error("Cleanup error", "error", errs)
	}
	return errs
}
