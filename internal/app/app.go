package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/adapters/kafka"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/clients/coingecko"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/config"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/events"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/grpc/health"
	httphandler "github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/handler/http"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/identity"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/marketdata"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/repository"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/service"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/session"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/websocket"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/storage/postgres"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/storage/redis"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

type App struct {
	cfg             *config.Config
	log             *slog.Logger
	grpcServer      *grpc.Server
	httpServer      *http.Server
	health          *health.Server
	storage         *postgres.Storage
	redisClient     *goredis.Client
	redisSubscriber *redis.Subscriber
	producer        *kafka.Producer
	identity        *identity.Service
	sessions        *session.Manager
	wsManager       *websocket.Manager

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func New(log *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.New"

	ctx, cancel := context.WithCancel(context.Background())

	storage, err := postgres.New(ctx, cfg.Database, log)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: failed to init storage: %w", op, err)
	}

	redisClient, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		cancel()
		storage.Stop()
		return nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
	}
	log.Info("connected to redis", "addr", cfg.Redis.Addr)

	market := marketdata.NewCachedGateway(
		coingecko.NewClient(cfg.MarketData.BaseURL, cfg.MarketData.APIKey, cfg.MarketData.Timeout, log),
		redis.NewCache(redisClient),
		cfg.MarketData.CacheTTL,
		log,
	)

	usersRepo := repository.NewUsersRepository(storage.DB)
	identityService := identity.NewService(usersRepo, cfg.Security.JWTSecret, cfg.Security.AccessTokenTTL, log)

	portfolioRepo := repository.NewPortfolioRepository(storage.DB)
	portfolioService := service.NewPortfolioService(portfolioRepo, market, log)

	publishers := []events.Publisher{redis.NewPublisher(redisClient)}
	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka, log)
		publishers = append(publishers, producer)
		log.Info("kafka audit stream enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	sessions := session.NewManager(portfolioService, events.NewFanout(publishers...), log)

	redisSubscriber := redis.NewSubscriber(redisClient, log)
	wsManager := websocket.NewManager(log, redisSubscriber)

	healthServer := health.NewServer(map[string]health.Probe{
		"postgres": storage.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}, log)

	grpcServer := grpc.NewServer()
	healthServer.Register(grpcServer)
	if cfg.GRPC.EnableReflection {
		reflection.Register(grpcServer)
	}

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginEngine := gin.New()
	httpHandler := httphandler.NewHandler(identityService, sessions, portfolioService, wsManager, log)
	httpHandler.RegisterRoutes(ginEngine)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.FormatUint(uint64(cfg.HTTP.Port), 10)),
		Handler:           ginEngine,
		ReadHeaderTimeout: cfg.HTTP.Timeout,
	}

	return &App{
		log:             log,
		cfg:             cfg,
		grpcServer:      grpcServer,
		httpServer:      httpServer,
		health:          healthServer,
		storage:         storage,
		redisClient:     redisClient,
		redisSubscriber: redisSubscriber,
		producer:        producer,
		identity:        identityService,
		sessions:        sessions,
		wsManager:       wsManager,
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

func (a *App) Run() error {
	errChan := make(chan error, 2)
	a.log.Info("starting application components...")

	go func() {
		a.log.Info("session manager started")
		a.sessions.Run(a.ctx, a.identity.Events())
		a.log.Info("session manager stopped")
	}()

	go func() {
		a.log.Info("websocket manager started")
		a.wsManager.Run(a.ctx)
		a.log.Info("websocket manager stopped")
	}()

	go a.health.Watch(a.ctx, a.cfg.GRPC.HealthInterval)

	go func() {
		if err := a.runGRPC(); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		if err := a.runHTTP(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		a.log.Warn("shutting down application due to an error", "error", err)
		a.Stop()
		return err
	case <-a.ctx.Done():
		return nil
	}
}

// Stop is safe to call more than once.
func (a *App) Stop() {
	a.stopOnce.Do(a.stop)
}

func (a *App) stop() {
	a.log.Info("stopping application components gracefully...")

	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.HTTP.Timeout)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("failed to gracefully shutdown HTTP server", "error", err)
	} else {
		a.log.Info("HTTP server stopped")
	}

	a.health.Shutdown()
	a.grpcServer.GracefulStop()
	a.log.Info("gRPC server stopped")

	a.redisSubscriber.Close()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("failed to flush kafka producer", "error", err)
		}
	}

	if err := a.redisClient.Close(); err != nil {
		a.log.Warn("failed to close redis client", "error", err)
	}

	if err := a.storage.Stop(); err != nil {
		a.log.Error("failed to stop storage", "error", err)
	} else {
		a.log.Info("database connection closed")
	}
}

func (a *App) runGRPC() error {
	const op = "app.runGRPC"

	grpcAddress := net.JoinHostPort("", strconv.FormatUint(uint64(a.cfg.GRPC.Port), 10))
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("gRPC server is running", "addr", listener.Addr().String())

	if err := a.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (a *App) runHTTP() error {
	const op = "app.runHTTP"

	a.log.Info("HTTP server is running", "addr", a.httpServer.Addr)

	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
