package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/creditledger/internal/db"
	"github.com/nkiryanov/creditledger/internal/handlers"
	"github.com/nkiryanov/creditledger/internal/logger"
	"github.com/nkiryanov/creditledger/internal/metrics"
	"github.com/nkiryanov/creditledger/internal/ratetable"
	"github.com/nkiryanov/creditledger/internal/redislock"
	"github.com/nkiryanov/creditledger/internal/repository/postgres"
	"github.com/nkiryanov/creditledger/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/creditledger/internal/service/expiration"
	"github.com/nkiryanov/creditledger/internal/service/ledger"
	"github.com/nkiryanov/creditledger/internal/service/weekregistry"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger    logger.Logger
	scheduler *expiration.Scheduler
	pool      *pgxpool.Pool
	redis     *redis.Client
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rates, err := ratetable.Load(c.RateTableFile)
	if err != nil {
		return nil, fmt.Errorf("error while loading rate table: %w", err)
	}

	tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager: %w", err)
	}

	// Connect to the database and run migrations
	pool, version, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	l.Info("Database ready", "schema_version", version)

	storage := postgres.NewStorage(pool)
	m := metrics.New()

	opts := []ledger.Option{
		ledger.WithLogger(l),
		ledger.WithRecorder(m),
		ledger.WithCollaboratorTimeout(c.CollaboratorTimeout),
	}
	if c.WeekRegistryAddr != "" {
		opts = append(opts, ledger.WithWeekRegistry(weekregistry.NewClient(c.WeekRegistryAddr, l)))
	}
	ledgerService := ledger.NewService(storage, rates, opts...)

	schedulerCfg := expiration.Config{
		Interval:     c.SweepInterval,
		CountWorkers: c.SweepWorkers,
		BatchSize:    c.SweepBatch,
		Recorder:     m,
	}

	var redisClient *redis.Client
	if c.RedisURL != "" {
		redisClient, err = redislock.Connect(ctx, c.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("error while connecting to redis: %w", err)
		}
		schedulerCfg.Locker = redislock.New(redisClient)
	}

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    handlers.NewRouter(ledgerService, tokens, m.Handler(), l),
		logger:     l,
		scheduler:  expiration.New(schedulerCfg, l, ledgerService),
		pool:       pool,
		redis:      redisClient,
	}, nil
}

// Run starts the sweep and the http server, stops both gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	// Catch up on deposits that became due while the service was down
	expired, err := s.scheduler.SweepOnce(ctx)
	if err != nil {
		s.logger.Warn("Startup expiration sweep failed", "error", err)
	} else {
		s.logger.Info("Startup expiration sweep done", "expired", expired)
	}

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	schedulerStopped := s.scheduler.Run(srvCtx)
	idleConnsClosed := make(chan struct{})

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err = httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-schedulerStopped

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *ServerApp) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("Failed to close redis client", "error", err)
		}
	}
	s.pool.Close()
}
