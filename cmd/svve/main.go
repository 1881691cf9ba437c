package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/keonho-kim/svve"
	backendmem "github.com/keonho-kim/svve/internal/backend/memory"
	backendpg "github.com/keonho-kim/svve/internal/backend/postgres"
	backendredis "github.com/keonho-kim/svve/internal/backend/redis"
	"github.com/keonho-kim/svve/internal/config"
	dbRedis "github.com/keonho-kim/svve/internal/db/redis"
	"github.com/keonho-kim/svve/internal/filter"
	logpkg "github.com/keonho-kim/svve/internal/logger"
	"github.com/keonho-kim/svve/internal/metrics"
	"github.com/keonho-kim/svve/internal/queue"
	chiTransport "github.com/keonho-kim/svve/internal/transport/chi"
	openaiEmb "github.com/keonho-kim/svve/internal/transport/openai"
	searchuc "github.com/keonho-kim/svve/internal/usecase/search"
	"github.com/keonho-kim/svve/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting svve API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("backend_driver", cfg.Backend.Driver),
		zap.Int("dimension", cfg.Backend.Dimension),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	ctx := context.Background()

	// Redis store is shared by the redis backend and the job queue.
	var store *dbRedis.Store
	needsRedis := cfg.Backend.Driver == "redis" || cfg.Queue.Enabled
	if needsRedis {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer store.Close()

		readiness := time.Duration(cfg.Redis.ReadinessTimeoutSec) * time.Second
		if err := store.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to redis")
	}

	backend, contents, pinger, err := buildBackend(ctx, cfg, store, logger)
	if err != nil {
		logger.Fatal("Failed to create retrieval backend", zap.Error(err))
	}

	embedder := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	engine := svve.New()

	svcOpts := []searchuc.Option{}
	if contents != nil {
		svcOpts = append(svcOpts, searchuc.WithContentFetcher(contents))
	}
	if cfg.Filter.URL != "" {
		relevance, err := filter.New(filter.Config{
			URL:         cfg.Filter.URL,
			AuthToken:   cfg.Filter.AuthToken,
			Model:       cfg.Filter.Model,
			Timeout:     time.Duration(cfg.Filter.TimeoutMS) * time.Millisecond,
			Concurrency: cfg.Filter.Concurrency,
		})
		if err != nil {
			logger.Fatal("Failed to create relevance filter", zap.Error(err))
		}
		svcOpts = append(svcOpts, searchuc.WithRelevanceFilter(relevance))
		logger.Info("Relevance filter enabled", zap.String("url", cfg.Filter.URL))
	}

	searchSvc := searchuc.New(engine, backend, embedderAdapter{embedder}, logger, svcOpts...)

	serverOpts := []chiTransport.Option{}
	if pinger != nil {
		serverOpts = append(serverOpts, chiTransport.WithPinger(pinger))
	}

	// Job queue + worker
	var workerCancel context.CancelFunc
	workerDone := make(chan struct{})
	if cfg.Queue.Enabled {
		jobQueue := queue.New(store, queue.Config{
			Stream:        cfg.Queue.Stream,
			Group:         cfg.Queue.ConsumerGroup,
			Consumer:      cfg.Queue.Consumer,
			Block:         time.Duration(cfg.Queue.BlockMS) * time.Millisecond,
			RejectAtDepth: int64(cfg.Queue.RejectAtDepth),
			ResultTTL:     time.Duration(cfg.Queue.ResultTTLSec) * time.Second,
		}, logger)
		serverOpts = append(serverOpts, chiTransport.WithJobQueue(jobQueue))

		worker := queue.NewWorker(jobQueue, searchSvc, logger)
		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(ctx)
		go func() {
			defer close(workerDone)
			if err := worker.Run(workerCtx); err != nil {
				logger.Error("Queue worker exited", zap.Error(err))
			}
		}()
	} else {
		close(workerDone)
	}

	server := chiTransport.NewServer(searchSvc, logger, serverOpts...)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	if workerCancel != nil {
		workerCancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	<-workerDone

	logger.Info("Server stopped gracefully")
}

// buildBackend creates the retrieval backend for the configured driver and
// reports optional capabilities (content fetch, health probe).
func buildBackend(
	ctx context.Context, cfg config.Config, store *dbRedis.Store, logger *zap.Logger,
) (svve.Backend, searchuc.ContentFetcher, chiTransport.Pinger, error) {
	switch cfg.Backend.Driver {
	case "memory":
		mem := backendmem.NewStore(cfg.Backend.Dimension)
		logger.Warn("Using in-memory backend, documents do not survive restarts")
		return mem, mem, nil, nil

	case "redis":
		b := backendredis.New(store, cfg.Backend.Dimension, cfg.Redis.KeyPrefix)
		if err := b.EnsureIndex(ctx); err != nil {
			return nil, nil, nil, err
		}
		return b, b, store, nil

	case "postgres":
		repo, err := backendpg.New(ctx, backendpg.Config{
			DSN:              cfg.Postgres.DSN,
			Table:            cfg.Postgres.Table,
			Dimension:        cfg.Backend.Dimension,
			PoolMinConns:     int32(cfg.Postgres.PoolMin),
			PoolMaxConns:     int32(cfg.Postgres.PoolMax),
			ConnectTimeout:   time.Duration(cfg.Postgres.ConnectTimeoutMS) * time.Millisecond,
			StatementTimeout: time.Duration(cfg.Postgres.StatementTimeoutMS) * time.Millisecond,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, nil, nil, err
		}
		return repo, repo, repo, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown backend driver %q", cfg.Backend.Driver)
	}
}

// embedderAdapter exposes the OpenAI embedder through the search service
// contract.
type embedderAdapter struct {
	embedder *openaiEmb.Embedder
}

func (a embedderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return result.Embedding, nil
}
