package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"civicsync-api/agent"
	"civicsync-api/agent/tools"
	"civicsync-api/config"
	"civicsync-api/controllers"
	"civicsync-api/llm"
	"civicsync-api/metrics"
	"civicsync-api/models"
	"civicsync-api/routes"
	"civicsync-api/services"
	"civicsync-api/session"
	"civicsync-api/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	sweepInterval   = time.Hour
	lockIdleTimeout = 30 * time.Minute
	shutdownTimeout = 15 * time.Second
)

// conversationBackend opens the configured conversation store. The returned
// closer releases it.
func conversationBackend(ctx context.Context, cfg *config.Config, db *mongo.Database) (store.ConversationStore, func() error, error) {
	if cfg.ConversationStore == "bolt" {
		bs, err := store.NewBoltConversationStore(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return bs, bs.Close, nil
	}
	ms := store.NewMongoConversationStore(db)
	if err := ms.EnsureIndexes(ctx); err != nil {
		return nil, nil, err
	}
	return ms, func() error { return nil }, nil
}

// newModel returns nil when no API key is configured; the assistant then
// answers with its offline message.
func newModel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (llm.Model, error) {
	key := cfg.LLMAPIKey()
	if key == "" {
		logger.Warn("no LLM API key configured, assistant is offline", zap.String("provider", cfg.LLMProvider))
		return nil, nil
	}
	if cfg.LLMProvider == "gemini" {
		return llm.NewGemini(ctx, key, cfg.LLMModel)
	}
	return llm.NewOpenAICompatible(key, llm.GroqBaseURL, cfg.LLMModel)
}

func serve(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, db, err := config.ConnectDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	logger.Info("MongoDB connection established", zap.String("database", cfg.MongoDatabase))

	issueStore := store.NewMongoStore(client, db)
	if err := issueStore.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	convs, closeConvs, err := conversationBackend(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer func() { _ = closeConvs() }()

	redisClient, err := config.ConnectRedis(ctx, cfg.RedisAddress, cfg.RedisPassword)
	if err != nil {
		return err
	}
	if redisClient == nil {
		logger.Warn("REDIS_ADDRESS not set, rate limiting disabled")
	} else {
		defer func() { _ = redisClient.Close() }()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	model, err := newModel(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}

	issues := services.NewIssueService(issueStore, logger)
	locks := session.NewManager()
	orchestrator := agent.NewOrchestrator(model, tools.BuildRegistry(issues, logger, m), convs, logger, agent.Options{
		ModelTimeout: cfg.LLMTimeout,
		Metrics:      m,
		Locks:        locks,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	routes.Setup(r, routes.Deps{
		Issues:         controllers.NewIssueController(issues, logger),
		Chat:           controllers.NewChatController(orchestrator, issueStore, logger),
		JWTSecret:      cfg.JWTSecret,
		Redis:          redisClient,
		ChatRateLimit:  cfg.ChatRateLimit,
		IssueRateLimit: cfg.IssueRateLimit,
		Gatherer:       registry,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		store.RunSweeper(gctx, convs, sweepInterval, models.ConversationTTL, logger)
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(lockIdleTimeout)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				locks.Cleanup(lockIdleTimeout)
			}
		}
	})
	return g.Wait()
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	c.AddAllowHeaders("Authorization")
	return c
}

func sweep(parent context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client, db, err := config.ConnectDB(parent, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	convs, closeConvs, err := conversationBackend(parent, cfg, db)
	if err != nil {
		return err
	}
	defer func() { _ = closeConvs() }()

	n, err := store.Sweep(parent, convs, models.ConversationTTL, time.Now(), logger)
	if err != nil {
		return err
	}
	cmd.Printf("purged %d conversations\n", n)
	return nil
}
