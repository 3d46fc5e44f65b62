package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/api/handlers"
	"github.com/rescue-agent/backend/internal/cache/redis"
	"github.com/rescue-agent/backend/internal/engine"
	"github.com/rescue-agent/backend/internal/ingestion"
	"github.com/rescue-agent/backend/internal/kb"
	"github.com/rescue-agent/backend/internal/kb/milvus"
	"github.com/rescue-agent/backend/internal/llm"
	"github.com/rescue-agent/backend/internal/metrics"
	"github.com/rescue-agent/backend/internal/middleware/ratelimit"
	"github.com/rescue-agent/backend/internal/middleware/security"
	"github.com/rescue-agent/backend/internal/middleware/validation"
	"github.com/rescue-agent/backend/internal/search/geo"
	"github.com/rescue-agent/backend/internal/search/web"
	"github.com/rescue-agent/backend/internal/storage/sqlite"
	"github.com/rescue-agent/backend/internal/triage"
	"github.com/rescue-agent/backend/pkg/config"
	appLogger "github.com/rescue-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Animal Rescue Agent API Server")

	metrics.Init()

	log := appLogger.GetLogger()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	store, err := milvus.NewStore(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
		log,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus store", zap.Error(err))
	}
	defer store.Close()

	if err := store.EnsureCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	// Redis is optional: without it embeddings and responses just go uncached.
	var embCache llm.EmbeddingCache
	var responseCache *redis.Client
	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
	} else {
		defer redisClient.Close()
		embCache = redisClient
		responseCache = redisClient
	}

	llmClient := llm.NewClient(cfg.LLM, embCache, log)

	classifier := triage.NewClassifier(llmClient, log)
	mapJudge := triage.NewMapNeedJudge(llmClient)
	rewriter := llm.NewRewriter(llmClient)
	generator := llm.NewGenerator(llmClient, log)

	retriever := kb.NewRetriever(store, llmClient, log)
	reranker := kb.NewReranker(llmClient, log)

	webNormalizer := web.NewNormalizer(llmClient, log)
	webClient := web.NewClient(cfg.Search.APIKey, webNormalizer, log)
	geoClient := geo.NewClient(cfg.Map.APIKey, cfg.Map.BaseURL, log)

	engineCfg := cfg.Engine
	engineCfg.MapMaxResults = cfg.Map.MaxResults

	gate := engine.NewGate(mapJudge, engineCfg, log)
	collector := engine.NewCollector(retriever, reranker, webClient, geoClient, engineCfg, log)
	sufficiency := engine.NewSufficiency(engineCfg, log)

	eng := engine.NewEngine(
		classifier,
		rewriter,
		gate,
		collector,
		sufficiency,
		generator,
		sqliteClient,
		engineCfg,
		log,
	)

	processor := ingestion.NewProcessor(sqliteClient, store, llmClient)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{Logger: log})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{Logger: log}))

	rescueHandler := handlers.NewRescueHandler(eng, sqliteClient, responseCache)
	sessionHandler := handlers.NewSessionHandler(sqliteClient)
	documentHandler := handlers.NewDocumentHandler(processor, responseCache)
	wsHandler := handlers.NewWebSocketHandler(eng)

	api := app.Group("/api/v1")

	api.Post("/rescue", rescueHandler.HandleRescue)
	api.Get("/rescue/:id/trace", rescueHandler.GetTrace)

	api.Post("/sessions", sessionHandler.CreateSession)
	api.Get("/sessions", sessionHandler.ListSessions)
	api.Get("/sessions/:id/messages", sessionHandler.GetSessionHistory)
	api.Post("/feedback", sessionHandler.SubmitFeedback)

	api.Post("/documents", documentHandler.UploadDocument)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/rescue", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
