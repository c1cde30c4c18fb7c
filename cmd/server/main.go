package main

import (
	"context"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/novalearn/nova-coach/internal/ai"
	"github.com/novalearn/nova-coach/internal/coach"
	"github.com/novalearn/nova-coach/internal/config"
	"github.com/novalearn/nova-coach/internal/content"
	"github.com/novalearn/nova-coach/internal/db"
	"github.com/novalearn/nova-coach/internal/embedding"
	"github.com/novalearn/nova-coach/internal/httpapi"
	"github.com/novalearn/nova-coach/internal/retrieval"
	"github.com/novalearn/nova-coach/internal/store/rabbitmq"
	"github.com/novalearn/nova-coach/internal/store/redisstore"
)

func newRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m,
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	return reg
}

func modelName(cfg config.Config) string {
	if strings.EqualFold(cfg.AIProvider, "openrouter") {
		return cfg.OpenRouterModel
	}
	return cfg.OllamaModel
}

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rds.Ping(context.Background()); err != nil {
		logger.Warn("redis unavailable, retrieval cache disabled", zap.Error(err))
		rds = nil
	}

	provider, err := newRegistry(cfg).Get(context.Background(), cfg.AIProvider, "")
	if err != nil {
		logger.Fatal("ai provider", zap.Error(err))
	}

	embedder := embedding.NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.OllamaEmbedModel)

	var cache retrieval.Cache
	if rds != nil {
		cache = rds
	}
	engine := retrieval.NewEngine(content.NewRepo(gdb), embedder, cache, logger,
		cfg.RetrievalLimit, cfg.RetrievalMinSimilarity, cfg.RetrievalTokenBudget, cfg.RetrievalTimeout)

	var queue coach.Publisher
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.Warn("rabbit unavailable, consolidation disabled", zap.Error(err))
	} else {
		defer pub.Close()
		queue = pub
	}

	svc := coach.NewService(gdb, engine, provider, queue, logger,
		cfg.ChatContextWindowSize, cfg.GenerationTimeout, modelName(cfg))

	r := httpapi.NewRouter(svc, cfg, logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Info("server listening", zap.String("port", port))
	if err := r.Run(":" + port); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}
