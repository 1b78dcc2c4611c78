package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/metachat-core-poc/server/internal/agent/graph"
	"github.com/metachat-core-poc/server/internal/agent/graph/prompts"
	"github.com/metachat-core-poc/server/internal/agent/model"
	"github.com/metachat-core-poc/server/internal/agent/repo"
	"github.com/metachat-core-poc/server/internal/core"
	"github.com/metachat-core-poc/server/internal/docdb"
	"github.com/metachat-core-poc/server/internal/sandbox"
	"github.com/metachat-core-poc/server/internal/server"
	logx "github.com/metachat-core-poc/server/pkg/logger"
	pkgredis "github.com/metachat-core-poc/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the service, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`

	// Infrastructure
	Redis   pkgredis.Config
	DocDB   model.DocDBConfig
	Sandbox model.SandboxConfig

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Router       model.RouterModelConfig
	Worker       model.WorkerModelConfig
	Conversation model.ConversationConfig
	Schema       model.SchemaConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	rdb, err := cfg.Redis.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise Redis client")
	}
	defer rdb.Close()

	store, err := docdb.NewClient(docdb.Config{
		BaseURL:    cfg.DocDB.BaseURL,
		Database:   cfg.DocDB.Database,
		Collection: cfg.DocDB.Collection,
		APIKey:     cfg.DocDB.APIKey,
		Timeout:    time.Duration(cfg.DocDB.Timeout) * time.Second,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise metadata store client")
	}

	executor, err := sandbox.NewClient(cfg.Sandbox.BaseURL, time.Duration(cfg.Sandbox.Timeout)*time.Second)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise sandbox client")
	}

	schemaDoc, err := prompts.LoadSchemaDoc(cfg.Schema.Path)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to load schema document")
	}

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Str("ttl", cfg.Conversation.TTL).Err(err).Msg("Invalid CONVERSATION_TTL")
	}

	runner, err := graph.BuildAssistantGraph(ctx, graph.Config{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		RouterModel:      cfg.Router,
		WorkerModel:      cfg.Worker,
		Conversation:     cfg.Conversation,
		DocDBBaseURL:     cfg.DocDB.BaseURL,
		SchemaDoc:        schemaDoc,
		ConversationRepo: repo.NewRedisConversationRepository(rdb, ttl),
		MetadataStore:    store,
		ScriptExecutor:   executor,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build assistant graph")
	}

	srv := server.NewServer(runner)

	go func() {
		if err := srv.Start(cfg.ListenAddr); err != nil {
			logx.Info().Err(err).Msg("HTTP server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
