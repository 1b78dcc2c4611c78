package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/metachat-core-poc/server/internal/agent/graph"
	"github.com/metachat-core-poc/server/internal/agent/graph/prompts"
	"github.com/metachat-core-poc/server/internal/agent/model"
	"github.com/metachat-core-poc/server/internal/agent/repo"
	"github.com/metachat-core-poc/server/internal/docdb"
	"github.com/metachat-core-poc/server/internal/sandbox"
	pkgredis "github.com/metachat-core-poc/server/pkg/redis"
)

// DemoConfig defines the parameters for the interactive demo run, sourced from
// environment variables (loaded from .env for local runs).
type DemoConfig struct {
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
	fmt.Println("Testing metadata assistant graph...")
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg DemoConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	fmt.Println("Connected to Redis successfully")

	store, err := docdb.NewClient(docdb.Config{
		BaseURL:    envCfg.DocDB.BaseURL,
		Database:   envCfg.DocDB.Database,
		Collection: envCfg.DocDB.Collection,
		APIKey:     envCfg.DocDB.APIKey,
		Timeout:    time.Duration(envCfg.DocDB.Timeout) * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to initialise metadata store client: %v", err)
	}

	executor, err := sandbox.NewClient(envCfg.Sandbox.BaseURL, time.Duration(envCfg.Sandbox.Timeout)*time.Second)
	if err != nil {
		log.Fatalf("Failed to initialise sandbox client: %v", err)
	}

	schemaDoc, err := prompts.LoadSchemaDoc(envCfg.Schema.Path)
	if err != nil {
		log.Fatalf("Failed to load schema document: %v", err)
	}

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", envCfg.Conversation.TTL, err)
	}

	runner, err := graph.BuildAssistantGraph(ctx, graph.Config{
		APIKey:           envCfg.APIKey,
		BaseURL:          envCfg.BaseURL,
		RouterModel:      envCfg.Router,
		WorkerModel:      envCfg.Worker,
		Conversation:     envCfg.Conversation,
		DocDBBaseURL:     envCfg.DocDB.BaseURL,
		SchemaDoc:        schemaDoc,
		ConversationRepo: repo.NewRedisConversationRepository(rdb, ttl),
		MetadataStore:    store,
		ScriptExecutor:   executor,
	})
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "Count query answered through aggregation",
			query:       "How many SmartSPIM experiments were recorded in 2023?",
		},
		{
			description: "Record lookup for a single subject",
			query:       "Tell me about subject 662616",
		},
		{
			description: "Analysis request answered with a generated script",
			query:       "Write me a script that lists every unique session type and how often it occurs",
		},
	}

	conversationID := "demo-conversation-1"

	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: %q\n", test.query)
		fmt.Println("Processing...")

		answer, err := runner.Invoke(ctx, model.QueryInput{
			ConversationID: conversationID,
			Query:          test.query,
		})
		if err != nil {
			log.Fatalf("Failed to invoke graph for test %d: %v", i+1, err)
		}

		fmt.Printf("Route: %s\n", answer.Route)
		fmt.Printf("Answer %d: %s\n", i+1, answer.Content)
		if answer.TotalCostUSD > 0 {
			fmt.Printf("Cost: $%.6f\n", answer.TotalCostUSD)
		}
		fmt.Println("------------------------------------------------")

		time.Sleep(500 * time.Millisecond)
	}

	fmt.Println("All graph tests completed successfully!")
}
