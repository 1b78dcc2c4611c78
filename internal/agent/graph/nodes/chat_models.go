package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/metachat-core-poc/server/internal/agent/model"
	logx "github.com/metachat-core-poc/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey       string
	BaseURL      string
	RouterConfig *model.RouterModelConfig
	WorkerConfig *model.WorkerModelConfig
}

// ChatModels holds the router and worker chat models. They are kept as Eino
// interfaces so graph tests can substitute scripted stubs for the real
// Gemini-backed models.
type ChatModels struct {
	// Router answers the classification prompts (route, run decision,
	// revision).
	Router einomodel.ToolCallingChatModel
	// Worker answers the generation prompts (schema context, code, summaries,
	// synthesis).
	Worker einomodel.ToolCallingChatModel
	// QueryWorker is the worker with the metadata store tools bound; set by
	// BindQueryTools.
	QueryWorker einomodel.ToolCallingChatModel

	RouterModelName string
	WorkerModelName string
}

// NewChatModels creates the router and worker chat models with the given configuration
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	routerModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.RouterConfig.Model,
		Temperature: &config.RouterConfig.Temperature,
		MaxTokens:   &config.RouterConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating router model")
		return nil, fmt.Errorf("error creating router model: %w", err)
	}

	workerModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.WorkerConfig.Model,
		Temperature: &config.WorkerConfig.Temperature,
		MaxTokens:   &config.WorkerConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating worker model")
		return nil, fmt.Errorf("error creating worker model: %w", err)
	}

	return &ChatModels{
		Router:          routerModel,
		Worker:          workerModel,
		RouterModelName: config.RouterConfig.Model,
		WorkerModelName: config.WorkerConfig.Model,
	}, nil
}

// BindQueryTools derives the tool-bound worker used by the aggregation loop.
func (cm *ChatModels) BindQueryTools(ctx context.Context, toolInfos []*schema.ToolInfo) error {
	bound, err := cm.Worker.WithTools(toolInfos)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind metadata tools")
		return fmt.Errorf("failed to bind metadata tools: %w", err)
	}
	cm.QueryWorker = bound

	logx.Debug().Msg("Successfully bound metadata tools to worker model")
	return nil
}
