package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/metachat-core-poc/server/internal/agent/graph/conversations"
	"github.com/metachat-core-poc/server/internal/agent/graph/nodes"
	"github.com/metachat-core-poc/server/internal/agent/graph/observers"
	"github.com/metachat-core-poc/server/internal/agent/graph/tools"
	"github.com/metachat-core-poc/server/internal/agent/model"
	logx "github.com/metachat-core-poc/server/pkg/logger"
)

// Runner executes the compiled assistant graph for one question. Extra options
// (for example per-request progress callbacks) are forwarded to the runnable.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput, opts ...compose.Option) (*model.Answer, error)
}

// Config holds everything needed to compose the full assistant graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs ChatModels
// and MessagesManager.
type Config struct {
	APIKey       string
	BaseURL      string
	RouterModel  model.RouterModelConfig
	WorkerModel  model.WorkerModelConfig
	Conversation model.ConversationConfig

	DocDBBaseURL string
	SchemaDoc    string

	ConversationRepo model.ConversationRepository
	MetadataStore    tools.MetadataStore
	ScriptExecutor   nodes.ScriptExecutor
}

// GraphConfig holds all configuration needed to build the graph.
type GraphConfig struct {
	ChatModels      *nodes.ChatModels
	MessagesManager *conversations.MessagesManager
	MetadataStore   tools.MetadataStore
	ScriptExecutor  nodes.ScriptExecutor
	SchemaDoc       string
	DocDBBaseURL    string
	MongoMaxCalls   int
	ScriptMaxRuns   int
}

// GraphBuilder handles the construction of the assistant graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput, opts ...compose.Option) (*model.Answer, error) {
	runOpts := append([]compose.Option{compose.WithCallbacks(observers.NewAllCallbacks())}, opts...)

	out, err := r.runnable.Invoke(ctx, model.QueryInput{
		ConversationID: in.ConversationID,
		Query:          in.Query,
	}, runOpts...)
	if err != nil {
		return nil, err
	}

	return answerFromMessage(out), nil
}

// answerFromMessage unpacks the trace metadata that terminal nodes attach to
// the final message.
func answerFromMessage(out *schema.Message) *model.Answer {
	if out == nil {
		return &model.Answer{}
	}

	ans := &model.Answer{Content: out.Content}
	if route, ok := out.Extra["route"].(model.Signal); ok {
		ans.Route = route
	}
	if trace, ok := out.Extra["trace"].([]model.TraceStep); ok {
		ans.Trace = trace
	}
	if cost, ok := out.Extra["usage_cost_total_usd"].(float64); ok {
		ans.TotalCostUSD = cost
	}
	return ans
}

// BuildAssistantGraph composes ChatModels, MessagesManager, builds the graph,
// and returns a Runner.
func BuildAssistantGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if cfg.MetadataStore == nil {
		return nil, fmt.Errorf("metadata store is nil")
	}
	if cfg.ScriptExecutor == nil {
		return nil, fmt.Errorf("script executor is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		RouterConfig: &cfg.RouterModel,
		WorkerConfig: &cfg.WorkerModel,
	})
	if err != nil {
		return nil, err
	}

	mm := conversations.NewMessagesManager(cfg.ConversationRepo, cfg.Conversation)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:      cms,
		MessagesManager: mm,
		MetadataStore:   cfg.MetadataStore,
		ScriptExecutor:  cfg.ScriptExecutor,
		SchemaDoc:       cfg.SchemaDoc,
		DocDBBaseURL:    cfg.DocDBBaseURL,
		MongoMaxCalls:   cfg.Conversation.Mongo.MaxCalls,
		ScriptMaxRuns:   cfg.Conversation.Script.MaxRuns,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Assistant graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled assistant graph.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Router == nil || config.ChatModels.Worker == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.MetadataStore == nil {
		return nil, fmt.Errorf("metadata store is nil")
	}
	if config.ScriptExecutor == nil {
		return nil, fmt.Errorf("script executor is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools configures the metadata retrieval tools and binds them to the
// aggregation worker model.
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	metadataTools := tools.GetQueryTools(b.config.MetadataStore)
	toolInfos, err := tools.GetToolInfos(ctx, metadataTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}

	if err := b.config.ChatModels.BindQueryTools(ctx, toolInfos); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to query model")
		return fmt.Errorf("failed to bind tools to query model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               metadataTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Gracefully handle hallucinated or malformed tool calls
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			// Best-effort sanitize; never fail hard here
			var m map[string]any
			if err := json.Unmarshal([]byte(arguments), &m); err != nil {
				return arguments, nil
			}

			switch name {
			case tools.ToolAggregationRetrieval:
				// pipeline: string (required) - keep as-is, the handler parses it
				if v, ok := m["pipeline"]; ok {
					if s, isStr := v.(string); isStr {
						m["pipeline"] = strings.TrimSpace(s)
					}
				}
			case tools.ToolGetRecords:
				// limit: number (optional, default 10, max 50)
				if v, ok := m["limit"]; ok {
					switch vv := v.(type) {
					case float64:
						// JSON numbers decode as float64
						m["limit"] = clampInt(int(vv), 1, 50)
					case string:
						if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
							m["limit"] = clampInt(n, 1, 50)
						} else {
							delete(m, "limit")
						}
					default:
						delete(m, "limit")
					}
				}
			}

			out, err := json.Marshal(m)
			if err != nil {
				return arguments, nil
			}
			return string(out), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeQueryTools, toolsNode,
		compose.WithStatePreHandler(nodes.NewQueryToolsPreHandler(b.config.MongoMaxCalls)),
		compose.WithStatePostHandler(nodes.NewQueryToolsPostHandler()),
	)

	return nil
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	cms := b.config.ChatModels

	b.graph.AddLambdaNode(nodes.NodeInputResolver,
		nodes.NewInputResolverNode(b.config.MessagesManager, b.config.SchemaDoc),
		compose.WithStatePreHandler(nodes.NewInputResolverPreHandler()),
	)

	b.graph.AddChatModelNode(nodes.NodeSchemaModel,
		cms.Worker,
		compose.WithStatePostHandler(nodes.NewSchemaModelPostHandler(cms.WorkerModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeRouterAssembler, nodes.NewRouterAssemblerNode())

	b.graph.AddChatModelNode(nodes.NodeRouterModel,
		cms.Router,
		compose.WithStatePostHandler(nodes.NewRouterModelPostHandler(cms.RouterModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeRouteParser,
		nodes.NewRouteParserNode(),
		compose.WithStatePostHandler(nodes.NewRouteParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeRouteFallback,
		nodes.NewRouteFallbackNode(),
		compose.WithStatePostHandler(nodes.NewAnswerPostHandler(b.config.MessagesManager, nodes.NodeRouteFallback, "")),
	)

	// Aggregation branch
	b.graph.AddLambdaNode(nodes.NodeQueryAssembler, nodes.NewQueryAssemblerNode(b.config.MongoMaxCalls))

	b.graph.AddChatModelNode(nodes.NodeQueryModel,
		cms.QueryWorker,
		compose.WithStatePreHandler(nodes.NewQueryModelPreHandler(b.config.MongoMaxCalls)),
		compose.WithStatePostHandler(nodes.NewQueryModelPostHandler(b.config.MessagesManager, cms.WorkerModelName)),
	)

	// Script branch
	b.graph.AddLambdaNode(nodes.NodeCodeAssembler, nodes.NewCodeAssemblerNode(b.config.DocDBBaseURL))

	b.graph.AddChatModelNode(nodes.NodeCodeModel,
		cms.Worker,
		compose.WithStatePostHandler(nodes.NewCodeModelPostHandler(cms.WorkerModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeRunDecisionAssembler, nodes.NewRunDecisionAssemblerNode())

	b.graph.AddChatModelNode(nodes.NodeRunDecisionModel,
		cms.Router,
		compose.WithStatePostHandler(nodes.NewRunDecisionModelPostHandler(cms.RouterModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeRunDecisionParser,
		nodes.NewRunDecisionParserNode(),
		compose.WithStatePostHandler(nodes.NewRunDecisionParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeSummarizerAssembler, nodes.NewSummarizerAssemblerNode())

	b.graph.AddChatModelNode(nodes.NodeSummarizerModel,
		cms.Worker,
		compose.WithStatePostHandler(nodes.NewAnswerPostHandler(b.config.MessagesManager, nodes.NodeSummarizerModel, cms.WorkerModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeScriptRunner, nodes.NewScriptRunnerNode(b.config.ScriptExecutor))

	b.graph.AddLambdaNode(nodes.NodeRevisionAssembler, nodes.NewRevisionAssemblerNode(b.config.ScriptMaxRuns))

	b.graph.AddChatModelNode(nodes.NodeRevisionModel,
		cms.Router,
		compose.WithStatePostHandler(nodes.NewRevisionModelPostHandler(cms.RouterModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeRevisionParser,
		nodes.NewRevisionParserNode(),
		compose.WithStatePostHandler(nodes.NewRevisionParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeSynthesisAssembler, nodes.NewSynthesisAssemblerNode())

	b.graph.AddChatModelNode(nodes.NodeSynthesisModel,
		cms.Worker,
		compose.WithStatePostHandler(nodes.NewAnswerPostHandler(b.config.MessagesManager, nodes.NodeSynthesisModel, cms.WorkerModelName)),
	)
}

// addEdges creates the main flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeInputResolver},
		{nodes.NodeInputResolver, nodes.NodeSchemaModel},
		{nodes.NodeSchemaModel, nodes.NodeRouterAssembler},
		{nodes.NodeRouterAssembler, nodes.NodeRouterModel},
		{nodes.NodeRouterModel, nodes.NodeRouteParser},
		{nodes.NodeRouteFallback, compose.END},

		{nodes.NodeQueryAssembler, nodes.NodeQueryModel},
		{nodes.NodeQueryTools, nodes.NodeQueryModel},

		{nodes.NodeCodeAssembler, nodes.NodeCodeModel},
		{nodes.NodeCodeModel, nodes.NodeRunDecisionAssembler},
		{nodes.NodeRunDecisionAssembler, nodes.NodeRunDecisionModel},
		{nodes.NodeRunDecisionModel, nodes.NodeRunDecisionParser},
		{nodes.NodeSummarizerAssembler, nodes.NodeSummarizerModel},
		{nodes.NodeSummarizerModel, compose.END},
		{nodes.NodeScriptRunner, nodes.NodeRevisionAssembler},
		{nodes.NodeRevisionAssembler, nodes.NodeRevisionModel},
		{nodes.NodeRevisionModel, nodes.NodeRevisionParser},
		{nodes.NodeSynthesisAssembler, nodes.NodeSynthesisModel},
		{nodes.NodeSynthesisModel, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches.
func (b *GraphBuilder) addBranches() error {
	routeBranch := compose.NewGraphBranch(
		nodes.NewRouteCondition(),
		map[string]bool{
			nodes.NodeQueryAssembler: true,
			nodes.NodeCodeAssembler:  true,
			nodes.NodeRouteFallback:  true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRouteParser, routeBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding route branch")
		return fmt.Errorf("error adding route branch: %w", err)
	}

	queryBranch := compose.NewGraphBranch(
		nodes.NewQueryToolsCondition(),
		map[string]bool{
			nodes.NodeQueryTools: true,
			compose.END:          true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeQueryModel, queryBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding query tools branch")
		return fmt.Errorf("error adding query tools branch: %w", err)
	}

	runBranch := compose.NewGraphBranch(
		nodes.NewRunDecisionCondition(),
		map[string]bool{
			nodes.NodeScriptRunner:        true,
			nodes.NodeSummarizerAssembler: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRunDecisionParser, runBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding run decision branch")
		return fmt.Errorf("error adding run decision branch: %w", err)
	}

	revisionBranch := compose.NewGraphBranch(
		nodes.NewRevisionCondition(b.config.ScriptMaxRuns),
		map[string]bool{
			nodes.NodeCodeAssembler:      true,
			nodes.NodeSynthesisAssembler: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRevisionParser, revisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding revision branch")
		return fmt.Errorf("error adding revision branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Limit total run steps: the tool loop costs two steps per call, each
	// script revision replays the whole generation chain.
	maxSteps := 10 + b.config.MongoMaxCalls*2 + b.config.ScriptMaxRuns*8
	if maxSteps < 30 {
		maxSteps = 30
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
