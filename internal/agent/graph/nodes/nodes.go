package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/metachat-core-poc/server/internal/agent/graph/conversations"
	"github.com/metachat-core-poc/server/internal/agent/graph/parsers"
	"github.com/metachat-core-poc/server/internal/agent/graph/prompts"
	"github.com/metachat-core-poc/server/internal/agent/model"
	"github.com/metachat-core-poc/server/internal/sandbox"
	logx "github.com/metachat-core-poc/server/pkg/logger"
)

// ScriptExecutor runs generated scripts. The sandbox client implements it;
// graph tests substitute a recorder.
type ScriptExecutor interface {
	Run(ctx context.Context, code string) (sandbox.RunResult, error)
}

// applyUsageCost computes and logs USD cost for a model invocation and
// accumulates the total into state. No-op when usage metadata is absent.
func applyUsageCost(out *schema.Message, state *model.AppState, node, modelName string) {
	if modelName == "" || !model.CostEnabled() || out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	pricing := model.ResolvePricing(modelName)
	inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     out.ResponseMeta.Usage.PromptTokens,
		"completion_tokens": out.ResponseMeta.Usage.CompletionTokens,
		"total_tokens":      out.ResponseMeta.Usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}
	logx.Debug().
		Str("conversation_id", state.ConversationID).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
		Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
		Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")

	state.TotalCostUSD += totalC
	out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
}

// attachAnswerMeta copies the per-request trace onto a terminal message so the
// runner can return it without touching graph state.
func attachAnswerMeta(out *schema.Message, state *model.AppState) {
	if out == nil {
		return
	}
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["route"] = state.Route
	out.Extra["trace"] = state.Trace
	out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
}

// ===== Input resolver =====

// NewInputResolverPreHandler resets per-request state from the incoming query.
func NewInputResolverPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		s.ConversationID = in.ConversationID
		s.Query = in.Query
		s.SchemaContext = nil
		s.Route = ""
		s.MongoCallCount = 0
		s.MongoLimitReached = false
		s.ToolCallIDSeq = 0
		s.ScriptCode = ""
		s.ScriptOutput = ""
		s.ScriptRunCount = 0
		s.ScriptRunFailed = false
		s.Trace = nil
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputResolverNode persists the user message and builds the messages for
// the schema-context model.
func NewInputResolverNode(mm *conversations.MessagesManager, schemaDoc string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		conversationCtx, err := mm.ProcessUserMessage(ctx, input.ConversationID, input.Query)
		if err != nil {
			return nil, fmt.Errorf("error getting conversation context: %w", err)
		}

		systemPrompt, err := prompts.RenderSchemaSystem(ctx, schemaDoc)
		if err != nil {
			return nil, fmt.Errorf("render schema system prompt: %w", err)
		}

		messages := []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(conversationCtx),
		}

		return messages, nil
	})
}

// NewSchemaModelPostHandler records the distilled schema context.
func NewSchemaModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodeSchemaModel, modelName)
		if out != nil && strings.TrimSpace(out.Content) != "" {
			state.SchemaContext = append(state.SchemaContext, out.Content)
		}
		state.AddTrace(NodeSchemaModel, "schema context gathered")
		return out, nil
	}
}

// ===== Router =====

// NewRouterAssemblerNode builds the routing messages from state.
func NewRouterAssemblerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		var query string
		var schemaContext []string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			schemaContext = state.SchemaContext
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderRouterSystem(ctx, schemaContext)
		if err != nil {
			return nil, fmt.Errorf("render router prompt: %w", err)
		}

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(query),
		}, nil
	})
}

// NewRouterModelPostHandler accounts router model usage.
func NewRouterModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodeRouterModel, modelName)
		return out, nil
	}
}

// NewRouteParserNode maps router output onto the closed route set. An
// unrecognized label becomes the explicit unknown signal, never an error.
func NewRouteParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.Signal, error) {
		route, err := parsers.ParseRoute(resp.Content)
		if err != nil {
			logx.Warn().Err(err).Msg("Router label unrecognized; taking fallback branch")
		}
		return route, nil
	})
}

// NewRouteParserPostHandler pins the routing decision into state.
func NewRouteParserPostHandler() func(context.Context, model.Signal, *model.AppState) (model.Signal, error) {
	return func(ctx context.Context, out model.Signal, state *model.AppState) (model.Signal, error) {
		state.Route = out
		state.AddTrace(NodeRouteParser, "route: "+out.String())
		logx.Debug().
			Str("conversation_id", state.ConversationID).
			Str("route", out.String()).
			Msg("Routing decision")
		return out, nil
	}
}

// NewRouteCondition routes to the aggregation branch, the script branch, or
// the fallback answer.
func NewRouteCondition() func(context.Context, model.Signal) (string, error) {
	return func(ctx context.Context, route model.Signal) (string, error) {
		switch route {
		case model.SignalRouteMongo:
			return NodeQueryAssembler, nil
		case model.SignalRoutePython:
			return NodeCodeAssembler, nil
		default:
			return NodeRouteFallback, nil
		}
	}
}

// NewRouteFallbackNode produces an honest answer when the router output could
// not be classified.
func NewRouteFallbackNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.Signal) (*schema.Message, error) {
		var query string
		compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			state.AddTrace(NodeRouteFallback, "unclassifiable query")
			return nil
		})
		content := fmt.Sprintf(
			"I couldn't determine whether %q should be answered with a database query or a script. "+
				"Could you rephrase it, for example as a question about stored metadata fields or as a request for analysis code?",
			query,
		)
		return schema.AssistantMessage(content, nil), nil
	})
}

// ===== Aggregation branch =====

// NewQueryAssemblerNode builds the aggregation-executor messages from state.
func NewQueryAssemblerNode(maxToolCalls int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.Signal) ([]*schema.Message, error) {
		var query string
		var schemaContext []string
		var callCount int
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			schemaContext = state.SchemaContext
			callCount = state.MongoCallCount
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderMongoSystem(ctx, schemaContext, callCount, normalizeCap(maxToolCalls, DefaultMaxMongoCalls))
		if err != nil {
			return nil, fmt.Errorf("render aggregation prompt: %w", err)
		}

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(query),
		}, nil
	})
}

// NewQueryModelPreHandler accumulates the aggregation conversation and injects
// a wrap-up notice once the tool budget is spent.
func NewQueryModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Heuristic fix for Gemini OpenAI-compat: ensure tool results carry tool_call_id
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					id := msg.ToolCalls[0].ID
					if strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkMongoLimit(state, maxToolCalls) {
			maxToolCalls = normalizeCap(maxToolCalls, DefaultMaxMongoCalls)
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Synthesize a helpful answer from the information gathered so far and "+
						"acknowledge anything you could not retrieve.",
					maxToolCalls,
				),
			}
			state.History = append(state.History, wrapUp)
		}

		return state.History, nil
	}
}

// NewQueryModelPostHandler accounts usage, normalizes tool calls, and persists
// the final answer when the model stops calling tools.
func NewQueryModelPostHandler(
	mm *conversations.MessagesManager,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodeQueryModel, modelName)

		// Normalize tool calls: some providers may omit tool_call IDs.
		if out != nil && len(out.ToolCalls) > 0 {
			for i := range out.ToolCalls {
				if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
					state.ToolCallIDSeq++
					out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
				}
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			state.AddTrace(NodeQueryModel, fmt.Sprintf("requested %d tool call(s)", len(out.ToolCalls)))
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling metadata tools")
			return out, nil
		}

		state.AddTrace(NodeQueryModel, "final answer composed")
		attachAnswerMeta(out, state)

		if out.Role == schema.Assistant && strings.TrimSpace(out.Content) != "" {
			if err := mm.SaveResponse(ctx, state.ConversationID, out.Content); err != nil {
				logx.Error().
					Str("conversation_id", state.ConversationID).
					Err(err).
					Msg("Error saving assistant response")
			}
		}

		return out, nil
	}
}

// NewQueryToolsCondition routes to the tools node while the model keeps
// requesting calls and the budget allows it.
func NewQueryToolsCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.MongoLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to end")
			return compose.END, nil
		}

		if len(input.ToolCalls) > 0 {
			return NodeQueryTools, nil
		}

		return compose.END, nil
	}
}

// NewQueryToolsPreHandler counts one pass through the tools node.
func NewQueryToolsPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		exceeded := incrementMongoCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("mongo_call_count", state.MongoCallCount).
			Str("conversation_id", state.ConversationID).
			Msg("Metadata tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("mongo_call_count", state.MongoCallCount).
				Str("conversation_id", state.ConversationID).
				Msg("Metadata tool call limit exceeded - flagging and continuing")
		}

		return in, nil
	}
}

// NewQueryToolsPostHandler records tool output for the trace and the prompt.
func NewQueryToolsPostHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		var b strings.Builder
		for _, msg := range out {
			if msg == nil || msg.Content == "" {
				continue
			}
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
		state.LastToolOutput = strings.TrimSpace(b.String())
		state.AddTrace(NodeQueryTools, fmt.Sprintf("executed %d tool call(s)", len(out)))
		return out, nil
	}
}

// ===== Script branch =====

// NewCodeAssemblerNode builds the script-generation messages. On revision
// passes the previous script and its run output are included.
func NewCodeAssemblerNode(docdbBaseURL string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.Signal) ([]*schema.Message, error) {
		var query, priorCode, priorOutput string
		var schemaContext []string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			schemaContext = state.SchemaContext
			if state.ScriptRunCount > 0 {
				priorCode = state.ScriptCode
				priorOutput = state.ScriptOutput
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		systemPrompt, err := prompts.RenderCodegenSystem(ctx, docdbBaseURL, schemaContext, priorCode, priorOutput)
		if err != nil {
			return nil, fmt.Errorf("render codegen prompt: %w", err)
		}

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(query),
		}, nil
	})
}

// NewCodeModelPostHandler extracts the generated script into state.
func NewCodeModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodeCodeModel, modelName)
		if out != nil {
			if code := parsers.ExtractScript(out.Content); code != "" {
				state.ScriptCode = code
			}
		}
		state.AddTrace(NodeCodeModel, "script generated")
		return out, nil
	}
}

// NewRunDecisionAssemblerNode builds the execute-or-summarize prompt.
func NewRunDecisionAssemblerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		var query, scriptCode string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			scriptCode = state.ScriptCode
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		content, err := prompts.RenderRunDecision(ctx, query, scriptCode)
		if err != nil {
			return nil, fmt.Errorf("render run decision prompt: %w", err)
		}
		return []*schema.Message{schema.UserMessage(content)}, nil
	})
}

// NewRunDecisionModelPostHandler accounts decision model usage.
func NewRunDecisionModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodeRunDecisionModel, modelName)
		return out, nil
	}
}

// NewRunDecisionParserNode maps the decision output onto {execute, summarize}.
func NewRunDecisionParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.Signal, error) {
		decision, err := parsers.ParseRunDecision(resp.Content)
		if err != nil {
			logx.Warn().Err(err).Msg("Run decision label unrecognized; defaulting to summarize")
		}
		return decision, nil
	})
}

// NewRunDecisionParserPostHandler traces the decision.
func NewRunDecisionParserPostHandler() func(context.Context, model.Signal, *model.AppState) (model.Signal, error) {
	return func(ctx context.Context, out model.Signal, state *model.AppState) (model.Signal, error) {
		state.AddTrace(NodeRunDecisionParser, "run decision: "+out.String())
		return out, nil
	}
}

// NewRunDecisionCondition routes to the script runner or the summarizer.
func NewRunDecisionCondition() func(context.Context, model.Signal) (string, error) {
	return func(ctx context.Context, decision model.Signal) (string, error) {
		if decision == model.SignalExecute {
			return NodeScriptRunner, nil
		}
		return NodeSummarizerAssembler, nil
	}
}

// NewSummarizerAssemblerNode builds the no-execution presentation prompt.
func NewSummarizerAssemblerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.Signal) ([]*schema.Message, error) {
		var query, scriptCode string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			scriptCode = state.ScriptCode
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		content, err := prompts.RenderSummarizer(ctx, query, scriptCode)
		if err != nil {
			return nil, fmt.Errorf("render summarizer prompt: %w", err)
		}
		return []*schema.Message{schema.UserMessage(content)}, nil
	})
}

// NewScriptRunnerNode executes the generated script through the sandbox.
// Execution failures become run output for the revision node, not errors.
func NewScriptRunnerNode(executor ScriptExecutor) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.Signal) (*schema.Message, error) {
		var scriptCode string
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			scriptCode = state.ScriptCode
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		result, runErr := executor.Run(ctx, scriptCode)

		var output string
		failed := false
		if runErr != nil {
			output = fmt.Sprintf("execution request failed: %v", runErr)
			failed = true
		} else {
			output = result.Summary()
			failed = !result.Succeeded()
		}

		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.ScriptRunCount++
			state.ScriptOutput = output
			state.ScriptRunFailed = failed
			state.AddTrace(NodeScriptRunner, fmt.Sprintf("run %d, failed=%t", state.ScriptRunCount, failed))
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		logx.Debug().Bool("failed", failed).Msg("Script execution finished")
		return schema.ToolMessage(output, ""), nil
	})
}

// NewRevisionAssemblerNode builds the revise-or-finalize prompt.
func NewRevisionAssemblerNode(maxRuns int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		var query, scriptCode, scriptOutput string
		var runCount int
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			scriptCode = state.ScriptCode
			scriptOutput = state.ScriptOutput
			runCount = state.ScriptRunCount
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		content, err := prompts.RenderRevision(ctx, query, scriptCode, scriptOutput, runCount, normalizeCap(maxRuns, DefaultMaxScriptRuns))
		if err != nil {
			return nil, fmt.Errorf("render revision prompt: %w", err)
		}
		return []*schema.Message{schema.UserMessage(content)}, nil
	})
}

// NewRevisionModelPostHandler accounts revision model usage.
func NewRevisionModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, NodeRevisionModel, modelName)
		return out, nil
	}
}

// NewRevisionParserNode maps the revision output onto {revise, finalize}.
func NewRevisionParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.Signal, error) {
		decision, err := parsers.ParseRevision(resp.Content)
		if err != nil {
			logx.Warn().Err(err).Msg("Revision label unrecognized; finalizing")
		}
		return decision, nil
	})
}

// NewRevisionParserPostHandler traces the decision.
func NewRevisionParserPostHandler() func(context.Context, model.Signal, *model.AppState) (model.Signal, error) {
	return func(ctx context.Context, out model.Signal, state *model.AppState) (model.Signal, error) {
		state.AddTrace(NodeRevisionParser, "revision decision: "+out.String())
		return out, nil
	}
}

// NewRevisionCondition loops back to generation while the model asks for a
// revision and the run budget allows another attempt.
func NewRevisionCondition(maxRuns int) func(context.Context, model.Signal) (string, error) {
	return func(ctx context.Context, decision model.Signal) (string, error) {
		var runCount int
		compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			runCount = state.ScriptRunCount
			return nil
		})

		if decision == model.SignalRevise && runCount < normalizeCap(maxRuns, DefaultMaxScriptRuns) {
			logx.Debug().Int("run_count", runCount).Msg("Revising script")
			return NodeCodeAssembler, nil
		}

		if decision == model.SignalRevise {
			logx.Warn().Int("run_count", runCount).Msg("Script run limit reached - finalizing with best effort")
		}
		return NodeSynthesisAssembler, nil
	}
}

// NewSynthesisAssemblerNode builds the final-answer prompt for executed scripts.
func NewSynthesisAssemblerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.Signal) ([]*schema.Message, error) {
		var query, scriptCode, scriptOutput string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			scriptCode = state.ScriptCode
			scriptOutput = state.ScriptOutput
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		content, err := prompts.RenderSynthesis(ctx, query, scriptCode, scriptOutput)
		if err != nil {
			return nil, fmt.Errorf("render synthesis prompt: %w", err)
		}
		return []*schema.Message{schema.UserMessage(content)}, nil
	})
}

// NewAnswerPostHandler finishes a terminal model node: usage accounting,
// answer persistence, and trace attachment.
func NewAnswerPostHandler(
	mm *conversations.MessagesManager,
	node string,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		applyUsageCost(out, state, node, modelName)
		state.AddTrace(node, "final answer composed")
		attachAnswerMeta(out, state)

		if out != nil && out.Role == schema.Assistant && strings.TrimSpace(out.Content) != "" {
			if err := mm.SaveResponse(ctx, state.ConversationID, out.Content); err != nil {
				logx.Error().
					Str("conversation_id", state.ConversationID).
					Err(err).
					Msg("Error saving assistant response")
			}
		}

		return out, nil
	}
}
