package prompts

import (
	"context"
	_ "embed"
	"strings"

	"github.com/metachat-core-poc/server/internal/agent/graph/tools"
)

//go:embed template/mongodb_prompt.txt
var mongoSystemPrompt string

// RenderMongoSystem renders the aggregation-executor system prompt with the
// schema context and the current tool budget.
func RenderMongoSystem(ctx context.Context, schemaContext []string, toolCallCount, maxToolCalls int) (string, error) {
	return render(ctx, mongoSystemPrompt, map[string]any{
		"SchemaContext":   strings.Join(schemaContext, "\n\n"),
		"AggregationTool": tools.ToolAggregationRetrieval,
		"FindTool":        tools.ToolGetRecords,
		"CountTool":       tools.ToolCountDocuments,
		"ToolCallCount":   toolCallCount,
		"MaxToolCalls":    maxToolCalls,
	})
}
