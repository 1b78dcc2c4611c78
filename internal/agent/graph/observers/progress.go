package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"

	"github.com/metachat-core-poc/server/internal/agent/graph/nodes"
)

// Event is one progress update emitted while a question moves through the
// graph. Node is the graph node key, Message a human-readable step label.
type Event struct {
	Node    string `json:"node"`
	Message string `json:"message"`
}

// stepMessages maps graph nodes to the step label shown to the user. Nodes
// absent from the map emit no progress event.
var stepMessages = map[string]string{
	nodes.NodeInputResolver:    "Reading your question",
	nodes.NodeSchemaModel:      "Gathering metadata schema context",
	nodes.NodeRouterModel:      "Deciding how to answer",
	nodes.NodeQueryModel:       "Querying the metadata database",
	nodes.NodeQueryTools:       "Running database queries",
	nodes.NodeCodeModel:        "Writing an analysis script",
	nodes.NodeRunDecisionModel: "Checking whether the script should run",
	nodes.NodeScriptRunner:     "Executing the script",
	nodes.NodeRevisionModel:    "Reviewing the script output",
	nodes.NodeSummarizerModel:  "Preparing the script walkthrough",
	nodes.NodeSynthesisModel:   "Composing the final answer",
	nodes.NodeRouteFallback:    "Asking for clarification",
}

// NewProgressCallbacks builds a handler that calls emit once per graph step.
// emit must be safe for sequential calls from the graph goroutine.
func NewProgressCallbacks(emit func(Event)) einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, input einocb.CallbackInput) context.Context {
			if info == nil || emit == nil {
				return ctx
			}
			if msg, ok := stepMessages[info.Name]; ok {
				emit(Event{Node: info.Name, Message: msg})
			}
			return ctx
		}).
		Build()
}
