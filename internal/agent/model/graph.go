package model

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//   - Each request owns its own AppState; the only data shared across requests
//     is the read-only schema document held by the graph config.
type AppState struct {
	ConversationID string
	Query          string

	// SchemaContext accumulates the schema excerpts the context node judged
	// relevant to the current query.
	SchemaContext []string

	// Route is the parsed router decision, immutable once set.
	Route Signal

	History []*schema.Message // mutated only inside Eino state handlers

	// Aggregation branch bookkeeping.
	MongoCallCount    int
	MongoLimitReached bool
	ToolCallIDSeq     int // synthesizes tool_call_id when the provider omits it
	LastToolOutput    string

	// Script branch bookkeeping.
	ScriptCode      string
	ScriptOutput    string
	ScriptRunCount  int
	ScriptRunFailed bool

	// Trace is the ordered record of node decisions and outputs for this
	// request, consumed by answer synthesis and the streaming surface.
	Trace []TraceStep

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// AddTrace appends a step to the conversation trace. Call only from inside
// Eino state handlers.
func (s *AppState) AddTrace(node, summary string) {
	s.Trace = append(s.Trace, TraceStep{
		Node:    node,
		Summary: summary,
		At:      time.Now().UTC(),
	})
}

// TraceStep records a single node decision or output.
type TraceStep struct {
	Node    string    `json:"node"`
	Summary string    `json:"summary"`
	At      time.Time `json:"at"`
}

// QueryInput represents the input for processing user queries.
type QueryInput struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}

// Answer is the terminal result of one graph invocation.
type Answer struct {
	Content      string      `json:"content"`
	Route        Signal      `json:"route"`
	Trace        []TraceStep `json:"trace,omitempty"`
	TotalCostUSD float64     `json:"total_cost_usd,omitempty"`
}
