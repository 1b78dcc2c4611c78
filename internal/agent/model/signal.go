package model

import "fmt"

// Signal is the closed set of labels produced by the decision nodes. Model
// text is converted into a Signal only inside the parsers package; everything
// downstream of a parser works with these values, never with raw model output.
type Signal string

const (
	// Route signals emitted by the router node.
	SignalRouteMongo  Signal = "mongodb"
	SignalRoutePython Signal = "python"
	// SignalRouteUnknown is the explicit fallback when the router emits a
	// label outside the recognized set.
	SignalRouteUnknown Signal = "unknown"

	// Run-decision signals: whether a generated script must actually run.
	SignalExecute   Signal = "execute"
	SignalSummarize Signal = "summarize"

	// Revision signals: whether a script should be regenerated after a run.
	SignalRevise   Signal = "revise"
	SignalFinalize Signal = "finalize"
)

// String returns the string representation of the signal.
func (s Signal) String() string {
	return string(s)
}

// ErrUnrecognizedLabel reports a model label that maps to no known Signal.
type ErrUnrecognizedLabel struct {
	Node  string
	Label string
}

func (e *ErrUnrecognizedLabel) Error() string {
	return fmt.Sprintf("%s: unrecognized label %q", e.Node, e.Label)
}
