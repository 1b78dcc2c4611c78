// Package parsers converts raw model text into the closed enumerations and
// structured documents the graph works with. All tolerance for sloppy model
// output (code fences, punctuation, casing) lives here; downstream nodes only
// ever see validated values.
package parsers

import (
	"strings"

	"github.com/metachat-core-poc/server/internal/agent/model"
)

// basic safety limit to avoid pathological inputs
const maxLabelLen = 4 * 1024 // 4KB

// normalizeLabel reduces model output to a bare lowercase token: strips code
// fences, quotes, trailing punctuation, and keeps only the first line.
func normalizeLabel(content string) string {
	if len(content) > maxLabelLen {
		content = content[:maxLabelLen]
	}
	s := strings.TrimSpace(content)
	s = strings.TrimSpace(strings.Trim(s, "`"))
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.Trim(s, " \t\"'.,:;!")
	return strings.ToLower(s)
}

// ParseRoute maps router output onto {mongodb, python}. Anything else returns
// SignalRouteUnknown together with an ErrUnrecognizedLabel so the caller can
// take the explicit fallback branch.
func ParseRoute(content string) (model.Signal, error) {
	label := normalizeLabel(content)
	switch {
	case label == "mongodb" || label == "mongodb_query" || strings.HasPrefix(label, "mongodb"):
		return model.SignalRouteMongo, nil
	case label == "python" || label == "python_script" || strings.HasPrefix(label, "python"):
		return model.SignalRoutePython, nil
	default:
		return model.SignalRouteUnknown, &model.ErrUnrecognizedLabel{Node: "router", Label: label}
	}
}

// ParseRunDecision maps the execution-decision output onto
// {execute, summarize}. Unrecognized labels degrade to summarize, the branch
// with no side effects.
func ParseRunDecision(content string) (model.Signal, error) {
	label := normalizeLabel(content)
	switch label {
	case "yes", "execute", "run":
		return model.SignalExecute, nil
	case "no", "summarize", "explain":
		return model.SignalSummarize, nil
	default:
		return model.SignalSummarize, &model.ErrUnrecognizedLabel{Node: "run_decision", Label: label}
	}
}

// ParseRevision maps the revision-decision output onto {revise, finalize}.
// Unrecognized labels degrade to finalize so the loop always terminates.
func ParseRevision(content string) (model.Signal, error) {
	label := normalizeLabel(content)
	switch label {
	case "yes", "revise", "reformat", "retry":
		return model.SignalRevise, nil
	case "no", "finalize", "done", "no_reformat":
		return model.SignalFinalize, nil
	default:
		return model.SignalFinalize, &model.ErrUnrecognizedLabel{Node: "revision", Label: label}
	}
}
