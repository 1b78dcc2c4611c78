package prompts

import (
	"context"
	_ "embed"
	"strings"
)

//go:embed template/codegen_prompt.txt
var codegenSystemPrompt string

//go:embed template/run_decision_prompt.txt
var runDecisionPrompt string

//go:embed template/summarizer_prompt.txt
var summarizerPrompt string

//go:embed template/revision_prompt.txt
var revisionPrompt string

//go:embed template/synthesis_prompt.txt
var synthesisPrompt string

// RenderCodegenSystem renders the script-generation system prompt. PriorCode
// and PriorOutput are empty on the first generation and populated on
// revision passes.
func RenderCodegenSystem(ctx context.Context, docdbBaseURL string, schemaContext []string, priorCode, priorOutput string) (string, error) {
	return render(ctx, codegenSystemPrompt, map[string]any{
		"DocDBBaseURL":  docdbBaseURL,
		"SchemaContext": strings.Join(schemaContext, "\n\n"),
		"PriorCode":     priorCode,
		"PriorOutput":   priorOutput,
	})
}

// RenderRunDecision renders the execute-or-summarize decision prompt.
func RenderRunDecision(ctx context.Context, query, scriptCode string) (string, error) {
	return render(ctx, runDecisionPrompt, map[string]any{
		"Query":      query,
		"ScriptCode": scriptCode,
	})
}

// RenderSummarizer renders the no-execution presentation prompt.
func RenderSummarizer(ctx context.Context, query, scriptCode string) (string, error) {
	return render(ctx, summarizerPrompt, map[string]any{
		"Query":      query,
		"ScriptCode": scriptCode,
	})
}

// RenderRevision renders the revise-or-finalize decision prompt.
func RenderRevision(ctx context.Context, query, scriptCode, scriptOutput string, runCount, maxRuns int) (string, error) {
	return render(ctx, revisionPrompt, map[string]any{
		"Query":        query,
		"ScriptCode":   scriptCode,
		"ScriptOutput": scriptOutput,
		"RunCount":     runCount,
		"MaxRuns":      maxRuns,
	})
}

// RenderSynthesis renders the final-answer prompt for the executed-script path.
func RenderSynthesis(ctx context.Context, query, scriptCode, scriptOutput string) (string, error) {
	return render(ctx, synthesisPrompt, map[string]any{
		"Query":        query,
		"ScriptCode":   scriptCode,
		"ScriptOutput": scriptOutput,
	})
}
