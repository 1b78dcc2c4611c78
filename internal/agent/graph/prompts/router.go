package prompts

import (
	"context"
	_ "embed"
	"strings"
)

//go:embed template/router_prompt.txt
var routerSystemPrompt string

// RenderRouterSystem renders the routing system prompt with the accumulated
// schema context.
func RenderRouterSystem(ctx context.Context, schemaContext []string) (string, error) {
	return render(ctx, routerSystemPrompt, map[string]any{
		"SchemaContext": strings.Join(schemaContext, "\n\n"),
	})
}
