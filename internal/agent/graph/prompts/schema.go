// Package prompts renders the system prompts for every model-backed node via
// the Eino prompt component so prompt callbacks fire on each render.
package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/schema_prompt.txt
var schemaSystemPrompt string

//go:embed template/schema_doc.txt
var defaultSchemaDoc string

// LoadSchemaDoc returns the metadata schema description document, read once
// at startup. An empty path selects the embedded default.
func LoadSchemaDoc(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return defaultSchemaDoc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read schema doc %s: %w", path, err)
	}
	return string(b), nil
}

// render formats a Go-template system prompt through the Eino prompt
// component and returns the resulting content.
func render(ctx context.Context, tplText string, vars map[string]any) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(tplText),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// RenderSchemaSystem renders the schema-context system prompt around the
// loaded schema document.
func RenderSchemaSystem(ctx context.Context, schemaDoc string) (string, error) {
	return render(ctx, schemaSystemPrompt, map[string]any{
		"SchemaDoc": schemaDoc,
	})
}
