package parsers

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// basic safety limit for pipeline/filter documents
const maxDocumentLen = 256 * 1024 // 256KB

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, and returns the inner text.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		// drop a language tag like "json" on the fence line
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 16 && !strings.ContainsAny(first, "[{") {
			s = s[idx:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParsePipeline extracts a MongoDB aggregation pipeline from model text. The
// text may be fenced and may use extended JSON operators ($match, $unwind,
// $group, ...). The result is the pipeline as a bson.A of stage documents.
func ParsePipeline(content string) (bson.A, error) {
	if len(content) > maxDocumentLen {
		return nil, fmt.Errorf("pipeline too large")
	}
	s := stripFences(content)
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no pipeline array found")
	}
	s = s[start : end+1]

	// UnmarshalExtJSON wants a document, so wrap the array.
	var doc struct {
		Pipeline bson.A `bson:"pipeline"`
	}
	wrapped := `{"pipeline":` + s + `}`
	if err := bson.UnmarshalExtJSON([]byte(wrapped), false, &doc); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	for i, stage := range doc.Pipeline {
		if _, ok := stage.(bson.D); !ok {
			return nil, fmt.Errorf("pipeline stage %d is not a document", i)
		}
	}
	return doc.Pipeline, nil
}

// ParseFilter extracts a MongoDB filter document from model text.
func ParseFilter(content string) (bson.M, error) {
	if len(content) > maxDocumentLen {
		return nil, fmt.Errorf("filter too large")
	}
	s := stripFences(content)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no filter document found")
	}
	s = s[start : end+1]

	var filter bson.M
	if err := bson.UnmarshalExtJSON([]byte(s), false, &filter); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	return filter, nil
}
