// Package tools exposes the metadata document store to the aggregation model
// as Eino tools. Tool handlers never fail hard on store errors: failures are
// serialized into the tool result so the model can revise its query.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/metachat-core-poc/server/internal/agent/graph/parsers"
)

const (
	ToolAggregationRetrieval = "aggregation_retrieval"
	ToolGetRecords           = "get_records"
	ToolCountDocuments       = "count_documents"
)

// MetadataStore is the slice of the docdb client the tools need. Tests
// substitute a fake.
type MetadataStore interface {
	Aggregate(ctx context.Context, pipeline bson.A) ([]json.RawMessage, error)
	Find(ctx context.Context, filter, projection bson.M, limit int) ([]json.RawMessage, error)
	Count(ctx context.Context, filter bson.M) (int64, error)
}

// ===================================
// Aggregation Retrieval Tool
// ===================================

type AggregationInput struct {
	Pipeline string `json:"pipeline"`
}

type AggregationOutput struct {
	Results []json.RawMessage `json:"results"`
	Total   int               `json:"total"`
	Error   string            `json:"error,omitempty"`
}

func createAggregationTool(store MetadataStore) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolAggregationRetrieval,
			Desc: "Run a MongoDB aggregation pipeline against the metadata document store. The pipeline is a JSON array of stage documents, e.g. [{\"$match\": {\"name\": {\"$regex\": \"SmartSPIM\", \"$options\": \"i\"}}}, {\"$count\": \"total\"}]. Always $unwind array fields before grouping.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"pipeline": {
					Type:     "string",
					Desc:     "Aggregation pipeline as a JSON array of stage documents. Extended JSON operators ($match, $unwind, $group, $project, $limit, $count) are supported.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *AggregationInput) (*AggregationOutput, error) {
			pipeline, err := parsers.ParsePipeline(in.Pipeline)
			if err != nil {
				return &AggregationOutput{Error: fmt.Sprintf("invalid pipeline: %v", err)}, nil
			}
			results, err := store.Aggregate(ctx, pipeline)
			if err != nil {
				return &AggregationOutput{Error: err.Error()}, nil
			}
			return &AggregationOutput{Results: results, Total: len(results)}, nil
		},
	)
}

// ===================================
// Get Records Tool
// ===================================

type GetRecordsInput struct {
	Filter     string `json:"filter"`
	Projection string `json:"projection,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type GetRecordsOutput struct {
	Records []json.RawMessage `json:"records"`
	Total   int               `json:"total"`
	Error   string            `json:"error,omitempty"`
}

func createGetRecordsTool(store MetadataStore) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetRecords,
			Desc: "Retrieve metadata documents matching a filter. Use a projection to select only needed fields and always set a limit (default 10, max 50).",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"filter": {
					Type:     "string",
					Desc:     "Filter as a JSON document, e.g. {\"subject.subject_id\": \"662616\"}.",
					Required: true,
				},
				"projection": {
					Type: "string",
					Desc: "Optional projection as a JSON document, e.g. {\"name\": 1, \"session.session_type\": 1}.",
				},
				"limit": {
					Type: "number",
					Desc: "Maximum number of documents to return (default: 10, max: 50).",
				},
			}),
		},
		func(ctx context.Context, in *GetRecordsInput) (*GetRecordsOutput, error) {
			filter, err := parsers.ParseFilter(in.Filter)
			if err != nil {
				return &GetRecordsOutput{Error: fmt.Sprintf("invalid filter: %v", err)}, nil
			}
			var projection bson.M
			if in.Projection != "" {
				if projection, err = parsers.ParseFilter(in.Projection); err != nil {
					return &GetRecordsOutput{Error: fmt.Sprintf("invalid projection: %v", err)}, nil
				}
			}
			limit := in.Limit
			if limit <= 0 {
				limit = 10
			}
			if limit > 50 {
				limit = 50
			}
			records, err := store.Find(ctx, filter, projection, limit)
			if err != nil {
				return &GetRecordsOutput{Error: err.Error()}, nil
			}
			return &GetRecordsOutput{Records: records, Total: len(records)}, nil
		},
	)
}

// ===================================
// Count Documents Tool
// ===================================

type CountDocumentsInput struct {
	Filter string `json:"filter"`
}

type CountDocumentsOutput struct {
	Count int64  `json:"count"`
	Error string `json:"error,omitempty"`
}

func createCountDocumentsTool(store MetadataStore) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolCountDocuments,
			Desc: "Count metadata documents matching a filter. Cheaper than retrieving records when only a count is needed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"filter": {
					Type:     "string",
					Desc:     "Filter as a JSON document. Use {} to count every document.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *CountDocumentsInput) (*CountDocumentsOutput, error) {
			filter, err := parsers.ParseFilter(in.Filter)
			if err != nil {
				return &CountDocumentsOutput{Error: fmt.Sprintf("invalid filter: %v", err)}, nil
			}
			count, err := store.Count(ctx, filter)
			if err != nil {
				return &CountDocumentsOutput{Error: err.Error()}, nil
			}
			return &CountDocumentsOutput{Count: count}, nil
		},
	)
}
