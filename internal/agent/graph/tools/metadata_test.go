package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// fakeStore records the last call and returns canned data.
type fakeStore struct {
	lastPipeline bson.A
	lastFilter   bson.M
	lastLimit    int
	results      []json.RawMessage
	count        int64
	err          error
}

func (f *fakeStore) Aggregate(ctx context.Context, pipeline bson.A) ([]json.RawMessage, error) {
	f.lastPipeline = pipeline
	return f.results, f.err
}

func (f *fakeStore) Find(ctx context.Context, filter, projection bson.M, limit int) ([]json.RawMessage, error) {
	f.lastFilter = filter
	f.lastLimit = limit
	return f.results, f.err
}

func (f *fakeStore) Count(ctx context.Context, filter bson.M) (int64, error) {
	f.lastFilter = filter
	return f.count, f.err
}

func invoke(t *testing.T, bt tool.BaseTool, args string) string {
	t.Helper()
	inv, ok := bt.(tool.InvokableTool)
	require.True(t, ok)
	out, err := inv.InvokableRun(context.Background(), args)
	require.NoError(t, err)
	return out
}

func findTool(t *testing.T, ts []tool.BaseTool, name string) tool.BaseTool {
	t.Helper()
	for _, bt := range ts {
		info, err := bt.Info(context.Background())
		require.NoError(t, err)
		if info.Name == name {
			return bt
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func TestGetQueryTools(t *testing.T) {
	ts := GetQueryTools(&fakeStore{})
	require.Len(t, ts, 3)

	infos, err := GetToolInfos(context.Background(), ts)
	require.NoError(t, err)

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.ElementsMatch(t, []string{ToolAggregationRetrieval, ToolGetRecords, ToolCountDocuments}, names)
}

func TestAggregationTool(t *testing.T) {
	store := &fakeStore{results: []json.RawMessage{json.RawMessage(`{"total": 7}`)}}
	bt := findTool(t, GetQueryTools(store), ToolAggregationRetrieval)

	out := invoke(t, bt, `{"pipeline": "[{\"$count\": \"total\"}]"}`)

	var result AggregationOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Empty(t, result.Error)
	assert.Equal(t, 1, result.Total)
	require.Len(t, store.lastPipeline, 1)
}

func TestAggregationToolInvalidPipelineIsData(t *testing.T) {
	bt := findTool(t, GetQueryTools(&fakeStore{}), ToolAggregationRetrieval)

	out := invoke(t, bt, `{"pipeline": "this is not json"}`)

	var result AggregationOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Contains(t, result.Error, "invalid pipeline")
}

func TestAggregationToolStoreErrorIsData(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("metadata store request failed")}
	bt := findTool(t, GetQueryTools(store), ToolAggregationRetrieval)

	out := invoke(t, bt, `{"pipeline": "[{\"$limit\": 1}]"}`)

	var result AggregationOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Contains(t, result.Error, "metadata store request failed")
}

func TestGetRecordsToolClampsLimit(t *testing.T) {
	store := &fakeStore{}
	bt := findTool(t, GetQueryTools(store), ToolGetRecords)

	invoke(t, bt, `{"filter": "{}", "limit": 500}`)
	assert.Equal(t, 50, store.lastLimit)

	invoke(t, bt, `{"filter": "{}"}`)
	assert.Equal(t, 10, store.lastLimit)
}

func TestGetRecordsToolParsesFilter(t *testing.T) {
	store := &fakeStore{results: []json.RawMessage{json.RawMessage(`{"name": "x"}`)}}
	bt := findTool(t, GetQueryTools(store), ToolGetRecords)

	out := invoke(t, bt, `{"filter": "{\"subject.subject_id\": \"662616\"}", "limit": 3}`)

	var result GetRecordsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Empty(t, result.Error)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, "662616", store.lastFilter["subject.subject_id"])
}

func TestCountDocumentsTool(t *testing.T) {
	store := &fakeStore{count: 347}
	bt := findTool(t, GetQueryTools(store), ToolCountDocuments)

	out := invoke(t, bt, `{"filter": "{}"}`)

	var result CountDocumentsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Empty(t, result.Error)
	assert.Equal(t, int64(347), result.Count)
}
