package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/metachat-core-poc/server/internal/agent/graph/conversations"
	"github.com/metachat-core-poc/server/internal/agent/graph/nodes"
	"github.com/metachat-core-poc/server/internal/agent/graph/tools"
	"github.com/metachat-core-poc/server/internal/agent/model"
	"github.com/metachat-core-poc/server/internal/sandbox"
)

// stubModel returns scripted replies in order. WithTools returns the same
// stub, so one instance serves both the plain and the tool-bound roles.
type stubModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	calls   [][]*schema.Message
}

func (s *stubModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, input)
	if len(s.replies) == 0 {
		return nil, fmt.Errorf("stub model exhausted after %d calls", len(s.calls))
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *stubModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("streaming not supported by stub")
}

func (s *stubModel) WithTools(ts []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return s, nil
}

// fakeRepo is an in-memory conversation repository.
type fakeRepo struct {
	mu       sync.Mutex
	messages map[string][]*schema.Message
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{messages: map[string][]*schema.Message{}}
}

func (f *fakeRepo) AddMessage(ctx context.Context, conversationID string, message *schema.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[conversationID] = append(f.messages[conversationID], message)
	return nil
}

func (f *fakeRepo) LoadHistory(ctx context.Context, conversationID string) (*model.ConversationHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &model.ConversationHistory{
		ConversationID: conversationID,
		Messages:       f.messages[conversationID],
	}, nil
}

func (f *fakeRepo) ClearHistory(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, conversationID)
	return nil
}

func (f *fakeRepo) GetMessageCount(ctx context.Context, conversationID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[conversationID]), nil
}

// fakeStore returns canned aggregation results.
type fakeStore struct {
	mu    sync.Mutex
	calls int
	count int64
}

func (f *fakeStore) Aggregate(ctx context.Context, pipeline bson.A) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []json.RawMessage{json.RawMessage(`{"total": 7}`)}, nil
}

func (f *fakeStore) Find(ctx context.Context, filter, projection bson.M, limit int) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, nil
}

func (f *fakeStore) Count(ctx context.Context, filter bson.M) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.count, nil
}

// fakeExecutor records script executions.
type fakeExecutor struct {
	mu      sync.Mutex
	scripts []string
	results []sandbox.RunResult
}

func (f *fakeExecutor) Run(ctx context.Context, code string) (sandbox.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, code)
	if len(f.results) == 0 {
		return sandbox.RunResult{Stdout: "ok", ExitCode: 0}, nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result, nil
}

type testEnv struct {
	router   *stubModel
	worker   *stubModel
	repo     *fakeRepo
	store    *fakeStore
	executor *fakeExecutor
	runner   Runner
}

func buildTestGraph(t *testing.T, router, worker *stubModel) *testEnv {
	t.Helper()

	env := &testEnv{
		router:   router,
		worker:   worker,
		repo:     newFakeRepo(),
		store:    &fakeStore{count: 347},
		executor: &fakeExecutor{},
	}

	var convCfg model.ConversationConfig
	convCfg.History.MaxTurns = 6

	cms := &nodes.ChatModels{
		Router:          router,
		Worker:          worker,
		RouterModelName: "stub-router",
		WorkerModelName: "stub-worker",
	}

	runnable, err := BuildGraph(context.Background(), &GraphConfig{
		ChatModels:      cms,
		MessagesManager: conversations.NewMessagesManager(env.repo, convCfg),
		MetadataStore:   env.store,
		ScriptExecutor:  env.executor,
		SchemaDoc:       "subject.subject_id: string identifier",
		DocDBBaseURL:    "http://docdb.test",
		MongoMaxCalls:   4,
		ScriptMaxRuns:   2,
	})
	require.NoError(t, err)

	env.runner = &graphRunner{runnable: runnable}
	return env
}

func assistant(content string) *schema.Message {
	return schema.AssistantMessage(content, nil)
}

func toolCall(name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call_1",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func TestGraphMongoRoute(t *testing.T) {
	router := &stubModel{replies: []*schema.Message{
		assistant("mongodb"),
	}}
	worker := &stubModel{replies: []*schema.Message{
		assistant("subject_id is the primary identifier"),                   // schema context
		toolCall(tools.ToolCountDocuments, `{"filter": "{}"}`),              // query model asks for a count
		assistant("There are 347 experiments in the metadata store."),       // final answer
	}}

	env := buildTestGraph(t, router, worker)

	ans, err := env.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-mongo",
		Query:          "How many experiments are there?",
	})
	require.NoError(t, err)

	assert.Equal(t, model.SignalRouteMongo, ans.Route)
	assert.Contains(t, ans.Content, "347")
	assert.Equal(t, 1, env.store.calls)
	assert.Empty(t, env.executor.scripts)

	// user question and final answer persisted
	history, err := env.repo.LoadHistory(context.Background(), "conv-mongo")
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, schema.User, history.Messages[0].Role)
	assert.Equal(t, schema.Assistant, history.Messages[1].Role)

	// trace covers routing and the tool loop
	traceNodes := make([]string, 0, len(ans.Trace))
	for _, step := range ans.Trace {
		traceNodes = append(traceNodes, step.Node)
	}
	assert.Contains(t, traceNodes, nodes.NodeRouteParser)
	assert.Contains(t, traceNodes, nodes.NodeQueryTools)
}

func TestGraphPythonRouteWithoutExecution(t *testing.T) {
	router := &stubModel{replies: []*schema.Message{
		assistant("python"),
		assistant("summarize"), // explain the script instead of running it
	}}
	worker := &stubModel{replies: []*schema.Message{
		assistant("schema notes"),
		assistant("```python\nprint('hello')\n```"),
		assistant("This script prints hello; run it against the metadata API."),
	}}

	env := buildTestGraph(t, router, worker)

	ans, err := env.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-python",
		Query:          "Write me a script",
	})
	require.NoError(t, err)

	assert.Equal(t, model.SignalRoutePython, ans.Route)
	assert.Contains(t, ans.Content, "prints hello")
	assert.Empty(t, env.executor.scripts, "summarize branch must not execute the script")
	assert.Equal(t, 0, env.store.calls)
}

func TestGraphPythonRouteWithExecution(t *testing.T) {
	router := &stubModel{replies: []*schema.Message{
		assistant("python"),
		assistant("execute"),
		assistant("finalize"),
	}}
	worker := &stubModel{replies: []*schema.Message{
		assistant("schema notes"),
		assistant("```python\nprint(42)\n```"),
		assistant("The script ran and printed 42."),
	}}

	env := buildTestGraph(t, router, worker)

	ans, err := env.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-exec",
		Query:          "Run an analysis",
	})
	require.NoError(t, err)

	assert.Equal(t, model.SignalRoutePython, ans.Route)
	assert.Contains(t, ans.Content, "42")
	require.Len(t, env.executor.scripts, 1)
	assert.Equal(t, "print(42)", env.executor.scripts[0])
}

func TestGraphRevisionLoopStopsAtCap(t *testing.T) {
	// The revision model always asks for another attempt; the run budget
	// (ScriptMaxRuns=2) must still terminate the loop.
	router := &stubModel{replies: []*schema.Message{
		assistant("python"),
		assistant("execute"), // run attempt 1
		assistant("revise"),
		assistant("execute"), // run attempt 2
		assistant("revise"),  // denied: budget spent, forced to finalize
	}}
	worker := &stubModel{replies: []*schema.Message{
		assistant("schema notes"),
		assistant("```python\nbroken()\n```"),
		assistant("```python\nstill_broken()\n```"),
		assistant("The script kept failing; here is what I found anyway."),
	}}

	env := buildTestGraph(t, router, worker)
	env.executor.results = []sandbox.RunResult{
		{Stderr: "NameError: broken", ExitCode: 1},
		{Stderr: "NameError: still_broken", ExitCode: 1},
	}

	ans, err := env.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-revise",
		Query:          "Analyze the sessions",
	})
	require.NoError(t, err)

	assert.Len(t, env.executor.scripts, 2, "run budget must cap executions")
	assert.Contains(t, ans.Content, "kept failing")
	assert.Empty(t, router.replies, "all scripted decisions consumed")
}

func TestGraphUnknownRouteFallsBack(t *testing.T) {
	router := &stubModel{replies: []*schema.Message{
		assistant("sql"), // outside the closed route set
	}}
	worker := &stubModel{replies: []*schema.Message{
		assistant("schema notes"),
	}}

	env := buildTestGraph(t, router, worker)

	ans, err := env.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-unknown",
		Query:          "gibberish request",
	})
	require.NoError(t, err)

	assert.Equal(t, model.SignalRouteUnknown, ans.Route)
	assert.Contains(t, ans.Content, "rephrase")
	assert.Equal(t, 0, env.store.calls)
	assert.Empty(t, env.executor.scripts)

	// The fallback answer is still persisted for conversation continuity.
	history, err := env.repo.LoadHistory(context.Background(), "conv-unknown")
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
}

func TestGraphToolLimitForcesWrapUp(t *testing.T) {
	router := &stubModel{replies: []*schema.Message{
		assistant("mongodb"),
	}}
	// The query model keeps asking for tools until the budget forces a final
	// answer; with MongoMaxCalls=4 the fifth model turn sees the wrap-up
	// notice and must answer from what it has.
	worker := &stubModel{replies: []*schema.Message{
		assistant("schema notes"),
		toolCall(tools.ToolCountDocuments, `{"filter": "{}"}`),
		toolCall(tools.ToolCountDocuments, `{"filter": "{}"}`),
		toolCall(tools.ToolCountDocuments, `{"filter": "{}"}`),
		toolCall(tools.ToolCountDocuments, `{"filter": "{}"}`),
		assistant("Best effort: the store reports 347 documents."),
	}}

	env := buildTestGraph(t, router, worker)

	ans, err := env.runner.Invoke(context.Background(), model.QueryInput{
		ConversationID: "conv-limit",
		Query:          "Keep digging",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, env.store.calls, "tool budget caps store calls")
	assert.Contains(t, ans.Content, "Best effort")
}
