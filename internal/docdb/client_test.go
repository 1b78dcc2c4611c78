package docdb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	errx "github.com/metachat-core-poc/server/internal/core/error"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:    srv.URL,
		Database:   "metadata_index",
		Collection: "data_assets",
		APIKey:     "test-key",
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestAggregate(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"results": [{"total": 12}]}`)
	})

	pipeline := bson.A{bson.D{{Key: "$count", Value: "total"}}}
	results, err := c.Aggregate(context.Background(), pipeline)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.JSONEq(t, `{"total": 12}`, string(results[0]))

	assert.Equal(t, "/v1/aggregation", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "metadata_index", gotBody["database"])
	assert.Equal(t, "data_assets", gotBody["collection"])
	assert.Len(t, gotBody["pipeline"], 1)
}

func TestFind(t *testing.T) {
	var gotBody map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/find", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		io.WriteString(w, `{"results": [{"name": "SmartSPIM_662616"}, {"name": "SmartSPIM_662617"}]}`)
	})

	results, err := c.Find(context.Background(),
		bson.M{"subject.subject_id": "662616"},
		bson.M{"name": 1},
		5,
	)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.EqualValues(t, 5, gotBody["limit"])
}

func TestCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/count", r.URL.Path)
		io.WriteString(w, `{"count": 347}`)
	})

	count, err := c.Count(context.Background(), bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(347), count)
}

func TestPostNonOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pipeline stage not allowed", http.StatusBadRequest)
	})

	_, err := c.Aggregate(context.Background(), bson.A{})
	require.Error(t, err)

	var appErr *errx.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Contains(t, err.Error(), "pipeline stage not allowed")
}

func TestPostTransportError(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = c.Count(context.Background(), bson.M{})
	require.Error(t, err)

	var appErr *errx.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}

func TestPostDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json at all")
	})

	_, err := c.Find(context.Background(), bson.M{}, nil, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}
