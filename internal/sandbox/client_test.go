package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/metachat-core-poc/server/internal/core/error"
)

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("", time.Minute)
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	var gotReq executeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/executions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReq))

		io.WriteString(w, `{"stdout": "42\n", "stderr": "", "exit_code": 0, "duration_ms": 120}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, 30*time.Second)
	require.NoError(t, err)

	result, err := c.Run(context.Background(), "print(42)")
	require.NoError(t, err)

	assert.Equal(t, "python", gotReq.Language)
	assert.Equal(t, "print(42)", gotReq.Code)
	assert.Equal(t, 30, gotReq.TimeoutSeconds)

	assert.True(t, result.Succeeded())
	assert.Equal(t, "exit code: 0\nstdout:\n42", result.Summary())
}

func TestRunNonzeroExitIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"stdout": "", "stderr": "KeyError: 'session'", "exit_code": 1, "duration_ms": 80}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Minute)
	require.NoError(t, err)

	result, err := c.Run(context.Background(), "raise KeyError('session')")
	require.NoError(t, err)

	assert.False(t, result.Succeeded())
	assert.Contains(t, result.Summary(), "KeyError")
	assert.Contains(t, result.Summary(), "exit code: 1")
}

func TestRunServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sandbox unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Minute)
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "print(1)")
	require.Error(t, err)

	var appErr *errx.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
	assert.Contains(t, err.Error(), "sandbox unavailable")
}

func TestRunTransportError(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", time.Minute)
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "print(1)")
	require.Error(t, err)

	var appErr *errx.AppError
	assert.True(t, errors.As(err, &appErr))
}
