package errx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := New(cause, http.StatusBadGateway, DocDBErrorMessage)

	assert.Contains(t, err.Error(), DocDBErrorMessage)
	assert.Contains(t, err.Error(), "connection reset")
	assert.True(t, errors.Is(err, cause))

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}

func TestWrapRedis(t *testing.T) {
	assert.NoError(t, WrapRedis(nil))

	var appErr *AppError

	err := WrapRedis(redis.Nil)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, RedisNotFoundMessage, appErr.Message)

	err = WrapRedis(fmt.Errorf("broken pipe"))
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}

func TestWrapDocDB(t *testing.T) {
	assert.NoError(t, WrapDocDB(nil, 0))

	var appErr *AppError

	err := WrapDocDB(fmt.Errorf("status 400"), http.StatusBadRequest)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadRequest, appErr.Status)

	err = WrapDocDB(fmt.Errorf("dial tcp: refused"), 0)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}

func TestWrapSandbox(t *testing.T) {
	assert.NoError(t, WrapSandbox(nil))

	var appErr *AppError
	err := WrapSandbox(fmt.Errorf("timeout"))
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
	assert.Equal(t, SandboxErrorMessage, appErr.Message)
}
