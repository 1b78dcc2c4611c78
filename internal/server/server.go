// Package server exposes the assistant graph over HTTP: a synchronous chat
// endpoint, a websocket stream that relays per-node progress, health, and
// Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/metachat-core-poc/server/internal/agent/graph"
	"github.com/metachat-core-poc/server/internal/agent/graph/observers"
	"github.com/metachat-core-poc/server/internal/agent/model"
	errx "github.com/metachat-core-poc/server/internal/core/error"
	logx "github.com/metachat-core-poc/server/pkg/logger"
)

// ChatRequest is the body of POST /v1/chat and the first frame on the stream.
// An empty conversation_id starts a fresh conversation.
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}

// ChatResponse is the terminal answer for one question.
type ChatResponse struct {
	ConversationID string            `json:"conversation_id"`
	Answer         string            `json:"answer"`
	Route          string            `json:"route"`
	Trace          []model.TraceStep `json:"trace,omitempty"`
	CostUSD        float64           `json:"cost_usd,omitempty"`
}

// StreamFrame is one websocket message: progress while the graph runs, then a
// single answer or error frame.
type StreamFrame struct {
	Type           string            `json:"type"` // progress | answer | error
	Node           string            `json:"node,omitempty"`
	Message        string            `json:"message,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Answer         string            `json:"answer,omitempty"`
	Route          string            `json:"route,omitempty"`
	Trace          []model.TraceStep `json:"trace,omitempty"`
	CostUSD        float64           `json:"cost_usd,omitempty"`
}

// Server is the HTTP surface over the assistant graph.
type Server struct {
	echo     *echo.Echo
	runner   graph.Runner
	upgrader websocket.Upgrader
}

// NewServer wires routes and middleware around the given runner.
func NewServer(runner graph.Runner) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:   e,
		runner: runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/v1/chat", s.handleChat)
	e.GET("/v1/chat/stream", s.handleChatStream)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	logx.Info().Str("addr", addr).Msg("HTTP server listening")
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	start := time.Now()
	ans, err := s.runner.Invoke(c.Request().Context(), model.QueryInput{
		ConversationID: req.ConversationID,
		Query:          req.Query,
	})

	route := "none"
	if ans != nil && ans.Route != "" {
		route = ans.Route.String()
	}

	if err != nil {
		status, message := classifyError(err)
		chatRequestsTotal.WithLabelValues(route, "error").Inc()
		logx.Error().
			Str("conversation_id", req.ConversationID).
			Err(err).
			Msg("Chat request failed")
		return c.JSON(status, map[string]string{"error": message})
	}

	chatRequestsTotal.WithLabelValues(route, "ok").Inc()
	chatRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

	return c.JSON(http.StatusOK, ChatResponse{
		ConversationID: req.ConversationID,
		Answer:         ans.Content,
		Route:          route,
		Trace:          ans.Trace,
		CostUSD:        ans.TotalCostUSD,
	})
}

// handleChatStream answers one question per connection. The client sends a
// single ChatRequest frame, receives progress frames while the graph runs,
// then one answer or error frame.
func (s *Server) handleChatStream(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to upgrade websocket")
		return err
	}
	defer ws.Close()

	activeStreams.Inc()
	defer activeStreams.Dec()

	var mu sync.Mutex
	writeFrame := func(frame StreamFrame) {
		mu.Lock()
		defer mu.Unlock()
		if err := ws.WriteJSON(frame); err != nil {
			logx.Warn().Err(err).Msg("Failed to write stream frame")
		}
	}

	var req ChatRequest
	if err := ws.ReadJSON(&req); err != nil {
		writeFrame(StreamFrame{Type: "error", Message: "invalid request frame"})
		return nil
	}
	if req.Query == "" {
		writeFrame(StreamFrame{Type: "error", Message: "query is required"})
		return nil
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	// Progress events fire from the graph's goroutines; writeFrame serializes
	// the socket writes.
	progress := observers.NewProgressCallbacks(func(ev observers.Event) {
		writeFrame(StreamFrame{Type: "progress", Node: ev.Node, Message: ev.Message})
	})

	start := time.Now()
	ans, err := s.runner.Invoke(c.Request().Context(), model.QueryInput{
		ConversationID: req.ConversationID,
		Query:          req.Query,
	}, compose.WithCallbacks(progress))

	route := "none"
	if ans != nil && ans.Route != "" {
		route = ans.Route.String()
	}

	if err != nil {
		_, message := classifyError(err)
		chatRequestsTotal.WithLabelValues(route, "error").Inc()
		logx.Error().
			Str("conversation_id", req.ConversationID).
			Err(err).
			Msg("Chat stream failed")
		writeFrame(StreamFrame{Type: "error", Message: message})
		return nil
	}

	chatRequestsTotal.WithLabelValues(route, "ok").Inc()
	chatRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

	writeFrame(StreamFrame{
		Type:           "answer",
		ConversationID: req.ConversationID,
		Answer:         ans.Content,
		Route:          route,
		Trace:          ans.Trace,
		CostUSD:        ans.TotalCostUSD,
	})

	return nil
}

// classifyError maps graph errors onto an HTTP status and a safe message.
func classifyError(err error) (int, string) {
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Message
	}
	return http.StatusInternalServerError, errx.SystemErrorMessage
}
