// Package sandbox is a pass-through client for the script execution service.
// Execution failures (nonzero exit, stderr output) are returned as data so the
// revision node can react to them; only transport-level problems are errors.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errx "github.com/metachat-core-poc/server/internal/core/error"
)

// RunResult is the outcome of one script execution.
type RunResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

// Succeeded reports whether the script exited cleanly.
func (r RunResult) Succeeded() bool {
	return r.ExitCode == 0
}

// Summary renders the result as text for model consumption.
func (r RunResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "exit code: %d\n", r.ExitCode)
	if out := strings.TrimSpace(r.Stdout); out != "" {
		b.WriteString("stdout:\n" + out + "\n")
	}
	if errOut := strings.TrimSpace(r.Stderr); errOut != "" {
		b.WriteString("stderr:\n" + errOut + "\n")
	}
	return strings.TrimSpace(b.String())
}

// Client calls the script execution service.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a sandbox client.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("sandbox base url is empty")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		// Allow headroom over the execution timeout for transport overhead.
		httpClient: &http.Client{Timeout: timeout + 10*time.Second},
	}, nil
}

type executeRequest struct {
	Language       string `json:"language"`
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Run submits a script and waits for its result.
func (c *Client) Run(ctx context.Context, code string) (RunResult, error) {
	reqBody := executeRequest{
		Language:       "python",
		Code:           code,
		TimeoutSeconds: int(c.timeout.Seconds()),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return RunResult{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/executions", bytes.NewReader(payload))
	if err != nil {
		return RunResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return RunResult{}, errx.WrapSandbox(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return RunResult{}, errx.WrapSandbox(
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		)
	}

	var result RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return RunResult{}, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}
