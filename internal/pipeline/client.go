// Package pipeline fetches run artifacts from the upstream analysis pipeline.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// Sentinel errors for pipeline client failures.
var (
	ErrRunNotFound         = errors.New("run not found in pipeline")
	ErrPipelineUnreachable = errors.New("pipeline unreachable")
	ErrPipelineTimeout     = errors.New("pipeline request timeout")
	ErrPipelineResponse    = errors.New("pipeline returned an unexpected response")
)

// maxArtifactBytes caps the artifact body read from the pipeline.
const maxArtifactBytes = 32 << 20

// Client is the interface for reading run artifacts from the pipeline.
type Client interface {
	FetchArtifact(ctx context.Context, runID uuid.UUID) (*models.RunArtifact, error)
	Ready(ctx context.Context) error
}

// HTTPClient implements Client over the pipeline's HTTP API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a new pipeline HTTP client.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchArtifact downloads the artifact for one run. The returned artifact's
// RunID is always the requested id; tenant and timestamps are left to the caller.
func (c *HTTPClient) FetchArtifact(ctx context.Context, runID uuid.UUID) (*models.RunArtifact, error) {
	u := fmt.Sprintf("%s/api/runs/%s/artifact", c.baseURL, runID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrPipelineUnreachable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrPipelineResponse, resp.StatusCode)
	}

	var artifact models.RunArtifact
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxArtifactBytes)).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("%w: decoding artifact: %v", ErrPipelineResponse, err)
	}
	artifact.RunID = runID

	return &artifact, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/ready", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPipelineUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: pipeline not ready (status %d)", ErrPipelineUnreachable, resp.StatusCode)
	}

	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrPipelineTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrPipelineTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrPipelineUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
