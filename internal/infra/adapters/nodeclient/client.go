// Package nodeclient is the controller's HTTP client for the worker API.
package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/adapter"
	"gpu-notebook-bridge/internal/infra/api/apiv1"
	"gpu-notebook-bridge/internal/infra/security"
)

var _ adapter.NodeClient = (*Client)(nil)

// Client carries no timeout of its own: every call is bounded by ctx.
type Client struct {
	http   *http.Client
	tokens *security.TokenManager
}

func New(httpClient *http.Client, tokens *security.TokenManager) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{http: httpClient, tokens: tokens}
}

// StatusError is a non-2xx reply. It unwraps to the matching domain error.
type StatusError struct {
	Code     int
	Message  string
	conflict error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return domain.ErrInvalidArgument
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return e.conflict
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case http.StatusServiceUnavailable:
		return domain.ErrQueueFull
	default:
		return nil
	}
}

func (c *Client) Health(ctx context.Context, baseURL string) (model.HealthStatus, error) {
	var out apiv1.Health
	if err := c.do(ctx, http.MethodGet, baseURL, "/health", nil, &out, nil); err != nil {
		return model.HealthStatus{}, err
	}
	return out.Model(), nil
}

func (c *Client) Info(ctx context.Context, baseURL string) (model.NodeInfo, error) {
	var out model.NodeInfo
	err := c.do(ctx, http.MethodGet, baseURL, "/info", nil, &out, nil)
	return out, err
}

func (c *Client) Resources(ctx context.Context, baseURL string) (model.ResourceSnapshot, error) {
	var out apiv1.Resources
	if err := c.do(ctx, http.MethodGet, baseURL, "/resources", nil, &out, nil); err != nil {
		return model.ResourceSnapshot{}, err
	}
	return out.Model(), nil
}

func (c *Client) StartTraining(ctx context.Context, baseURL string, req model.TrainRequest) (adapter.TrainAccepted, error) {
	var out apiv1.TrainAccepted
	if err := c.do(ctx, http.MethodPost, baseURL, "/train", req, &out, domain.ErrAlreadyExists); err != nil {
		return adapter.TrainAccepted{}, err
	}
	return adapter.TrainAccepted{Status: out.Status, JobID: out.JobID, Message: out.Message}, nil
}

func (c *Client) JobStatus(ctx context.Context, baseURL, jobID string) (*model.WorkerJobRecord, error) {
	var out apiv1.JobRecord
	if err := c.do(ctx, http.MethodGet, baseURL, "/job/"+url.PathEscape(jobID)+"/status", nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Model(), nil
}

func (c *Client) CancelJob(ctx context.Context, baseURL, jobID string) (*model.WorkerJobRecord, error) {
	var out apiv1.JobRecord
	if err := c.do(ctx, http.MethodPost, baseURL, "/job/"+url.PathEscape(jobID)+"/cancel", nil, &out, domain.ErrInvalidTransition); err != nil {
		return nil, err
	}
	return out.Model(), nil
}

func (c *Client) do(ctx context.Context, method, baseURL, path string, in, out any, conflict error) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens.Enabled() {
		tok, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Code: resp.StatusCode, conflict: conflict}
		var eb apiv1.ErrorResponse
		if raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); len(raw) > 0 {
			if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
				se.Message = eb.Error
			} else {
				se.Message = string(raw)
			}
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// IsStatus reports whether err is a worker reply with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
