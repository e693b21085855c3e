package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/psantana5/worker-metadata/pkg/logging"
	"github.com/psantana5/worker-metadata/pkg/models"
)

// httpHandler forwards each job to a downstream HTTP service as a JSON POST
type httpHandler struct {
	url        string
	httpClient *http.Client
	logger     *logging.Logger
}

func newHTTPHandler(opts Options) (Handler, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: http handler requires an absolute URL, got %q", ErrHandlerUnavailable, opts.URL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &httpHandler{
		url: u.String(),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: opts.Logger,
	}, nil
}

func (h *httpHandler) Handle(ctx context.Context, job models.Job) (models.Result, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	h.logger.Debug("forwarding job", logging.Fields{"job_id": job.ID(), "url": h.url})

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send job: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("handler returned status %d: %s", resp.StatusCode, string(bytes.TrimSpace(body)))
	}

	return decodeOutput(body), nil
}
