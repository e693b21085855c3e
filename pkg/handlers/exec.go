package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/psantana5/worker-metadata/pkg/logging"
	"github.com/psantana5/worker-metadata/pkg/models"
)

const maxStderrInError = 2048

// execHandler runs an external program per job. The job is written to stdin
// as JSON; stdout is decoded as JSON, or returned as a trimmed string when it is not.
type execHandler struct {
	path    string
	args    []string
	timeout time.Duration
	logger  *logging.Logger
}

func newExecHandler(opts Options) (Handler, error) {
	if len(opts.Command) == 0 || opts.Command[0] == "" {
		return nil, fmt.Errorf("%w: exec handler requires a command", ErrHandlerUnavailable)
	}

	path, err := exec.LookPath(opts.Command[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandlerUnavailable, err)
	}

	return &execHandler{
		path:    path,
		args:    opts.Command[1:],
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}, nil
}

func (h *execHandler) Handle(ctx context.Context, job models.Job) (models.Result, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.path, h.args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	h.logger.Debug("running exec handler", logging.Fields{"job_id": job.ID(), "path": h.path})

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderrInError {
			msg = msg[len(msg)-maxStderrInError:]
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("handler exited with code %d: %s", exitErr.ExitCode(), msg)
		}
		return nil, fmt.Errorf("failed to run handler: %w", err)
	}

	return decodeOutput(stdout.Bytes()), nil
}

// decodeOutput parses JSON output, falling back to the raw text
func decodeOutput(out []byte) models.Result {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil
	}

	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&v); err == nil && !dec.More() {
		return v
	}
	return string(trimmed)
}
