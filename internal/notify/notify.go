// Package notify reports job progress to the backend.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/siderolabs/go-retry/retry"
	"go.uber.org/zap"
)

// Status is the job state reported to the backend.
type Status string

const (
	StatusRunning   Status = "running"
	StatusAnalysing Status = "analysing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRetryBudget   = 30 * time.Second
	defaultRetryInterval = 2 * time.Second
)

// Sender is implemented by anything that can report a status.
type Sender interface {
	Send(ctx context.Context, status Status) error
}

// Notifier posts status updates for one project.
type Notifier struct {
	BackendURL string
	ProjectID  int
	Token      string

	Client        *http.Client
	RetryBudget   time.Duration
	RetryInterval time.Duration
	Logger        *zap.SugaredLogger
}

// Options configures New.
type Options struct {
	BackendURL string
	ProjectID  int
	Token      string
	Client     *http.Client
	Logger     *zap.SugaredLogger
}

// New returns a Notifier. An empty token yields a disabled notifier whose
// Send is a no-op.
func New(opts Options) *Notifier {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Notifier{
		BackendURL:    strings.TrimRight(opts.BackendURL, "/"),
		ProjectID:     opts.ProjectID,
		Token:         opts.Token,
		Client:        client,
		RetryBudget:   defaultRetryBudget,
		RetryInterval: defaultRetryInterval,
		Logger:        logger,
	}
}

// Enabled reports whether updates are sent at all.
func (n *Notifier) Enabled() bool {
	return n != nil && n.Token != "" && n.ProjectID > 0
}

// URL returns the endpoint updates are posted to.
func (n *Notifier) URL() string {
	return fmt.Sprintf("%s/resultupload/%d/", n.BackendURL, n.ProjectID)
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend responded %d", e.Code)
	}
	return fmt.Sprintf("backend responded %d: %s", e.Code, e.Body)
}

// Send posts {"status": status}. Transport errors and 5xx responses are
// retried at a constant interval within the retry budget; 4xx responses
// fail immediately. Failures are logged and returned.
func (n *Notifier) Send(ctx context.Context, status Status) error {
	if !n.Enabled() {
		return nil
	}

	n.Logger.Infow("sending status update", "project_id", n.ProjectID, "status", status)

	body, err := json.Marshal(map[string]Status{"status": status})
	if err != nil {
		return err
	}

	err = retry.Constant(n.RetryBudget, retry.WithUnits(n.RetryInterval)).
		RetryWithContext(ctx, func(ctx context.Context) error {
			sendErr := n.post(ctx, body)
			if sendErr == nil {
				return nil
			}
			var se *StatusError
			if errors.As(sendErr, &se) && se.Code < http.StatusInternalServerError {
				return sendErr
			}
			n.Logger.Debugw("status update attempt failed", "project_id", n.ProjectID, "error", sendErr)
			return retry.ExpectedError(sendErr)
		})
	if err != nil {
		n.Logger.Errorw("status update failed", "project_id", n.ProjectID, "status", status, "error", err)
		return fmt.Errorf("send %s update for project %d: %w", status, n.ProjectID, err)
	}

	n.Logger.Infow("status update sent", "project_id", n.ProjectID, "status", status)
	return nil
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+n.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
