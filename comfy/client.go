package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// StatusSuccess is reported by the history endpoint for a finished job.
	StatusSuccess = "success"
	// StatusError is reported by the history endpoint for a failed job.
	StatusError = "error"

	maxErrorBody = 512
)

// Client talks to the render server's job queue.  The server runs one job at a time; the
// client only submits and inspects, it never schedules.
type Client struct {
	addr       string
	clientID   string
	httpClient *http.Client
}

// Options configures a Client.
type Options struct {
	Addr    string
	Timeout time.Duration
	// ClientID identifies this process to the server.  Generated when empty.
	ClientID   string
	HTTPClient *http.Client
}

// NewClient creates a new render queue client.
func NewClient(opts Options) (*Client, error) {
	addr := strings.TrimRight(strings.TrimSpace(opts.Addr), "/")
	if addr == "" {
		return nil, errors.New("render server address is required")
	}
	if _, err := url.Parse(addr); err != nil {
		return nil, errors.Wrapf(err, "invalid render server address %s", addr)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "batch_" + uuid.NewString()
	}

	return &Client{
		addr:       addr,
		clientID:   clientID,
		httpClient: httpClient,
	}, nil
}

// ClientID returns the identifier sent with every submission.
func (c *Client) ClientID() string {
	return c.clientID
}

type submitRequest struct {
	Prompt   interface{} `json:"prompt"`
	ClientID string      `json:"client_id"`
}

type submitResponse struct {
	PromptID   string          `json:"prompt_id"`
	Number     int             `json:"number"`
	NodeErrors json.RawMessage `json:"node_errors,omitempty"`
}

// Submit queues a job description and returns the job id assigned by the server.
func (c *Client) Submit(ctx context.Context, job interface{}) (string, error) {
	body, err := json.Marshal(submitRequest{Prompt: job, ClientID: c.clientID})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal job")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to create submit request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to submit job")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("submit", resp)
	}

	var respData submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", errors.Wrap(err, "failed to decode submit response")
	}
	if respData.PromptID == "" {
		return "", errors.New("submit response missing prompt_id")
	}
	return respData.PromptID, nil
}

// Status is the state of a job as reported by the history endpoint.
type Status struct {
	StatusStr string        `json:"status_str"`
	Completed bool          `json:"completed"`
	Messages  []interface{} `json:"messages"`
}

// Terminal is true once the job has succeeded or failed.
func (s *Status) Terminal() bool {
	return s != nil && (s.StatusStr == StatusSuccess || s.StatusStr == StatusError)
}

type historyEntry struct {
	Status *Status `json:"status"`
}

// Status fetches the status of a job.  A nil status with no error means the server has no
// history for the job yet, i.e. it is still waiting or running.
func (c *Client) Status(ctx context.Context, jobID string) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+"/history/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create history request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch job history")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("history", resp)
	}

	var history map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, errors.Wrap(err, "failed to decode job history")
	}
	entry, ok := history[jobID]
	if !ok {
		return nil, nil
	}
	if entry.Status == nil {
		return &Status{}, nil
	}
	return entry.Status, nil
}

// SystemStats checks that the render server is up.
func (c *Client) SystemStats(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+"/system_stats", nil)
	if err != nil {
		return errors.Wrap(err, "failed to create system stats request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "cannot connect to render server at %s", c.addr)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(ioutil.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("render server at %s is not responding properly: %d", c.addr, resp.StatusCode)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	excerpt, _ := ioutil.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return errors.Errorf("%s failed with status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(excerpt)))
}

// Outcome is the final state of a waited-on job.
type Outcome string

const (
	// OutcomeSucceeded means the server reported success.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means the server reported an error, or the job was never queued.
	OutcomeFailed Outcome = "failed"
	// OutcomeTimedOut means no terminal status arrived before the deadline.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeUnknown means the job was not observed, as with fixed-delay pacing.
	OutcomeUnknown Outcome = "unknown"
	// OutcomeCanceled means the wait was interrupted.
	OutcomeCanceled Outcome = "canceled"
)

// Wait polls the job history every interval until the job reaches a terminal status or
// timeout elapses.  Transient history errors are returned through onError and polling
// continues.
func (c *Client) Wait(ctx context.Context, jobID string, interval, timeout time.Duration, onError func(error)) (Outcome, *Status) {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, jobID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return OutcomeCanceled, nil
			}
			if onError != nil {
				onError(err)
			}
		case status != nil && status.StatusStr == StatusSuccess:
			return OutcomeSucceeded, status
		case status != nil && status.StatusStr == StatusError:
			return OutcomeFailed, status
		}

		select {
		case <-ctx.Done():
			return OutcomeCanceled, nil
		case <-deadline.C:
			return OutcomeTimedOut, nil
		case <-ticker.C:
		}
	}
}

// Describe renders the messages attached to a failed status.
func (s *Status) Describe() string {
	if s == nil || len(s.Messages) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s.Messages))
	for _, m := range s.Messages {
		parts = append(parts, fmt.Sprint(m))
	}
	return strings.Join(parts, "; ")
}
