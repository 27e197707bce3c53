// Package dashboard implements the HTTP client workflow steps use to
// report task status and dependency changes to the external task dashboard,
// grounded on the teacher's e2e HTTP client's request/response pattern.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the task dashboard's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 30s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient constructs a Client bound to baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TaskStatusUpdate is the body of an UpdateTaskStatus call.
type TaskStatusUpdate struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// UpdateTaskStatus sets taskID's status on the dashboard.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID string, update TaskStatusUpdate) error {
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/tasks/%s/status", taskID), update, nil)
	return err
}

// BlockedDependenciesUpdate is the body of an UpdateBlockedDependencies
// call.
type BlockedDependenciesUpdate struct {
	DependsOn []string `json:"depends_on"`
}

// UpdateBlockedDependencies replaces taskID's blocked-dependency list.
func (c *Client) UpdateBlockedDependencies(ctx context.Context, taskID string, update BlockedDependenciesUpdate) error {
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/tasks/%s/dependencies", taskID), update, nil)
	return err
}

// Task is the subset of dashboard task state steps need to read back.
type Task struct {
	ID         string   `json:"id"`
	ProjectID  string   `json:"project_id"`
	Status     string   `json:"status"`
	Stage      string   `json:"stage"` // plan | implement | review | qa | merge
	DependsOn  []string `json:"depends_on"`
}

// GetTask fetches a task's current dashboard state.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var task Task
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tasks/%s", taskID), nil, &task)
	return task, err
}

// ProjectStatus is the subset of dashboard project state the coordinator
// reads to decide whether a project is workable.
type ProjectStatus struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	RepoRemote string `json:"repo_remote"`
	RepoRoot   string `json:"repo_root"`
	Branch     string `json:"branch"`
}

// GetProjectStatus fetches a project's current dashboard state.
func (c *Client) GetProjectStatus(ctx context.Context, projectID string) (ProjectStatus, error) {
	var status ProjectStatus
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%s", projectID), nil, &status)
	return status, err
}

// ListOpenTasks fetches the open (not completed/failed) tasks for a
// project, each carrying enough to pick and run a workflow definition.
func (c *Client) ListOpenTasks(ctx context.Context, projectID string) ([]Task, error) {
	var tasks []Task
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%s/tasks?status=open", projectID), nil, &tasks)
	return tasks, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return resp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp, fmt.Errorf("unmarshal response: %w (body: %s)", err, string(respBody))
		}
	}
	return resp, nil
}
