// Package orderflowsdk is a small client for the Orderflow HTTP API.
package orderflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Orderflow HTTP API client.
type Client struct {
	BaseURL     string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. When no bearer token is set the
// actor id is sent via the X-Actor-Id header.
func New(baseURL, actorID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ActorID: actorID,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID                 string  `json:"id"`
	ChannelRef         string  `json:"channel_ref"`
	Status             string  `json:"status"`
	Title              string  `json:"title"`
	Deliverables       string  `json:"deliverables,omitempty"`
	KPI                *string `json:"kpi,omitempty"`
	DueDate            string  `json:"due_date,omitempty"`
	AccountableActorID string  `json:"accountable_actor_id"`
	FolderURL          *string `json:"folder_url,omitempty"`
	FinishedDate       *string `json:"finished_date,omitempty"`
	CreatedAt          string  `json:"created_at"`
}

// WorkOrder represents the API work order model.
type WorkOrder struct {
	ID                   string  `json:"id"`
	ProjectID            string  `json:"project_id"`
	ThreadRef            string  `json:"thread_ref"`
	Status               string  `json:"status"`
	Title                string  `json:"title"`
	Deliverables         string  `json:"deliverables,omitempty"`
	PushedToActorID      *string `json:"pushed_to_actor_id,omitempty"`
	InProgressActorID    *string `json:"in_progress_actor_id,omitempty"`
	QASubmittedByActorID *string `json:"qa_submitted_by_actor_id,omitempty"`
	TotalTimeSeconds     int64   `json:"total_time_seconds"`
	DisplayedSeconds     int64   `json:"displayed_seconds"`
	DisplayedHours       string  `json:"displayed_hours"`
	FolderURL            *string `json:"folder_url,omitempty"`
	CreatedAt            string  `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	Seq        int64  `json:"seq"`
	ID         string `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

// CreateProjectOptions holds the fields for CreateProject.
type CreateProjectOptions struct {
	ChannelRef         string `json:"channel_ref"`
	Title              string `json:"title"`
	Deliverables       string `json:"deliverables,omitempty"`
	KPI                string `json:"kpi,omitempty"`
	DueDate            string `json:"due_date,omitempty"`
	AccountableActorID string `json:"accountable_actor_id"`
}

// UpdateProjectOptions holds the editable project fields; nil means leave
// untouched.
type UpdateProjectOptions struct {
	Title              *string `json:"title,omitempty"`
	Deliverables       *string `json:"deliverables,omitempty"`
	KPI                *string `json:"kpi,omitempty"`
	DueDate            *string `json:"due_date,omitempty"`
	AccountableActorID *string `json:"accountable_actor_id,omitempty"`
}

// CreateWorkOrderOptions holds the fields for CreateWorkOrder.
type CreateWorkOrderOptions struct {
	ThreadRef       string `json:"thread_ref"`
	Title           string `json:"title"`
	Deliverables    string `json:"deliverables,omitempty"`
	PushedToActorID string `json:"pushed_to_actor_id,omitempty"`
}

// UpdateWorkOrderOptions holds the editable work order fields.
type UpdateWorkOrderOptions struct {
	Title           *string `json:"title,omitempty"`
	Deliverables    *string `json:"deliverables,omitempty"`
	PushedToActorID *string `json:"pushed_to_actor_id,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) CreateProject(ctx context.Context, opts CreateProjectOptions) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", opts, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) UpdateProject(ctx context.Context, id string, opts UpdateProjectOptions) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPatch, "v0/projects/"+url.PathEscape(id), opts, &resp)
	return resp, err
}

func (c *Client) FinishProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects/"+url.PathEscape(id)+"/finish", nil, &resp)
	return resp, err
}

func (c *Client) ListActiveProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v0/projects", nil, &resp)
	return resp, err
}

func (c *Client) CreateWorkOrder(ctx context.Context, projectID string, opts CreateWorkOrderOptions) (WorkOrder, error) {
	var resp WorkOrder
	endpoint := "v0/projects/" + url.PathEscape(projectID) + "/workorders"
	err := c.do(ctx, http.MethodPost, endpoint, opts, &resp)
	return resp, err
}

func (c *Client) GetWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	var resp WorkOrder
	err := c.do(ctx, http.MethodGet, c.workOrderPath(id, ""), nil, &resp)
	return resp, err
}

func (c *Client) UpdateWorkOrder(ctx context.Context, id string, opts UpdateWorkOrderOptions) (WorkOrder, error) {
	var resp WorkOrder
	err := c.do(ctx, http.MethodPatch, c.workOrderPath(id, ""), opts, &resp)
	return resp, err
}

func (c *Client) ListInProgressWorkOrders(ctx context.Context) ([]WorkOrder, error) {
	var resp []WorkOrder
	err := c.do(ctx, http.MethodGet, "v0/workorders", nil, &resp)
	return resp, err
}

func (c *Client) StartWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	return c.transition(ctx, id, "start")
}

func (c *Client) PauseWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	return c.transition(ctx, id, "pause")
}

func (c *Client) FinishWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	return c.transition(ctx, id, "finish")
}

func (c *Client) ApproveWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	return c.transition(ctx, id, "approve")
}

func (c *Client) ReworkWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	return c.transition(ctx, id, "rework")
}

func (c *Client) CancelWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	return c.transition(ctx, id, "cancel")
}

// Events returns events with sequence numbers greater than after.
func (c *Client) Events(ctx context.Context, after int64, limit int) ([]Event, error) {
	endpoint := "v0/events"
	params := url.Values{}
	if after > 0 {
		params.Set("after", strconv.FormatInt(after, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) transition(ctx context.Context, id, verb string) (WorkOrder, error) {
	var resp WorkOrder
	err := c.do(ctx, http.MethodPost, c.workOrderPath(id, verb), nil, &resp)
	return resp, err
}

func (c *Client) workOrderPath(id, verb string) string {
	p := "v0/workorders/" + url.PathEscape(id)
	if verb != "" {
		p += "/" + verb
	}
	return p
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
