// Package folders is the seam to the external document-storage service that
// mirrors projects and work orders as folders. Every call is best-effort:
// callers log failures and proceed, the lifecycle transition never depends
// on the folder service being up.
package folders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Service interface {
	// Create makes a folder under parentRef and returns its ref and a
	// browser-viewable URL.
	Create(ctx context.Context, name, parentRef string) (ref, viewURL string, err error)
	// Move reparents a folder.
	Move(ctx context.Context, ref, newParentRef, oldParentRef string) error
}

// Disabled is the no-op service used when no folder endpoint is configured.
type Disabled struct{}

func (Disabled) Create(ctx context.Context, name, parentRef string) (string, string, error) {
	return "", "", nil
}

func (Disabled) Move(ctx context.Context, ref, newParentRef, oldParentRef string) error {
	return nil
}

const defaultTimeout = 5 * time.Second

// HTTPService talks JSON to a folder-provisioning endpoint.
type HTTPService struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPService(baseURL string) *HTTPService {
	return &HTTPService{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: defaultTimeout},
	}
}

type createRequest struct {
	Name      string `json:"name"`
	ParentRef string `json:"parent_ref"`
}

type createResponse struct {
	Ref     string `json:"ref"`
	ViewURL string `json:"view_url"`
}

type moveRequest struct {
	Ref          string `json:"ref"`
	NewParentRef string `json:"new_parent_ref"`
	OldParentRef string `json:"old_parent_ref"`
}

func (s *HTTPService) Create(ctx context.Context, name, parentRef string) (string, string, error) {
	var res createResponse
	if err := s.post(ctx, "/folders", createRequest{Name: name, ParentRef: parentRef}, &res); err != nil {
		return "", "", err
	}
	return res.Ref, res.ViewURL, nil
}

func (s *HTTPService) Move(ctx context.Context, ref, newParentRef, oldParentRef string) error {
	return s.post(ctx, "/folders/move", moveRequest{Ref: ref, NewParentRef: newParentRef, OldParentRef: oldParentRef}, nil)
}

func (s *HTTPService) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
