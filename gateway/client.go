// ABOUTME: HTTP client for the backend mutation-apply and incremental-pull endpoints
// ABOUTME: Submits actions under their idempotency key and classifies failures
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harperreed/relay/models"
)

// DefaultTimeout bounds every gateway call. Expiry is classified as a network
// failure.
const DefaultTimeout = 15 * time.Second

// Gateway abstracts the backend sync endpoints so the engine can be tested
// against a fake.
type Gateway interface {
	// Apply submits one mutation keyed by the action's idempotency ID. A
	// repeated submission of the same ID returns the authoritative prior
	// result rather than reapplying.
	Apply(ctx context.Context, action models.OfflineAction) (*models.ServerEntity, error)

	// Pull fetches server-side changes since the watermark.
	Pull(ctx context.Context, since time.Time) ([]models.ServerEntity, error)
}

// Client talks to the backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient creates a gateway client for the backend at baseURL.
func NewClient(baseURL string, creds CredentialSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		creds:   creds,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// mutationRequest is the wire form of an action submission.
type mutationRequest struct {
	Kind       string          `json:"kind"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// errorResponse is the backend's error body. Decoding is best effort.
type errorResponse struct {
	Error string `json:"error"`
}

// pullResponse is the incremental-changes response body.
type pullResponse struct {
	Changes []models.ServerEntity `json:"changes"`
}

func (c *Client) Apply(ctx context.Context, action models.OfflineAction) (*models.ServerEntity, error) {
	body, err := json.Marshal(mutationRequest{
		Kind:       action.Kind,
		EntityType: action.EntityType,
		EntityID:   action.EntityID,
		Payload:    action.Payload,
	})
	if err != nil {
		return nil, &SyncError{Kind: ErrorValidation, Message: "unencodable payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/mutations", bytes.NewReader(body))
	if err != nil {
		return nil, &SyncError{Kind: ErrorNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", action.ID)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var entity models.ServerEntity
		if err := json.NewDecoder(resp.Body).Decode(&entity); err != nil {
			return nil, &SyncError{Kind: ErrorNetwork, Message: "undecodable entity response", Err: err}
		}
		return &entity, nil
	}

	return nil, classifyStatus(resp)
}

func (c *Client) Pull(ctx context.Context, since time.Time) ([]models.ServerEntity, error) {
	url := c.baseURL + "/v1/changes"
	if !since.IsZero() {
		url += "?since=" + since.UTC().Format(time.RFC3339Nano)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &SyncError{Kind: ErrorNetwork, Err: err}
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	var decoded pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &SyncError{Kind: ErrorNetwork, Message: "undecodable changes response", Err: err}
	}

	return decoded.Changes, nil
}

// do attaches the bearer credential and executes the request. Transport
// failures, including timeouts, come back as network sync errors.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	token, err := c.creds.Token(req.Context())
	if err != nil {
		return nil, &SyncError{Kind: ErrorUnauthorized, Message: "no credential available", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &SyncError{Kind: ErrorNetwork, Err: err}
	}
	return resp, nil
}

// classifyStatus maps an HTTP failure status onto the sync error taxonomy.
func classifyStatus(resp *http.Response) *SyncError {
	message := fmt.Sprintf("server returned %d", resp.StatusCode)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(body) > 0 {
		var decoded errorResponse
		if json.Unmarshal(body, &decoded) == nil && decoded.Error != "" {
			message = decoded.Error
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &SyncError{Kind: ErrorUnauthorized, Message: message}
	case resp.StatusCode == http.StatusConflict:
		return &SyncError{Kind: ErrorConflict, Message: message}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		return &SyncError{Kind: ErrorNetwork, Message: message}
	case resp.StatusCode >= 500:
		return &SyncError{Kind: ErrorNetwork, Message: message}
	default:
		// Remaining 4xx mean the server understood and rejected the payload.
		return &SyncError{Kind: ErrorValidation, Message: message}
	}
}
