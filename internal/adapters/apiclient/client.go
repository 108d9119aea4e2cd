// Package apiclient talks to the divination session API over HTTP.
package apiclient

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

	"github.com/Yanchun-Li/ai-divination/internal/domain"
	"github.com/Yanchun-Li/ai-divination/internal/ports"
)

const basePath = "/api/v2/divination"

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 4 << 10

// Client implements ports.SessionAPI against a remote divination service.
// Every failure is wrapped in domain.ErrCollaborator.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userID     string
}

var _ ports.SessionAPI = (*Client)(nil)

// NewClient builds a client for baseURL. userID, when set, is attached to
// created sessions.
func NewClient(httpClient *http.Client, baseURL, userID string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

func (c *Client) CreateSession(ctx context.Context, req ports.CreateSessionRequest) (ports.CreateSessionResponse, error) {
	if req.UserID == "" {
		req.UserID = c.userID
	}
	var resp ports.CreateSessionResponse
	err := c.do(ctx, http.MethodPost, basePath+"/session", req, &resp)
	return resp, err
}

func (c *Client) Generate(ctx context.Context, sessionID string) (ports.GenerateResponse, error) {
	var resp ports.GenerateResponse
	err := c.do(ctx, http.MethodPost, basePath+"/generate", map[string]string{"session_id": sessionID}, &resp)
	return resp, err
}

func (c *Client) SubmitManualStep(ctx context.Context, req ports.ManualStepRequest) (ports.ManualStepResponse, error) {
	var resp ports.ManualStepResponse
	err := c.do(ctx, http.MethodPost, basePath+"/manual/step", req, &resp)
	return resp, err
}

func (c *Client) GetInterpretation(ctx context.Context, sessionID string) (ports.InterpretResponse, error) {
	var resp ports.InterpretResponse
	err := c.do(ctx, http.MethodPost, basePath+"/interpret", map[string]string{"session_id": sessionID}, &resp)
	return resp, err
}

// GetSession fetches the stored session record.
func (c *Client) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	var sess domain.Session
	err := c.do(ctx, http.MethodGet, basePath+"/"+url.PathEscape(sessionID), nil, &sess)
	return sess, err
}

// ListSessions fetches the user's recent sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	q := url.Values{"user_id": {userID}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Records []domain.Session `json:"records"`
	}
	err := c.do(ctx, http.MethodGet, basePath+"/records?"+q.Encode(), nil, &resp)
	return resp.Records, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %w", domain.ErrCollaborator, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", domain.ErrCollaborator, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: http call: %w", domain.ErrCollaborator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			msg = eb.Error
		}
		return fmt.Errorf("%w: %s %s: %w", domain.ErrCollaborator, method, path, &StatusError{Status: resp.StatusCode, Message: msg})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrCollaborator, err)
	}
	return nil
}
