// Package client talks to the console API and keeps the signed-in state of
// an operator on disk between invocations.
package client

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

	"hfcloud/console/internal/models"
	"hfcloud/console/internal/permissions"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status        int
	Message       string
	CachedLocally bool
	DeviceLimit   int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type User struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	RoleLabel       string     `json:"roleLabel"`
	Status          string     `json:"status"`
	RelatedProjects []string   `json:"relatedProjects"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type Session struct {
	ID             string    `json:"id"`
	DeviceInfo     string    `json:"deviceInfo"`
	IPAddress      string    `json:"ipAddress"`
	LoginAt        time.Time `json:"loginAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Current        bool      `json:"current"`
}

type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	SessionID   string    `json:"sessionId"`
	User        User      `json:"user"`
}

type MeResponse struct {
	User        User                   `json:"user"`
	SessionID   string                 `json:"sessionId"`
	Permissions permissions.Descriptor `json:"permissions"`
	DeviceLimit int                    `json:"deviceLimit"`
}

type SessionsResponse struct {
	Sessions    []Session `json:"sessions"`
	DeviceLimit int       `json:"deviceLimit"`
}

type Site struct {
	Title           string `json:"title"`
	LogoURL         string `json:"logoUrl"`
	LogoSize        int    `json:"logoSize"`
	FaviconURL      string `json:"faviconUrl"`
	Announcement    string `json:"announcement"`
	MaintenanceMode bool   `json:"maintenanceMode"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a client for the API rooted at baseURL, e.g.
// http://localhost:8080/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		userAgent:  "consolectl",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Login(ctx context.Context, username, password, platform string) (LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
		"platform": platform,
	}, &out)
	return out, err
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/logout", token, nil, nil)
}

// Heartbeat confirms the session behind token and returns a fresh token.
func (c *Client) Heartbeat(ctx context.Context, token string) (LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/heartbeat", token, nil, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context, token string) (MeResponse, error) {
	var out MeResponse
	err := c.do(ctx, http.MethodGet, "/v1/auth/me", token, nil, &out)
	return out, err
}

func (c *Client) Sessions(ctx context.Context, token string) (SessionsResponse, error) {
	var out SessionsResponse
	err := c.do(ctx, http.MethodGet, "/v1/auth/sessions", token, nil, &out)
	return out, err
}

func (c *Client) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/password", token, map[string]string{
		"oldPassword": oldPassword,
		"newPassword": newPassword,
	}, nil)
}

func (c *Client) GetConfig(ctx context.Context, token string) (models.SystemConfig, error) {
	var out struct {
		Config models.SystemConfig `json:"config"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/config", token, nil, &out)
	return out.Config, err
}

func (c *Client) UpdateConfig(ctx context.Context, token string, patch models.ConfigPatch) (models.SystemConfig, error) {
	var out struct {
		Config models.SystemConfig `json:"config"`
	}
	err := c.do(ctx, http.MethodPut, "/v1/config", token, patch, &out)
	return out.Config, err
}

func (c *Client) Site(ctx context.Context) (Site, error) {
	var out struct {
		Site Site `json:"site"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/site", "", nil, &out)
	return out.Site, err
}

type errorBody struct {
	Error         string `json:"error"`
	CachedLocally bool   `json:"cachedLocally"`
	DeviceLimit   int    `json:"deviceLimit"`
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return &APIError{
			Status:        resp.StatusCode,
			Message:       eb.Error,
			CachedLocally: eb.CachedLocally,
			DeviceLimit:   eb.DeviceLimit,
		}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
