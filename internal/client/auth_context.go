package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hfcloud/console/internal/models"
)

type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
)

// ConfigSource says where AuthContext.Config found its answer.
type ConfigSource string

const (
	ConfigFromServer   ConfigSource = "server"
	ConfigFromCache    ConfigSource = "cache"
	ConfigFromDefaults ConfigSource = "defaults"
)

var ErrNotSignedIn = errors.New("not signed in")

// AuthContext tracks who is signed in on this machine. The user, session id
// and token are persisted in the StateStore so that a later process can
// restore them without asking for the password.
type AuthContext struct {
	mu       sync.Mutex
	client   *Client
	store    *StateStore
	defaults models.SystemConfig
	platform string

	state     State
	user      User
	sessionID string
	token     string
	lastErr   error
}

func NewAuthContext(c *Client, store *StateStore, defaults models.SystemConfig, platform string) *AuthContext {
	if c == nil || store == nil {
		panic("client: nil dependency")
	}
	return &AuthContext{
		client:   c,
		store:    store,
		defaults: defaults,
		platform: platform,
		state:    StateAnonymous,
	}
}

func (a *AuthContext) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// User returns the signed-in user, if any.
func (a *AuthContext) User() (User, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user, a.state == StateAuthenticated
}

func (a *AuthContext) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Err is the error that last sent the context back to anonymous.
func (a *AuthContext) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Restore loads the persisted user and session and confirms them with a
// heartbeat. A 401 clears the persisted state. When the server cannot be
// reached the persisted state is trusted as is.
func (a *AuthContext) Restore(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var (
		user      User
		sessionID string
		token     string
	)
	okUser, err := a.store.Get(KeyCurrentUser, &user)
	if err != nil {
		return a.resetLocked(err)
	}
	okSession, err := a.store.Get(KeySessionID, &sessionID)
	if err != nil {
		return a.resetLocked(err)
	}
	okToken, err := a.store.Get(KeyAccessToken, &token)
	if err != nil {
		return a.resetLocked(err)
	}
	if !okUser || !okSession || !okToken || sessionID == "" || token == "" {
		a.state = StateAnonymous
		return nil
	}

	a.state = StateAuthenticating
	resp, err := a.client.Heartbeat(ctx, token)
	switch {
	case err == nil:
		return a.signInLocked(resp)
	case IsUnauthorized(err):
		if clearErr := a.clearLocked(); clearErr != nil {
			return clearErr
		}
		a.lastErr = err
		return nil
	default:
		a.user, a.sessionID, a.token = user, sessionID, token
		a.state = StateAuthenticated
		a.lastErr = err
		return nil
	}
}

func (a *AuthContext) Login(ctx context.Context, username, password string) (User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = StateAuthenticating
	resp, err := a.client.Login(ctx, username, password, a.platform)
	if err != nil {
		a.state = StateAnonymous
		a.lastErr = err
		return User{}, err
	}
	if err := a.signInLocked(resp); err != nil {
		return User{}, err
	}
	return a.user, nil
}

// Logout ends the server session and always clears local state. Calling it
// while signed out does nothing. A server error other than 401 is returned
// after the local state is gone.
func (a *AuthContext) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	token := a.token
	if token == "" {
		if _, err := a.store.Get(KeyAccessToken, &token); err != nil {
			token = ""
		}
	}

	var serverErr error
	if token != "" {
		if err := a.client.Logout(ctx, token); err != nil && !IsUnauthorized(err) {
			serverErr = err
		}
	}

	if err := a.clearLocked(); err != nil {
		return err
	}
	a.lastErr = nil
	return serverErr
}

// ChangePassword changes the password and then signs out locally, since the
// server has ended every session of the account.
func (a *AuthContext) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateAuthenticated {
		return ErrNotSignedIn
	}
	if err := a.client.ChangePassword(ctx, a.token, oldPassword, newPassword); err != nil {
		if IsUnauthorized(err) {
			return a.resetLocked(err)
		}
		return err
	}
	return a.clearLocked()
}

func (a *AuthContext) Me(ctx context.Context) (MeResponse, error) {
	token, err := a.currentToken()
	if err != nil {
		return MeResponse{}, err
	}
	resp, err := a.client.Me(ctx, token)
	return resp, a.checkSession(err)
}

func (a *AuthContext) Sessions(ctx context.Context) (SessionsResponse, error) {
	token, err := a.currentToken()
	if err != nil {
		return SessionsResponse{}, err
	}
	resp, err := a.client.Sessions(ctx, token)
	return resp, a.checkSession(err)
}

// Config returns the system configuration from the server, else the cached
// copy, else the built-in defaults. It never fails; a server answer is
// mirrored to the cache. Signed-out callers get the public site view merged
// over the cached or default configuration.
func (a *AuthContext) Config(ctx context.Context) (models.SystemConfig, ConfigSource) {
	token, _ := a.currentToken()

	fallback, fallbackSource := a.cachedConfig()

	if token != "" {
		cfg, err := a.client.GetConfig(ctx, token)
		if err == nil {
			_ = a.store.Set(KeySystemConfig, cfg)
			return cfg, ConfigFromServer
		}
		_ = a.checkSession(err)
		return fallback, fallbackSource
	}

	site, err := a.client.Site(ctx)
	if err != nil {
		return fallback, fallbackSource
	}
	cfg := fallback
	cfg.SystemName = site.Title
	cfg.LogoURL = site.LogoURL
	cfg.LogoSize = site.LogoSize
	cfg.FaviconURL = site.FaviconURL
	cfg.Announcement = site.Announcement
	cfg.MaintenanceMode = site.MaintenanceMode
	_ = a.store.Set(KeySystemConfig, cfg)
	return cfg, ConfigFromServer
}

// SaveConfig applies patch on the server. The cached copy is updated even
// when the server save fails, mirroring what the server does with its own
// cache; the error is still returned.
func (a *AuthContext) SaveConfig(ctx context.Context, patch models.ConfigPatch) (models.SystemConfig, error) {
	token, err := a.currentToken()
	if err != nil {
		return models.SystemConfig{}, err
	}

	cfg, err := a.client.UpdateConfig(ctx, token, patch)
	if err == nil {
		if cacheErr := a.store.Set(KeySystemConfig, cfg); cacheErr != nil {
			return cfg, fmt.Errorf("config saved but not cached: %w", cacheErr)
		}
		return cfg, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.CachedLocally {
		cached, _ := a.cachedConfig()
		_ = a.store.Set(KeySystemConfig, patch.Apply(cached))
	}
	return models.SystemConfig{}, a.checkSession(err)
}

func (a *AuthContext) cachedConfig() (models.SystemConfig, ConfigSource) {
	var cfg models.SystemConfig
	if ok, err := a.store.Get(KeySystemConfig, &cfg); err == nil && ok {
		return cfg, ConfigFromCache
	}
	return a.defaults, ConfigFromDefaults
}

func (a *AuthContext) currentToken() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateAuthenticated || a.token == "" {
		return "", ErrNotSignedIn
	}
	return a.token, nil
}

// checkSession drops local state when the server says the session is gone.
func (a *AuthContext) checkSession(err error) error {
	if err == nil || !IsUnauthorized(err) {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resetLocked(err)
}

func (a *AuthContext) signInLocked(resp LoginResponse) error {
	if err := a.store.Update(map[string]any{
		KeyCurrentUser: resp.User,
		KeySessionID:   resp.SessionID,
		KeyAccessToken: resp.AccessToken,
	}); err != nil {
		a.state = StateAnonymous
		a.lastErr = err
		return fmt.Errorf("persist session: %w", err)
	}
	a.user = resp.User
	a.sessionID = resp.SessionID
	a.token = resp.AccessToken
	a.state = StateAuthenticated
	a.lastErr = nil
	return nil
}

// resetLocked clears state and records cause. It returns cause unless
// clearing the store failed.
func (a *AuthContext) resetLocked(cause error) error {
	if err := a.clearLocked(); err != nil {
		return errors.Join(cause, err)
	}
	a.lastErr = cause
	return cause
}

func (a *AuthContext) clearLocked() error {
	a.user = User{}
	a.sessionID = ""
	a.token = ""
	a.state = StateAnonymous
	return a.store.Delete(KeyCurrentUser, KeySessionID, KeyAccessToken)
}
