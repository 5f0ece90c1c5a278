package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"hfcloud/console/internal/auth"
	"hfcloud/console/internal/branding"
	"hfcloud/console/internal/credentials"
	"hfcloud/console/internal/middleware"
	"hfcloud/console/internal/models"
	"hfcloud/console/internal/repository/memory"
	"hfcloud/console/internal/security"
	"hfcloud/console/internal/sessions"
	"hfcloud/console/internal/sysconfig"
	"hfcloud/console/internal/users"
)

type fakeObjects struct {
	keys []string
}

func (f *fakeObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeObjects) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

type testServer struct {
	router  *gin.Engine
	config  *memory.ConfigStore
	objects *fakeObjects
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zerolog.Nop()
	userStore := memory.NewUserStore()
	hasher := security.NewHasher(security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	creds := credentials.NewStore(userStore, hasher, 6, log)
	manager := sessions.NewManager(memory.NewSessionStore(), log)
	tokens := security.NewTokenIssuer("test-secret", time.Hour)

	configStore := memory.NewConfigStore()
	resolver := sysconfig.NewResolver(configStore, memory.NewConfigCache(), models.SystemConfig{
		SystemName: "HFCloud Edge Platform",
		LogoSize:   32,
		FaviconURL: "/favicon.ico",
	}, log)
	objects := &fakeObjects{}

	userSvc := users.NewService(userStore, creds, manager, log)
	for _, seed := range []users.CreateInput{
		{Username: "root", Password: "root123", Role: models.UserRoleSuperAdmin},
		{Username: "admin", Password: "admin123", Role: models.UserRoleAdmin},
		{Username: "user1", Password: "user123", Role: models.UserRoleUser},
	} {
		_, err := userSvc.Bootstrap(context.Background(), seed)
		require.NoError(t, err)
	}

	set := NewHandlerSet(log, Dependencies{
		Auth:       auth.NewService(creds, manager, userStore, tokens, log),
		Users:      userSvc,
		Config:     resolver,
		Branding:   branding.NewService(objects, resolver, 0, log),
		LoginLimit: middleware.NewRateLimiter(600, 100),
		Checks: map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
			"cache":    func(context.Context) error { return errors.New("down") },
		},
		Environment: "test",
	})

	router := gin.New()
	set.Register(router.Group("/api"))
	return &testServer{router: router, config: configStore, objects: objects}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.serve(t, req)
}

func (s *testServer) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()

	rec, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, body)
	token, _ := body["accessToken"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "user1", "password": "user123"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	require.NotEmpty(t, body["sessionId"])
	user := body["user"].(map[string]any)
	require.Equal(t, "user1", user["username"])
	require.NotContains(t, user, "passwordHash")

	rec, body = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "user1", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, credentials.ErrInvalidCredentials.Error(), body["error"])

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "user1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_DeviceLimit(t *testing.T) {
	s := newTestServer(t)
	first := s.login(t, "user1", "user123")

	rec, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "user1", "password": "user123"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.EqualValues(t, 1, body["deviceLimit"])

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", first, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	s.login(t, "user1", "user123")

	rec, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", first, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, false, body["success"])

	rec, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeAndHeartbeat(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin123")

	rec, body := s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	perms := body["permissions"].(map[string]any)
	require.Equal(t, true, perms["isAdmin"])
	require.Equal(t, false, perms["isSuperAdmin"])
	require.EqualValues(t, 10, body["deviceLimit"])

	rec, body = s.do(t, http.MethodPost, "/api/v1/auth/heartbeat", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, body["accessToken"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/auth/sessions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := body["sessions"].([]any)
	require.Len(t, list, 1)
	require.Equal(t, true, list[0].(map[string]any)["current"])
}

func TestChangePassword_EndsSessions(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin123")
	other := s.login(t, "admin", "admin123")

	rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/password", token, gin.H{"oldPassword": "nope", "newPassword": "secret1"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/password", token, gin.H{"oldPassword": "admin123", "newPassword": "abc"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/password", token, gin.H{"oldPassword": "admin123", "newPassword": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, tok := range []string{token, other} {
		rec, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", tok, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	s.login(t, "admin", "secret1")
}

func TestConfig(t *testing.T) {
	s := newTestServer(t)
	userToken := s.login(t, "user1", "user123")
	adminToken := s.login(t, "admin", "admin123")

	rec, body := s.do(t, http.MethodGet, "/api/v1/config", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "HFCloud Edge Platform", body["config"].(map[string]any)["systemName"])

	rec, _ = s.do(t, http.MethodPut, "/api/v1/config", userToken, gin.H{"systemName": "X"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Zero(t, s.config.Saves())

	rec, _ = s.do(t, http.MethodPut, "/api/v1/config", adminToken, gin.H{"systemName": "X", "bogus": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPut, "/api/v1/config", adminToken, gin.H{"logoSize": 200})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPut, "/api/v1/config", adminToken, gin.H{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(t, http.MethodPut, "/api/v1/config", adminToken, gin.H{"systemName": "Edge Console", "logoSize": 48})
	require.Equal(t, http.StatusOK, rec.Code, body)
	require.Equal(t, 1, s.config.Saves())

	rec, body = s.do(t, http.MethodGet, "/api/v1/site", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	site := body["site"].(map[string]any)
	require.Equal(t, "Edge Console", site["title"])
	require.EqualValues(t, 48, site["logoSize"])
}

func TestConfig_ReadsSeeWritesFromOtherInstances(t *testing.T) {
	s := newTestServer(t)
	userToken := s.login(t, "user1", "user123")
	adminToken := s.login(t, "admin", "admin123")

	require.NoError(t, s.config.SaveEntries(context.Background(), map[string]json.RawMessage{
		models.ConfigKeySystemName: json.RawMessage(`"Set elsewhere"`),
	}, "other-instance"))

	rec, body := s.do(t, http.MethodGet, "/api/v1/config", userToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Set elsewhere", body["config"].(map[string]any)["systemName"])
	require.Equal(t, "remote", body["source"])

	rec, body = s.do(t, http.MethodPut, "/api/v1/config", adminToken, gin.H{"announcement": "hello"})
	require.Equal(t, http.StatusOK, rec.Code, body)
	cfg := body["config"].(map[string]any)
	require.Equal(t, "Set elsewhere", cfg["systemName"])
	require.Equal(t, "hello", cfg["announcement"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/site", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Set elsewhere", body["site"].(map[string]any)["title"])
}

func TestConfig_SaveFailureReportsCache(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.login(t, "admin", "admin123")
	s.config.FailSaves(errors.New("connection refused"))

	rec, body := s.do(t, http.MethodPut, "/api/v1/config", adminToken, gin.H{"announcement": "maintenance tonight"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, true, body["cachedLocally"])
	require.Equal(t, sysconfig.ErrSaveFailed.Error(), body["error"])
}

func multipartUpload(t *testing.T, path, token string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "logo.svg")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUploadBranding(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.login(t, "admin", "admin123")
	userToken := s.login(t, "user1", "user123")

	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`)

	rec, _ := s.serve(t, multipartUpload(t, "/api/v1/config/branding/logo", userToken, svg))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.serve(t, multipartUpload(t, "/api/v1/config/branding/banner", adminToken, svg))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.serve(t, multipartUpload(t, "/api/v1/config/branding/logo", adminToken, []byte("plain text")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := s.serve(t, multipartUpload(t, "/api/v1/config/branding/logo", adminToken, svg))
	require.Equal(t, http.StatusCreated, rec.Code, body)
	asset := body["asset"].(map[string]any)
	require.Contains(t, asset["url"], "https://cdn.test/branding/logo/")
	require.Len(t, s.objects.keys, 1)

	rec, body = s.do(t, http.MethodGet, "/api/v1/site", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, asset["url"], body["site"].(map[string]any)["logoUrl"])
}

func TestUsers(t *testing.T) {
	s := newTestServer(t)
	rootToken := s.login(t, "root", "root123")
	adminToken := s.login(t, "admin", "admin123")

	rec, body := s.do(t, http.MethodGet, "/api/v1/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["users"].([]any), 2)

	rec, body = s.do(t, http.MethodGet, "/api/v1/users/stats", rootToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := body["stats"].(map[string]any)
	require.EqualValues(t, 3, stats["total"])
	require.EqualValues(t, 2, stats["admins"])

	rec, _ = s.do(t, http.MethodPost, "/api/v1/users", adminToken, gin.H{"username": "bob", "password": "bob123"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/api/v1/users", rootToken, gin.H{
		"username":        "bob",
		"email":           "bob@example.com",
		"password":        "bob123",
		"relatedProjects": []string{"cdn", "cdn", " dns "},
	})
	require.Equal(t, http.StatusCreated, rec.Code, body)
	bob := body["user"].(map[string]any)
	require.Equal(t, []any{"cdn", "dns"}, bob["relatedProjects"])
	bobID := bob["id"].(string)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/users", rootToken, gin.H{"username": "bob", "password": "bob123"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/users/missing", rootToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	bobToken := s.login(t, "bob", "bob123")

	rec, _ = s.do(t, http.MethodPatch, "/api/v1/users/"+bobID, adminToken, gin.H{"role": "admin"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = s.do(t, http.MethodPatch, "/api/v1/users/"+bobID, adminToken, gin.H{"status": "disabled"})
	require.Equal(t, http.StatusOK, rec.Code, body)
	require.Equal(t, "disabled", body["user"].(map[string]any)["status"])

	rec, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", bobToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/users/"+bobID+"/password", adminToken, gin.H{"password": "newpass"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/users/"+bobID+"/password", rootToken, gin.H{"password": "newpass"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]any)
	require.Equal(t, "ok", deps["database"])
	require.Equal(t, "error", deps["cache"])
	require.Equal(t, "defaults", body["configSource"])
}
