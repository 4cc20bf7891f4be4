package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-credentials/accounts"
	"github.com/goliatone/go-credentials/activity"
	"github.com/goliatone/go-credentials/issuer"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/goliatone/go-credentials/service"
	"github.com/goliatone/go-credentials/session"
	"github.com/goliatone/go-credentials/tokens"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const testClientID = "client-123"

type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubDecoder struct{}

func (stubDecoder) Decode(_ context.Context, credential string) (types.IdentityClaim, error) {
	email, audience, ok := strings.Cut(credential, ":")
	if !ok {
		return types.IdentityClaim{}, types.ErrUnauthorized
	}
	return types.IdentityClaim{Email: email, Audience: audience, EmailVerified: true, Name: "Fed"}, nil
}

type stubGoogle struct {
	credential string
}

func (g stubGoogle) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (g stubGoogle) Exchange(_ context.Context, code string) (string, error) {
	if code != "good-code" {
		return "", fmt.Errorf("bad code")
	}
	return g.credential, nil
}

type testServer struct {
	handler http.Handler
	clock   *movableClock
}

func newTestServer(t *testing.T, tweaks ...func(*RouterOptions)) *testServer {
	t.Helper()
	db := newTestDB(t)
	clock := &movableClock{now: time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)}

	users, err := accounts.NewRepository(accounts.RepositoryConfig{DB: db, Clock: clock})
	require.NoError(t, err)
	store, err := tokens.NewRepository(tokens.RepositoryConfig{DB: db, Clock: clock})
	require.NoError(t, err)
	feed, err := activity.NewRepository(activity.RepositoryConfig{DB: db, Clock: clock})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)

	svc, err := service.New(service.Config{
		UserStore:       users,
		CredentialStore: store,
		Tokens:          service.TokenConfig{AccessSecret: "a-secret", RefreshSecret: "r-secret"},
		Decoder:         stubDecoder{},
		ClientID:        testClientID,
		ActivitySink:    feed,
		Clock:           clock,
		Metrics:         metrics,
	})
	require.NoError(t, err)

	opts := RouterOptions{
		Backend: svc,
		Google:  stubGoogle{credential: "gina@example.com:" + testClientID},
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	return &testServer{clock: clock, handler: Router(opts)}
}

type logEntry struct {
	msg  string
	args []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) Debug(string, ...any) {}

func (l *captureLogger) Info(msg string, args ...any) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{msg: msg, args: args})
	l.mu.Unlock()
}

func (l *captureLogger) Error(string, error, ...any) {}

func (l *captureLogger) requests() []map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []map[string]any
	for _, e := range l.entries {
		if e.msg != "httpapi: request" {
			continue
		}
		fields := map[string]any{}
		for i := 0; i+1 < len(e.args); i += 2 {
			if key, ok := e.args[i].(string); ok {
				fields[key] = e.args[i+1]
			}
		}
		out = append(out, fields)
	}
	return out
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) authResponse {
	t.Helper()
	var out authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRouter_PasswordLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/signup", signUpRequest{Email: "ana@example.com", Password: "s3cret", Name: "Ana"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "password")

	rec = s.do(t, http.MethodPost, "/auth/login", credentialsRequest{Email: "ana@example.com", Password: "s3cret"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	login := decodeAuth(t, rec)
	require.NotEmpty(t, login.Tokens.AccessToken)

	rec = s.do(t, http.MethodGet, "/auth/profile", nil, bearer(login.Tokens.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get(session.DefaultRotationHeader))
	var profile userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	require.Equal(t, "ana@example.com", profile.Email)

	rec = s.do(t, http.MethodPost, "/auth/refresh", refreshRequest{RefreshToken: login.Tokens.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var grant types.AccessGrant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grant))
	require.NotEqual(t, login.Tokens.AccessToken, grant.AccessToken)

	rec = s.do(t, http.MethodPost, "/auth/logout", credentialsRequest{Identifier: "ana@example.com", Password: "s3cret"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"message":"Logged out successfully"}`, rec.Body.String())
}

func TestRouter_FailuresAreOpaque(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/auth/signup", signUpRequest{Email: "ana@example.com", Password: "s3cret"}, nil)

	wrong := s.do(t, http.MethodPost, "/auth/login", credentialsRequest{Email: "ana@example.com", Password: "nope"}, nil)
	missing := s.do(t, http.MethodPost, "/auth/login", credentialsRequest{Email: "ghost@example.com", Password: "s3cret"}, nil)
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.Equal(t, http.StatusUnauthorized, missing.Code)
	require.Equal(t, wrong.Body.String(), missing.Body.String())

	rec := s.do(t, http.MethodGet, "/auth/profile", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", map[string]any{"bogus": true}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ExpiredAccessRotatesViaHeader(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/signup", signUpRequest{Email: "ana@example.com", Password: "s3cret"}, nil)
	created := decodeAuth(t, rec)

	s.clock.advance(issuer.DefaultAccessTTL + time.Minute)
	rec = s.do(t, http.MethodGet, "/auth/profile", nil, bearer(created.Tokens.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := rec.Header().Get(session.DefaultRotationHeader)
	require.NotEmpty(t, rotated)
	require.NotEqual(t, created.Tokens.AccessToken, rotated)

	rec = s.do(t, http.MethodGet, "/auth/profile", nil, bearer(rotated))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get(session.DefaultRotationHeader))
}

func TestRouter_FederatedFlows(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/signup/google", federatedRequest{Credential: "fed@example.com:" + testClientID}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, types.RoleUser, decodeAuth(t, rec).User.Role)

	rec = s.do(t, http.MethodPost, "/auth/signup/google", federatedRequest{Credential: "fed@example.com:" + testClientID}, nil)
	require.Equal(t, http.StatusNotAcceptable, rec.Code)
	require.Contains(t, rec.Body.String(), types.TextCodeDuplicateAccount)

	rec = s.do(t, http.MethodPost, "/auth/login/google", federatedRequest{Credential: "fed@example.com:other"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login/google", federatedRequest{Credential: "fed@example.com:" + testClientID}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_GoogleCodeFlow(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/auth/signup/google", federatedRequest{Credential: "gina@example.com:" + testClientID}, nil)

	rec := s.do(t, http.MethodGet, "/auth/google/url", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	state := cookies[0].Value

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body["url"], state)

	header := http.Header{"Cookie": []string{stateCookieName + "=" + state}}
	rec = s.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state="+state, nil, header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "gina@example.com", decodeAuth(t, rec).User.Email)

	rec = s.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state=forged", nil, header)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_ActivityFeedPaginates(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/signup", signUpRequest{Email: "ana@example.com", Password: "s3cret"}, nil)
	created := decodeAuth(t, rec)
	for i := 0; i < 3; i++ {
		s.clock.advance(time.Second)
		s.do(t, http.MethodPost, "/auth/refresh", refreshRequest{RefreshToken: created.Tokens.RefreshToken}, nil)
	}
	rec = s.do(t, http.MethodPost, "/auth/login", credentialsRequest{Email: "ana@example.com", Password: "s3cret"}, nil)
	login := decodeAuth(t, rec)

	rec = s.do(t, http.MethodGet, "/auth/activity?limit=2", nil, bearer(login.Tokens.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first activityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Len(t, first.Records, 2)
	require.NotEmpty(t, first.NextCursor)

	rec = s.do(t, http.MethodGet, "/auth/activity?limit=10&cursor="+first.NextCursor, nil, bearer(login.Tokens.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var second activityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Len(t, second.Records, 3)
	require.Empty(t, second.NextCursor)

	rec = s.do(t, http.MethodGet, "/auth/activity?cursor=@@@", nil, bearer(login.Tokens.AccessToken))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/auth/signup", signUpRequest{Email: "ana@example.com", Password: "s3cret"}, nil)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/readyz", nil, nil).Code)

	rec := s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "credentials_tokens_issued_total")
}

func TestRouter_LogsEachRequest(t *testing.T) {
	logger := &captureLogger{}
	s := newTestServer(t, func(o *RouterOptions) { o.Logger = logger })

	s.do(t, http.MethodGet, "/healthz", nil, nil)
	s.do(t, http.MethodPost, "/auth/login", credentialsRequest{Email: "nobody@example.com", Password: "x"}, nil)
	s.do(t, http.MethodGet, "/auth/profile", nil, nil)

	lines := logger.requests()
	require.Len(t, lines, 3)

	require.Equal(t, http.MethodGet, lines[0]["method"])
	require.Equal(t, "/healthz", lines[0]["path"])
	require.Equal(t, http.StatusOK, lines[0]["status"])
	require.NotEmpty(t, lines[0]["request_id"])
	require.IsType(t, time.Duration(0), lines[0]["duration"])

	require.Equal(t, http.MethodPost, lines[1]["method"])
	require.Equal(t, "/auth/login", lines[1]["path"])
	require.Equal(t, http.StatusUnauthorized, lines[1]["status"])

	require.Equal(t, "/auth/profile", lines[2]["path"])
	require.Equal(t, http.StatusUnauthorized, lines[2]["status"])
}

func TestRouter_CORSCredentialsOnlyForConfiguredOrigins(t *testing.T) {
	origin := http.Header{"Origin": []string{"https://evil.example.com"}}

	open := newTestServer(t)
	rec := open.do(t, http.MethodGet, "/healthz", nil, origin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	locked := newTestServer(t, func(o *RouterOptions) {
		o.AllowedOrigins = []string{"https://app.example.com"}
	})
	rec = locked.do(t, http.MethodGet, "/healthz", nil, http.Header{"Origin": []string{"https://app.example.com"}})
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = locked.do(t, http.MethodGet, "/healthz", nil, origin)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func newTestDB(t *testing.T) *bun.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
		_ = sqldb.Close()
	})

	files, err := filepath.Glob("../data/sql/migrations/sqlite/*.up.sql")
	require.NoError(t, err)
	sort.Strings(files)
	for _, file := range files {
		content, err := os.ReadFile(file)
		require.NoError(t, err)
		for _, stmt := range strings.Split(string(content), ";") {
			if strings.TrimSpace(stmt) != "" {
				_, err := db.Exec(stmt)
				require.NoError(t, err, file)
			}
		}
	}
	return db
}
