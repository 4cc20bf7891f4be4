package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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
	"github.com/goliatone/go-credentials/pkg/authctx"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/goliatone/go-credentials/query"
	"github.com/goliatone/go-credentials/service"
	"github.com/goliatone/go-credentials/session"
	"github.com/goliatone/go-credentials/tokens"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	clientID      = "client-123"
	defaultAvatar = "https://cdn.example.com/media/default.jpg"
)

type harness struct {
	svc      *service.Service
	clock    *movableClock
	tokens   *tokens.Repository
	users    *accounts.Repository
	activity *activity.Repository
	fetcher  *stubFetcher
	decoder  *stubDecoder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newTestDB(t)
	applyMigrations(t, db)

	clock := &movableClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	users, err := accounts.NewRepository(accounts.RepositoryConfig{DB: db, Clock: clock})
	require.NoError(t, err)
	store, err := tokens.NewRepository(tokens.RepositoryConfig{DB: db, Clock: clock, MaxRetries: 10})
	require.NoError(t, err)
	feed, err := activity.NewRepository(activity.RepositoryConfig{DB: db, Clock: clock})
	require.NoError(t, err)

	h := &harness{
		clock:    clock,
		tokens:   store,
		users:    users,
		activity: feed,
		fetcher:  &stubFetcher{url: "https://cdn.example.com/media/fetched.jpg"},
		decoder:  &stubDecoder{claims: map[string]types.IdentityClaim{}},
	}
	svc, err := service.New(service.Config{
		UserStore:       users,
		CredentialStore: store,
		Tokens: service.TokenConfig{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
		},
		ImageFetcher:     h.fetcher,
		Decoder:          h.decoder,
		ClientID:         clientID,
		DefaultAvatarURL: defaultAvatar,
		ActivitySink:     feed,
		Clock:            clock,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) signUp(t *testing.T, email, password string) types.AuthResult {
	t.Helper()
	result, err := h.svc.SignUp(context.Background(), service.SignUpRequest{Email: email, Password: password, Name: "Test"})
	require.NoError(t, err)
	return result
}

func (h *harness) federatedClaim(credential, email, audience string) {
	h.decoder.claims[credential] = types.IdentityClaim{
		Issuer:        "https://accounts.google.com",
		Audience:      audience,
		Subject:       "sub-" + email,
		Email:         email,
		EmailVerified: true,
		Name:          "Fed User",
		Picture:       "https://lh3.example.com/" + email,
	}
}

func TestNew_RequiresStoresAndSecrets(t *testing.T) {
	_, err := service.New(service.Config{})
	require.ErrorIs(t, err, types.ErrMissingUserStore)

	_, err = service.New(service.Config{UserStore: &accounts.Repository{}})
	require.ErrorIs(t, err, types.ErrMissingCredentialStore)

	_, err = service.New(service.Config{
		UserStore:       &accounts.Repository{},
		CredentialStore: tokens.NewMemoryStore(nil),
		Tokens:          service.TokenConfig{AccessSecret: "same", RefreshSecret: "same"},
	})
	require.ErrorIs(t, err, types.ErrSharedSecret)
}

func TestSignIn_KeepsOneRecordPerKind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.signUp(t, "ana@example.com", "s3cret")

	first, err := h.svc.SignIn(ctx, "ana@example.com", "s3cret")
	require.NoError(t, err)
	require.Equal(t, created.User.ID, first.User.ID)
	require.Empty(t, first.User.PasswordHash)

	h.clock.advance(time.Second)
	second, err := h.svc.SignIn(ctx, "ANA@example.com", "s3cret")
	require.NoError(t, err)
	require.NotEqual(t, first.Tokens.AccessToken, second.Tokens.AccessToken)
	require.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

	records, err := h.tokens.ListByUser(ctx, created.User.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, second.Tokens.AccessToken, records[0].Token)
	require.Equal(t, second.Tokens.RefreshToken, records[1].Token)
}

func TestSignIn_FailuresAreUnauthorized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signUp(t, "ana@example.com", "s3cret")

	_, err := h.svc.SignIn(ctx, "ana@example.com", "wrong")
	require.ErrorIs(t, err, types.ErrUnauthorized)
	require.False(t, errors.Is(err, types.ErrInvalidCredentials))

	_, err = h.svc.SignIn(ctx, "ghost@example.com", "s3cret")
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestSignIn_ConcurrentCallsLeaveOneRecordPerKind(t *testing.T) {
	h := newHarness(t)
	created := h.signUp(t, "ana@example.com", "s3cret")

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.SignIn(context.Background(), "ana@example.com", "s3cret")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records, err := h.tokens.ListByUser(context.Background(), created.User.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	kinds := []string{string(records[0].Kind), string(records[1].Kind)}
	sort.Strings(kinds)
	require.Equal(t, []string{"access", "refresh"}, kinds)
}

func TestAuthenticate_FreshAccessToken(t *testing.T) {
	h := newHarness(t)
	created := h.signUp(t, "ana@example.com", "s3cret")

	result, err := h.svc.Authenticate(context.Background(), created.Tokens.AccessToken, false)
	require.NoError(t, err)
	require.Equal(t, session.StateAuthenticated, result.State)
	require.Equal(t, created.User.ID, result.Identity.UserID)
	require.Equal(t, "ana@example.com", result.Identity.Email)
}

func TestAuthenticate_ExpiredAccessRenews(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.signUp(t, "ana@example.com", "s3cret")

	h.clock.advance(issuer.DefaultAccessTTL + time.Minute)
	result, err := h.svc.Authenticate(ctx, created.Tokens.AccessToken, false)
	require.NoError(t, err)
	require.Equal(t, session.StateAuthenticated, result.State)
	require.NotEmpty(t, result.RotatedToken)
	require.NotEqual(t, created.Tokens.AccessToken, result.RotatedToken)

	page, err := h.activity.List(ctx, activity.Filter{UserID: created.User.ID, Verbs: []string{"auth.rotate"}})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
}

func TestAuthenticate_ExpiredAccessWithoutRefreshRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user, err := h.users.Create(ctx, types.User{Email: "bare@example.com"})
	require.NoError(t, err)
	access, _, err := h.svc.Issuer().IssueAccess(ctx, issuer.ClaimsFor(*user))
	require.NoError(t, err)

	h.clock.advance(issuer.DefaultAccessTTL + time.Minute)
	result, err := h.svc.Authenticate(ctx, access, false)
	require.ErrorIs(t, err, types.ErrUnauthorized)
	require.Equal(t, session.StateRejected, result.State)
}

func TestRefresh_MintsAccessOnly(t *testing.T) {
	h := newHarness(t)
	ctx := authctx.WithClientIP(context.Background(), "203.0.113.9")
	created := h.signUp(t, "ana@example.com", "s3cret")

	h.clock.advance(time.Minute)
	grant, err := h.svc.Refresh(ctx, created.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, created.Tokens.AccessToken, grant.AccessToken)

	refresh, err := h.tokens.Find(ctx, created.User.ID, types.TokenKindRefresh)
	require.NoError(t, err)
	require.Equal(t, created.Tokens.RefreshToken, refresh.Token)

	page, err := h.activity.List(ctx, activity.Filter{UserID: created.User.ID, Verbs: []string{"auth.refresh"}})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.Equal(t, "203.0.113.9", page.Records[0].IP)

	_, err = h.svc.Refresh(ctx, created.Tokens.AccessToken)
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestSignOut_LeavesTokensInPlace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.signUp(t, "ana@example.com", "s3cret")

	ack, err := h.svc.SignOut(ctx, "ana@example.com", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "Logged out successfully", ack.Message)

	records, err := h.tokens.ListByUser(ctx, created.User.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	_, err = h.svc.SignOut(ctx, "ana@example.com", "nope")
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestSignUpFederated_SecondAttemptIsDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.federatedClaim("cred-1", "fed@example.com", clientID)

	first, err := h.svc.SignUpFederated(ctx, "cred-1")
	require.NoError(t, err)
	require.Equal(t, types.RoleUser, first.User.Role)
	require.Equal(t, h.fetcher.url, first.User.AvatarURL)

	_, err = h.svc.SignUpFederated(ctx, "cred-1")
	require.ErrorIs(t, err, types.ErrDuplicateAccount)
}

func TestSignInFederated_AudienceMismatchAlwaysUnauthorized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.federatedClaim("good", "fed@example.com", clientID)
	_, err := h.svc.SignUpFederated(ctx, "good")
	require.NoError(t, err)

	h.federatedClaim("known", "fed@example.com", "other-client")
	h.federatedClaim("unknown", "stranger@example.com", "other-client")
	for _, credential := range []string{"known", "unknown"} {
		_, err := h.svc.SignInFederated(ctx, credential)
		require.ErrorIs(t, err, types.ErrUnauthorized, credential)
	}
}

func TestSignInFederated_AvatarFailureKeepsPriorAvatar(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user, err := h.users.Create(ctx, types.User{Email: "fed@example.com", AvatarURL: defaultAvatar})
	require.NoError(t, err)

	h.federatedClaim("cred", "fed@example.com", clientID)
	h.fetcher.err = types.ErrUpstreamUnavailable

	result, err := h.svc.SignInFederated(ctx, "cred")
	require.NoError(t, err)
	require.Equal(t, user.ID, result.User.ID)
	require.Equal(t, defaultAvatar, result.User.AvatarURL)
	require.NotEmpty(t, result.Tokens.AccessToken)
	require.NotEmpty(t, result.Tokens.RefreshToken)
}

func TestProfileAndActivityFeed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.signUp(t, "ana@example.com", "s3cret")
	_, err := h.svc.SignIn(ctx, "ana@example.com", "s3cret")
	require.NoError(t, err)

	result, err := h.svc.Authenticate(ctx, created.Tokens.AccessToken, false)
	require.Error(t, err)
	require.Equal(t, session.StateRejected, result.State)

	identity := &types.Identity{UserID: created.User.ID, Email: created.User.Email}
	profile, err := h.svc.Profile(ctx, identity)
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", profile.Email)
	require.Empty(t, profile.PasswordHash)

	page, err := h.svc.ActivityFeed(ctx, query.ActivityFeedInput{Identity: identity})
	require.NoError(t, err)
	verbs := make([]string, 0, len(page.Records))
	for _, record := range page.Records {
		require.Equal(t, created.User.ID, record.UserID)
		verbs = append(verbs, record.Verb)
	}
	require.ElementsMatch(t, []string{"auth.sign_up", "auth.sign_in"}, verbs)

	_, err = h.svc.Profile(ctx, nil)
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.svc.Ready())
	require.NoError(t, h.svc.HealthCheck(context.Background()))

	var missing *service.Service
	require.False(t, missing.Ready())
}

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

type stubFetcher struct {
	url string
	err error
}

func (f *stubFetcher) FetchAndStore(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type stubDecoder struct {
	claims map[string]types.IdentityClaim
}

func (d *stubDecoder) Decode(_ context.Context, credential string) (types.IdentityClaim, error) {
	claim, ok := d.claims[credential]
	if !ok {
		return types.IdentityClaim{}, types.ErrUnauthorized
	}
	return claim, nil
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
	return db
}

func applyMigrations(t *testing.T, db *bun.DB) {
	files, err := filepath.Glob("../data/sql/migrations/sqlite/*.up.sql")
	require.NoError(t, err)
	sort.Strings(files)
	require.NotEmpty(t, files)
	for _, file := range files {
		content, err := os.ReadFile(file)
		require.NoError(t, err)
		for _, stmt := range strings.Split(string(content), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			_, err := db.Exec(stmt)
			require.NoError(t, err, file)
		}
	}
}
