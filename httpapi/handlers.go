package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/activity"
	"github.com/goliatone/go-credentials/pkg/authctx"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/goliatone/go-credentials/query"
	"github.com/goliatone/go-credentials/service"
	"github.com/google/uuid"
)

const (
	maxBodyBytes    = 1 << 16
	stateCookieName = "credentials_oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

var errBadRequestBody = errors.New("httpapi: malformed request body")

type handlers struct {
	backend Backend
	google  GoogleFlow
	logger  types.Logger
	secure  bool
}

type credentialsRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (c credentialsRequest) key() string {
	if strings.TrimSpace(c.Identifier) != "" {
		return c.Identifier
	}
	return c.Email
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type federatedRequest struct {
	Credential string `json:"credential"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type authResponse struct {
	User   userResponse    `json:"user"`
	Tokens types.TokenPair `json:"tokens"`
}

type activityEntry struct {
	ID         uuid.UUID      `json:"id"`
	Verb       string         `json:"verb"`
	Channel    string         `json:"channel,omitempty"`
	IP         string         `json:"ip,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type activityResponse struct {
	Records    []activityEntry `json:"records"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func toUserResponse(user types.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

func toAuthResponse(result types.AuthResult) authResponse {
	return authResponse{User: toUserResponse(result.User), Tokens: result.Tokens}
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(errBadRequestBody, err)
	}
	return nil
}

func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.backend.SignIn(r.Context(), req.key(), req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

func (h *handlers) signOut(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	ack, err := h.backend.SignOut(r.Context(), req.key(), req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	grant, err := h.backend.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.backend.SignUp(r.Context(), service.SignUpRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Username: req.Username,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthResponse(result))
}

func (h *handlers) signInFederated(w http.ResponseWriter, r *http.Request) {
	var req federatedRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.backend.SignInFederated(r.Context(), req.Credential)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

func (h *handlers) signUpFederated(w http.ResponseWriter, r *http.Request) {
	var req federatedRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.backend.SignUpFederated(r.Context(), req.Credential)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthResponse(result))
}

// googleURL starts the code flow. The state is echoed back in a short-lived
// cookie and checked on callback.
func (h *handlers) googleURL(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "google sign-in is not configured")
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"url": h.google.AuthCodeURL(state)})
}

// googleCallback exchanges the code for an ID token and signs in the account
// it names.
func (h *handlers) googleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeError(w, http.StatusNotFound, "NOT_CONFIGURED", "google sign-in is not configured")
		return
	}
	cookie, err := r.Cookie(stateCookieName)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || cookie.Value != state {
		h.respondError(w, r, types.ErrUnauthorized)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/auth/google", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if strings.TrimSpace(code) == "" {
		h.respondError(w, r, errBadRequestBody)
		return
	}
	credential, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("httpapi: google exchange failed", err)
		h.respondError(w, r, types.ErrUnauthorized)
		return
	}
	result, err := h.backend.SignInFederated(r.Context(), credential)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	identity, err := authctx.ResolveIdentity(r.Context())
	if err != nil {
		h.respondError(w, r, types.ErrUnauthorized)
		return
	}
	user, err := h.backend.Profile(r.Context(), identity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

func (h *handlers) activityFeed(w http.ResponseWriter, r *http.Request) {
	identity, err := authctx.ResolveIdentity(r.Context())
	if err != nil {
		h.respondError(w, r, types.ErrUnauthorized)
		return
	}
	params := r.URL.Query()
	cursor, err := activity.ParseCursor(params.Get("cursor"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(params.Get("limit"))
	var verbs []string
	if raw := strings.TrimSpace(params.Get("verbs")); raw != "" {
		verbs = strings.Split(raw, ",")
	}

	page, err := h.backend.ActivityFeed(r.Context(), query.ActivityFeedInput{
		Identity: identity,
		Verbs:    verbs,
		Cursor:   cursor,
		Limit:    limit,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := activityResponse{Records: make([]activityEntry, 0, len(page.Records))}
	for _, record := range page.Records {
		resp.Records = append(resp.Records, activityEntry{
			ID:         record.ID,
			Verb:       record.Verb,
			Channel:    record.Channel,
			IP:         record.IP,
			Data:       record.Data,
			OccurredAt: record.OccurredAt,
		})
	}
	if page.NextCursor != nil {
		resp.NextCursor = page.NextCursor.Encode()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
