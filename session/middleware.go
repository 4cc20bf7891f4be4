package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/goliatone/go-credentials/pkg/authctx"
	"github.com/goliatone/go-credentials/pkg/types"
)

// DefaultRotationHeader carries a silently reissued access token back to the client.
const DefaultRotationHeader = "X-Access-Token"

// Authenticator is the resolver contract the middleware depends on. Both
// *Resolver and the service facade satisfy it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string, public bool) (Result, error)
}

// PublicFunc reports whether a request targets a route that does not require
// authentication.
type PublicFunc func(*http.Request) bool

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// MiddlewareOption customizes Middleware.
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	public         PublicFunc
	rotationHeader string
	onError        ErrorHandler
}

// WithPublic sets the public route matcher.
func WithPublic(fn PublicFunc) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.public = fn
		}
	}
}

// WithRotationHeader overrides the response header used to return rotated tokens.
func WithRotationHeader(name string) MiddlewareOption {
	return func(o *middlewareOptions) {
		if strings.TrimSpace(name) != "" {
			o.rotationHeader = name
		}
	}
}

// WithErrorHandler overrides the rejection response.
func WithErrorHandler(fn ErrorHandler) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// PublicPrefixes matches requests whose path starts with any of prefixes.
func PublicPrefixes(prefixes ...string) PublicFunc {
	return func(r *http.Request) bool {
		for _, prefix := range prefixes {
			if prefix != "" && strings.HasPrefix(r.URL.Path, prefix) {
				return true
			}
		}
		return false
	}
}

// Middleware authenticates each request through auth. Identities are attached
// with authctx.WithIdentity; rotated access tokens are echoed in the rotation
// header and replace the request Authorization header downstream.
func Middleware(auth Authenticator, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	options := middlewareOptions{
		public:         func(*http.Request) bool { return false },
		rotationHeader: DefaultRotationHeader,
		onError:        writeUnauthorized,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearer(r.Header.Get("Authorization"))
			result, err := auth.Authenticate(r.Context(), token, options.public(r))
			if err != nil || !result.Allowed() {
				if err == nil {
					err = types.ErrUnauthorized
				}
				options.onError(w, r, err)
				return
			}

			ctx := authctx.WithIdentity(r.Context(), result.Identity)
			if result.RotatedToken != "" {
				ctx = authctx.WithRotatedToken(ctx, result.RotatedToken)
				w.Header().Set(options.rotationHeader, result.RotatedToken)
				r = r.Clone(ctx)
				r.Header.Set("Authorization", "Bearer "+result.RotatedToken)
			} else {
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeUnauthorized never reports which check failed.
func writeUnauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
		Code:    types.TextCodeUnauthorized,
		Message: "unauthorized",
	}})
}
