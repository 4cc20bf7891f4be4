package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goliatone/go-credentials/activity"
	"github.com/goliatone/go-credentials/pkg/authctx"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/goliatone/go-credentials/query"
	"github.com/goliatone/go-credentials/service"
	"github.com/goliatone/go-credentials/session"
)

const defaultRateLimit = 100

// Backend is the slice of *service.Service the handlers call.
type Backend interface {
	session.Authenticator
	SignIn(ctx context.Context, identifier, password string) (types.AuthResult, error)
	SignOut(ctx context.Context, identifier, password string) (types.Acknowledgement, error)
	SignInFederated(ctx context.Context, credential string) (types.AuthResult, error)
	SignUpFederated(ctx context.Context, credential string) (types.AuthResult, error)
	SignUp(ctx context.Context, req service.SignUpRequest) (types.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (types.AccessGrant, error)
	Profile(ctx context.Context, identity *types.Identity) (*types.User, error)
	ActivityFeed(ctx context.Context, input query.ActivityFeedInput) (activity.Page, error)
	HealthCheck(ctx context.Context) error
}

// GoogleFlow runs the authorization-code leg of Google sign-in.
// *federated.GoogleExchanger satisfies it.
type GoogleFlow interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

var _ Backend = (*service.Service)(nil)

// RouterOptions wires the router.
type RouterOptions struct {
	Backend        Backend
	Google         GoogleFlow
	Metrics        http.Handler
	Logger         types.Logger
	AllowedOrigins []string
	// RateLimit is the per-IP request budget per minute on /auth routes.
	RateLimit      int
	RotationHeader string
	SecureCookies  bool
}

// publicPrefixes are reachable without a bearer token.
var publicPrefixes = []string{
	"/auth/login",
	"/auth/logout",
	"/auth/refresh",
	"/auth/signup",
	"/auth/google",
	"/healthz",
	"/readyz",
	"/metrics",
}

// Router builds the HTTP router.
func Router(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	rotationHeader := opts.RotationHeader
	if rotationHeader == "" {
		rotationHeader = session.DefaultRotationHeader
	}
	h := &handlers{
		backend: opts.Backend,
		google:  opts.Google,
		logger:  logger,
		secure:  opts.SecureCookies,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(clientIP)

	// Credentialed CORS is only offered to explicitly configured origins.
	allowed := opts.AllowedOrigins
	credentialed := len(allowed) > 0
	if !credentialed {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{rotationHeader},
		AllowCredentials: credentialed,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", h.readyz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	limit := opts.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	r.Route("/auth", func(r chi.Router) {
		r.Use(httprate.LimitByIP(limit, time.Minute))
		r.Use(session.Middleware(opts.Backend,
			session.WithPublic(session.PublicPrefixes(publicPrefixes...)),
			session.WithRotationHeader(rotationHeader),
		))

		r.Post("/login", h.signIn)
		r.Post("/logout", h.signOut)
		r.Post("/refresh", h.refresh)
		r.Post("/signup", h.signUp)
		r.Post("/login/google", h.signInFederated)
		r.Post("/signup/google", h.signUpFederated)
		r.Get("/google/url", h.googleURL)
		r.Get("/google/callback", h.googleCallback)

		r.Get("/profile", h.profile)
		r.Get("/activity", h.activityFeed)
	})

	return r
}

// requestLogger logs one line per request once the handler returns.
func requestLogger(logger types.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logger.Info("httpapi: request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// clientIP records the caller address for activity entries. RealIP has
// already rewritten RemoteAddr from forwarding headers.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(authctx.WithClientIP(r.Context(), ip)))
	})
}
