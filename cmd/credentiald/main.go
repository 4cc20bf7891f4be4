package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-credentials/accounts"
	"github.com/goliatone/go-credentials/activity"
	"github.com/goliatone/go-credentials/avatar"
	"github.com/goliatone/go-credentials/cmd/credentiald/config"
	"github.com/goliatone/go-credentials/federated"
	"github.com/goliatone/go-credentials/httpapi"
	"github.com/goliatone/go-credentials/issuer"
	"github.com/goliatone/go-credentials/migrations"
	"github.com/goliatone/go-credentials/pkg/telemetry"
	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/goliatone/go-credentials/service"
	"github.com/goliatone/go-credentials/tokens"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultPingTimeout       = 5 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

type App struct {
	config  *gconfig.Container[*config.BaseConfig]
	logger  *glog.BaseLogger
	bunDB   *bun.DB
	service *service.Service
	google  *federated.GoogleExchanger
	metrics *telemetry.Metrics
	reg     *prometheus.Registry
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("credentiald"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            "8979",
			RateLimit:       100,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Tokens: config.TokensConfig{
			AccessTTL:  issuer.DefaultAccessTTL,
			RefreshTTL: issuer.DefaultRefreshTTL,
			Issuer:     "credentiald",
		},
		Avatar: config.AvatarConfig{
			Driver:     "file",
			DefaultURL: "/media/default.jpg",
			Dir:        "./media",
			BaseURL:    "/media",
		},
		Persistence: config.PersistenceConfig{
			Driver:         "sqlite",
			Server:         "file:credentials.db?_journal_mode=WAL&cache=shared&_fk=1",
			PingTimeout:    defaultPingTimeout,
			OtelIdentifier: "credentiald",
		},
		Features: config.FeaturesConfig{
			Signup:          true,
			FederatedSignup: true,
		},
	}).WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		lgr.GetLogger("app").Error("config load failed", "error", err)
		os.Exit(1)
	}

	app := &App{config: cfg, logger: lgr}

	steps := []func(context.Context, *App) error{
		WithPersistence,
		WithMetrics,
		WithCredentialService,
	}
	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			app.GetLogger("app").Error("startup failed", "error", err)
			os.Exit(1)
		}
	}

	if err := Serve(ctx, app); err != nil {
		app.GetLogger("app").Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.Config().Persistence
	dialect := cfg.Dialect()

	driverName, bunDialect := "sqlite3", schema.Dialect(sqlitedialect.New())
	if dialect == "postgres" {
		driverName, bunDialect = "postgres", pgdialect.New()
	}

	db, err := sql.Open(driverName, cfg.GetServer())
	if err != nil {
		return err
	}
	if dialect == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	persistence.RegisterModel((*accounts.Record)(nil))
	persistence.RegisterModel((*tokens.Record)(nil))
	persistence.RegisterModel((*activity.LogEntry)(nil))

	client, err := persistence.New(cfg, db, bunDialect)
	if err != nil {
		return err
	}
	client.SetLogger(app.GetLogger("persistence"))

	for _, src := range migrations.Sources() {
		client.RegisterDialectMigrations(
			src.FS,
			persistence.WithDialectSourceLabel(src.Label),
			persistence.WithValidationTargets("postgres", "sqlite"),
		)
	}
	if err := client.ValidateDialects(ctx); err != nil {
		app.GetLogger("persistence").Warn("dialect validation failed", "error", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return err
	}
	if report := client.Report(); report != nil && !report.IsZero() {
		app.GetLogger("persistence").Info("migrations applied", "report", report.String())
	}

	app.bunDB = client.DB()
	return migrations.ValidateSchema(ctx, app.bunDB.DB, dialect)
}

func WithMetrics(_ context.Context, app *App) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		return err
	}
	app.reg = reg
	app.metrics = metrics
	return nil
}

func WithCredentialService(ctx context.Context, app *App) error {
	cfg := app.Config()
	logger := &loggerAdapter{app.GetLogger("credentials")}

	users, err := accounts.NewRepository(accounts.RepositoryConfig{DB: app.bunDB}, accounts.WithCache(true))
	if err != nil {
		return err
	}
	store, err := tokens.NewRepository(tokens.RepositoryConfig{
		DB:     app.bunDB,
		Logger: &loggerAdapter{app.GetLogger("tokens")},
	})
	if err != nil {
		return err
	}
	activityRepo, err := activity.NewRepository(activity.RepositoryConfig{DB: app.bunDB})
	if err != nil {
		return err
	}

	fetcher, err := newImageFetcher(ctx, cfg.Avatar, &loggerAdapter{app.GetLogger("avatar")})
	if err != nil {
		return err
	}

	if cfg.Google.Enabled() {
		app.google, err = federated.NewGoogleExchanger(federated.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		})
		if err != nil {
			return err
		}
	}

	svc, err := service.New(service.Config{
		UserStore:       users,
		CredentialStore: store,
		Tokens: service.TokenConfig{
			AccessSecret:  cfg.Tokens.AccessSecret,
			RefreshSecret: cfg.Tokens.RefreshSecret,
			AccessTTL:     cfg.Tokens.AccessTTL,
			RefreshTTL:    cfg.Tokens.RefreshTTL,
			Issuer:        cfg.Tokens.Issuer,
		},
		ImageFetcher:     fetcher,
		Decoder:          federated.NewDecoder(),
		ClientID:         cfg.Google.ClientID,
		DefaultAvatarURL: cfg.Avatar.DefaultURL,
		FeatureGate:      newStaticGate(cfg.Features),
		ActivitySink:     &activity.SanitizingSink{Sink: activityRepo, Masker: activity.DefaultMasker()},
		ActivityReader:   activityRepo,
		Logger:           logger,
		Metrics:          app.metrics,
	})
	if err != nil {
		return err
	}
	if err := svc.HealthCheck(ctx); err != nil {
		return err
	}
	app.service = svc
	return nil
}

func newImageFetcher(ctx context.Context, cfg config.AvatarConfig, logger types.Logger) (types.ImageFetcher, error) {
	var storage avatar.Storage
	switch strings.ToLower(cfg.Driver) {
	case "":
		return nil, nil
	case "s3":
		s3, err := avatar.NewS3Storage(ctx, avatar.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			BaseURL:   cfg.S3.BaseURL,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		storage = s3
	default:
		storage = avatar.FileStorage{Dir: cfg.Dir, BaseURL: cfg.BaseURL}
	}
	fetcher, err := avatar.NewFetcher(avatar.Config{
		Storage: storage,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return fetcher, nil
}

func Serve(ctx context.Context, app *App) error {
	cfg := app.Config()

	opts := httpapi.RouterOptions{
		Backend:        app.service,
		Metrics:        promhttp.HandlerFor(app.reg, promhttp.HandlerOpts{}),
		Logger:         &loggerAdapter{app.GetLogger("http")},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		SecureCookies:  cfg.Server.SecureCookies,
	}
	if app.google != nil {
		opts.Google = app.google
	}

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.Router(opts))
	if strings.ToLower(cfg.Avatar.Driver) == "file" && cfg.Avatar.BaseURL != "" {
		prefix := strings.TrimSuffix(cfg.Avatar.BaseURL, "/") + "/"
		mux.Handle(prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.Avatar.Dir))))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		app.GetLogger("http").Info("listening", "addr", fmt.Sprintf("http://%s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.GetLogger("http").Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return app.bunDB.Close()
}
