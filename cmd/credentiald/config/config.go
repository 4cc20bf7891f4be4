package config

import (
	"errors"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
)

// BaseConfig holds all configuration for credentiald.
type BaseConfig struct {
	Server      ServerConfig      `json:"server"`
	Tokens      TokensConfig      `json:"tokens"`
	Google      GoogleConfig      `json:"google"`
	Avatar      AvatarConfig      `json:"avatar"`
	Persistence PersistenceConfig `json:"persistence"`
	Features    FeaturesConfig    `json:"features"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `json:"host" env:"SERVER_HOST" default:"localhost"`
	Port            string        `json:"port" env:"SERVER_PORT" default:"8979"`
	AllowedOrigins  []string      `json:"allowed_origins"`
	RateLimit       int           `json:"rate_limit" default:"100"`
	SecureCookies   bool          `json:"secure_cookies"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" default:"10s"`
}

// Addr joins host and port.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// TokensConfig carries the signing material for access and refresh tokens.
type TokensConfig struct {
	AccessSecret  string        `json:"access_secret" env:"TOKENS_ACCESS_SECRET"`
	RefreshSecret string        `json:"refresh_secret" env:"TOKENS_REFRESH_SECRET"`
	AccessTTL     time.Duration `json:"access_ttl" default:"15m"`
	RefreshTTL    time.Duration `json:"refresh_ttl" default:"168h"`
	Issuer        string        `json:"issuer" default:"credentiald"`
}

// GoogleConfig enables federated sign-in when ClientID is set.
type GoogleConfig struct {
	ClientID     string `json:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `json:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string `json:"redirect_url" env:"GOOGLE_REDIRECT_URL"`
}

// Enabled reports whether the code flow can run.
func (c GoogleConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// AvatarConfig selects where provider pictures are copied to.
type AvatarConfig struct {
	// Driver is "file", "s3" or empty to keep provider pictures unfetched.
	Driver     string        `json:"driver" default:"file"`
	DefaultURL string        `json:"default_url" default:"/media/default.jpg"`
	Dir        string        `json:"dir" default:"./media"`
	BaseURL    string        `json:"base_url" default:"/media"`
	Timeout    time.Duration `json:"timeout" default:"10s"`
	S3         S3Config      `json:"s3"`
}

// S3Config configures an S3-compatible avatar bucket.
type S3Config struct {
	Endpoint  string `json:"endpoint" env:"AVATAR_S3_ENDPOINT"`
	Region    string `json:"region" env:"AVATAR_S3_REGION"`
	AccessKey string `json:"access_key" env:"AVATAR_S3_ACCESS_KEY"`
	SecretKey string `json:"secret_key" env:"AVATAR_S3_SECRET_KEY"`
	Bucket    string `json:"bucket" env:"AVATAR_S3_BUCKET"`
	Prefix    string `json:"prefix" default:"avatars"`
	BaseURL   string `json:"base_url" env:"AVATAR_S3_BASE_URL"`
	PathStyle bool   `json:"path_style"`
}

// FeaturesConfig toggles self-registration.
type FeaturesConfig struct {
	Signup          bool `json:"signup" default:"true"`
	FederatedSignup bool `json:"federated_signup" default:"true"`
}

// PersistenceConfig implements persistence.Config.
type PersistenceConfig struct {
	Debug          bool          `json:"debug"`
	Driver         string        `json:"driver" default:"sqlite"`
	Server         string        `json:"server" env:"DB_SERVER" default:"file:credentials.db?_journal_mode=WAL&cache=shared&_fk=1"`
	PingTimeout    time.Duration `json:"ping_timeout" default:"5s"`
	OtelIdentifier string        `json:"otel_identifier" default:"credentiald"`
}

func (c PersistenceConfig) GetDebug() bool                { return c.Debug }
func (c PersistenceConfig) GetDriver() string             { return c.Driver }
func (c PersistenceConfig) GetServer() string             { return c.Server }
func (c PersistenceConfig) GetPingTimeout() time.Duration { return c.PingTimeout }
func (c PersistenceConfig) GetOtelIdentifier() string     { return c.OtelIdentifier }

// Dialect reports the normalized database dialect.
func (c PersistenceConfig) Dialect() string {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "postgres", "postgresql", "pg":
		return "postgres"
	default:
		return "sqlite"
	}
}

// GetPersistence returns the persistence config.
func (c *BaseConfig) GetPersistence() persistence.Config {
	return c.Persistence
}

// Validate implements config.Validable.
func (c *BaseConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Tokens.AccessSecret) == "" || strings.TrimSpace(c.Tokens.RefreshSecret) == "" {
		errs = append(errs, errors.New("config: tokens.access_secret and tokens.refresh_secret are required"))
	} else if c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		errs = append(errs, errors.New("config: access and refresh secrets must differ"))
	}
	switch strings.ToLower(c.Avatar.Driver) {
	case "", "file":
	case "s3":
		if c.Avatar.S3.Bucket == "" {
			errs = append(errs, errors.New("config: avatar.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, errors.New("config: avatar.driver must be file or s3"))
	}
	return errors.Join(errs...)
}
