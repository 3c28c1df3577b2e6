// Package config loads the dashboard configuration from a YAML file with
// environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"guild-dashboard/internal/auth"
	"guild-dashboard/internal/discord"
	"guild-dashboard/internal/logger"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/session"
	"guild-dashboard/internal/store/mongostore"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath       = "config.yaml"
	DefaultSecretFile = "data/.sk"
	DefaultSQLitePath = "data/dashboard.db"

	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Discord   discord.Config  `yaml:"discord"`
	Auth      AuthConfig      `yaml:"auth"`
	Admin     AdminConfig     `yaml:"admin"`
	Bot       BotConfig       `yaml:"bot"`
	Audit     AuditConfig     `yaml:"audit"`
	Retention RetentionConfig `yaml:"retention"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logger    logger.Config   `yaml:"logger"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Environment    string   `yaml:"environment"`
	FrontendURL    string   `yaml:"frontend_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// StaticDir holds the built frontend; empty disables the SPA fallback.
	StaticDir string `yaml:"static_dir"`
	// TrustedProxies may set X-Forwarded-For. Empty means the socket address is the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

func (s ServerConfig) Addr() string { return ":" + strconv.Itoa(s.Port) }

type StorageConfig struct {
	Driver string            `yaml:"driver"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Mongo  mongostore.Config `yaml:"mongo"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	SecretFile   string        `yaml:"secret_file"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	RefreshTTL   time.Duration `yaml:"refresh_ttl"`
	DirectoryTTL time.Duration `yaml:"directory_ttl"`
}

type AdminConfig struct {
	DiscordIDs  []string          `yaml:"discord_ids"`
	APIKey      string            `yaml:"api_key"`
	Credentials []auth.Credential `yaml:"credentials"`
}

type BotConfig struct {
	APIKey string `yaml:"api_key"`
}

type AuditConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type RetentionConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// Limit allows Requests per Window for one client address. Zero requests
// disables the limiter.
type Limit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type RateLimitConfig struct {
	General Limit `yaml:"general"`
	Auth    Limit `yaml:"auth"`
	Create  Limit `yaml:"create"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           5000,
			Environment:    "development",
			FrontendURL:    "http://localhost:3000",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			SQLite: SQLiteConfig{Path: DefaultSQLitePath},
			Mongo: mongostore.Config{
				URI:      "mongodb://localhost:27017",
				Database: "discord-dashboard",
			},
		},
		Discord: discord.Config{Timeout: discord.DefaultTimeout},
		Auth: AuthConfig{
			SecretFile:   DefaultSecretFile,
			SessionTTL:   auth.DefaultSessionTTL,
			RefreshTTL:   auth.DefaultRefreshTTL,
			DirectoryTTL: session.DefaultDirectoryTTL,
		},
		Audit: AuditConfig{QueueSize: 256},
		Retention: RetentionConfig{
			Interval: time.Hour,
			MaxAge:   model.LogRetention,
		},
		RateLimit: RateLimitConfig{
			General: Limit{Requests: 100, Window: 15 * time.Minute},
			Auth:    Limit{Requests: 5, Window: 15 * time.Minute},
			Create:  Limit{Requests: 20, Window: time.Minute},
		},
		Logger: logger.Config{Level: "info", Development: true},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "read %s", path)
	}

	applyEnv(&cfg, os.LookupEnv)

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DISCORD_CLIENT_ID", &cfg.Discord.ClientID)
	str("DISCORD_CLIENT_SECRET", &cfg.Discord.ClientSecret)
	str("FRONTEND_URL", &cfg.Server.FrontendURL)
	str("MONGODB_URI", &cfg.Storage.Mongo.URI)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("ADMIN_API_KEY", &cfg.Admin.APIKey)
	str("BOT_API_KEY", &cfg.Bot.APIKey)
	str("NODE_ENV", &cfg.Server.Environment)

	if v, ok := lookup("MONGODB_URI"); ok && v != "" {
		cfg.Storage.Driver = DriverMongo
	}
	if v, ok := lookup("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("TRUSTED_PROXIES"); ok && v != "" {
		cfg.Server.TrustedProxies = splitList(v)
	}
	if v, ok := lookup("ADMIN_DISCORD_IDS"); ok && v != "" {
		cfg.Admin.DiscordIDs = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) finish() error {
	c.Server.FrontendURL = strings.TrimRight(c.Server.FrontendURL, "/")
	if c.Discord.RedirectURL == "" && c.Server.FrontendURL != "" {
		c.Discord.RedirectURL = c.Server.FrontendURL + "/callback"
	}
	if len(c.Server.AllowedOrigins) == 0 && c.Server.FrontendURL != "" {
		c.Server.AllowedOrigins = []string{c.Server.FrontendURL}
	}

	switch c.Storage.Driver {
	case DriverSQLite, DriverMongo:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Server.Environment == "production" }

// ResolveJWTSecret fills Auth.JWTSecret from the secret file, generating and
// persisting a random secret on first start.
func (c *Config) ResolveJWTSecret(log *zap.Logger) error {
	if c.Auth.JWTSecret != "" {
		return nil
	}
	secret, err := loadOrCreateSecret(c.Auth.SecretFile, log)
	if err != nil {
		return err
	}
	c.Auth.JWTSecret = secret
	return nil
}

func loadOrCreateSecret(path string, log *zap.Logger) (string, error) {
	if path == "" {
		path = DefaultSecretFile
	}
	b, err := os.ReadFile(path)
	if err == nil {
		log.Info("loaded JWT secret", zap.String("file", path))
		return strings.TrimSpace(string(b)), nil
	}
	if !os.IsNotExist(err) {
		return "", errors.Wrap(err, "read JWT secret file")
	}

	log.Info("JWT secret file not found, generating a new one", zap.String("file", path))
	secret, err := auth.RandomHex(32)
	if err != nil {
		return "", errors.Wrap(err, "generate JWT secret")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "create secret directory")
	}
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return "", errors.Wrap(err, "write JWT secret file")
	}
	return secret, nil
}
