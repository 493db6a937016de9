package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string          `yaml:"discord_token" env:"DISCORD_TOKEN,overwrite" validate:"required"`
	ClientID      string          `yaml:"client_id" env:"CLIENT_ID,overwrite" validate:"required"`
	GuildID       string          `yaml:"guild_id" env:"GUILD_ID,overwrite" validate:"required"`
	LogLevel      string          `yaml:"log_level" env:"LOG_LEVEL,overwrite"`
	LogChannelID  string          `yaml:"log_channel_id" env:"LOG_CHANNEL_ID,overwrite"`
	Environment   string          `yaml:"environment" env:"ENVIRONMENT,overwrite"`
	Database      DatabaseConfig  `yaml:"database"`
	Roles         RolesConfig     `yaml:"roles"`
	Uploads       UploadConfig    `yaml:"uploads"`
	Storage       StorageConfig   `yaml:"storage"`
	Scanner       ScannerConfig   `yaml:"scanner"`
	VPN           VPNConfig       `yaml:"vpn"`
	Export        ExportConfig    `yaml:"export"`
	Confirm       ConfirmConfig   `yaml:"confirm"`
	LinkCheck     LinkCheckConfig `yaml:"link_check"`
	Health        HealthConfig    `yaml:"health"`
	Sentry        SentryConfig    `yaml:"sentry"`
	Notifications NotifyConfig    `yaml:"notifications"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER,overwrite" validate:"oneof=postgres sqlite"`
	URL             string        `yaml:"url" env:"DATABASE_URL,overwrite"`
	Host            string        `yaml:"host" env:"DB_HOST,overwrite"`
	Port            int           `yaml:"port" env:"DB_PORT,overwrite"`
	User            string        `yaml:"user" env:"DB_USER,overwrite"`
	Password        string        `yaml:"password" env:"DB_PASSWORD,overwrite"`
	Name            string        `yaml:"name" env:"DB_NAME,overwrite"`
	SSLMode         string        `yaml:"ssl_mode" env:"DB_SSL_MODE,overwrite"`
	Path            string        `yaml:"path" env:"DB_PATH,overwrite"`
	MaxConns        int           `yaml:"max_conns" env:"DB_MAX_CONNS,overwrite" validate:"min=1,max=15"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME,overwrite"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout" env:"DB_ACQUIRE_TIMEOUT,overwrite"`
}

type RolesConfig struct {
	VerifiedRoleID  string `yaml:"verified_role_id" env:"VERIFIED_ROLE_ID,overwrite"`
	GuardianRoleID  string `yaml:"guardian_role_id" env:"GUARDIAN_ROLE_ID,overwrite"`
	AdminRoleID     string `yaml:"admin_role_id" env:"ADMIN_ROLE_ID,overwrite"`
	AllowUnverified bool   `yaml:"allow_unverified_reports" env:"ALLOW_UNVERIFIED_REPORTS,overwrite"`
}

type UploadConfig struct {
	MaxFileSize      int64         `yaml:"max_file_size" env:"MAX_FILE_SIZE,overwrite" validate:"gt=0"`
	AllowedFileTypes []string      `yaml:"allowed_file_types" env:"ALLOWED_FILE_TYPES,overwrite" validate:"min=1"`
	MaxAttachments   int           `yaml:"max_attachments" env:"MAX_ATTACHMENTS,overwrite" validate:"min=1,max=3"`
	DownloadTimeout  time.Duration `yaml:"download_timeout" env:"DOWNLOAD_TIMEOUT,overwrite"`
	DescriptionLimit int           `yaml:"description_limit" env:"DESCRIPTION_LIMIT,overwrite" validate:"gt=0"`
	// SubmissionLimit caps reports per reporter within SubmissionWindow.
	// Zero disables the limit.
	SubmissionLimit  int           `yaml:"submission_limit" env:"SUBMISSION_LIMIT,overwrite" validate:"min=0"`
	SubmissionWindow time.Duration `yaml:"submission_window" env:"SUBMISSION_WINDOW,overwrite"`
}

type StorageConfig struct {
	Driver    string   `yaml:"driver" env:"STORAGE_DRIVER,overwrite" validate:"oneof=local s3"`
	UploadDir string   `yaml:"upload_dir" env:"UPLOAD_DIR,overwrite"`
	S3        S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" env:"S3_BUCKET,overwrite"`
	Region          string `yaml:"region" env:"S3_REGION,overwrite"`
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT,overwrite"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID,overwrite"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY,overwrite"`
	Prefix          string `yaml:"prefix" env:"S3_PREFIX,overwrite"`
}

type ScannerConfig struct {
	APIKey            string        `yaml:"api_key" env:"VIRUS_TOTAL_API_KEY,overwrite"`
	BaseURL           string        `yaml:"base_url" env:"VIRUS_TOTAL_URL,overwrite" validate:"url"`
	FailOpen          bool          `yaml:"fail_open" env:"SCANNER_FAIL_OPEN,overwrite"`
	PollInterval      time.Duration `yaml:"poll_interval" env:"SCANNER_POLL_INTERVAL,overwrite"`
	MaxPolls          int           `yaml:"max_polls" env:"SCANNER_MAX_POLLS,overwrite" validate:"min=1"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"SCANNER_REQUESTS_PER_MINUTE,overwrite" validate:"min=1"`
}

type VPNConfig struct {
	Enabled  bool          `yaml:"enabled" env:"VPN_DETECTION_ENABLED,overwrite"`
	Endpoint string        `yaml:"endpoint" env:"VPN_API_URL,overwrite"`
	APIKey   string        `yaml:"api_key" env:"VPN_API_KEY,overwrite"`
	Timeout  time.Duration `yaml:"timeout" env:"VPN_TIMEOUT,overwrite"`
}

type ExportConfig struct {
	Dir          string        `yaml:"dir" env:"EXPORT_DIR,overwrite"`
	CleanupDelay time.Duration `yaml:"cleanup_delay" env:"EXPORT_CLEANUP_DELAY,overwrite"`
}

type ConfirmConfig struct {
	SingleTimeout time.Duration `yaml:"single_timeout" env:"CONFIRM_SINGLE_TIMEOUT,overwrite"`
	BulkTimeout   time.Duration `yaml:"bulk_timeout" env:"CONFIRM_BULK_TIMEOUT,overwrite"`
}

type LinkCheckConfig struct {
	BlockedDomains []string `yaml:"blocked_domains" env:"SCAM_DOMAINS,overwrite"`
	TrustedDomains []string `yaml:"trusted_domains" env:"TRUSTED_DOMAINS,overwrite"`
	Keywords       []string `yaml:"keywords" env:"SCAM_KEYWORDS,overwrite"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled" env:"HEALTH_ENABLED,overwrite"`
	Addr    string `yaml:"addr" env:"HEALTH_ADDR,overwrite"`
}

type SentryConfig struct {
	DSN              string  `yaml:"dsn" env:"SENTRY_DSN,overwrite"`
	TracesSampleRate float64 `yaml:"traces_sample_rate" env:"SENTRY_TRACES_SAMPLE_RATE,overwrite"`
}

type NotifyConfig struct {
	DMEnabled         bool          `yaml:"dm_enabled" env:"DM_NOTIFY_ENABLED,overwrite"`
	SideEffectTimeout time.Duration `yaml:"side_effect_timeout" env:"SIDE_EFFECT_TIMEOUT,overwrite"`
	EmbedColors       EmbedColors   `yaml:"embed_colors"`
}

type EmbedColors struct {
	Action  int `yaml:"action" env:"EMBED_COLOR_ACTION,overwrite"`
	Success int `yaml:"success" env:"EMBED_COLOR_SUCCESS,overwrite"`
	Warning int `yaml:"warning" env:"EMBED_COLOR_WARNING,overwrite"`
	Error   int `yaml:"error" env:"EMBED_COLOR_ERROR,overwrite"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel:    "info",
		Environment: "production",
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			Name:            "scam_reports",
			SSLMode:         "disable",
			Path:            "scamwatch.db",
			MaxConns:        10,
			ConnMaxLifetime: 30 * time.Minute,
			AcquireTimeout:  30 * time.Second,
		},
		Uploads: UploadConfig{
			MaxFileSize:      8388608,
			AllowedFileTypes: []string{"png", "jpg", "jpeg", "gif", "webp"},
			MaxAttachments:   3,
			DownloadTimeout:  30 * time.Second,
			DescriptionLimit: 2000,
			SubmissionLimit:  5,
			SubmissionWindow: 10 * time.Minute,
		},
		Storage: StorageConfig{Driver: "local", UploadDir: "uploads"},
		Scanner: ScannerConfig{
			BaseURL:           "https://www.virustotal.com/api/v3",
			PollInterval:      5 * time.Second,
			MaxPolls:          6,
			RequestsPerMinute: 4,
		},
		VPN:     VPNConfig{Timeout: 5 * time.Second},
		Export:  ExportConfig{Dir: "exports", CleanupDelay: 60 * time.Second},
		Confirm: ConfirmConfig{SingleTimeout: 30 * time.Second, BulkTimeout: 60 * time.Second},
		LinkCheck: LinkCheckConfig{
			TrustedDomains: []string{"discord.com", "discord.gg", "discordapp.com", "steampowered.com", "steamcommunity.com"},
			Keywords:       []string{"nitro", "free", "claim", "gift", "steam", "giveaway", "airdrop"},
		},
		Health: HealthConfig{Enabled: false, Addr: ":8080"},
		Notifications: NotifyConfig{
			DMEnabled:         true,
			SideEffectTimeout: 15 * time.Second,
			EmbedColors: EmbedColors{
				Action:  0x3B82F6,
				Success: 0x22C55E,
				Warning: 0xF59E0B,
				Error:   0xEF4444,
			},
		},
	}
}

// Load reads config.yaml (or CONFIG_PATH), an optional .env file and the
// process environment, in that order of increasing precedence.
func Load() (Config, error) {
	if err := godotenv.Load(envFilePath()); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFrom(context.Background(), path, envconfig.OsLookuper())
}

func LoadFrom(ctx context.Context, path string, lookuper envconfig.Lookuper) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrapf(err, "parse %s", path)
			}
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, errors.Wrap(err, "process env config")
	}

	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", fieldErrs[0].Namespace(), fieldErrs[0].Tag())
		}
		return errors.Wrap(err, "invalid config")
	}

	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		if c.Database.Host == "" || c.Database.Name == "" || c.Database.User == "" {
			return errors.New("DB_HOST, DB_NAME and DB_USER are required when DATABASE_URL is not set")
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" && c.Database.URL == "" {
		return errors.New("DB_PATH is required for the sqlite driver")
	}
	if c.Scanner.APIKey == "" && !c.Scanner.FailOpen {
		return errors.New("VIRUS_TOTAL_API_KEY is required unless SCANNER_FAIL_OPEN=true")
	}
	if c.Roles.VerifiedRoleID == "" && !c.Roles.AllowUnverified {
		return errors.New("VERIFIED_ROLE_ID is required unless ALLOW_UNVERIFIED_REPORTS=true")
	}
	if c.Storage.Driver == "s3" && (c.Storage.S3.Bucket == "" || c.Storage.S3.Region == "") {
		return errors.New("S3_BUCKET and S3_REGION are required for the s3 storage driver")
	}
	if c.Storage.Driver == "local" && c.Storage.UploadDir == "" {
		return errors.New("UPLOAD_DIR is required for the local storage driver")
	}
	if c.VPN.Enabled && c.VPN.Endpoint == "" {
		return errors.New("VPN_API_URL is required when VPN_DETECTION_ENABLED=true")
	}
	if c.Export.Dir == "" {
		return errors.New("EXPORT_DIR is required")
	}
	return nil
}

// DSN returns the connection string handed to the sql driver.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if d.Driver == "sqlite" {
		return d.Path
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	query := url.Values{}
	if d.SSLMode != "" {
		query.Set("sslmode", d.SSLMode)
	}
	if d.AcquireTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(d.AcquireTimeout.Seconds())))
	}
	dsn.RawQuery = query.Encode()
	return dsn.String()
}

// AllowedExtensions returns the allow-list as a lookup set of lower-case
// extensions without the leading dot.
func (u UploadConfig) AllowedExtensions() map[string]struct{} {
	out := make(map[string]struct{}, len(u.AllowedFileTypes))
	for _, ext := range u.AllowedFileTypes {
		out[ext] = struct{}{}
	}
	return out
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func normalize(cfg *Config) {
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))

	types := make([]string, 0, len(cfg.Uploads.AllowedFileTypes))
	for _, ext := range cfg.Uploads.AllowedFileTypes {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			types = append(types, ext)
		}
	}
	cfg.Uploads.AllowedFileTypes = types

	domains := make([]string, 0, len(cfg.LinkCheck.BlockedDomains))
	for _, domain := range cfg.LinkCheck.BlockedDomains {
		if domain = strings.ToLower(strings.TrimSpace(domain)); domain != "" {
			domains = append(domains, domain)
		}
	}
	cfg.LinkCheck.BlockedDomains = domains
}

func envFilePath() string {
	if path := os.Getenv("ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}
