package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DISCORD_TOKEN":       "token",
		"CLIENT_ID":           "app",
		"GUILD_ID":            "guild",
		"DB_USER":             "bot",
		"VIRUS_TOTAL_API_KEY": "vt-key",
		"VERIFIED_ROLE_ID":    "verified",
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), "", envconfig.MapLookuper(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, int64(8388608), cfg.Uploads.MaxFileSize)
	assert.Equal(t, []string{"png", "jpg", "jpeg", "gif", "webp"}, cfg.Uploads.AllowedFileTypes)
	assert.Equal(t, 10, cfg.Database.MaxConns)
	assert.Equal(t, 30*time.Second, cfg.Confirm.SingleTimeout)
	assert.Equal(t, 60*time.Second, cfg.Confirm.BulkTimeout)
	assert.False(t, cfg.Scanner.FailOpen)
}

func TestLoadFromEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "log_level: debug\nuploads:\n  max_file_size: 1024\n  allowed_file_types: [png]\ndatabase:\n  max_conns: 12\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	env := baseEnv()
	env["ALLOWED_FILE_TYPES"] = ".PNG, jpg"
	env["LOG_CHANNEL_ID"] = "log-channel"

	cfg, err := LoadFrom(context.Background(), path, envconfig.MapLookuper(env))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(1024), cfg.Uploads.MaxFileSize)
	assert.Equal(t, 12, cfg.Database.MaxConns)
	assert.Equal(t, []string{"png", "jpg"}, cfg.Uploads.AllowedFileTypes)
	assert.Equal(t, "log-channel", cfg.LogChannelID)
}

func TestLoadRequiresToken(t *testing.T) {
	env := baseEnv()
	delete(env, "DISCORD_TOKEN")
	_, err := LoadFrom(context.Background(), "", envconfig.MapLookuper(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DiscordToken")
}

func TestFailOpenModesNeedExplicitFlags(t *testing.T) {
	env := baseEnv()
	delete(env, "VIRUS_TOTAL_API_KEY")
	_, err := LoadFrom(context.Background(), "", envconfig.MapLookuper(env))
	require.Error(t, err)

	env["SCANNER_FAIL_OPEN"] = "true"
	_, err = LoadFrom(context.Background(), "", envconfig.MapLookuper(env))
	require.NoError(t, err)

	delete(env, "VERIFIED_ROLE_ID")
	_, err = LoadFrom(context.Background(), "", envconfig.MapLookuper(env))
	require.Error(t, err)

	env["ALLOW_UNVERIFIED_REPORTS"] = "true"
	cfg, err := LoadFrom(context.Background(), "", envconfig.MapLookuper(env))
	require.NoError(t, err)
	assert.True(t, cfg.Roles.AllowUnverified)
}

func TestPoolSizeBounded(t *testing.T) {
	env := baseEnv()
	env["DB_MAX_CONNS"] = "40"
	_, err := LoadFrom(context.Background(), "", envconfig.MapLookuper(env))
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "bot", Password: "p@ss", Name: "reports", SSLMode: "disable"}
	assert.Equal(t, "postgres://bot:p%40ss@db:5432/reports?sslmode=disable", db.DSN())

	db.URL = "postgres://override"
	assert.Equal(t, "postgres://override", db.DSN())

	sqlite := DatabaseConfig{Driver: "sqlite", Path: "file.db"}
	assert.Equal(t, "file.db", sqlite.DSN())
}
