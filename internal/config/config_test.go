package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv detaches the test from whatever FFLOG_* the host carries.
// t.Setenv registers the restore; Unsetenv removes the var for the test.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"FFLOG_EMAIL", "FFLOG_PASSWORD", "FFLOG_REGION", "FFLOG_VISIBILITY",
		"FFLOG_GUILD_ID", "FFLOG_LOGDIR", "FFLOG_NODE_PATH", "FFLOG_CACHE_DIR",
		"FFLOG_BASE_URL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWithoutFileOrEnv(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "NA", cfg.Region)
	assert.Equal(t, "public", cfg.Visibility)
	assert.Equal(t, "node", cfg.NodePath)
	assert.Zero(t, cfg.GuildID)
	assert.Empty(t, cfg.Email)
	assert.Empty(t, cfg.LogDir)
	assert.Empty(t, cfg.BaseURL)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
region: EU
visibility: unlisted
guild_id: 42
log_dir: /srv/act/logs
node_path: /usr/local/bin/node
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "EU", cfg.Region)
	assert.Equal(t, "unlisted", cfg.Visibility)
	assert.Equal(t, 42, cfg.GuildID)
	assert.Equal(t, "/srv/act/logs", cfg.LogDir)
	assert.Equal(t, "/usr/local/bin/node", cfg.NodePath)
}

func TestCredentialsNeverComeFromYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
email: sneaky@example.com
password: hunter2
region: JP
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Empty(t, cfg.Email)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, "JP", cfg.Region)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "region: EU\nguild_id: 42\n")
	t.Setenv("FFLOG_REGION", "KR")
	t.Setenv("FFLOG_GUILD_ID", "7")
	t.Setenv("FFLOG_EMAIL", "raider@example.com")
	t.Setenv("FFLOG_PASSWORD", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "KR", cfg.Region)
	assert.Equal(t, 7, cfg.GuildID)
	assert.Equal(t, "raider@example.com", cfg.Email)
	assert.Equal(t, "secret", cfg.Password)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "region: [unterminated\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestDefaultPathUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "fflog", "config.yaml"), DefaultPath())
}

func TestRequireCredentials(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "both set", cfg: Config{Email: "e", Password: "p"}},
		{name: "missing password", cfg: Config{Email: "e"}, wantErr: true},
		{name: "missing email", cfg: Config{Password: "p"}, wantErr: true},
		{name: "missing both", cfg: Config{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.RequireCredentials()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCredentialsRequired)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
