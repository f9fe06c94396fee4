package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
auth:
  local_enabled: true
  session_secret: "0123456789abcdef0123456789abcdef"
backend:
  base_url: "https://api.example.com"
  service_token: "svc"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, ":8088", cfg.Server.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.Polling.Jobs.Interval)
	assert.True(t, cfg.Polling.Jobs.On())
	assert.Equal(t, 10*time.Second, cfg.Polling.Issues.Interval)
	assert.True(t, cfg.Polling.Issues.On())
	assert.Equal(t, 30*time.Second, cfg.Polling.Contacts.Interval)
	assert.False(t, cfg.Polling.Contacts.On())
	assert.Equal(t, 5, cfg.Polling.NotifyEvery)
	assert.Equal(t, 2*time.Second, cfg.Polling.AuthRedirectDelay)
	assert.Equal(t, int64(5<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, ".csv", cfg.Upload.Extension)
	assert.Equal(t, 10, cfg.Display.PageSize)
	assert.Equal(t, "America/Sao_Paulo", cfg.Location().String())
	assert.Equal(t, "/var/lib/ingestdesk/journal.db", cfg.Journal.Path)
	assert.Equal(t, 90*24*time.Hour, cfg.Journal.Retention)
}

func TestParse_ContactsPollingCanBeEnabled(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
polling:
  contacts:
    enabled: true
  jobs:
    enabled: false
`))
	require.NoError(t, err)
	assert.True(t, cfg.Polling.Contacts.On())
	assert.False(t, cfg.Polling.Jobs.On())
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing secret",
			yaml:    "auth:\n  local_enabled: true\nbackend:\n  base_url: https://x.io\n  service_token: s\n",
			wantErr: "auth.session_secret is required",
		},
		{
			name:    "missing backend",
			yaml:    "auth:\n  local_enabled: true\n  session_secret: 0123456789abcdef0123456789abcdef\nbackend:\n  service_token: s\n",
			wantErr: "backend.base_url is required",
		},
		{
			name:    "relative backend url",
			yaml:    "auth:\n  local_enabled: true\n  session_secret: 0123456789abcdef0123456789abcdef\nbackend:\n  base_url: /api\n  service_token: s\n",
			wantErr: "backend.base_url must be an absolute",
		},
		{
			name:    "backend timeout accepted",
			yaml:    minimal + "  timeout: 1s\n",
			wantErr: "",
		},
		{
			name:    "bad page size",
			yaml:    minimal + "display:\n  page_size: 15\n",
			wantErr: "display.page_size",
		},
		{
			name:    "bad timezone",
			yaml:    minimal + "display:\n  timezone: Mars/Base\n",
			wantErr: "display.timezone",
		},
		{
			name:    "polling too fast",
			yaml:    minimal + "polling:\n  jobs:\n    interval: 100ms\n",
			wantErr: "polling.jobs.interval",
		},
		{
			name:    "local auth needs service token",
			yaml:    "auth:\n  local_enabled: true\n  session_secret: 0123456789abcdef0123456789abcdef\nbackend:\n  base_url: https://x.io\n",
			wantErr: "backend.service_token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvServiceToken, "")
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_DotEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingestdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvServiceToken+"=from-dotenv\n"), 0o600))

	t.Setenv(EnvServiceToken, "")
	require.NoError(t, os.Unsetenv(EnvServiceToken))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Backend.ServiceToken)
}
