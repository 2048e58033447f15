package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BUILDCHAT_CONFIG", "")
	t.Setenv("BUILDCHAT_API_URL", "")
	t.Setenv("BUILDCHAT_OPEN_TIMEOUT", "")

	c := load()

	assert.Equal(t, "http://localhost:8000", c.APIURL)
	assert.Equal(t, "/session", c.SocketPath)
	assert.Equal(t, 5*time.Second, c.OpenTimeout)
	assert.True(t, c.IsDevelopment())
	assert.False(t, c.HasOAuth())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: production
api_url: https://builder.example
open_timeout: 2s
oauth:
  token_url: https://auth.example/token
  client_id: cli
server:
  port: 9100
`), 0o644))

	t.Setenv("BUILDCHAT_CONFIG", path)
	t.Setenv("PORT", "9200")

	c := load()

	assert.Equal(t, "production", c.Env)
	assert.False(t, c.IsDevelopment())
	assert.Equal(t, "https://builder.example", c.APIURL)
	assert.Equal(t, 2*time.Second, c.OpenTimeout)
	assert.True(t, c.HasOAuth())
	assert.Equal(t, 9200, c.Port, "environment overrides the file")
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	t.Setenv("BUILDCHAT_CONFIG", "")
	t.Setenv("BUILDCHAT_OPEN_TIMEOUT", "soon")

	assert.Equal(t, 5*time.Second, load().OpenTimeout)
}
