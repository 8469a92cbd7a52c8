package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	// Load validates that paths stay under the working directory, so the
	// fixture has to live there rather than in t.TempDir().
	dir, err := os.MkdirTemp(".", "config-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "files.events", cfg.Events.SubjectPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Idle.MaxAge)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"version": "1.0.0",
		"nats": {"url": "nats://bus:4222", "client_name": "fs-test"},
		"metrics": {"enabled": true, "port": 9999},
		"extract": {"dir": "/var/lib/filestream", "default_limit": 1048576},
		"idle": {"max_age": 60000000000}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://bus:4222", cfg.NATS.URL)
	assert.Equal(t, "fs-test", cfg.NATS.ClientName)
	assert.Equal(t, 9999, cfg.Metrics.Port)
	assert.Equal(t, uint64(1048576), cfg.Extract.DefaultLimit)
	assert.Equal(t, time.Minute, cfg.Idle.MaxAge)

	// Defaults filled in for omitted fields.
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "files.events", cfg.Events.SubjectPrefix)
	assert.Equal(t, 30*time.Second, cfg.Idle.SweepInterval)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing version", `{"nats": {"url": "nats://x:4222"}}`},
		{"missing nats url", `{"version": "1.0.0", "nats": {}}`},
		{"bad json", `{not json`},
		{"port out of range", `{"version": "1.0.0", "nats": {"url": "u"}, "metrics": {"enabled": true, "port": 70000}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsBadPaths(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	_, err = Load("../outside.json")
	assert.Error(t, err)

	_, err = Load("config.yaml")
	assert.Error(t, err, "only JSON config files are accepted")

	_, err = Load("does-not-exist.json")
	assert.Error(t, err)
}

func TestValidateIdleSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Idle.SweepInterval = 0
	assert.Error(t, cfg.Validate(), "reaping without a sweep interval is invalid")

	cfg.Idle.MaxAge = 0
	assert.NoError(t, cfg.Validate(), "zero max_age disables reaping")
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": {"b": [1, 2, {"c": true}]}}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": 1}}`)))

	deep := strings.Repeat("[", 101) + strings.Repeat("]", 101)
	assert.Error(t, validateJSONDepth([]byte(deep)))

	assert.Error(t, validateJSONDepth([]byte(`{"unclosed": [`)))

	// Brackets inside strings do not count.
	assert.NoError(t, validateJSONDepth([]byte(`{"s": "{[{[{[\"nested\"]}]}]}"}`)))
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()

	clone.NATS.URL = "nats://changed:4222"
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)

	var nilCfg *Config
	assert.NotNil(t, nilCfg.Clone())
}
