package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_DefaultsFillMissingSections(t *testing.T) {
	path := writeConfig(t, `
name: test-service
version: "0.1.0"
`)

	config, _, err := NewLoader().LoadFromFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "test-service", config.Name)
	assert.Equal(t, 8080, config.Server.HTTP.Port)
	assert.Equal(t, "memory", config.Store.Type)
	assert.True(t, config.Cache.Enabled)
}

func TestLoader_ExplicitValuesOverrideDefaults(t *testing.T) {
	path := writeConfig(t, `
name: test-service
version: "0.1.0"
server:
  http:
    port: 9090
store:
  enabled: true
  type: redis
cache:
  enabled: false
`)

	config, raw, err := NewLoader().LoadFromFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.HTTP.Port)
	assert.Equal(t, "redis", config.Store.Type)
	assert.False(t, config.Cache.Enabled)
	assert.Contains(t, raw, "store")
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_STORE_TYPE", "clover")

	path := writeConfig(t, `
name: test-service
version: "0.1.0"
store:
  enabled: true
  type: ${TEST_STORE_TYPE}
`)

	config, _, err := NewLoader().LoadFromFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "clover", config.Store.Type)
}

func TestLoader_MissingRequiredFieldsFail(t *testing.T) {
	path := writeConfig(t, `
version: "0.1.0"
`)

	_, _, err := NewLoader().LoadFromFile(context.Background(), path)
	assert.Error(t, err)
}

func TestLoader_MissingFileFails(t *testing.T) {
	_, _, err := NewLoader().LoadFromFile(context.Background(), "/does/not/exist.yml")
	assert.Error(t, err)
}
