package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := map[string]struct {
		mutate  func(*Config)
		wantErr bool
	}{
		"defaults":          {func(*Config) {}, false},
		"cert without key":  {func(c *Config) { c.tlsCert = "cert.pem" }, true},
		"cert and key":      {func(c *Config) { c.tlsCert, c.tlsKey = "cert.pem", "key.pem" }, false},
		"port zero":         {func(c *Config) { c.port = 0 }, true},
		"port too large":    {func(c *Config) { c.port = 70000 }, true},
		"short codes":       {func(c *Config) { c.codeLength = 3 }, true},
		"long codes":        {func(c *Config) { c.codeLength = 13 }, true},
		"no send buffer":    {func(c *Config) { c.sendBuffer = 0 }, true},
		"send buffer small": {func(c *Config) { c.sendBuffer = minSendBuffer - 1 }, true},
		"send buffer floor": {func(c *Config) { c.sendBuffer = minSendBuffer }, false},
		"tiny message size": {func(c *Config) { c.maxMessageSize = 16 }, true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Scheme(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	assert.Equal(t, "https", cfg.scheme())
}

func TestNewCmd_ReadsEnvironment(t *testing.T) {
	t.Setenv("STORYBOX_PORT", "9000")
	t.Setenv("STORYBOX_SEND_BUFFER", "512")

	cfg := &Config{}
	newCmd(cfg)

	assert.Equal(t, 9000, cfg.port)
	assert.Equal(t, 512, cfg.sendBuffer)
	assert.Equal(t, 5, cfg.codeLength)
}

func TestNewCmd_Defaults(t *testing.T) {
	cfg := &Config{}
	newCmd(cfg)

	assert.Equal(t, defaultSendBuffer, cfg.sendBuffer)
	assert.NoError(t, cfg.validate())
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")), "a missing file is ignored")

	const key = "STORYBOX_TEST_ENV_FILE_VALUE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), "storybox.env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=hello\n"), 0o600))

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "hello", os.Getenv(key))
}

func TestNewLogger(t *testing.T) {
	quiet, err := newLogger(false)
	require.NoError(t, err)
	assert.False(t, quiet.Desugar().Core().Enabled(-1))

	verbose, err := newLogger(true)
	require.NoError(t, err)
	assert.True(t, verbose.Desugar().Core().Enabled(0))
}
