package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() Options {
	return Options{
		Addr:           "localhost:8080",
		DSN:            "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable",
		SigningKey:     "c29tZV9zZWNyZXQ=",
		TokenTTL:       time.Hour,
		AllowedOrigins: []string{"http://localhost:3000"},
		BgioServerUrl:  "http://localhost:8001",
	}
}

func TestNewConfig(t *testing.T) {
	tcases := []struct {
		name   string
		modify func(o *Options)
		err    bool
	}{
		{
			name:   "valid config",
			modify: func(o *Options) {},
		},
		{
			name:   "in-memory store",
			modify: func(o *Options) { o.DSN = "" },
		},
		{
			name:   "lobby url",
			modify: func(o *Options) { o.BgioLobbyUrl = "http://bgio:8002" },
		},
		{
			name:   "empty address",
			modify: func(o *Options) { o.Addr = "" },
			err:    true,
		},
		{
			name:   "empty signing key",
			modify: func(o *Options) { o.SigningKey = "" },
			err:    true,
		},
		{
			name:   "invalid signing key",
			modify: func(o *Options) { o.SigningKey = "invalid_base64" },
			err:    true,
		},
		{
			name:   "negative ttl",
			modify: func(o *Options) { o.TokenTTL = -time.Second },
			err:    true,
		},
		{
			name:   "negative redis db",
			modify: func(o *Options) { o.RedisDB = -1 },
			err:    true,
		},
		{
			name:   "empty game server url",
			modify: func(o *Options) { o.BgioServerUrl = "" },
			err:    true,
		},
		{
			name:   "relative game server url",
			modify: func(o *Options) { o.BgioServerUrl = "games.local" },
			err:    true,
		},
		{
			name:   "invalid lobby url",
			modify: func(o *Options) { o.BgioLobbyUrl = "ftp://bgio" },
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			opts := validOptions()
			tc.modify(&opts)

			config, err := NewConfig(opts)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			require.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, opts.Addr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, opts.DSN, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, opts.AllowedOrigins, config.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, opts.TokenTTL, config.TokenTTL)
			assert.Equal(t, opts.BgioLobbyUrl, config.BgioLobbyUrl)
			assert.Equal(t, []byte("some_secret"), config.SigningKey, "expected signing key to be decoded")
		})
	}
}

func Test_decodeSigningKey(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
		{
			name:         "empty base64 secret",
			base64Secret: "",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key, "expected decoded key to match for base64 secret: %s", tc.base64Secret)
			}
		})
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
addr: ":9000"
dsn: postgres://fbg@db/fbg?sslmode=disable
token-ttl: 24h
allowed-origins:
  - https://freeboardgames.org
redis-addr: redis:6379
redis-db: 0
bgio-server-url: https://bgio.freeboardgames.org
migrate: true
`)

	f, err := LoadFile(path)
	require.NoError(t, err)

	opts := validOptions()
	require.NoError(t, f.Apply(&opts, map[string]bool{"addr": true}))

	assert.Equal(t, "localhost:8080", opts.Addr, "expected explicit flag to win")
	assert.Equal(t, "postgres://fbg@db/fbg?sslmode=disable", opts.DSN)
	assert.Equal(t, 24*time.Hour, opts.TokenTTL)
	assert.Equal(t, []string{"https://freeboardgames.org"}, opts.AllowedOrigins)
	assert.Equal(t, "redis:6379", opts.RedisAddr)
	assert.Equal(t, 0, opts.RedisDB)
	assert.Equal(t, "https://bgio.freeboardgames.org", opts.BgioServerUrl)
	assert.True(t, opts.Migrate)
	assert.Equal(t, "c29tZV9zZWNyZXQ=", opts.SigningKey, "expected missing keys to keep the flag value")
}

func TestLoadFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "read config")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "addr: [unterminated"))
		assert.ErrorContains(t, err, "parse config")
	})

	t.Run("invalid ttl", func(t *testing.T) {
		f, err := LoadFile(writeFile(t, "token-ttl: forever"))
		require.NoError(t, err)

		opts := validOptions()
		assert.ErrorContains(t, f.Apply(&opts, nil), "token-ttl")
	})
}
