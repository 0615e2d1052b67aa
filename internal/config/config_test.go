package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "seats.db")
	path := writeConfig(t, "store:\n  path: "+dbPath+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, 20, cfg.Auth.MaxSessions)
	assert.True(t, cfg.Auth.LoginAllowed())
	assert.Equal(t, 8090, cfg.Monitoring.HealthCheckPort)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 12*time.Hour, cfg.SessionIdleTimeout())
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval())
	assert.DirExists(t, filepath.Dir(dbPath))

	driver, dsn := cfg.DataSource()
	assert.Equal(t, DriverSQLite, driver)
	assert.Equal(t, dbPath, dsn)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SEATS_API_KEY", "secret-key")
	path := writeConfig(t, `
store:
  driver: hosted
  base_url: https://example.test
  api_key: ${SEATS_API_KEY}
  cache_ttl_seconds: 30
auth:
  login_enabled: false
  users:
    - username: admin
      password_hash: "$2a$10$N9qo8uLOickgx2ZMRZoMye"
      admin: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.Store.APIKey)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL())
	assert.False(t, cfg.Auth.LoginAllowed())
	require.Len(t, cfg.Auth.Users, 1)
	assert.True(t, cfg.Auth.Users[0].Admin)
	assert.Equal(t, "$2a$10$N9qo8uLOickgx2ZMRZoMye", cfg.Auth.Users[0].PasswordHash)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SEATS_SET", "value")
	os.Unsetenv("SEATS_UNSET")

	tests := []struct {
		in   string
		want string
	}{
		{"secret: ${SEATS_SET}", "secret: value"},
		{"secret: ${SEATS_UNSET}", "secret: "},
		{"secret: $SEATS_SET", "secret: value"},
		{"secret: $SEATS_UNSET", "secret: $SEATS_UNSET"},
		{"hash: $2a$12$R9hcIPz0gi.URNNX3kh2OP", "hash: $2a$12$R9hcIPz0gi.URNNX3kh2OP"},
		{"${SEATS_SET}$SEATS_SET", "valuevalue"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnv(tt.in), tt.in)
	}
}

func TestLoad_UnsetSecretIsEmpty(t *testing.T) {
	os.Unsetenv("SEATS_MISSING_SECRET")
	path := writeConfig(t, "store:\n  path: "+filepath.Join(t.TempDir(), "a.db")+"\nauth:\n  session_secret: ${SEATS_MISSING_SECRET}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Auth.SessionSecret)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "store:\n  driver: hosted\n"))
	assert.ErrorContains(t, err, "base_url")

	_, err = Load(writeConfig(t, "store:\n  driver: postgres\n"))
	assert.ErrorContains(t, err, "dsn")

	_, err = Load(writeConfig(t, "store:\n  driver: mongo\n"))
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestWatchAuth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "store:\n  path: " + filepath.Join(dir, "a.db") + "\nauth:\n  max_sessions: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan AuthConfig, 1)
	require.NoError(t, WatchAuth(ctx, path, 10*time.Millisecond, func(a AuthConfig) {
		select {
		case updates <- a:
		default:
		}
	}))

	body = "store:\n  path: " + filepath.Join(dir, "a.db") + "\nauth:\n  max_sessions: 7\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case a := <-updates:
		assert.Equal(t, 7, a.MaxSessions)
	case <-time.After(2 * time.Second):
		t.Fatal("expected auth update")
	}
}
