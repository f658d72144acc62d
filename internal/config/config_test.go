package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secretcontest/internal/services"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  url: /tmp/contest.db
contest:
  code_hash: "$argon2id$v=19$m=8,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Contest.CodeLength)
	assert.Equal(t, "alnum", cfg.Contest.CodeCharset)
	assert.Equal(t, 3, cfg.Contest.MaxFailedAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Contest.Lockout)
	assert.Equal(t, 15*time.Minute, cfg.Contest.ClaimTokenTTL)
	assert.Equal(t, 365*24*time.Hour, cfg.CookieMaxAge())
	assert.True(t, cfg.CookieSecure())
	assert.False(t, cfg.NotificationsEnabled())
}

func TestLoadParsesDurationsAndSettings(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  url: contest.db
contest:
  code_hash: "$2a$10$abcdefghijklmnopqrstuu"
  code_length: 3
  code_charset: digits
  max_failed_attempts: 5
  lockout: 1s
  claim_token_ttl: 2m
  test_mode: true
  admin_reset_key: k
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	s := cfg.Contest.Settings()
	assert.Equal(t, services.CodeShape{Length: 3, Charset: services.CharsetDigits}, s.Code)
	assert.Equal(t, 5, s.MaxFailedAttempts)
	assert.Equal(t, time.Second, s.LockoutDuration)
	assert.Equal(t, 2*time.Minute, s.ClaimTokenTTL)
	assert.True(t, s.TestMode)
	assert.Equal(t, "k", s.AdminResetKey)
	// test mode relaxes the cookie default so plain-http local runs work
	assert.False(t, cfg.CookieSecure())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  url: file.db
contest:
  code_hash: from-file
`)
	t.Setenv("CONTEST_DATABASE_URL", "env.db")
	t.Setenv("CONTEST_CODE_HASH", "from-env")
	t.Setenv("CONTEST_TEST_MODE", "true")
	t.Setenv("CONTEST_ADMIN_RESET_KEY", "secret")
	t.Setenv("CONTEST_LOCKOUT", "30s")
	t.Setenv("CONTEST_CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("CONTEST_TELEGRAM_BOT_TOKEN", "bot")
	t.Setenv("CONTEST_TELEGRAM_CHAT_ID", "-100123")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.Contest.CodeHash)
	assert.True(t, cfg.Contest.TestMode)
	assert.Equal(t, "secret", cfg.Contest.AdminResetKey)
	assert.Equal(t, 30*time.Second, cfg.Contest.Lockout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, int64(-100123), cfg.Telegram.ChatID)
	assert.True(t, cfg.NotificationsEnabled())
}

func TestLoadWithoutFileUsesEnvOnly(t *testing.T) {
	t.Setenv("CONTEST_DATABASE_DRIVER", "sqlite")
	t.Setenv("CONTEST_DATABASE_URL", "env.db")
	t.Setenv("CONTEST_CODE_HASH", "h")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestRedisRequestLimit(t *testing.T) {
	base := `
database:
  driver: sqlite
  url: contest.db
contest:
  code_hash: h
redis:
  addr: localhost:6379
`
	cfg, err := Load(writeConfig(t, base))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Redis.Limit(), "absent key takes the default")
	assert.True(t, cfg.ThrottleEnabled())

	cfg, err = Load(writeConfig(t, base+"  request_limit: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Redis.Limit(), "explicit zero is kept")
	assert.False(t, cfg.ThrottleEnabled())

	_, err = Load(writeConfig(t, base+"  request_limit: -1\n"))
	assert.Error(t, err)

	t.Setenv("CONTEST_REDIS_REQUEST_LIMIT", "0")
	cfg, err = Load(writeConfig(t, base+"  request_limit: 5\n"))
	require.NoError(t, err)
	assert.False(t, cfg.ThrottleEnabled())
}

func TestThrottleNeedsRedisAddr(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  driver: sqlite
  url: contest.db
contest:
  code_hash: h
`))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Redis.Limit())
	assert.False(t, cfg.ThrottleEnabled())
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"missing code hash": `
database: {driver: sqlite, url: x.db}
`,
		"unknown driver": `
database: {driver: mysql, url: x}
contest: {code_hash: h}
`,
		"unknown charset": `
database: {driver: sqlite, url: x.db}
contest: {code_hash: h, code_charset: hex}
`,
		"test mode without key": `
database: {driver: sqlite, url: x.db}
contest: {code_hash: h, test_mode: true}
`,
		"negative threshold": `
database: {driver: sqlite, url: x.db}
contest: {code_hash: h, max_failed_attempts: -1}
`,
		"bad same site": `
database: {driver: sqlite, url: x.db}
contest: {code_hash: h}
cookie: {same_site: sometimes}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
