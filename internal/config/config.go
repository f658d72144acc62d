package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"secretcontest/internal/services"
)

type ServerConfig struct {
	Port                 int      `yaml:"port"`
	CORSOrigins          []string `yaml:"cors_origins"`
	CORSAllowCredentials bool     `yaml:"cors_allow_credentials"`
	Swagger              bool     `yaml:"swagger"`
	TrustedProxies       []string `yaml:"trusted_proxies"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"url"`
}

type ContestConfig struct {
	CodeHash          string        `yaml:"code_hash"`
	CodeLength        int           `yaml:"code_length"`
	CodeCharset       string        `yaml:"code_charset"`
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	Lockout           time.Duration `yaml:"lockout"`
	ClaimTokenTTL     time.Duration `yaml:"claim_token_ttl"`
	TestMode          bool          `yaml:"test_mode"`
	AdminResetKey     string        `yaml:"admin_reset_key"`
	ActorPepper       string        `yaml:"actor_pepper"`
}

type CookieConfig struct {
	Secure     *bool  `yaml:"secure"`
	SameSite   string `yaml:"same_site"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
	ToEmail      string `yaml:"to_email"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Endpoint string `yaml:"endpoint"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	RequestLimit *int          `yaml:"request_limit"`
	Window       time.Duration `yaml:"window"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Contest  ContestConfig  `yaml:"contest"`
	Cookie   CookieConfig   `yaml:"cookie"`
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
	Redis    RedisConfig    `yaml:"redis"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// CONTEST_* environment overrides, fills defaults and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// config key -> environment variable; secrets usually arrive this way
var envBindings = map[string]string{
	"server.port":                   "CONTEST_PORT",
	"server.cors_origins":           "CONTEST_CORS_ORIGINS",
	"server.cors_allow_credentials": "CONTEST_CORS_ALLOW_CREDENTIALS",
	"database.driver":               "CONTEST_DATABASE_DRIVER",
	"database.url":                  "CONTEST_DATABASE_URL",
	"contest.code_hash":             "CONTEST_CODE_HASH",
	"contest.code_length":           "CONTEST_CODE_LENGTH",
	"contest.code_charset":          "CONTEST_CODE_CHARSET",
	"contest.max_failed_attempts":   "CONTEST_MAX_FAILED_ATTEMPTS",
	"contest.lockout":               "CONTEST_LOCKOUT",
	"contest.claim_token_ttl":       "CONTEST_CLAIM_TOKEN_TTL",
	"contest.test_mode":             "CONTEST_TEST_MODE",
	"contest.admin_reset_key":       "CONTEST_ADMIN_RESET_KEY",
	"contest.actor_pepper":          "CONTEST_ACTOR_PEPPER",
	"cookie.secure":                 "CONTEST_COOKIE_SECURE",
	"email.smtp_host":               "CONTEST_SMTP_HOST",
	"email.smtp_port":               "CONTEST_SMTP_PORT",
	"email.smtp_user":               "CONTEST_SMTP_USER",
	"email.smtp_password":           "CONTEST_SMTP_PASSWORD",
	"email.from_email":              "CONTEST_SMTP_FROM",
	"email.to_email":                "CONTEST_NOTIFY_EMAIL",
	"telegram.bot_token":            "CONTEST_TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":              "CONTEST_TELEGRAM_CHAT_ID",
	"redis.addr":                    "CONTEST_REDIS_ADDR",
	"redis.password":                "CONTEST_REDIS_PASSWORD",
	"redis.request_limit":           "CONTEST_REDIS_REQUEST_LIMIT",
}

func applyEnv(cfg *Config) error {
	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}

	setString(v, "database.driver", &cfg.Database.Driver)
	setString(v, "database.url", &cfg.Database.DSN)
	setString(v, "contest.code_hash", &cfg.Contest.CodeHash)
	setString(v, "contest.code_charset", &cfg.Contest.CodeCharset)
	setString(v, "contest.admin_reset_key", &cfg.Contest.AdminResetKey)
	setString(v, "contest.actor_pepper", &cfg.Contest.ActorPepper)
	setString(v, "email.smtp_host", &cfg.Email.SMTPHost)
	setString(v, "email.smtp_user", &cfg.Email.SMTPUser)
	setString(v, "email.smtp_password", &cfg.Email.SMTPPassword)
	setString(v, "email.from_email", &cfg.Email.FromEmail)
	setString(v, "email.to_email", &cfg.Email.ToEmail)
	setString(v, "telegram.bot_token", &cfg.Telegram.BotToken)
	setString(v, "redis.addr", &cfg.Redis.Addr)
	setString(v, "redis.password", &cfg.Redis.Password)

	setInt(v, "server.port", &cfg.Server.Port)
	setInt(v, "contest.code_length", &cfg.Contest.CodeLength)
	setInt(v, "contest.max_failed_attempts", &cfg.Contest.MaxFailedAttempts)
	setInt(v, "email.smtp_port", &cfg.Email.SMTPPort)
	if v.IsSet("redis.request_limit") {
		limit := v.GetInt("redis.request_limit")
		cfg.Redis.RequestLimit = &limit
	}
	if v.IsSet("telegram.chat_id") {
		cfg.Telegram.ChatID = v.GetInt64("telegram.chat_id")
	}

	if v.IsSet("contest.lockout") {
		cfg.Contest.Lockout = v.GetDuration("contest.lockout")
	}
	if v.IsSet("contest.claim_token_ttl") {
		cfg.Contest.ClaimTokenTTL = v.GetDuration("contest.claim_token_ttl")
	}

	if v.IsSet("contest.test_mode") {
		cfg.Contest.TestMode = v.GetBool("contest.test_mode")
	}
	if v.IsSet("server.cors_allow_credentials") {
		cfg.Server.CORSAllowCredentials = v.GetBool("server.cors_allow_credentials")
	}
	if v.IsSet("cookie.secure") {
		secure := v.GetBool("cookie.secure")
		cfg.Cookie.Secure = &secure
	}
	if v.IsSet("server.cors_origins") {
		cfg.Server.CORSOrigins = splitList(v.GetString("server.cors_origins"))
	}
	return nil
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Contest.CodeLength == 0 {
		c.Contest.CodeLength = 4
	}
	if c.Contest.CodeCharset == "" {
		c.Contest.CodeCharset = string(services.CharsetAlnum)
	}
	if c.Contest.MaxFailedAttempts == 0 {
		c.Contest.MaxFailedAttempts = 3
	}
	if c.Contest.Lockout == 0 {
		c.Contest.Lockout = 10 * time.Minute
	}
	if c.Contest.ClaimTokenTTL == 0 {
		c.Contest.ClaimTokenTTL = 15 * time.Minute
	}
	if c.Cookie.SameSite == "" {
		c.Cookie.SameSite = "lax"
	}
	if c.Cookie.MaxAgeDays == 0 {
		c.Cookie.MaxAgeDays = 365
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Redis.RequestLimit == nil {
		limit := 30
		c.Redis.RequestLimit = &limit
	}
	if c.Redis.Window == 0 {
		c.Redis.Window = time.Minute
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if strings.TrimSpace(c.Contest.CodeHash) == "" {
		errs = append(errs, errors.New("contest.code_hash is required"))
	}
	if c.Contest.CodeLength <= 0 {
		errs = append(errs, errors.New("contest.code_length must be positive"))
	}
	switch services.Charset(c.Contest.CodeCharset) {
	case services.CharsetDigits, services.CharsetAlnum:
	default:
		errs = append(errs, fmt.Errorf("contest.code_charset: unsupported %q", c.Contest.CodeCharset))
	}
	if c.Contest.MaxFailedAttempts <= 0 {
		errs = append(errs, errors.New("contest.max_failed_attempts must be positive"))
	}
	if c.Contest.Lockout <= 0 {
		errs = append(errs, errors.New("contest.lockout must be positive"))
	}
	if c.Contest.ClaimTokenTTL <= 0 {
		errs = append(errs, errors.New("contest.claim_token_ttl must be positive"))
	}
	if c.Contest.TestMode && c.Contest.AdminResetKey == "" {
		errs = append(errs, errors.New("contest.admin_reset_key is required in test mode"))
	}
	switch strings.ToLower(c.Cookie.SameSite) {
	case "lax", "strict", "none":
	default:
		errs = append(errs, fmt.Errorf("cookie.same_site: unsupported %q", c.Cookie.SameSite))
	}
	if c.Redis.Window < 0 || c.Redis.Limit() < 0 {
		errs = append(errs, errors.New("redis.window and redis.request_limit must not be negative"))
	}
	return errors.Join(errs...)
}

// Settings is the engine's view of the contest section.
func (c ContestConfig) Settings() services.ContestSettings {
	return services.ContestSettings{
		Code: services.CodeShape{
			Length:  c.CodeLength,
			Charset: services.Charset(c.CodeCharset),
		},
		MaxFailedAttempts: c.MaxFailedAttempts,
		LockoutDuration:   c.Lockout,
		ClaimTokenTTL:     c.ClaimTokenTTL,
		TestMode:          c.TestMode,
		AdminResetKey:     c.AdminResetKey,
	}
}

// CookieSecure defaults to true outside test mode.
func (c *Config) CookieSecure() bool {
	if c.Cookie.Secure != nil {
		return *c.Cookie.Secure
	}
	return !c.Contest.TestMode
}

func (c *Config) CookieMaxAge() time.Duration {
	return time.Duration(c.Cookie.MaxAgeDays) * 24 * time.Hour
}

// Limit is the per-window request budget; 0 turns the throttle off.
func (r RedisConfig) Limit() int {
	if r.RequestLimit == nil {
		return 0
	}
	return *r.RequestLimit
}

// ThrottleEnabled reports whether the Redis request throttle should be mounted.
func (c *Config) ThrottleEnabled() bool {
	return c.Redis.Addr != "" && c.Redis.Limit() > 0
}

func (c *Config) NotificationsEnabled() bool {
	return (c.Email.SMTPHost != "" && c.Email.ToEmail != "") || (c.Telegram.BotToken != "" && c.Telegram.ChatID != 0)
}
