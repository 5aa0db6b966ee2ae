package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"callgate/internal/routing"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	Store    StoreConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Switch   SwitchConfig
	Callback CallbackConfig
	Routing  RoutingConfig
	Limits   LimitsConfig
}

type AppConfig struct {
	Env  string
	Port int

	EventQueueSize int
}

type StoreConfig struct {
	// Backend selects the call record store: "memory" or "postgres".
	// Memory is local/dev only; production requires postgres.
	Backend string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	// Host empty disables redis-backed features (event dedup cache,
	// per-account call caps).
	Host string
	Port int
}

type AuthConfig struct {
	// BasicUsername/BasicPassword guard the calls API with HTTP basic
	// auth (the original integration style).
	BasicUsername string
	BasicPassword string

	// JWTSecret enables bearer-token auth as an alternative; empty
	// disables it. At least one of the two schemes must be configured.
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

type SwitchConfig struct {
	// BaseURL of the switch's HTTP control surface (originate hook).
	BaseURL  string
	Username string
	Password string

	// HookSecret is the shared secret the switch presents on
	// POST /switch/events. Empty disables the check (local only).
	HookSecret string

	DialTimeout time.Duration
}

type CallbackConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration
}

type RoutingConfig struct {
	Trunks []routing.Trunk
}

type LimitsConfig struct {
	// MaxActiveCallsPerAccount caps concurrent non-terminal calls per
	// account sid; 0 disables the cap. Requires redis.
	MaxActiveCallsPerAccount int
	CallCapTTL               time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.EventQueueSize = optInt("EVENT_QUEUE_SIZE", 1024)

	c.Store.Backend = strings.TrimSpace(os.Getenv("STORE_BACKEND"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = optInt("DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = optInt("REDIS_PORT", 6379)

	c.Auth.BasicUsername = strings.TrimSpace(os.Getenv("AUTH_USERNAME"))
	c.Auth.BasicPassword = os.Getenv("AUTH_PASSWORD")
	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))

	c.Switch.BaseURL = strings.TrimSpace(os.Getenv("SWITCH_URL"))
	c.Switch.Username = strings.TrimSpace(os.Getenv("SWITCH_USERNAME"))
	c.Switch.Password = os.Getenv("SWITCH_PASSWORD")
	c.Switch.HookSecret = os.Getenv("SWITCH_HOOK_SECRET")
	c.Switch.DialTimeout = mustDuration("SWITCH_DIAL_TIMEOUT")

	c.Callback.MaxAttempts = optInt("CALLBACK_MAX_ATTEMPTS", 10)
	c.Callback.BaseDelay = mustDuration("CALLBACK_BASE_DELAY")
	c.Callback.MaxDelay = mustDuration("CALLBACK_MAX_DELAY")
	c.Callback.RequestTimeout = mustDuration("CALLBACK_REQUEST_TIMEOUT")

	{
		trunks, err := parseTrunks(os.Getenv("ROUTING_TRUNKS"))
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Routing.Trunks = trunks
	}

	c.Limits.MaxActiveCallsPerAccount = optInt("MAX_ACTIVE_CALLS_PER_ACCOUNT", 0)
	c.Limits.CallCapTTL = mustDuration("CALL_CAP_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Store.Backend == "" {
		if c.IsProduction() {
			c.Store.Backend = "postgres"
		} else {
			c.Store.Backend = "memory"
		}
	}
	switch c.Store.Backend {
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_BACKEND=memory is not allowed in production"))
		}
	case "postgres":
		if c.DB.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required for the postgres store"))
		}
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required for the postgres store"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required for the postgres store"))
		}
		if strings.TrimSpace(c.DB.SSLMode) == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be memory or postgres, got %q", c.Store.Backend))
	}

	if c.Auth.BasicUsername == "" && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("at least one of AUTH_USERNAME/AUTH_PASSWORD or JWT_SECRET is required"))
	}
	if c.Auth.BasicUsername != "" && c.Auth.BasicPassword == "" {
		errs = append(errs, errors.New("AUTH_PASSWORD is required when AUTH_USERNAME is set"))
	}

	if c.Switch.BaseURL == "" {
		errs = append(errs, errors.New("SWITCH_URL is required"))
	}
	if c.IsProduction() && c.Switch.HookSecret == "" {
		errs = append(errs, errors.New("SWITCH_HOOK_SECRET is required in production"))
	}
	if c.Switch.DialTimeout <= 0 {
		c.Switch.DialTimeout = 15 * time.Second
	}

	if c.Callback.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("CALLBACK_MAX_ATTEMPTS must be > 0, got %d", c.Callback.MaxAttempts))
	}
	if c.Callback.BaseDelay <= 0 {
		c.Callback.BaseDelay = time.Second
	}
	if c.Callback.MaxDelay <= 0 {
		c.Callback.MaxDelay = time.Minute
	}
	if c.Callback.MaxDelay < c.Callback.BaseDelay {
		errs = append(errs, errors.New("CALLBACK_MAX_DELAY must be >= CALLBACK_BASE_DELAY"))
	}
	if c.Callback.RequestTimeout <= 0 {
		c.Callback.RequestTimeout = 10 * time.Second
	}

	if len(c.Routing.Trunks) == 0 {
		errs = append(errs, errors.New("ROUTING_TRUNKS is required"))
	}

	if c.Limits.MaxActiveCallsPerAccount > 0 {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("MAX_ACTIVE_CALLS_PER_ACCOUNT requires REDIS_HOST"))
		}
		if c.Limits.CallCapTTL <= 0 {
			c.Limits.CallCapTTL = 4 * time.Hour
		}
	}
	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// parseTrunks parses ROUTING_TRUNKS of the form
// "name:host:prefix1|prefix2,name2:host2"; prefixes optional (catch-all).
func parseTrunks(raw string) ([]routing.Trunk, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []routing.Trunk
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("ROUTING_TRUNKS entry %q must be name:host[:prefix|prefix...]", entry)
		}
		t := routing.Trunk{
			Name: strings.TrimSpace(parts[0]),
			Host: strings.TrimSpace(parts[1]),
		}
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			for _, p := range strings.Split(parts[2], "|") {
				p = strings.TrimSpace(p)
				if p != "" {
					t.Prefixes = append(t.Prefixes, p)
				}
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
