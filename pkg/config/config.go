package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Backend      BackendConfig
	Sync         SyncConfig
	Cache        CacheConfig
	Connectivity ConnectivityConfig
	HTTP         HTTPConfig
	Maintenance  MaintenanceConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Backend.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"POSYNC_APP_ENV" default:"dev"`
	DeviceID     string `envconfig:"POSYNC_DEVICE_ID"`
	LogLevel     string `envconfig:"POSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	// Driver is "sqlite" for the on-device store or "postgres" for shared back-office hosts.
	Driver string `envconfig:"POSYNC_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"POSYNC_DB_DSN"`
	Path   string `envconfig:"POSYNC_DB_PATH" default:"posync.db"`

	MaxOpenConns    int           `envconfig:"POSYNC_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"POSYNC_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"POSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	// URL is optional; the cross-process sync lock is only used when it is set.
	URL          string        `envconfig:"POSYNC_REDIS_URL"`
	Address      string        `envconfig:"POSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"POSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"POSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POSYNC_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"POSYNC_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"POSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type BackendConfig struct {
	BaseURL   string        `envconfig:"POSYNC_BACKEND_URL" required:"true"`
	Token     string        `envconfig:"POSYNC_BACKEND_TOKEN"`
	Timeout   time.Duration `envconfig:"POSYNC_BACKEND_TIMEOUT" default:"15s"`
	UserAgent string        `envconfig:"POSYNC_BACKEND_USER_AGENT" default:"posync-agent"`

	// DeviceSecret switches auth to short-lived signed device tokens.
	DeviceSecret   string        `envconfig:"POSYNC_BACKEND_DEVICE_SECRET"`
	DeviceTokenTTL time.Duration `envconfig:"POSYNC_BACKEND_DEVICE_TOKEN_TTL" default:"5m"`
}

func (b BackendConfig) validate() error {
	u, err := url.Parse(b.BaseURL)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvBackendURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url", EnvBackendURL)
	}
	return nil
}

type SyncConfig struct {
	Interval      time.Duration `envconfig:"POSYNC_SYNC_INTERVAL" default:"30s"`
	MaxAttempts   int           `envconfig:"POSYNC_SYNC_MAX_ATTEMPTS" default:"5"`
	Opportunistic bool          `envconfig:"POSYNC_SYNC_OPPORTUNISTIC" default:"true"`
	AutoStart     bool          `envconfig:"POSYNC_SYNC_AUTO_START" default:"true"`
	LockEnabled   bool          `envconfig:"POSYNC_SYNC_LOCK_ENABLED" default:"false"`
	LockTTL       time.Duration `envconfig:"POSYNC_SYNC_LOCK_TTL" default:"2m"`
	// LockScope names the store the lock guards. Agents that share a store
	// must share a scope.
	LockScope string `envconfig:"POSYNC_SYNC_LOCK_SCOPE"`
}

type CacheConfig struct {
	PageLimit     int  `envconfig:"POSYNC_CACHE_PAGE_LIMIT" default:"1000"`
	SyncOnStartup bool `envconfig:"POSYNC_CACHE_SYNC_ON_STARTUP" default:"true"`
}

type ConnectivityConfig struct {
	InitialOnline bool          `envconfig:"POSYNC_CONNECTIVITY_INITIAL_ONLINE" default:"false"`
	ProbeEnabled  bool          `envconfig:"POSYNC_CONNECTIVITY_PROBE_ENABLED" default:"true"`
	ProbeInterval time.Duration `envconfig:"POSYNC_CONNECTIVITY_PROBE_INTERVAL" default:"10s"`
	ProbeTimeout  time.Duration `envconfig:"POSYNC_CONNECTIVITY_PROBE_TIMEOUT" default:"3s"`
}

type HTTPConfig struct {
	Addr           string   `envconfig:"POSYNC_HTTP_ADDR" default:"127.0.0.1:8787"`
	AllowedOrigins []string `envconfig:"POSYNC_HTTP_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// MaintenanceConfig drives the periodic jobs run next to the sync loop.
type MaintenanceConfig struct {
	Enabled              bool          `envconfig:"POSYNC_MAINTENANCE_ENABLED" default:"true"`
	Tick                 time.Duration `envconfig:"POSYNC_MAINTENANCE_TICK" default:"1m"`
	CacheRefreshInterval time.Duration `envconfig:"POSYNC_MAINTENANCE_CACHE_REFRESH_INTERVAL" default:"15m"`
	DeadLetterRetention  time.Duration `envconfig:"POSYNC_MAINTENANCE_DEAD_LETTER_RETENTION" default:"720h"`
	RetentionInterval    time.Duration `envconfig:"POSYNC_MAINTENANCE_RETENTION_INTERVAL" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"POSYNC_AUTO_MIGRATE" default:"true"`
}

// SyncLockScope identifies the store guarded by the cross-process locks.
// Without an explicit scope a postgres store is identified by its DSN, so
// every agent pointed at it contends for the same key. A sqlite file is local
// to one host, so its scope also carries the device id.
func (c *Config) SyncLockScope(deviceID string) string {
	if scope := strings.TrimSpace(c.Sync.LockScope); scope != "" {
		return scope
	}
	seed := c.DB.Driver + "|" + c.DB.DSN
	if c.DB.IsSQLite() {
		seed = deviceID + "|" + seed
	}
	sum := sha256.Sum256([]byte(seed))
	return "store-" + hex.EncodeToString(sum[:8])
}

func (db *DBConfig) ensureDSN() error {
	switch strings.ToLower(strings.TrimSpace(db.Driver)) {
	case DriverSQLite:
		if db.DSN == "" {
			if strings.TrimSpace(db.Path) == "" {
				return fmt.Errorf("either %s or %s is required", EnvDBDSN, EnvDBPath)
			}
			db.DSN = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", db.Path)
		}
		return nil
	case DriverPostgres:
		if db.DSN == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DriverPostgres)
		}
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvDBDriver, db.Driver)
	}
}
