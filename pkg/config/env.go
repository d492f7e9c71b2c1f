package config

const EnvPrefix = "POSYNC"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	EnvAppEnv   = "POSYNC_APP_ENV"
	EnvDeviceID = "POSYNC_DEVICE_ID"
	EnvLogLevel = "POSYNC_LOG_LEVEL"

	EnvDBDriver = "POSYNC_DB_DRIVER"
	EnvDBDSN    = "POSYNC_DB_DSN"
	EnvDBPath   = "POSYNC_DB_PATH"

	EnvRedisURL = "POSYNC_REDIS_URL"

	EnvBackendURL     = "POSYNC_BACKEND_URL"
	EnvBackendTimeout = "POSYNC_BACKEND_TIMEOUT"

	EnvSyncInterval    = "POSYNC_SYNC_INTERVAL"
	EnvSyncMaxAttempts = "POSYNC_SYNC_MAX_ATTEMPTS"
	EnvSyncLockScope   = "POSYNC_SYNC_LOCK_SCOPE"

	EnvCachePageLimit = "POSYNC_CACHE_PAGE_LIMIT"

	EnvMaintenanceEnabled             = "POSYNC_MAINTENANCE_ENABLED"
	EnvMaintenanceDeadLetterRetention = "POSYNC_MAINTENANCE_DEAD_LETTER_RETENTION"
)
