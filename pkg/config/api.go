package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment     string
	Addr            string
	LogLevel        string
	DatabaseURL     string
	MigrationsDir   string
	StoreBackend    string
	JWTSecret       string
	EncryptionKey   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	RedisAddr          string
	RedisPass          string
	RedisDB            int
	RedisChannelPrefix string

	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	ResendAPIKey  string
	ResendFrom    string
	ResendBaseURL string

	StatusAPIKey  string
	CronToken     string
	NotifyTimeout time.Duration

	HealthCheckEnabled     bool
	HealthCheckInterval    time.Duration
	HealthCheckTimeout     time.Duration
	HealthCheckConcurrency int

	TimelineSlice       int
	MetricsHistoryLimit int
	PublicIncidentLimit int
	DefaultServicesFile string
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:     GetString("APP_ENV", "development"),
		Addr:            GetString("API_ADDR", ":4000"),
		LogLevel:        GetString("LOG_LEVEL", "info"),
		DatabaseURL:     GetString("DATABASE_URL", "postgres://status:status@db:5432/status?sslmode=disable"),
		MigrationsDir:   GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		StoreBackend:    GetString("STORE_BACKEND", "postgres"),
		JWTSecret:       GetString("JWT_SECRET", "supersecuresecret"),
		EncryptionKey:   GetString("ENCRYPTION_KEY", "supersecuresecret"),
		AccessTokenTTL:  GetDuration("ACCESS_TOKEN_TTL_MIN", time.Minute, 15*time.Minute),
		RefreshTokenTTL: GetDuration("REFRESH_TOKEN_TTL_HOURS", time.Hour, 24*time.Hour),

		RedisAddr:          GetString("REDIS_ADDR", ""),
		RedisPass:          GetString("REDIS_PASSWORD", ""),
		RedisDB:            GetInt("REDIS_DB", 0),
		RedisChannelPrefix: GetString("REDIS_CHANNEL_PREFIX", "statuspage:org:"),

		MQTTBroker:      GetString("MQTT_BROKER", ""),
		MQTTClientID:    GetString("MQTT_CLIENT_ID", "statuspage-api"),
		MQTTUsername:    GetString("MQTT_USERNAME", ""),
		MQTTPassword:    GetString("MQTT_PASSWORD", ""),
		MQTTTopicPrefix: GetString("MQTT_TOPIC_PREFIX", "statuspage"),

		ResendAPIKey:  GetString("RESEND_API_KEY", ""),
		ResendFrom:    GetString("RESEND_FROM", "status@example.com"),
		ResendBaseURL: GetString("RESEND_BASE_URL", "https://api.resend.com"),

		StatusAPIKey:  GetString("STATUS_API_KEY", ""),
		CronToken:     GetString("CRON_TOKEN", ""),
		NotifyTimeout: GetDuration("NOTIFY_TIMEOUT_MS", time.Millisecond, 2*time.Second),

		HealthCheckEnabled:     GetBool("HEALTHCHECK_ENABLED", false),
		HealthCheckInterval:    GetDuration("HEALTHCHECK_INTERVAL_SECONDS", time.Second, time.Minute),
		HealthCheckTimeout:     GetDuration("HEALTHCHECK_TIMEOUT_SECONDS", time.Second, 5*time.Second),
		HealthCheckConcurrency: GetInt("HEALTHCHECK_CONCURRENCY", 8),

		TimelineSlice:       GetInt("TIMELINE_SLICE", 10),
		MetricsHistoryLimit: GetInt("METRICS_HISTORY_LIMIT", 100),
		PublicIncidentLimit: GetInt("PUBLIC_INCIDENT_LIMIT", 10),
		DefaultServicesFile: GetString("DEFAULT_SERVICES_FILE", ""),
	}
}

// UseMemoryStore reports whether persistence should stay in process.
func (c APIConfig) UseMemoryStore() bool {
	return c.StoreBackend == "memory"
}
