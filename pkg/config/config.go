package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	Password       PasswordConfig
	AuthRateLimit  AuthRateLimitConfig
	GuestRateLimit GuestRateLimitConfig
	FeatureFlags   FeatureFlagsConfig
	Eventing       EventingConfig
	OpenAI         OpenAIConfig
	GCP            GCPConfig
	GCS            GCSConfig
	Review         ReviewConfig
	PubSub         PubSubConfig
	Sendgrid       SendgridConfig
	Outbox         OutboxConfig
	Cron           CronConfig
}

const defaultSQLiteDSN = "file:reviewhub.db?_foreign_keys=on"

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	// USE_SQLITE is the local shortcut: it forces the sqlite driver and
	// swaps a postgres DSN for a local file.
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
		if cfg.DB.DSN == "" || strings.HasPrefix(cfg.DB.DSN, "postgres") {
			cfg.DB.DSN = defaultSQLiteDSN
		}
	}
	if err := cfg.DB.fillDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"REVIEWHUB_APP_ENV" required:"true"`
	Port         string   `envconfig:"REVIEWHUB_APP_PORT" required:"true"`
	PublicURL    string   `envconfig:"REVIEWHUB_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string   `envconfig:"REVIEWHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"REVIEWHUB_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"REVIEWHUB_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"REVIEWHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"REVIEWHUB_DB_DSN"`
	Driver string `envconfig:"REVIEWHUB_DB_DRIVER" default:"postgres"`

	// Discrete connection parts, used only when DSN is empty.
	Host     string `envconfig:"REVIEWHUB_DB_HOST"`
	Port     int    `envconfig:"REVIEWHUB_DB_PORT" default:"5432"`
	User     string `envconfig:"REVIEWHUB_DB_USER"`
	Password string `envconfig:"REVIEWHUB_DB_PASSWORD"`
	Name     string `envconfig:"REVIEWHUB_DB_NAME"`
	SSLMode  string `envconfig:"REVIEWHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"REVIEWHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"REVIEWHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"REVIEWHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"REVIEWHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"REVIEWHUB_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"REVIEWHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"REVIEWHUB_REDIS_ADDR"`
	Password     string        `envconfig:"REVIEWHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"REVIEWHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REVIEWHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REVIEWHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REVIEWHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REVIEWHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REVIEWHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"REVIEWHUB_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"REVIEWHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"REVIEWHUB_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"REVIEWHUB_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"REVIEWHUB_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"REVIEWHUB_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"REVIEWHUB_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"REVIEWHUB_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"REVIEWHUB_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"REVIEWHUB_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"REVIEWHUB_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"REVIEWHUB_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"REVIEWHUB_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"REVIEWHUB_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"REVIEWHUB_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

// GuestRateLimitConfig bounds how hard a single share token can hit the guest routes.
type GuestRateLimitConfig struct {
	Window     time.Duration `envconfig:"REVIEWHUB_GUEST_RATE_LIMIT_WINDOW" default:"1m"`
	TokenLimit int           `envconfig:"REVIEWHUB_GUEST_RATE_LIMIT_TOKEN_LIMIT" default:"120"`
	IPLimit    int           `envconfig:"REVIEWHUB_GUEST_RATE_LIMIT_IP_LIMIT" default:"300"`
}

type FeatureFlagsConfig struct {
	UseSQLite      bool `envconfig:"REVIEWHUB_USE_SQLITE" default:"false"`
	AutoMigrate    bool `envconfig:"REVIEWHUB_AUTO_MIGRATE" default:"false"`
	InviteEmails   bool `envconfig:"REVIEWHUB_FEATURE_INVITE_EMAILS" default:"true"`
	AISummaries    bool `envconfig:"REVIEWHUB_FEATURE_AI_SUMMARIES" default:"true"`
	RealtimeFanout bool `envconfig:"REVIEWHUB_FEATURE_REALTIME" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"REVIEWHUB_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type OpenAIConfig struct {
	APIKey  string        `envconfig:"REVIEWHUB_OPENAI_API_KEY"`
	BaseURL string        `envconfig:"REVIEWHUB_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Model   string        `envconfig:"REVIEWHUB_OPENAI_MODEL" default:"gpt-4o-mini"`
	Timeout time.Duration `envconfig:"REVIEWHUB_OPENAI_TIMEOUT" default:"20s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"REVIEWHUB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"REVIEWHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"REVIEWHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"REVIEWHUB_GCS_BUCKET_NAME" required:"true"`
	PublicBaseURL string `envconfig:"REVIEWHUB_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

// ReviewConfig holds the review-domain limits.
type ReviewConfig struct {
	MaxAttachmentMB int           `envconfig:"REVIEWHUB_MAX_ATTACHMENT_MB" default:"25"`
	MaxUploadMB     int           `envconfig:"REVIEWHUB_MAX_UPLOAD_MB" default:"2048"`
	DefaultShareTTL time.Duration `envconfig:"REVIEWHUB_DEFAULT_SHARE_TTL" default:"168h"`
	// ShareIPHashKey keys the HMAC over guest IPs; falls back to the JWT secret.
	ShareIPHashKey string `envconfig:"REVIEWHUB_SHARE_IP_HASH_KEY"`
}

// MaxAttachmentBytes converts the attachment cap to bytes.
func (r ReviewConfig) MaxAttachmentBytes() int64 {
	if r.MaxAttachmentMB <= 0 {
		return 25 << 20
	}
	return int64(r.MaxAttachmentMB) << 20
}

// MaxUploadBytes converts the version upload cap to bytes.
func (r ReviewConfig) MaxUploadBytes() int64 {
	if r.MaxUploadMB <= 0 {
		return 2048 << 20
	}
	return int64(r.MaxUploadMB) << 20
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"REVIEWHUB_PUBSUB_NOTIFICATION_TOPIC" default:"rv-notification-events"`
	NotificationSubscription string `envconfig:"REVIEWHUB_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"rv-notification-worker"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"REVIEWHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"REVIEWHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"REVIEWHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"REVIEWHUB_OUTBOX_RETENTION_DAYS" default:"14"`
}

type SendgridConfig struct {
	APIKey      string        `envconfig:"REVIEWHUB_SENDGRID_API_KEY"`
	DefaultFrom string        `envconfig:"REVIEWHUB_SENDGRID_FROM_EMAIL" default:"reviews@reviewhub.local"`
	FromName    string        `envconfig:"REVIEWHUB_SENDGRID_FROM_NAME" default:"ReviewHub"`
	BaseURL     string        `envconfig:"REVIEWHUB_SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
	Timeout     time.Duration `envconfig:"REVIEWHUB_SENDGRID_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"REVIEWHUB_CRON_INTERVAL" default:"1h"`
	NotificationRetentionDays int           `envconfig:"REVIEWHUB_NOTIFICATION_RETENTION_DAYS" default:"30"`
}

// fillDSN assembles a postgres URL from the discrete parts when no DSN is
// set. Host, user and database name are then mandatory.
func (c *DBConfig) fillDSN() error {
	if c.DSN != "" {
		return nil
	}
	var missing []string
	for env, val := range map[string]string{EnvDBHost: c.Host, EnvDBUser: c.User, EnvDBName: c.Name} {
		if val == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("set %s, or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.User(c.User),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.Password != "" {
		dsn.User = url.UserPassword(c.User, c.Password)
	}
	if c.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	c.DSN = dsn.String()
	return nil
}
