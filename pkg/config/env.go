package config

const EnvPrefix = "REVIEWHUB"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                 = "REVIEWHUB_APP_ENV"
	EnvPort                   = "REVIEWHUB_APP_PORT"
	EnvDBDSN                  = "REVIEWHUB_DB_DSN"
	EnvDBHost                 = "REVIEWHUB_DB_HOST"
	EnvDBUser                 = "REVIEWHUB_DB_USER"
	EnvDBName                 = "REVIEWHUB_DB_NAME"
	EnvRedisURL               = "REVIEWHUB_REDIS_URL"
	EnvJWTSecret              = "REVIEWHUB_JWT_SECRET"
	EnvJWTIssuer              = "REVIEWHUB_JWT_ISSUER"
	EnvJWTExpMins             = "REVIEWHUB_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "REVIEWHUB_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCPProjectID           = "REVIEWHUB_GCP_PROJECT_ID"
	EnvGCSBucket              = "REVIEWHUB_GCS_BUCKET_NAME"
	EnvPubSubNotificationSub  = "REVIEWHUB_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvMaxAttachmentMB        = "REVIEWHUB_MAX_ATTACHMENT_MB"
	EnvDefaultShareTTL        = "REVIEWHUB_DEFAULT_SHARE_TTL"
)
