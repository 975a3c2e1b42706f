package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Jobs      JobsConfig
	Storage   StorageConfig
	Media     MediaConfig
	Images    ImagesConfig
	R2        R2Config
	JWT       JWTConfig
	OIDC      OIDCConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	LogFormat   string // console or json
	BodyLimitMB int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// QueueConfig selects how background jobs are dispatched
type QueueConfig struct {
	Mode        string // asynq or inline
	Concurrency int
}

// JobsConfig selects where job and file records live
type JobsConfig struct {
	Store    string // redis or memory
	TTLHours int
}

type StorageConfig struct {
	UploadDir      string
	OutputDir      string
	RetentionHours int
	CleanupCron    string
	MaxUploadMB    int
}

// MediaConfig configures the ffmpeg adapter. Timeouts are in seconds.
type MediaConfig struct {
	FFmpegPath     string
	FFprobePath    string
	ProbeTimeout   int
	ConcatTimeout  int
	FitTimeout     int
	OverlayTimeout int
}

type ImagesConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Size      string
	MaxImages int
	Timeout   int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	ComposePerHour int
	ImagesPerHour  int
	UploadPerHour  int
}

// IsInline reports whether jobs run in-process instead of through asynq
func (c *QueueConfig) IsInline() bool {
	return strings.EqualFold(c.Mode, "inline")
}

// IsMemory reports whether records are kept in process memory
func (c *JobsConfig) IsMemory() bool {
	return strings.EqualFold(c.Store, "memory")
}

func Load() (*Config, error) {
	// .env is optional and never overrides variables already set
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("IMAGES_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.log_format", "LOG_FORMAT")
	_ = viper.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("queue.mode", "QUEUE_MODE")
	_ = viper.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")
	_ = viper.BindEnv("jobs.store", "JOBS_STORE")
	_ = viper.BindEnv("jobs.ttl_hours", "JOBS_TTL_HOURS")
	_ = viper.BindEnv("storage.upload_dir", "UPLOAD_DIR")
	_ = viper.BindEnv("storage.output_dir", "OUTPUT_DIR")
	_ = viper.BindEnv("storage.retention_hours", "RETENTION_HOURS")
	_ = viper.BindEnv("storage.cleanup_cron", "CLEANUP_CRON")
	_ = viper.BindEnv("storage.max_upload_mb", "MAX_UPLOAD_MB")
	_ = viper.BindEnv("media.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("media.ffprobe_path", "FFPROBE_PATH")
	_ = viper.BindEnv("media.probe_timeout", "MEDIA_PROBE_TIMEOUT")
	_ = viper.BindEnv("media.concat_timeout", "MEDIA_CONCAT_TIMEOUT")
	_ = viper.BindEnv("media.fit_timeout", "MEDIA_FIT_TIMEOUT")
	_ = viper.BindEnv("media.overlay_timeout", "MEDIA_OVERLAY_TIMEOUT")
	_ = viper.BindEnv("images.api_key", "IMAGES_API_KEY")
	_ = viper.BindEnv("images.base_url", "IMAGES_BASE_URL")
	_ = viper.BindEnv("images.model", "IMAGES_MODEL")
	_ = viper.BindEnv("images.size", "IMAGES_SIZE")
	_ = viper.BindEnv("images.max_images", "IMAGES_MAX_PER_JOB")
	_ = viper.BindEnv("images.timeout", "IMAGES_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = viper.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("ratelimit.compose_per_hour", "RATELIMIT_COMPOSE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.images_per_hour", "RATELIMIT_IMAGES_PER_HOUR")
	_ = viper.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.log_format", "console")
	viper.SetDefault("server.body_limit_mb", 2048)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("queue.mode", "asynq")
	viper.SetDefault("queue.concurrency", 4)
	viper.SetDefault("jobs.store", "redis")
	viper.SetDefault("jobs.ttl_hours", 168)

	// Storage defaults
	viper.SetDefault("storage.upload_dir", "uploads")
	viper.SetDefault("storage.output_dir", "outputs")
	viper.SetDefault("storage.retention_hours", 24)
	viper.SetDefault("storage.cleanup_cron", "@every 1h")
	viper.SetDefault("storage.max_upload_mb", 2048)

	// Media defaults
	viper.SetDefault("media.probe_timeout", 30)
	viper.SetDefault("media.concat_timeout", 1800)
	viper.SetDefault("media.fit_timeout", 1800)
	viper.SetDefault("media.overlay_timeout", 1800)

	// Image API defaults
	viper.SetDefault("images.base_url", "https://api.openai.com/v1")
	viper.SetDefault("images.model", "dall-e-3")
	viper.SetDefault("images.size", "1792x1024")
	viper.SetDefault("images.max_images", 20)
	viper.SetDefault("images.timeout", 120)

	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.compose_per_hour", 20)
	viper.SetDefault("ratelimit.images_per_hour", 10)
	viper.SetDefault("ratelimit.upload_per_hour", 200)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("server.port"),
			Env:         viper.GetString("server.env"),
			LogLevel:    viper.GetString("server.log_level"),
			LogFormat:   viper.GetString("server.log_format"),
			BodyLimitMB: viper.GetInt("server.body_limit_mb"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Queue: QueueConfig{
			Mode:        viper.GetString("queue.mode"),
			Concurrency: viper.GetInt("queue.concurrency"),
		},
		Jobs: JobsConfig{
			Store:    viper.GetString("jobs.store"),
			TTLHours: viper.GetInt("jobs.ttl_hours"),
		},
		Storage: StorageConfig{
			UploadDir:      viper.GetString("storage.upload_dir"),
			OutputDir:      viper.GetString("storage.output_dir"),
			RetentionHours: viper.GetInt("storage.retention_hours"),
			CleanupCron:    viper.GetString("storage.cleanup_cron"),
			MaxUploadMB:    viper.GetInt("storage.max_upload_mb"),
		},
		Media: MediaConfig{
			FFmpegPath:     viper.GetString("media.ffmpeg_path"),
			FFprobePath:    viper.GetString("media.ffprobe_path"),
			ProbeTimeout:   viper.GetInt("media.probe_timeout"),
			ConcatTimeout:  viper.GetInt("media.concat_timeout"),
			FitTimeout:     viper.GetInt("media.fit_timeout"),
			OverlayTimeout: viper.GetInt("media.overlay_timeout"),
		},
		Images: ImagesConfig{
			APIKey:    viper.GetString("images.api_key"),
			BaseURL:   viper.GetString("images.base_url"),
			Model:     viper.GetString("images.model"),
			Size:      viper.GetString("images.size"),
			MaxImages: viper.GetInt("images.max_images"),
			Timeout:   viper.GetInt("images.timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		OIDC: OIDCConfig{
			Issuer:   viper.GetString("oidc.issuer"),
			ClientID: viper.GetString("oidc.client_id"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			ComposePerHour: viper.GetInt("ratelimit.compose_per_hour"),
			ImagesPerHour:  viper.GetInt("ratelimit.images_per_hour"),
			UploadPerHour:  viper.GetInt("ratelimit.upload_per_hour"),
		},
	}

	return cfg, nil
}
