package config

import (
	"os"
	"strings"

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
	JWT       JWTConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Script    ScriptConfig
	Media     MediaConfig
	Storage   StorageConfig
	Render    RenderConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

// GatewayConfig controls whether identity is taken from the AI gateway's
// X-User-* headers instead of a locally verified JWT.
type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	RenderPerHour int
}

// ScriptConfig points at the script authority that owns approved render
// specs.
type ScriptConfig struct {
	BaseURL string
	APIKey  string
	Timeout int // seconds
}

// MediaConfig points at the media rendering service (TTS, slides, compose).
// Mock swaps in in-process stand-ins for local development.
type MediaConfig struct {
	ServiceURL string
	Timeout    int // seconds
	Mock       bool
}

// StorageConfig selects and configures the asset upload backend.
// Mode is one of "local", "remote", "s3".
type StorageConfig struct {
	Mode        string
	MaxUploadMB int64
	StrictETag  bool
	RetryMax    int
	RetryBaseMS int
	Local       LocalStorageConfig
	Authority   StorageAuthorityConfig
	S3          S3Config
}

type LocalStorageConfig struct {
	Root    string
	BaseURL string
}

type StorageAuthorityConfig struct {
	BaseURL string
	APIKey  string
	Timeout int // seconds
}

type S3Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type RenderConfig struct {
	DefaultSceneDurationSec float64
	WorkDir                 string
	Voice                   string
	Concurrency             int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("SCRIPT_API_KEY")
	readSecret("STORAGE_AUTHORITY_API_KEY")
	readSecret("S3_ACCOUNT_ID")
	readSecret("S3_ACCESS_KEY_ID")
	readSecret("S3_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("ratelimit.render_per_hour", "RATELIMIT_RENDER_PER_HOUR")
	_ = viper.BindEnv("script.base_url", "SCRIPT_BASE_URL")
	_ = viper.BindEnv("script.api_key", "SCRIPT_API_KEY")
	_ = viper.BindEnv("script.timeout", "SCRIPT_TIMEOUT")
	_ = viper.BindEnv("media.service_url", "MEDIA_SERVICE_URL")
	_ = viper.BindEnv("media.timeout", "MEDIA_SERVICE_TIMEOUT")
	_ = viper.BindEnv("media.mock", "MEDIA_MOCK")
	_ = viper.BindEnv("storage.mode", "STORAGE_MODE")
	_ = viper.BindEnv("storage.max_upload_mb", "STORAGE_MAX_UPLOAD_MB")
	_ = viper.BindEnv("storage.strict_etag", "STORAGE_STRICT_ETAG")
	_ = viper.BindEnv("storage.retry_max", "STORAGE_RETRY_MAX")
	_ = viper.BindEnv("storage.retry_base_ms", "STORAGE_RETRY_BASE_MS")
	_ = viper.BindEnv("storage.local.root", "STORAGE_LOCAL_ROOT")
	_ = viper.BindEnv("storage.local.base_url", "STORAGE_LOCAL_BASE_URL")
	_ = viper.BindEnv("storage.authority.base_url", "STORAGE_AUTHORITY_BASE_URL")
	_ = viper.BindEnv("storage.authority.api_key", "STORAGE_AUTHORITY_API_KEY")
	_ = viper.BindEnv("storage.authority.timeout", "STORAGE_AUTHORITY_TIMEOUT")
	_ = viper.BindEnv("storage.s3.account_id", "S3_ACCOUNT_ID")
	_ = viper.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.s3.bucket_name", "S3_BUCKET_NAME")
	_ = viper.BindEnv("storage.s3.public_url", "S3_PUBLIC_URL")
	_ = viper.BindEnv("render.default_scene_duration_sec", "RENDER_DEFAULT_SCENE_DURATION_SEC")
	_ = viper.BindEnv("render.work_dir", "RENDER_WORK_DIR")
	_ = viper.BindEnv("render.voice", "RENDER_VOICE")
	_ = viper.BindEnv("render.concurrency", "RENDER_CONCURRENCY")

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.render_per_hour", 5)
	viper.SetDefault("script.base_url", "http://localhost:8081")
	viper.SetDefault("script.api_key", "")
	viper.SetDefault("script.timeout", 10)
	viper.SetDefault("media.service_url", "http://localhost:8082")
	viper.SetDefault("media.timeout", 120)
	viper.SetDefault("media.mock", true)
	viper.SetDefault("storage.mode", "local")
	viper.SetDefault("storage.max_upload_mb", 512)
	viper.SetDefault("storage.strict_etag", false)
	viper.SetDefault("storage.retry_max", 3)
	viper.SetDefault("storage.retry_base_ms", 500)
	viper.SetDefault("storage.local.root", "./data/assets")
	viper.SetDefault("storage.local.base_url", "http://localhost:3000/assets")
	viper.SetDefault("storage.authority.base_url", "")
	viper.SetDefault("storage.authority.api_key", "")
	viper.SetDefault("storage.authority.timeout", 30)
	viper.SetDefault("render.default_scene_duration_sec", 5.0)
	viper.SetDefault("render.work_dir", "")
	viper.SetDefault("render.voice", "narrator")
	viper.SetDefault("render.concurrency", 2)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			RenderPerHour: viper.GetInt("ratelimit.render_per_hour"),
		},
		Script: ScriptConfig{
			BaseURL: viper.GetString("script.base_url"),
			APIKey:  viper.GetString("script.api_key"),
			Timeout: viper.GetInt("script.timeout"),
		},
		Media: MediaConfig{
			ServiceURL: viper.GetString("media.service_url"),
			Timeout:    viper.GetInt("media.timeout"),
			Mock:       viper.GetBool("media.mock"),
		},
		Storage: StorageConfig{
			Mode:        viper.GetString("storage.mode"),
			MaxUploadMB: viper.GetInt64("storage.max_upload_mb"),
			StrictETag:  viper.GetBool("storage.strict_etag"),
			RetryMax:    viper.GetInt("storage.retry_max"),
			RetryBaseMS: viper.GetInt("storage.retry_base_ms"),
			Local: LocalStorageConfig{
				Root:    viper.GetString("storage.local.root"),
				BaseURL: viper.GetString("storage.local.base_url"),
			},
			Authority: StorageAuthorityConfig{
				BaseURL: viper.GetString("storage.authority.base_url"),
				APIKey:  viper.GetString("storage.authority.api_key"),
				Timeout: viper.GetInt("storage.authority.timeout"),
			},
			S3: S3Config{
				AccountID:       viper.GetString("storage.s3.account_id"),
				AccessKeyID:     viper.GetString("storage.s3.access_key_id"),
				SecretAccessKey: viper.GetString("storage.s3.secret_access_key"),
				BucketName:      viper.GetString("storage.s3.bucket_name"),
				PublicURL:       viper.GetString("storage.s3.public_url"),
			},
		},
		Render: RenderConfig{
			DefaultSceneDurationSec: viper.GetFloat64("render.default_scene_duration_sec"),
			WorkDir:                 viper.GetString("render.work_dir"),
			Voice:                   viper.GetString("render.voice"),
			Concurrency:             viper.GetInt("render.concurrency"),
		},
	}

	return cfg, nil
}
