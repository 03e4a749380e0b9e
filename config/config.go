package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	OSS       OSSConfig       `mapstructure:"oss"`
	Email     EmailConfig     `mapstructure:"email"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Comment   CommentConfig   `mapstructure:"comment"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	SiteURL  string `mapstructure:"site_url"` // 通知邮件里的链接前缀
}

type QueueConfig struct {
	NotificationQueue string `mapstructure:"notification_queue"`
	MaxWorkers        int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// CacheConfig 评论缓存 TTL（秒）
type CacheConfig struct {
	ListTTLSeconds  int `mapstructure:"list_ttl_seconds"`
	StatsTTLSeconds int `mapstructure:"stats_ttl_seconds"`
	ItemTTLSeconds  int `mapstructure:"item_ttl_seconds"`
	MemorySize      int `mapstructure:"memory_size"` // Redis 不可用时内存缓存容量
}

func (c CacheConfig) ListTTL() time.Duration  { return time.Duration(c.ListTTLSeconds) * time.Second }
func (c CacheConfig) StatsTTL() time.Duration { return time.Duration(c.StatsTTLSeconds) * time.Second }
func (c CacheConfig) ItemTTL() time.Duration  { return time.Duration(c.ItemTTLSeconds) * time.Second }

type CommentConfig struct {
	MaxBodyLength          int `mapstructure:"max_body_length"`
	RateLimitWindowSeconds int `mapstructure:"rate_limit_window_seconds"`
	RateLimitThreshold     int `mapstructure:"rate_limit_threshold"`
	StoreTimeoutSeconds    int `mapstructure:"store_timeout_seconds"`
}

func (c CommentConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c CommentConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

type AuthConfig struct {
	CodeTTLMinutes          int `mapstructure:"code_ttl_minutes"`
	CodeMaxAttempts         int `mapstructure:"code_max_attempts"`
	CodeRequestsPerMinute   int `mapstructure:"code_requests_per_minute"`
	VerifyRequestsPerMinute int `mapstructure:"verify_requests_per_minute"`
}

func (c AuthConfig) CodeTTL() time.Duration {
	return time.Duration(c.CodeTTLMinutes) * time.Minute
}

type SnowflakeConfig struct {
	NodeID int64 `mapstructure:"node_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.port", 3306)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("jwt.expire_hours", 168)

	v.SetDefault("email.smtp_port", 465)

	v.SetDefault("queue.notification_queue", "notification_jobs")
	v.SetDefault("queue.max_workers", 4)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Request-ID"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cache.list_ttl_seconds", 300)
	v.SetDefault("cache.stats_ttl_seconds", 600)
	v.SetDefault("cache.item_ttl_seconds", 900)
	v.SetDefault("cache.memory_size", 10000)

	v.SetDefault("comment.max_body_length", 5000)
	v.SetDefault("comment.rate_limit_window_seconds", 300)
	v.SetDefault("comment.rate_limit_threshold", 10)
	v.SetDefault("comment.store_timeout_seconds", 5)

	v.SetDefault("auth.code_ttl_minutes", 10)
	v.SetDefault("auth.code_max_attempts", 5)
	v.SetDefault("auth.code_requests_per_minute", 5)
	v.SetDefault("auth.verify_requests_per_minute", 10)

	v.SetDefault("snowflake.node_id", 1)
}

// Default 仅包含默认值的配置，测试中使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Database.Database == "" {
		return errors.New("database.database is required")
	}
	if c.Comment.RateLimitThreshold <= 0 {
		return fmt.Errorf("comment.rate_limit_threshold must be positive, got %d", c.Comment.RateLimitThreshold)
	}
	if c.Snowflake.NodeID < 0 || c.Snowflake.NodeID > 1023 {
		return fmt.Errorf("snowflake.node_id must be in [0, 1023], got %d", c.Snowflake.NodeID)
	}
	return nil
}
