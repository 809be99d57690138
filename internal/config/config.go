package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Gateway      GatewayConfig      `mapstructure:"gateway"`
	Session      SessionConfig      `mapstructure:"session"`
	Live         LiveConfig         `mapstructure:"live"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Store        StoreConfig        `mapstructure:"store"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Toast        ToastConfig        `mapstructure:"toast"`
	CORS         CORSConfig         `mapstructure:"cors"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`
	LogLevel string `mapstructure:"log_level"`
}

// GatewayConfig 后端 API 网关
type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig 会话凭证
type SessionConfig struct {
	CookieName  string        `mapstructure:"cookie_name"`
	JWTSecret   string        `mapstructure:"jwt_secret"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	ReapEvery   time.Duration `mapstructure:"reap_every"`
}

// LiveConfig 实时事件通道
type LiveConfig struct {
	Transport     string        `mapstructure:"transport"` // websocket | nats
	URL           string        `mapstructure:"url"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	PongTimeout   time.Duration `mapstructure:"pong_timeout"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// StoreConfig 客户端状态持久化
type StoreConfig struct {
	Backend string        `mapstructure:"backend"` // redis | file
	Dir     string        `mapstructure:"dir"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type ConversationConfig struct {
	PageSize int `mapstructure:"page_size"`
}

type ToastConfig struct {
	Duration   time.Duration `mapstructure:"duration"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// Load 从指定路径加载配置
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 从环境变量覆盖配置
	cfg.applyEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

// Default 返回不依赖配置文件的默认配置
func Default() *Config {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

// applyEnv 从环境变量覆盖配置
func (c *Config) applyEnv() {
	// App
	c.App.Port = GetEnvInt("CLIENT_PORT", c.App.Port)
	c.App.Mode = GetEnv("CLIENT_MODE", c.App.Mode)
	c.App.LogLevel = GetEnv("LOG_LEVEL", c.App.LogLevel)

	// Gateway
	c.Gateway.BaseURL = GetEnv("GATEWAY_URL", c.Gateway.BaseURL)
	c.Gateway.Timeout = GetEnvDuration("GATEWAY_TIMEOUT", c.Gateway.Timeout)

	// Session
	c.Session.CookieName = GetEnv("SESSION_COOKIE", c.Session.CookieName)
	c.Session.JWTSecret = GetEnv("JWT_SECRET", c.Session.JWTSecret)

	// Live
	c.Live.Transport = GetEnv("LIVE_TRANSPORT", c.Live.Transport)
	c.Live.URL = GetEnv("LIVE_URL", c.Live.URL)

	// NATS
	c.NATS.URL = GetEnv("NATS_URL", c.NATS.URL)

	// Redis
	c.Redis.Host = GetEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = GetEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = GetEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = GetEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)

	// Store
	c.Store.Backend = GetEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.Dir = GetEnv("STORE_DIR", c.Store.Dir)
}

// applyDefaults 零值字段使用默认值
func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "social-client"
	}
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.App.Mode == "" {
		c.App.Mode = "release"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = 10 * time.Second
	}
	c.Gateway.BaseURL = strings.TrimRight(c.Gateway.BaseURL, "/")
	if c.Session.CookieName == "" {
		c.Session.CookieName = "session"
	}
	if c.Session.IdleTimeout <= 0 {
		c.Session.IdleTimeout = 30 * time.Minute
	}
	if c.Session.ReapEvery <= 0 {
		c.Session.ReapEvery = time.Minute
	}
	if c.Live.Transport == "" {
		c.Live.Transport = "websocket"
	}
	if c.Live.PingInterval <= 0 {
		c.Live.PingInterval = 10 * time.Second
	}
	if c.Live.PongTimeout <= 0 {
		c.Live.PongTimeout = 15 * time.Second
	}
	if c.Live.ReconnectWait <= 0 {
		c.Live.ReconnectWait = 3 * time.Second
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectWait <= 0 {
		c.NATS.ReconnectWait = 2 * time.Second
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "redis"
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "data/state"
	}
	if c.Store.TTL <= 0 {
		c.Store.TTL = 30 * 24 * time.Hour
	}
	if c.Conversation.PageSize <= 0 {
		c.Conversation.PageSize = 15
	}
	if c.Toast.Duration <= 0 {
		c.Toast.Duration = 5 * time.Second
	}
	if c.Toast.MaxEntries == 0 {
		c.Toast.MaxEntries = 5
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
}

// RedisAddr 获取 Redis 地址
func (c *RedisConfig) RedisAddr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
