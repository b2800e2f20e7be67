package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 服务运行所需的全部配置
type Config struct {
	Env            string
	Port           string
	DatabaseURL    string
	DatabaseDebug  bool
	JWTSecret      string
	JWTExpiresIn   time.Duration
	SessionSecret  string
	NATSURL        string
	LogLevel       string
	RequestTimeout time.Duration

	RateLimitPerMinute int
	RateLimitBurst     int

	ThreadCacheTTL time.Duration
	RankingCron    string
}

const (
	keyEnv            = "app_env"
	keyPort           = "port"
	keyDatabaseURL    = "database_url"
	keyDatabaseDebug  = "database_debug"
	keyJWTSecret      = "jwt_secret"
	keyJWTExpiresIn   = "jwt_expires_in"
	keySessionSecret  = "session_secret"
	keyNATSURL        = "nats_url"
	keyLogLevel       = "log_level"
	keyRequestTimeout = "request_timeout"
	keyRateLimitMax   = "rate_limit_max"
	keyRateLimitBurst = "rate_limit_burst"
	keyThreadCacheTTL = "thread_cache_ttl"
	keyRankingCron    = "ranking_cron"
)

// Load reads .env (if present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading config from environment")
	}

	vp := viper.New()
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	vp.SetDefault(keyEnv, "development")
	vp.SetDefault(keyPort, "5000")
	vp.SetDefault(keyDatabaseURL, "host=localhost user=postgres password=postgres dbname=port42 port=5432 sslmode=disable")
	vp.SetDefault(keyDatabaseDebug, false)
	vp.SetDefault(keyJWTSecret, "")
	vp.SetDefault(keyJWTExpiresIn, "168h")
	vp.SetDefault(keySessionSecret, "secret_key_change_me")
	vp.SetDefault(keyNATSURL, "")
	vp.SetDefault(keyLogLevel, "info")
	vp.SetDefault(keyRequestTimeout, "10s")
	vp.SetDefault(keyRateLimitMax, 100)
	vp.SetDefault(keyRateLimitBurst, 20)
	vp.SetDefault(keyThreadCacheTTL, "30s")
	vp.SetDefault(keyRankingCron, "0 3 * * *")

	return fromViper(vp)
}

func fromViper(vp *viper.Viper) *Config {
	cfg := &Config{
		Env:                vp.GetString(keyEnv),
		Port:               vp.GetString(keyPort),
		DatabaseURL:        vp.GetString(keyDatabaseURL),
		DatabaseDebug:      vp.GetBool(keyDatabaseDebug),
		JWTSecret:          vp.GetString(keyJWTSecret),
		JWTExpiresIn:       vp.GetDuration(keyJWTExpiresIn),
		SessionSecret:      vp.GetString(keySessionSecret),
		NATSURL:            vp.GetString(keyNATSURL),
		LogLevel:           vp.GetString(keyLogLevel),
		RequestTimeout:     vp.GetDuration(keyRequestTimeout),
		RateLimitPerMinute: vp.GetInt(keyRateLimitMax),
		RateLimitBurst:     vp.GetInt(keyRateLimitBurst),
		ThreadCacheTTL:     vp.GetDuration(keyThreadCacheTTL),
		RankingCron:        vp.GetString(keyRankingCron),
	}

	if cfg.JWTSecret == "" {
		// 开发环境兜底，生产环境必须显式配置
		cfg.JWTSecret = cfg.SessionSecret
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.JWTExpiresIn <= 0 {
		cfg.JWTExpiresIn = 7 * 24 * time.Hour
	}
	return cfg
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
