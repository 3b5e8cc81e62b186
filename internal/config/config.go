package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port           string
	DatabaseDSN    string
	JWTSecret      string
	Env            string
	TokenTTLHours  int
	FrontendURL    string
	LogFile        string
	RateLimitRPS   int
	RateLimitBurst int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getenvInt 读取正整数环境变量，缺失或非法时回退默认值。
func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 从环境变量读取配置；若工作目录存在 .env 文件则先加载它，已有环境变量优先。
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:           getenv("APP_PORT", "8080"),
		DatabaseDSN:    getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=chatapp port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:      getenv("JWT_SECRET", defaultJWTSecret),
		Env:            getenv("APP_ENV", "dev"),
		TokenTTLHours:  getenvInt("TOKEN_TTL_HOURS", 24),
		FrontendURL:    getenv("FRONTEND_URL", "http://localhost:5173"),
		LogFile:        os.Getenv("LOG_FILE"),
		RateLimitRPS:   getenvInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getenvInt("RATE_LIMIT_BURST", 40),
	}
}

// Validate 在启动前检查关键配置，非 dev 环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: APP_PORT is empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: DATABASE_DSN is empty")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is empty")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return errors.New("config: JWT_SECRET must be changed outside dev")
	}
	return nil
}

// SecureCookies 表示认证 cookie 是否需要 Secure + SameSite=None。
func (c Config) SecureCookies() bool { return c.Env == "prod" }
