package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Redis (선택 - 설정 시 세션 이벤트를 인스턴스 간에 중계)
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase (선택 - 설정 시 결과 이미지 아카이브 활성화)
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	// Gemini API
	GeminiAPIKey string
	GeminiModel  string
	AspectRatio  string

	// Server
	Port           string
	AllowedOrigins []string

	// Session
	SessionIdleTimeout time.Duration
	SessionMaxAge      time.Duration
}

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	// 필수 환경변수 검증
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Gemini: %s (aspect-ratio: %s)", cfg.GeminiModel, cfg.AspectRatio)
	if cfg.RedisEnabled() {
		log.Printf("   Redis: %s (TLS: %v)", cfg.GetRedisAddr(), cfg.RedisUseTLS)
	} else {
		log.Printf("   Redis: disabled (events stay on this instance)")
	}
	if cfg.SupabaseEnabled() {
		log.Printf("   Supabase: %s (bucket: %s)", cfg.SupabaseURL, cfg.SupabaseBucket)
	} else {
		log.Printf("   Supabase: disabled (export archive off)")
	}
	log.Printf("   Session idle timeout: %v, max age: %v", cfg.SessionIdleTimeout, cfg.SessionMaxAge)

	return cfg, nil
}

// fromEnv - 환경변수에서 Config 구성 (검증 없음)
func fromEnv() (*Config, error) {
	useTLS := true // 기본값
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		parsed, err := strconv.ParseBool(tlsStr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_USE_TLS: %w", err)
		}
		useTLS = parsed
	}

	idle, err := getDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour)
	if err != nil {
		return nil, err
	}
	maxAge, err := getDuration("SESSION_MAX_AGE", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		// Redis
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		// Supabase
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "attachments"),

		// Gemini API
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		AspectRatio:  getEnv("GEMINI_ASPECT_RATIO", "3:4"),

		// Server
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		// Session
		SessionIdleTimeout: idle,
		SessionMaxAge:      maxAge,
	}, nil
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.SupabaseURL != "" && c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required when SUPABASE_URL is set")
	}
	if c.SessionIdleTimeout <= 0 || c.SessionMaxAge <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	return nil
}

// RedisEnabled - Redis 사용 여부
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// SupabaseEnabled - Supabase 아카이브 사용 여부
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration - "90s", "2h" 형식의 환경변수 파싱
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// splitList - 콤마 구분 목록 파싱
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
