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
	// Server
	Port string

	// Gemini API
	GeminiAPIKey      string
	GeminiBackend     string
	GoogleProject     string
	GoogleLocation    string
	GeminiTextModel   string
	GeminiPromptModel string
	GeminiImageModel  string
	GeminiVideoModel  string

	// Vertex AI 서비스 계정 (없으면 ADC)
	VertexCredentialsJSON string
	VertexCredentialsPath string

	// Generation
	VideoPollInterval time.Duration
	VideoMaxPolls     int
	GenerationTimeout time.Duration
	RetryMaxAttempts  int
	RetryBackoff      time.Duration
	ImageMaxParallel  int
	ImageOutputFormat string

	// Redis (선택)
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool
	SnapshotTTL   time.Duration

	// Supabase (선택)
	SupabaseURL         string
	SupabaseServiceKey  string
	WaitlistTable       string
	SupabaseVideoBucket string
}

const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"

	OutputFormatPNG  = "png"
	OutputFormatWebP = "webp"
)

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	cfg := FromEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Gemini: backend=%s text=%s image=%s video=%s", cfg.GeminiBackend, cfg.GeminiTextModel, cfg.GeminiImageModel, cfg.GeminiVideoModel)
	if !cfg.HasCredential() {
		log.Println("⚠️  No API credential configured - generation requests will be rejected")
	}
	if cfg.RedisEnabled() {
		log.Printf("   Redis: %s (TLS: %v)", cfg.GetRedisAddr(), cfg.RedisUseTLS)
	}
	if cfg.SupabaseEnabled() {
		log.Printf("   Supabase: %s", cfg.SupabaseURL)
	}

	return cfg, nil
}

// FromEnv - 현재 환경변수로 Config 구성 (검증 없음)
func FromEnv() *Config {
	apiKey := getEnv("GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("API_KEY", "")
	}

	return &Config{
		Port: getEnv("PORT", "8080"),

		GeminiAPIKey:      apiKey,
		GeminiBackend:     strings.ToLower(getEnv("GEMINI_BACKEND", BackendGemini)),
		GoogleProject:     getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleLocation:    getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		GeminiTextModel:   getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiPromptModel: getEnv("GEMINI_PROMPT_MODEL", "gemini-3-pro-preview"),
		GeminiImageModel:  getEnv("GEMINI_IMAGE_MODEL", "gemini-3-pro-image-preview"),
		GeminiVideoModel:  getEnv("GEMINI_VIDEO_MODEL", "veo-3.1-fast-generate-preview"),

		VertexCredentialsJSON: getEnv("VERTEXAI_CREDENTIALS_JSON", ""),
		VertexCredentialsPath: getEnv("VERTEXAI_CREDENTIALS_PATH", ""),

		VideoPollInterval: getEnvDuration("VIDEO_POLL_INTERVAL", 5*time.Second),
		VideoMaxPolls:     getEnvInt("VIDEO_MAX_POLLS", 120),
		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 15*time.Minute),
		RetryMaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBackoff:      getEnvDuration("RETRY_BACKOFF", 2*time.Second),
		ImageMaxParallel:  getEnvInt("IMAGE_MAX_PARALLEL", 4),
		ImageOutputFormat: strings.ToLower(getEnv("IMAGE_OUTPUT_FORMAT", OutputFormatPNG)),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getEnvBool("REDIS_USE_TLS", false),
		SnapshotTTL:   getEnvDuration("SNAPSHOT_TTL", 24*time.Hour),

		SupabaseURL:         getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:  getEnv("SUPABASE_SERVICE_KEY", ""),
		WaitlistTable:       getEnv("WAITLIST_TABLE", "waitlist"),
		SupabaseVideoBucket: getEnv("SUPABASE_VIDEO_BUCKET", ""),
	}
}

// validate - 설정 값 검증 (API 키는 요청 단위 precondition이라 여기서 요구하지 않음)
func (c *Config) validate() error {
	if c.GeminiBackend != BackendGemini && c.GeminiBackend != BackendVertex {
		return fmt.Errorf("GEMINI_BACKEND must be %q or %q, got %q", BackendGemini, BackendVertex, c.GeminiBackend)
	}
	if c.GeminiBackend == BackendVertex && c.GoogleProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the vertex backend")
	}
	if c.ImageOutputFormat != OutputFormatPNG && c.ImageOutputFormat != OutputFormatWebP {
		return fmt.Errorf("IMAGE_OUTPUT_FORMAT must be %q or %q", OutputFormatPNG, OutputFormatWebP)
	}
	if c.VideoPollInterval <= 0 {
		return fmt.Errorf("VIDEO_POLL_INTERVAL must be positive")
	}
	if c.VideoMaxPolls <= 0 {
		return fmt.Errorf("VIDEO_MAX_POLLS must be positive")
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive")
	}
	if c.ImageMaxParallel <= 0 {
		return fmt.Errorf("IMAGE_MAX_PARALLEL must be positive")
	}
	if c.SupabaseURL != "" && c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required when SUPABASE_URL is set")
	}
	return nil
}

// HasCredential - 원격 호출 가능한 자격 증명이 있는지 확인
func (c *Config) HasCredential() bool {
	if c == nil {
		return false
	}
	if c.GeminiBackend == BackendVertex {
		return c.GoogleProject != ""
	}
	return c.GeminiAPIKey != ""
}

// RedisEnabled - Redis 스냅샷 저장소 사용 여부
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// SupabaseEnabled - Supabase 사용 여부
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, value, defaultValue)
	}
	return defaultValue
}
