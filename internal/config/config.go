package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config centralizes runtime settings for the API and the research worker.
type Config struct {
	Port string

	AuthToken          string
	CORSAllowedOrigins []string

	DatabaseURL string

	ResearchAPIKey        string
	ResearchBaseURL       string
	ResearchTimeoutMS     int
	ResearchMaxRetries    int
	ResearchModelStandard string
	ResearchModelPremium  string
	ResearchConcurrency   int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	RateLimitRPS   float64
	RateLimitBurst int

	StaleJobWindowMinutes    int
	HeartbeatIntervalSeconds int
	ReaperIntervalMinutes    int

	WorkerEnabled bool
}

// LoadDotEnv loads .env-style files; existing process environment keeps
// precedence. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, err := os.Stat(trimmed); err != nil {
			continue
		}
		if err := godotenv.Load(trimmed); err != nil {
			return err
		}
	}
	return nil
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken:          getEnv("API_AUTH_TOKEN", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		ResearchAPIKey:        getEnv("RESEARCH_API_KEY", ""),
		ResearchBaseURL:       getEnv("RESEARCH_BASE_URL", "https://api.perplexity.ai"),
		ResearchTimeoutMS:     getEnvInt("RESEARCH_TIMEOUT_MS", 120000),
		ResearchMaxRetries:    getEnvInt("RESEARCH_MAX_RETRIES", 2),
		ResearchModelStandard: getEnv("RESEARCH_MODEL_STANDARD", "sonar-pro"),
		ResearchModelPremium:  getEnv("RESEARCH_MODEL_PREMIUM", "sonar-deep-research"),
		ResearchConcurrency:   getEnvInt("RESEARCH_CONCURRENCY", 2),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "research_jobs"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "research_jobs_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "research_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		StaleJobWindowMinutes:    getEnvInt("STALE_JOB_WINDOW_MINUTES", 10),
		HeartbeatIntervalSeconds: getEnvInt("HEARTBEAT_INTERVAL_SECONDS", 60),
		ReaperIntervalMinutes:    getEnvInt("REAPER_INTERVAL_MINUTES", 5),

		WorkerEnabled: getEnvBool("WORKER_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
