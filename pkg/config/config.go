// Package config loads environment-driven runtime configuration the way
// the teacher's cmd/api/main.go does: godotenv.Load() followed by
// os.Getenv reads with hardcoded fallbacks, plus a small YAML file for
// per-agent model overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the env vars spec.md §6 names.
type Config struct {
	LLMHost       string
	LLMPort       string
	PrimaryModel  string
	RouterModel   string
	VisionModel   string
	VectorDir     string
	UploadsDir    string
	MaxFileSizeMB int
	CacheTTL      time.Duration

	DatabaseURL string
	RedisAddr   string

	AgentConcurrency int
}

// Load reads .env (if present) then environment variables, applying the
// teacher's "env with fallback" convention throughout.
func Load() *Config {
	// Best-effort: a missing .env file is not an error in local/dev runs.
	_ = godotenv.Load()

	return &Config{
		LLMHost:          getEnv("LLM_HOST", "127.0.0.1"),
		LLMPort:          getEnv("LLM_PORT", "11434"),
		PrimaryModel:     getEnv("PRIMARY_MODEL", "qwen2.5:14b"),
		RouterModel:      getEnv("ROUTER_MODEL", "qwen2.5:3b"),
		VisionModel:      getEnv("VISION_MODEL", "llama3.2-vision:11b"),
		VectorDir:        getEnv("VECTOR_PERSIST_DIR", ".cache/vectors"),
		UploadsDir:       getEnv("UPLOADS_DIR", ".cache/uploads"),
		MaxFileSizeMB:    getEnvInt("MAX_FILE_SIZE_MB", 50),
		CacheTTL:         time.Duration(getEnvInt("CACHE_TTL_HOURS", 24)) * time.Hour,
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		AgentConcurrency: getEnvInt("AGENT_CONCURRENCY", 2),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// BaseURL is the address of the local LLM runtime.
func (c *Config) BaseURL() string {
	return "http://" + c.LLMHost + ":" + c.LLMPort
}
