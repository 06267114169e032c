package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	GeminiModel  string

	SearchBaseURL string
	SearchAPIKey  string

	AgentRatePerMinute int

	BaseURL string
	Port    string
	DataDir string
	LogFile string
	Env     string
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

func Load() (*Config, error) {
	// .env is optional; production sets real env vars
	_ = godotenv.Load()

	cfg := &Config{
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        os.Getenv("GEMINI_MODEL"),
		SearchBaseURL:      os.Getenv("SEARCH_BASE_URL"),
		SearchAPIKey:       os.Getenv("SEARCH_API_KEY"),
		AgentRatePerMinute: parseIntEnv("AGENT_RATE_PER_MINUTE"),
		BaseURL:            os.Getenv("BASE_URL"),
		Port:               os.Getenv("PORT"),
		DataDir:            os.Getenv("DATA_DIR"),
		LogFile:            os.Getenv("LOG_FILE"),
		Env:                os.Getenv("APP_ENV"),
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}

	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-2.0-flash"
	}

	if cfg.AgentRatePerMinute <= 0 {
		cfg.AgentRatePerMinute = 10
	}

	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "najir.log")
	}

	if cfg.Env == "" {
		cfg.Env = "development"
	}

	for _, req := range []struct {
		name, val string
	}{
		{"GEMINI_API_KEY", cfg.GeminiAPIKey},
		{"SEARCH_BASE_URL", cfg.SearchBaseURL},
	} {
		if req.val == "" {
			return nil, fmt.Errorf("required env var %s is not set", req.name)
		}
	}

	return cfg, nil
}

func parseIntEnv(key string) int {
	v, _ := strconv.Atoi(os.Getenv(key))
	return v
}
