package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissingAPIKey is returned by Load when no Gemini credential is present.
var ErrMissingAPIKey = errors.New("missing GEMINI_API_KEY or GOOGLE_API_KEY")

type Config struct {
	GeminiAPIKey   string
	Port           string
	WorkingDir     string
	DatabaseURL    string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDim   int
	AllowedOrigins []string
	ChunkSize      int
	TopK           int
}

// Load reads .env (if any) and the process environment. It fails when the
// provider credential is absent so the server never starts half-configured.
func Load() (*Config, error) {
	_ = godotenv.Load()

	apiKey := getEnv("GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("GOOGLE_API_KEY", "")
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := &Config{
		GeminiAPIKey:   apiKey,
		Port:           getEnv("PORT", "8080"),
		WorkingDir:     getEnv("WORKING_DIR", "/app/data"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		ChatModel:      getEnv("GEMINI_CHAT_MODEL", "gemini-2.5-flash"),
		EmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),
	}

	var err error
	if cfg.EmbeddingDim, err = getEnvInt("EMBEDDING_DIM", 768); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = getEnvInt("CHUNK_SIZE", 2000); err != nil {
		return nil, err
	}
	if cfg.TopK, err = getEnvInt("QUERY_TOP_K", 40); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
