package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the environment-derived settings the core and its
// collaborators (HTTP layer, Provider Adapter, AI Adapter) need at
// startup. Values come from the environment; .env is loaded best-effort
// the way the teacher's config loader does.
type Config struct {
	Port string

	DatabaseDSN string
	CacheDSN    string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	EncryptionKey string // 32-byte hex

	AccessTokenSecret string
	AccessTokenAud    string
	AccessTokenIss    string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration

	AIProvider    string // "gemini" | "ollama" | "auto"
	GeminiAPIKey  string
	OllamaBaseURL string
	OllamaModel   string

	// Optional Chroma-backed ANN accelerator for the Search Service
	// (internal/vectorindex). Empty ChromaAPIKey disables it.
	ChromaAPIKey   string
	ChromaTenant   string
	ChromaDatabase string

	// Sync Engine tuning knobs (§4.1, §5)
	TokenNearExpiryBackground time.Duration
	TokenNearExpiryOnDemand   time.Duration
	SyncWatchdogThreshold     time.Duration
	FullSyncMaxMessages       int
	FullSyncPageSize          int
	IncrementalTickInterval   time.Duration
	TokenRefreshTickInterval  time.Duration
	RetryTickInterval         time.Duration

	SnoozeTickInterval     time.Duration
	EnrichmentTickInterval time.Duration
	EnrichmentBatchSize    int
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),
		CacheDSN:    getEnv("CACHE_DSN", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/v1/mailboxes/connect/callback"),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		AccessTokenSecret: getEnv("ACCESS_TOKEN_SECRET", ""),
		AccessTokenAud:    getEnv("ACCESS_TOKEN_AUDIENCE", ""),
		AccessTokenIss:    getEnv("ACCESS_TOKEN_ISSUER", ""),
		AccessTokenTTL:    getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:   getDuration("REFRESH_TOKEN_TTL", 168*time.Hour),

		AIProvider:    getEnv("AI_PROVIDER", "auto"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),

		ChromaAPIKey:   getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:   getEnv("CHROMA_TENANT", ""),
		ChromaDatabase: getEnv("CHROMA_DATABASE", ""),

		TokenNearExpiryBackground: getDuration("TOKEN_NEAR_EXPIRY_BACKGROUND", 10*time.Minute),
		TokenNearExpiryOnDemand:   getDuration("TOKEN_NEAR_EXPIRY_ON_DEMAND", 5*time.Minute),
		SyncWatchdogThreshold:     getDuration("SYNC_WATCHDOG_THRESHOLD", 5*time.Minute),
		FullSyncMaxMessages:       getInt("FULL_SYNC_MAX_MESSAGES", 200),
		FullSyncPageSize:          getInt("FULL_SYNC_PAGE_SIZE", 50),
		IncrementalTickInterval:   getDuration("INCREMENTAL_TICK_INTERVAL", 2*time.Minute),
		TokenRefreshTickInterval:  getDuration("TOKEN_REFRESH_TICK_INTERVAL", 1*time.Minute),
		RetryTickInterval:         getDuration("RETRY_TICK_INTERVAL", 30*time.Second),

		SnoozeTickInterval:     getDuration("SNOOZE_TICK_INTERVAL", 60*time.Second),
		EnrichmentTickInterval: getDuration("ENRICHMENT_TICK_INTERVAL", 10*time.Minute),
		EnrichmentBatchSize:    getInt("ENRICHMENT_BATCH_SIZE", 50),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		n := 0
		for _, c := range v {
			if c < '0' || c > '9' {
				return defaultValue
			}
			n = n*10 + int(c-'0')
		}
		return n
	}
	return defaultValue
}
