// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, persistence, rate limiting, observability, and the settings of the
// external collaborators (completion API, container runtime, IPFS, Soroban).
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "stelgent-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// OpenAIConfig holds the chat-completion client settings.
type OpenAIConfig struct {
	APIKey            string  // OPENAI_API_KEY
	BaseURL           string  // OPENAI_BASE_URL (empty = api.openai.com)
	Model             string  // OPENAI_MODEL
	MaxTokens         int     // OPENAI_MAX_TOKENS
	Temperature       float32 // OPENAI_TEMPERATURE
	MaxRetries        int     // OPENAI_MAX_RETRIES
	ClassifierRetries int     // CLASSIFIER_MAX_RETRIES
	ClassifierEnabled bool    // CLASSIFIER_ENABLED
}

// ChatConfig bounds the prompt context assembled for each turn.
type ChatConfig struct {
	HistoryLimit    int // CHAT_HISTORY_LIMIT
	SnippetRunes    int // CHAT_FILE_SNIPPET_RUNES
	MaxMessageRunes int // CHAT_MAX_MESSAGE_RUNES
}

// CacheConfig sizes the response cache.
type CacheConfig struct {
	LRUSize int           // CACHE_LRU_SIZE
	MaxAge  time.Duration // CACHE_MAX_AGE (0 = entries never go stale)
}

// DockerConfig holds container runtime settings.
type DockerConfig struct {
	Enabled    bool   // DOCKER_ENABLED
	PortMin    int    // DOCKER_PORT_MIN
	PortMax    int    // DOCKER_PORT_MAX
	PublicHost string // DOCKER_PUBLIC_HOST
}

// IPFSConfig holds the content-addressed storage endpoints.
type IPFSConfig struct {
	APIURL     string // IPFS_API_URL
	GatewayURL string // IPFS_GATEWAY_URL
}

// SorobanConfig holds the mint invocation settings.
type SorobanConfig struct {
	CLIPath        string        // SOROBAN_CLI
	ContractID     string        // SOROBAN_CONTRACT_ID
	Network        string        // SOROBAN_NETWORK
	SourceIdentity string        // SOROBAN_SOURCE_IDENTITY
	Timeout        time.Duration // SOROBAN_TIMEOUT
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // generation turns can block on retries
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Persistence
	DBPath string // SQLite path

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Collaborators
	OpenAI  OpenAIConfig
	Chat    ChatConfig
	Cache   CacheConfig
	Docker  DockerConfig
	IPFS    IPFSConfig
	Soroban SorobanConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8005"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 5*time.Minute),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		DBPath: getenv("DB_PATH", "stelgent.db"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OpenAI: OpenAIConfig{
			APIKey:            getenv("OPENAI_API_KEY", ""),
			BaseURL:           getenv("OPENAI_BASE_URL", ""),
			Model:             getenv("OPENAI_MODEL", "gpt-4o"),
			MaxTokens:         getint("OPENAI_MAX_TOKENS", 2000),
			Temperature:       float32(getfloat("OPENAI_TEMPERATURE", 0.3)),
			MaxRetries:        getint("OPENAI_MAX_RETRIES", 6),
			ClassifierRetries: getint("CLASSIFIER_MAX_RETRIES", 3),
			ClassifierEnabled: getbool("CLASSIFIER_ENABLED", true),
		},
		Chat: ChatConfig{
			HistoryLimit:    getint("CHAT_HISTORY_LIMIT", 12),
			SnippetRunes:    getint("CHAT_FILE_SNIPPET_RUNES", 800),
			MaxMessageRunes: getint("CHAT_MAX_MESSAGE_RUNES", 8000),
		},
		Cache: CacheConfig{
			LRUSize: getint("CACHE_LRU_SIZE", 256),
			MaxAge:  getdur("CACHE_MAX_AGE", 0),
		},
		Docker: DockerConfig{
			Enabled:    getbool("DOCKER_ENABLED", true),
			PortMin:    getint("DOCKER_PORT_MIN", 3001),
			PortMax:    getint("DOCKER_PORT_MAX", 3100),
			PublicHost: getenv("DOCKER_PUBLIC_HOST", "localhost"),
		},
		IPFS: IPFSConfig{
			APIURL:     getenv("IPFS_API_URL", "localhost:5001"),
			GatewayURL: strings.TrimRight(getenv("IPFS_GATEWAY_URL", "https://ipfs.io/ipfs"), "/"),
		},
		Soroban: SorobanConfig{
			CLIPath:        getenv("SOROBAN_CLI", "soroban"),
			ContractID:     getenv("SOROBAN_CONTRACT_ID", ""),
			Network:        getenv("SOROBAN_NETWORK", "testnet"),
			SourceIdentity: getenv("SOROBAN_SOURCE_IDENTITY", "deployer"),
			Timeout:        getdur("SOROBAN_TIMEOUT", 60*time.Second),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "stelgent-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OpenAI.MaxTokens <= 0 {
		return cfg, errors.New("OPENAI_MAX_TOKENS must be > 0")
	}
	if cfg.OpenAI.Temperature < 0 || cfg.OpenAI.Temperature > 2 {
		return cfg, errors.New("OPENAI_TEMPERATURE must be in [0,2]")
	}
	if cfg.OpenAI.MaxRetries < 1 || cfg.OpenAI.ClassifierRetries < 1 {
		return cfg, errors.New("OPENAI_MAX_RETRIES and CLASSIFIER_MAX_RETRIES must be >= 1")
	}
	if cfg.Chat.HistoryLimit < 0 {
		return cfg, errors.New("CHAT_HISTORY_LIMIT must be >= 0")
	}
	if cfg.Chat.SnippetRunes < 1 {
		return cfg, errors.New("CHAT_FILE_SNIPPET_RUNES must be >= 1")
	}
	if cfg.Chat.MaxMessageRunes < 1 {
		return cfg, errors.New("CHAT_MAX_MESSAGE_RUNES must be >= 1")
	}
	if cfg.Cache.LRUSize < 1 {
		return cfg, errors.New("CACHE_LRU_SIZE must be >= 1")
	}
	if cfg.Cache.MaxAge < 0 {
		return cfg, errors.New("CACHE_MAX_AGE must be >= 0")
	}
	if cfg.Docker.PortMin < 1 || cfg.Docker.PortMax > 65535 || cfg.Docker.PortMin > cfg.Docker.PortMax {
		return cfg, errors.New("DOCKER_PORT_MIN/DOCKER_PORT_MAX must form a valid port range")
	}
	if cfg.Soroban.Timeout <= 0 {
		return cfg, errors.New("SOROBAN_TIMEOUT must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
