package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every runtime setting of the service.
type Config struct {
	Server ServerConfig
	AI     AIConfig
	STT    STTConfig
	Quota  QuotaConfig
	Script ScriptConfig
}

// Load reads the full configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	stt, err := loadSTTConfig()
	if err != nil {
		return nil, err
	}

	quota, err := loadQuotaConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		STT:    stt,
		Quota:  quota,
		Script: loadScriptConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
	Env  string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	env := getEnvOrDefault("APP_ENV", "development")

	if strings.Contains(port, ":") {
		// Accept ":3000" or "127.0.0.1:3000" as-is.
		return ServerConfig{Addr: port, Env: env}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, Env: env}, nil
}

// AIConfig holds the chat-model collaborator settings.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether the required model credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel instantiates the configured chat model.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		// Tutor replies are intentionally short: one correction plus one
		// conversational move.
		defaultTokens := 120
		maxTokens = &defaultTokens
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// STTConfig holds the transcription collaborator settings.
type STTConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Language       string
	TimeoutSeconds int
	Enabled        bool
}

func loadSTTConfig() (STTConfig, error) {
	timeout, err := parseOptionalIntEnv("STT_TIMEOUT")
	if err != nil {
		return STTConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	apiKey := strings.TrimSpace(os.Getenv("STT_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	return STTConfig{
		BaseURL:        getEnvOrDefault("STT_BASE_URL", "https://api.openai.com/v1"),
		APIKey:         apiKey,
		Model:          getEnvOrDefault("STT_MODEL", "whisper-1"),
		Language:       getEnvOrDefault("STT_LANGUAGE", "en"),
		TimeoutSeconds: timeoutSeconds,
		Enabled:        apiKey != "",
	}, nil
}

// QuotaConfig holds the daily practice allowance and the ledger backend
// selection.
type QuotaConfig struct {
	LimitSeconds float64
	Backend      string
	SQLitePath   string
	RedisAddr    string
}

func loadQuotaConfig() (QuotaConfig, error) {
	limit, err := parseOptionalFloatEnv("QUOTA_LIMIT_SECONDS")
	if err != nil {
		return QuotaConfig{}, err
	}
	limitSeconds := 300.0 // five minutes of practice per identity per day
	if limit != nil {
		if *limit <= 0 {
			return QuotaConfig{}, fmt.Errorf("QUOTA_LIMIT_SECONDS must be positive, got %v", *limit)
		}
		limitSeconds = *limit
	}

	backend := strings.ToLower(getEnvOrDefault("QUOTA_BACKEND", "memory"))
	switch backend {
	case "memory", "sqlite", "redis":
	default:
		return QuotaConfig{}, fmt.Errorf("unknown QUOTA_BACKEND %q (expected memory, sqlite or redis)", backend)
	}

	return QuotaConfig{
		LimitSeconds: limitSeconds,
		Backend:      backend,
		SQLitePath:   getEnvOrDefault("QUOTA_SQLITE_PATH", "usage.db"),
		RedisAddr:    strings.TrimSpace(os.Getenv("REDIS_ADDR")),
	}, nil
}

// ScriptConfig points at the lesson script document.
type ScriptConfig struct {
	Path string
}

func loadScriptConfig() ScriptConfig {
	return ScriptConfig{Path: getEnvOrDefault("SCRIPT_PATH", "script_b1_b2.json")}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
