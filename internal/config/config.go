package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting of the service.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Providers ProvidersConfig
	Gateway   GatewayConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	providers, err := loadProvidersConfig()
	if err != nil {
		return nil, err
	}

	gateway, err := loadGatewayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Auth:      AuthConfig{Secret: strings.TrimSpace(os.Getenv("AUTH_SECRET"))},
		Providers: providers,
		Gateway:   gateway,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AuthConfig holds the connect-time credential secret. An empty secret
// switches the gateway into insecure development auth.
type AuthConfig struct {
	Secret string
}

// Enabled reports whether signed-token auth is configured.
func (c AuthConfig) Enabled() bool {
	return c.Secret != ""
}

// ProvidersConfig describes all completion backends.
type ProvidersConfig struct {
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Ark       ArkConfig
}

// OpenAIConfig describes the OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicConfig describes the Anthropic backend.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Version      string
}

// ArkConfig describes the Volcengine Ark backend, consumed through eino.
type ArkConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
}

// Enabled reports whether the required Ark credentials were provided.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds the eino chat model from this configuration.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or AK/SK pair")
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

func loadProvidersConfig() (ProvidersConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return ProvidersConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return ProvidersConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return ProvidersConfig{}, err
	}

	return ProvidersConfig{
		OpenAI: OpenAIConfig{
			APIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			BaseURL:      getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com"),
			DefaultModel: getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Anthropic: AnthropicConfig{
			APIKey:       strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
			BaseURL:      getEnvOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			DefaultModel: getEnvOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			Version:      getEnvOrDefault("ANTHROPIC_VERSION", "2023-06-01"),
		},
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		},
	}, nil
}

// GatewayConfig carries the relay orchestrator tunables.
type GatewayConfig struct {
	TypingTTL             time.Duration
	TypingSweepInterval   time.Duration
	InactivityThreshold   time.Duration
	LivenessSweepInterval time.Duration
	CompletionTimeout     time.Duration
	HistoryLimit          int
	Model                 string
	Temperature           *float64
	MaxTokens             *int
	EnableFailover        bool
}

func loadGatewayConfig() (GatewayConfig, error) {
	typingTTL, err := parseDurationSecondsEnv("TYPING_TTL_SECONDS", 10)
	if err != nil {
		return GatewayConfig{}, err
	}

	typingSweep, err := parseDurationSecondsEnv("TYPING_SWEEP_SECONDS", 10)
	if err != nil {
		return GatewayConfig{}, err
	}

	inactivity, err := parseDurationSecondsEnv("INACTIVITY_THRESHOLD_SECONDS", 300)
	if err != nil {
		return GatewayConfig{}, err
	}

	livenessSweep, err := parseDurationSecondsEnv("LIVENESS_SWEEP_SECONDS", 30)
	if err != nil {
		return GatewayConfig{}, err
	}

	completionTimeout, err := parseDurationSecondsEnv("COMPLETION_TIMEOUT_SECONDS", 30)
	if err != nil {
		return GatewayConfig{}, err
	}

	historyLimit := 20
	if override, err := parseOptionalIntEnv("HISTORY_LIMIT"); err != nil {
		return GatewayConfig{}, err
	} else if override != nil && *override > 0 {
		historyLimit = *override
	}

	temperature, err := parseOptionalFloatEnv("CHAT_TEMPERATURE")
	if err != nil {
		return GatewayConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("CHAT_MAX_TOKENS")
	if err != nil {
		return GatewayConfig{}, err
	}

	enableFailover, err := parseBoolEnv("ENABLE_FAILOVER", true)
	if err != nil {
		return GatewayConfig{}, err
	}

	return GatewayConfig{
		TypingTTL:             typingTTL,
		TypingSweepInterval:   typingSweep,
		InactivityThreshold:   inactivity,
		LivenessSweepInterval: livenessSweep,
		CompletionTimeout:     completionTimeout,
		HistoryLimit:          historyLimit,
		Model:                 getEnvOrDefault("CHAT_MODEL", "gpt-4o-mini"),
		Temperature:           temperature,
		MaxTokens:             maxTokens,
		EnableFailover:        enableFailover,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationSecondsEnv(key string, defaultSeconds int) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return time.Duration(defaultSeconds) * time.Second, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: expected positive seconds", key, raw)
	}
	return time.Duration(val) * time.Second, nil
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
