package config

import (
	"os"
	"time"
	// zone database for the timezone validator and tools on hosts without one
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

type Config struct {
	Log       Log         `yaml:"log"`
	Server    Server      `yaml:"server"`
	Evolution Evolution   `yaml:"evolution"`
	OpenAI    ModelConfig `yaml:"openai"`
	Debounce  Debounce    `yaml:"debounce"`
	History   History     `yaml:"history"`
	Agent     Agent       `yaml:"agent"`
	Dispatch  Dispatch    `yaml:"dispatch"`
	Tools     Tools       `yaml:"tools"`
	SpeechKit SpeechKit   `yaml:"speech_kit"`
}

type ModelConfig struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://openrouter.ai/api/v1" validate:"required,url"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"openai/gpt-4o-mini" validate:"required"`
	// Sampling temperature
	Temperature float64 `yaml:"temperature" example:"0.4" validate:"gte=0,lte=2"`
	// Completion token limit per call
	MaxTokens int `yaml:"max_tokens" example:"1024" validate:"gte=0"`
}

type Server struct {
	// Listen address of the webhook server
	Listen string `yaml:"listen" example:":8080" validate:"required"`
	// Shared secret expected in X-Webhook-Token header or token query param, empty disables the check
	WebhookToken string `yaml:"webhook_token"`
	// How long a seen message id is remembered for duplicate suppression
	DedupeTTL time.Duration `yaml:"dedupe_ttl" example:"10m" validate:"gt=0"`
}

type Evolution struct {
	// Gateway base url
	BaseURL string `yaml:"base_url" example:"https://evolution.example.com" validate:"required,url"`
	// Global api key, used when a webhook event carries no instance key
	APIKey string `yaml:"api_key"`
	// HTTP timeout for gateway calls
	Timeout time.Duration `yaml:"timeout" example:"15s" validate:"gt=0"`
}

type Debounce struct {
	// Inactivity window after the last message before a conversation is processed
	Window time.Duration `yaml:"window" example:"8s" validate:"gt=0"`
	// How buffered messages are merged: replace keeps only the last one, concat joins them
	Mode string `yaml:"mode" example:"replace" validate:"oneof=replace concat"`
	// Buffers idle for longer than stale_factor * window are removed by the reaper
	StaleFactor float64 `yaml:"stale_factor" example:"2" validate:"gte=1"`
	// Reaper sweep interval
	ReapInterval time.Duration `yaml:"reap_interval" example:"30s" validate:"gt=0"`
	// Capacity of the flushed unit queue
	QueueSize int `yaml:"queue_size" example:"256" validate:"gt=0"`
	// Max number of conversations processed at the same time
	MaxConcurrent int `yaml:"max_concurrent" example:"16" validate:"gt=0"`
}

type History struct {
	// Raw records requested from the gateway
	FetchLimit int `yaml:"fetch_limit" example:"10" validate:"gt=0"`
	// Turns kept after filtering
	Keep int `yaml:"keep" example:"5" validate:"gt=0"`
}

type Agent struct {
	// System prompt, the embedded default is used when empty
	SystemPrompt string `yaml:"system_prompt"`
	// Max AI calls per processed conversation unit
	MaxRounds int `yaml:"max_rounds" example:"5" validate:"gt=0"`
	// Deadline for a whole tool-calling run
	RunTimeout time.Duration `yaml:"run_timeout" example:"2m" validate:"gt=0"`
	// Deadline for a single AI call
	LLMCallTimeout time.Duration `yaml:"llm_call_timeout" example:"60s" validate:"gt=0"`
	// Deadline for a single tool execution
	ToolTimeout time.Duration `yaml:"tool_timeout" example:"30s" validate:"gt=0"`
	// Sent when the round ceiling is hit
	FallbackMessage string `yaml:"fallback_message" validate:"required"`
	// Sent when processing fails
	ApologyMessage string `yaml:"apology_message" validate:"required"`
}

type Dispatch struct {
	// Log replies instead of sending them
	DryRun bool `yaml:"dry_run" example:"false"`
	// Longer replies are truncated
	MaxMessageLength int `yaml:"max_message_length" example:"4096" validate:"gt=0"`
}

type Tools struct {
	// Timezone used by the current_datetime tool
	Timezone string `yaml:"timezone" example:"America/Sao_Paulo" validate:"required,timezone"`
	// JSON lines file backing the customer notes tools
	NotesFile string `yaml:"notes_file" example:"data/notes.jsonl" validate:"required"`
	// MCP servers whose tools are exposed to the assistant
	MCP []MCPServer `yaml:"mcp" validate:"dive"`
}

type MCPServer struct {
	// Tool name prefix
	Name string `yaml:"name" example:"shop" validate:"required,alphanum"`
	// Command of a stdio server
	Command string `yaml:"command" example:"docker" validate:"required_without=URL"`
	// Arguments of a stdio server
	Args []string `yaml:"args"`
	// Extra environment of a stdio server, KEY=VALUE
	Env []string `yaml:"env"`
	// Url of a streamable HTTP server
	URL string `yaml:"url" example:"https://shop.example.com/mcp" validate:"omitempty,url"`
	// Headers sent to a streamable HTTP server
	Headers map[string]string `yaml:"headers"`
}

type SpeechKit struct {
	// Transcribe voice notes
	Enabled bool `yaml:"enabled" example:"false"`
	// Service account key file
	KeyFile string `yaml:"key_file" example:"service-account-key.json" validate:"required_if=Enabled true"`
	// Recognition language
	Language string `yaml:"language" example:"pt-BR"`
	// ffmpeg binary used to transcode non-opus audio
	FFmpegPath string `yaml:"ffmpeg_path" example:"ffmpeg"`
}

type Log struct {
	// slog level: debug, info, warn, error
	Level string `yaml:"level" example:"info" validate:"oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	var result Config

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	applyDefaults(&result)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

// loadEnvFiles does not overwrite variables already present in the environment.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.DedupeTTL == 0 {
		cfg.Server.DedupeTTL = 10 * time.Minute
	}

	if cfg.Evolution.Timeout == 0 {
		cfg.Evolution.Timeout = 15 * time.Second
	}

	if cfg.OpenAI.Temperature == 0 {
		cfg.OpenAI.Temperature = 0.4
	}
	if cfg.OpenAI.MaxTokens == 0 {
		cfg.OpenAI.MaxTokens = 1024
	}

	if cfg.Debounce.Window == 0 {
		cfg.Debounce.Window = 8 * time.Second
	}
	if cfg.Debounce.Mode == "" {
		cfg.Debounce.Mode = "replace"
	}
	if cfg.Debounce.StaleFactor == 0 {
		cfg.Debounce.StaleFactor = 2
	}
	if cfg.Debounce.ReapInterval == 0 {
		cfg.Debounce.ReapInterval = 30 * time.Second
	}
	if cfg.Debounce.QueueSize == 0 {
		cfg.Debounce.QueueSize = 256
	}
	if cfg.Debounce.MaxConcurrent == 0 {
		cfg.Debounce.MaxConcurrent = 16
	}

	if cfg.History.FetchLimit == 0 {
		cfg.History.FetchLimit = 10
	}
	if cfg.History.Keep == 0 {
		cfg.History.Keep = 5
	}

	if cfg.Agent.MaxRounds == 0 {
		cfg.Agent.MaxRounds = 5
	}
	if cfg.Agent.RunTimeout == 0 {
		cfg.Agent.RunTimeout = 2 * time.Minute
	}
	if cfg.Agent.LLMCallTimeout == 0 {
		cfg.Agent.LLMCallTimeout = time.Minute
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = 30 * time.Second
	}
	if cfg.Agent.FallbackMessage == "" {
		cfg.Agent.FallbackMessage = "Desculpe, não consegui concluir seu pedido agora. Pode tentar de novo em instantes?"
	}
	if cfg.Agent.ApologyMessage == "" {
		cfg.Agent.ApologyMessage = "Desculpe, tivemos um problema ao processar sua mensagem. Tente novamente mais tarde."
	}

	if cfg.Dispatch.MaxMessageLength == 0 {
		cfg.Dispatch.MaxMessageLength = 4096
	}

	if cfg.Tools.Timezone == "" {
		cfg.Tools.Timezone = "America/Sao_Paulo"
	}
	if cfg.Tools.NotesFile == "" {
		cfg.Tools.NotesFile = "data/notes.jsonl"
	}

	if cfg.SpeechKit.Language == "" {
		cfg.SpeechKit.Language = "pt-BR"
	}
	if cfg.SpeechKit.FFmpegPath == "" {
		cfg.SpeechKit.FFmpegPath = "ffmpeg"
	}
}
