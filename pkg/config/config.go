// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable for the keeper process. All fields have working
// defaults except the provider API keys.
type Config struct {
	// Addr is the HTTP listen address for the serve command.
	Addr string `env:"KEEPER_ADDR" envDefault:":8080"`
	// DBPath is the SQLite database location.
	DBPath string `env:"KEEPER_DB_PATH" envDefault:"data/keeper.db"`
	// ModulePath points at the scenario module document, if any.
	ModulePath string `env:"KEEPER_MODULE_PATH"`
	// RulesPath optionally overrides the embedded degree-of-success table.
	RulesPath string `env:"KEEPER_RULES_PATH"`

	// Provider selects the model backend: "gemini" or "openai".
	Provider string `env:"KEEPER_PROVIDER" envDefault:"gemini"`
	// ModelID is the default model for new sessions.
	ModelID      string `env:"KEEPER_MODEL" envDefault:"gemini-2.0-flash"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	// OpenAIBaseURL allows pointing the OpenAI provider at a compatible
	// server (e.g. a local Ollama endpoint).
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	TavilyAPIKey  string `env:"TAVILY_API_KEY"`
	// ToolStyle selects how the model requests tools: "native" uses the
	// provider's function calling, "freetext" uses an ACTION line protocol
	// for models without it.
	ToolStyle string `env:"KEEPER_TOOL_STYLE" envDefault:"native"`
	// CharacterServiceURL is the character-generation service endpoint.
	CharacterServiceURL string `env:"KEEPER_CHARACTER_URL"`

	// MaxToolRounds caps gate/dispatch rounds within one player turn.
	MaxToolRounds int `env:"KEEPER_MAX_TOOL_ROUNDS" envDefault:"5"`
	// MaxRetries caps corrective-observation retries within one player turn.
	MaxRetries int `env:"KEEPER_MAX_RETRIES" envDefault:"3"`
	// ModelTimeout bounds a single gate consultation.
	ModelTimeout time.Duration `env:"KEEPER_MODEL_TIMEOUT" envDefault:"60s"`
	// ToolTimeout bounds a single external tool call.
	ToolTimeout time.Duration `env:"KEEPER_TOOL_TIMEOUT" envDefault:"15s"`
	// ToolAttempts is the maximum attempt count for transient tool failures.
	ToolAttempts int `env:"KEEPER_TOOL_ATTEMPTS" envDefault:"3"`
	// ToolBackoff is the initial backoff between tool retries; it doubles on
	// each attempt.
	ToolBackoff time.Duration `env:"KEEPER_TOOL_BACKOFF" envDefault:"500ms"`
	// SummarizeAfter is the transcript length at which the compaction hook
	// fires. Zero disables compaction.
	SummarizeAfter int `env:"KEEPER_SUMMARIZE_AFTER" envDefault:"0"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
