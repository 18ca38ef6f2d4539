package config

import "time"

// Config is the root configuration for Parley.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	LLM       LLMConfig       `yaml:"llm,omitempty"`
	Practice  PracticeConfig  `yaml:"practice,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
	Hooks     HooksConfig     `yaml:"hooks,omitempty"`
}

// ServerConfig controls the HTTP/WebSocket server.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// LLMConfig selects the language model provider used for replies and
// suggestions.
type LLMConfig struct {
	Provider  string           `yaml:"provider,omitempty"` // "openai" | "claude" | "gemini" | "ollama" | "mock"
	APIKey    string           `yaml:"apiKey,omitempty"`
	Model     string           `yaml:"model,omitempty"`
	Endpoint  string           `yaml:"endpoint,omitempty"`
	Fallbacks []ProviderConfig `yaml:"fallbacks,omitempty"`
}

// ProviderConfig configures a fallback provider.
type ProviderConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"apiKey,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// PracticeConfig holds defaults for new sessions and generation limits.
type PracticeConfig struct {
	DefaultUserName          string `yaml:"defaultUserName,omitempty"`
	DefaultDifficulty        string `yaml:"defaultDifficulty,omitempty"` // "easy" | "medium" | "hard"
	DefaultDurationSeconds   int    `yaml:"defaultDurationSeconds,omitempty"`
	GenerationTimeoutSeconds int    `yaml:"generationTimeoutSeconds,omitempty"`
	SuggestionTimeoutSeconds int    `yaml:"suggestionTimeoutSeconds,omitempty"`
}

// GenerationTimeout returns the reply generation deadline.
func (p PracticeConfig) GenerationTimeout() time.Duration {
	return time.Duration(p.GenerationTimeoutSeconds) * time.Second
}

// SuggestionTimeout returns the suggestion generation deadline.
func (p PracticeConfig) SuggestionTimeout() time.Duration {
	return time.Duration(p.SuggestionTimeoutSeconds) * time.Second
}

// SessionConfig defines session retention behavior.
type SessionConfig struct {
	// RetainEnded keeps ended sessions (and their feedback) in the store.
	// When false, ending a session deletes its record.
	RetainEnded *bool `yaml:"retainEnded,omitempty"`
}

// ShouldRetainEnded reports whether ended sessions are kept; defaults to true.
func (s SessionConfig) ShouldRetainEnded() bool {
	return s.RetainEnded == nil || *s.RetainEnded
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory" | "postgres"
	Path   string `yaml:"path,omitempty"`   // sqlite file; defaults to <base>/data/parley.db
	DSN    string `yaml:"dsn,omitempty"`    // postgres connection string
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"maxSizeMB,omitempty"`
	MaxBackups int    `yaml:"maxBackups,omitempty"`
	MaxAgeDays int    `yaml:"maxAgeDays,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"` // defaults to <base>/logs
}

// HooksConfig defines commands run on lifecycle events.
type HooksConfig struct {
	SessionStart   []HookEntry `yaml:"sessionStart,omitempty"`
	TurnRecorded   []HookEntry `yaml:"turnRecorded,omitempty"`
	SessionExpired []HookEntry `yaml:"sessionExpired,omitempty"`
	SessionEnd     []HookEntry `yaml:"sessionEnd,omitempty"`
	ServerStart    []HookEntry `yaml:"serverStart,omitempty"`
	ServerStop     []HookEntry `yaml:"serverStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
