package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var (
	validBinds        = []string{"loopback", "lan", "custom"}
	validProviders    = []string{"openai", "claude", "gemini", "ollama", "mock"}
	validDifficulties = []string{"easy", "medium", "hard"}
	validDrivers      = []string{"sqlite", "memory", "postgres"}
	validLogLevels    = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
)

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Server validation
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		add("server.port", "port must be 0-65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		add("server.bind", "must be one of %v, got %q", validBinds, cfg.Server.Bind)
	}
	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		add("server.customBindHost", "required when bind: custom")
	}

	// LLM validation
	validateProvider(&issues, "llm", cfg.LLM.Provider, cfg.LLM.APIKey)
	for i, fb := range cfg.LLM.Fallbacks {
		validateProvider(&issues, fmt.Sprintf("llm.fallbacks[%d]", i), fb.Provider, fb.APIKey)
	}

	// Practice validation
	if d := strings.ToLower(cfg.Practice.DefaultDifficulty); d != "" && !slices.Contains(validDifficulties, d) {
		add("practice.defaultDifficulty", "must be one of %v, got %q", validDifficulties, cfg.Practice.DefaultDifficulty)
	}
	if cfg.Practice.DefaultDurationSeconds < 0 {
		add("practice.defaultDurationSeconds", "must be positive, got %d", cfg.Practice.DefaultDurationSeconds)
	}
	if cfg.Practice.GenerationTimeoutSeconds < 0 {
		add("practice.generationTimeoutSeconds", "must be positive, got %d", cfg.Practice.GenerationTimeoutSeconds)
	}
	if cfg.Practice.SuggestionTimeoutSeconds < 0 {
		add("practice.suggestionTimeoutSeconds", "must be positive, got %d", cfg.Practice.SuggestionTimeoutSeconds)
	}

	// Store validation
	if cfg.Store.Driver != "" && !slices.Contains(validDrivers, cfg.Store.Driver) {
		add("store.driver", "must be one of %v, got %q", validDrivers, cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		add("store.dsn", "required when driver: postgres")
	}

	// Logging validation
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	if cfg.Logging.MaxSizeMB < 0 {
		add("logging.maxSizeMB", "must be positive, got %d", cfg.Logging.MaxSizeMB)
	}

	// Hooks validation
	hookSets := map[string][]HookEntry{
		"hooks.sessionStart":   cfg.Hooks.SessionStart,
		"hooks.turnRecorded":   cfg.Hooks.TurnRecorded,
		"hooks.sessionExpired": cfg.Hooks.SessionExpired,
		"hooks.sessionEnd":     cfg.Hooks.SessionEnd,
		"hooks.serverStart":    cfg.Hooks.ServerStart,
		"hooks.serverStop":     cfg.Hooks.ServerStop,
	}
	paths := make([]string, 0, len(hookSets))
	for p := range hookSets {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		for i, h := range hookSets[p] {
			if strings.TrimSpace(h.Command) == "" {
				add(fmt.Sprintf("%s[%d].command", p, i), "command is required")
			}
			if h.Timeout < 0 {
				add(fmt.Sprintf("%s[%d].timeout", p, i), "must be positive, got %d", h.Timeout)
			}
		}
	}

	return issues
}

func validateProvider(issues *[]ValidationIssue, path, provider, apiKey string) {
	if !slices.Contains(validProviders, provider) {
		*issues = append(*issues, ValidationIssue{
			Path:    path + ".provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validProviders, provider),
		})
		return
	}
	if provider != "ollama" && provider != "mock" && apiKey == "" {
		*issues = append(*issues, ValidationIssue{
			Path:    path + ".apiKey",
			Message: "required for " + provider,
		})
	}
}
