package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/parley/internal/config"
)

// DefaultCommandTimeout bounds a command hook that sets no timeout.
const DefaultCommandTimeout = 10 * time.Second

// CommandHandler returns a Handler that runs entry.Command through sh -c with
// the JSON-encoded payload on stdin.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := DefaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(body)
		cmd.WaitDelay = time.Second
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("hook %q timed out after %s", entry.Command, timeout)
			}
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook %q: %w: %s", entry.Command, err, msg)
			}
			return fmt.Errorf("hook %q: %w", entry.Command, err)
		}
		return nil
	}
}

// RegisterConfig registers a command handler for every configured hook.
// It returns the number of handlers registered.
func (m *Manager) RegisterConfig(cfg config.HooksConfig) int {
	sets := []struct {
		event   string
		entries []config.HookEntry
	}{
		{EventSessionStart, cfg.SessionStart},
		{EventTurnRecorded, cfg.TurnRecorded},
		{EventSessionExpired, cfg.SessionExpired},
		{EventSessionEnd, cfg.SessionEnd},
		{EventServerStart, cfg.ServerStart},
		{EventServerStop, cfg.ServerStop},
	}

	n := 0
	for _, set := range sets {
		for i, entry := range set.entries {
			m.On(set.event, fmt.Sprintf("config:%s[%d]", set.event, i), CommandHandler(entry))
			n++
		}
	}
	return n
}
