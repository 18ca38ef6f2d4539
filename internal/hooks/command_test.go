package hooks

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/soyeahso/parley/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandHandler_ReceivesPayload(t *testing.T) {
	out := filepath.Join(t.TempDir(), "payload.json")
	h := CommandHandler(config.HookEntry{Command: "cat > " + out})

	err := h(context.Background(), Payload{
		Event: EventSessionEnd,
		Data:  map[string]any{"sessionId": "abc"},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)

	var got Payload
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, EventSessionEnd, got.Event)
	assert.Equal(t, "abc", got.Data["sessionId"])
}

func TestCommandHandler_Failure(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "echo nope >&2; exit 3"})

	err := h(context.Background(), Payload{Event: EventServerStart})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestCommandHandler_Timeout(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "sleep 5", Timeout: 50})

	err := h(context.Background(), Payload{Event: EventServerStart})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestManager_RegisterConfig(t *testing.T) {
	m := testManager()
	out := filepath.Join(t.TempDir(), "turns.log")

	n := m.RegisterConfig(config.HooksConfig{
		TurnRecorded: []config.HookEntry{{Command: "cat >> " + out}},
		SessionEnd:   []config.HookEntry{{Command: "true"}, {Command: "true"}},
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, m.Count(EventTurnRecorded))
	assert.Equal(t, 2, m.Count(EventSessionEnd))
	assert.Equal(t, 0, m.Count(EventServerStart))

	m.Emit(context.Background(), EventTurnRecorded, map[string]any{"turn": 1})
	m.Emit(context.Background(), EventTurnRecorded, map[string]any{"turn": 2})

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"turn":1`)
	assert.Contains(t, string(raw), `"turn":2`)
}
