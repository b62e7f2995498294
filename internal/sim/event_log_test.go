package sim

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	el := NewEventLog()
	require.NoError(t, el.Start(path))

	assert.True(t, el.Emit(NewEvent(EventTypeReset, "gen-1", ResetPayload{Seed: 9, Count: 3, Rows: 2, Columns: 4})))
	assert.True(t, el.Emit(NewEvent(EventTypeBatch, "gen-1", BatchPayload{Pairs: 3, Found: 3})))
	assert.True(t, el.Emit(NewEvent(EventTypeClear, "gen-1", nil)))
	el.Stop()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	type line struct {
		Type       string          `json:"type"`
		Sequence   uint64          `json:"sequence"`
		Generation string          `json:"generation"`
		Payload    json.RawMessage `json:"payload"`
	}
	var lines []line
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l line
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 3)

	assert.Equal(t, []string{"reset", "batch", "clear"}, []string{lines[0].Type, lines[1].Type, lines[2].Type})
	for i, l := range lines {
		assert.Equal(t, uint64(i+1), l.Sequence)
		assert.Equal(t, "gen-1", l.Generation)
	}

	var reset ResetPayload
	require.NoError(t, json.Unmarshal(lines[0].Payload, &reset))
	assert.Equal(t, int64(9), reset.Seed)
	assert.Equal(t, 4, reset.Columns)
	assert.Empty(t, lines[2].Payload)
}

func TestEventLogEmitBeforeStart(t *testing.T) {
	el := NewEventLog()
	assert.False(t, el.Emit(NewEvent(EventTypeBatch, "", nil)))

	stats := el.GetStats()
	assert.Equal(t, uint64(0), stats["total"])
	assert.Equal(t, false, stats["running"])
}

func TestEventLogMemoryOnly(t *testing.T) {
	el := NewEventLog()
	require.NoError(t, el.Start(""))
	defer el.Stop()

	assert.True(t, el.Emit(NewEvent(EventTypeBatch, "g", nil)))
	assert.Equal(t, uint64(1), el.GetStats()["total"])
}

func TestEventLogStopIdempotent(t *testing.T) {
	el := NewEventLog()
	require.NoError(t, el.Start(""))
	el.Stop()
	el.Stop()
	assert.False(t, el.Emit(NewEvent(EventTypeBatch, "g", nil)))
}

func TestEventLogRateLimited(t *testing.T) {
	el := NewEventLog()
	require.NoError(t, el.Start(""))
	defer el.Stop()

	accepted := 0
	for i := 0; i < 2*MaxEventsPerSec; i++ {
		if el.Emit(NewEvent(EventTypeBatch, "g", nil)) {
			accepted++
		}
	}
	// The burst is a tenth of the per-second rate; a tight loop cannot
	// earn back more than a fraction of that.
	assert.Less(t, accepted, MaxEventsPerSec)
	assert.Positive(t, el.GetStats()["dropped"].(uint64))
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		typ  EventType
		want string
	}{
		{EventTypeReset, "reset"},
		{EventTypeBatch, "batch"},
		{EventTypeClear, "clear"},
		{EventTypeUnknown, "unknown"},
		{EventType(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.typ.String())
	}
}
