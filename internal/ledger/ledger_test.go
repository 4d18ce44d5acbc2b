package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/daylightd/internal/db"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestLedger_AppendAndQuery(t *testing.T) {
	l := openLedger(t)

	require.NoError(t, l.Append(EventActuationFailed, "3", map[string]any{"error": "bridge timeout"}))
	require.NoError(t, l.Append(EventRefreshFailed, "", nil))
	require.NoError(t, l.Append(EventActuationFailed, "1", map[string]any{"error": "unreachable"}))

	entries, err := l.GetByType(EventActuationFailed, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "1", entries[0].Device, "newest first")
	assert.Equal(t, "unreachable", entries[0].Payload["error"])
	assert.Equal(t, l.RunID(), entries[0].RunID)
	assert.Equal(t, "3", entries[1].Device)

	refresh, err := l.GetByType(EventRefreshFailed, 10)
	require.NoError(t, err)
	require.Len(t, refresh, 1)
	assert.Nil(t, refresh[0].Payload)
	assert.Empty(t, refresh[0].Device)
}

func TestLedger_DeleteOlderThan(t *testing.T) {
	l := openLedger(t)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base.Add(-48 * time.Hour) }
	require.NoError(t, l.Append(EventStateChanged, "", map[string]any{"to": "idle"}))

	l.now = func() time.Time { return base }
	require.NoError(t, l.Append(EventStateChanged, "", map[string]any{"to": "running"}))

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := l.GetByType(EventStateChanged, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "running", entries[0].Payload["to"])
}

func TestLedger_Recent(t *testing.T) {
	l := openLedger(t)

	require.NoError(t, l.Append(EventStateChanged, "", map[string]any{"to": "RUNNING"}))
	require.NoError(t, l.Append(EventActuationFailed, "2", nil))
	require.NoError(t, l.Append(EventRefreshFailed, "", nil))

	entries, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, EventRefreshFailed, entries[0].EventType)
	assert.Equal(t, EventActuationFailed, entries[1].EventType)
	assert.Equal(t, "2", entries[1].Device)
}
