package db

import (
	"path/filepath"
	"testing"
	"time"

	"netcraft/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCraftAuditRoundTrip(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "audit", "netcraft.db"))
	require.NoError(t, err)
	defer conn.Close()

	ts := time.Unix(1_700_000_000, 0)
	execs := []tools.Execution{
		{ID: "01A", Timestamp: ts, Tool: "quick_port_scan", Params: tools.Params{"target": "10.0.0.5", "ports": "22,80"}, Outcome: tools.Succeeded(map[string]int{"open": 1}), Duration: 1500 * time.Millisecond, Source: tools.SourceAgent},
		{ID: "01B", Timestamp: ts.Add(time.Second), Tool: "ping_host", Params: tools.Params{"target": "10.0.0.5"}, Outcome: tools.Failed("ping is not installed", nil), Source: tools.SourceAgent},
	}

	first, err := RecordCraft(conn, CraftRun{CreatedAtUnix: ts.Unix(), SessionID: "s1", Provider: "openai", Prompt: "older", Report: "r1", Steps: 1})
	require.NoError(t, err)
	second, err := RecordCraft(conn, CraftRun{
		CreatedAtUnix: ts.Unix() + 60,
		SessionID:     "s1",
		Provider:      "ollama",
		Prompt:        "scan ports 22 and 80 on 10.0.0.5",
		Report:        "Maximum iterations (2) reached",
		Steps:         2,
		Exhausted:     true,
		Executions:    execs,
	})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	count, items, err := GetRecentCrafts(conn, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, items, 2)
	assert.Equal(t, second, items[0].ID)
	assert.True(t, items[0].Exhausted)
	assert.Equal(t, "ollama", items[0].Provider)

	_, page, err := GetRecentCrafts(conn, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first, page[0].ID)

	c, err := GetCraft(conn, second)
	require.NoError(t, err)
	assert.Equal(t, "scan ports 22 and 80 on 10.0.0.5", c.Prompt)
	assert.Equal(t, 2, c.Steps)

	_, err = GetCraft(conn, 9999)
	assert.ErrorIs(t, err, ErrCraftNotFound)

	got, err := GetCraftExecutions(conn, second)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "quick_port_scan", got[0].Tool)
	assert.True(t, got[0].Success)
	assert.Equal(t, int64(1500), got[0].DurationMS)
	assert.JSONEq(t, `{"target":"10.0.0.5","ports":"22,80"}`, got[0].Params)
	assert.False(t, got[1].Success)
	assert.Equal(t, "ping is not installed", got[1].Error)
	assert.Equal(t, "agent", got[1].Source)
}

func TestRecordDirectExecution(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "netcraft.db"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, RecordExecution(conn, "s2", tools.Execution{ID: "01C", Timestamp: time.Now(), Tool: "dns_lookup_tool", Outcome: tools.Succeeded(nil), Source: tools.SourceDirect}))

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM tool_executions WHERE craft_id IS NULL").Scan(&n))
	assert.Equal(t, 1, n)

	count, items, err := GetRecentCrafts(conn, 5, 0)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, items)
}
