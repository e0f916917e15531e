package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"netcraft/internal/db"
	"netcraft/internal/provider"
	"netcraft/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var providerEnv = []string{
	"OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "ANTHROPIC_API_KEY",
	"OPENROUTER_API_KEY", "OLLAMA_BASE_URL", "OLLAMA_MODEL",
}

// execute runs the command tree against a throwaway config with no usable
// provider. extra is appended to the YAML.
func execute(t *testing.T, extra string, args ...string) (string, string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, k := range providerEnv {
		t.Setenv(k, "")
	}

	cfg := filepath.Join(dir, "netcraft.yaml")
	yaml := fmt.Sprintf(`log:
  file: %s
tools:
  probe_timeout: 200ms
providers:
  ollama:
    base_url: http://127.0.0.1:1
%s`, filepath.Join(dir, "netcraft.log"), extra)
	require.NoError(t, os.WriteFile(cfg, []byte(yaml), 0o644))

	root, closeApp := newRootCmd()
	t.Cleanup(func() { _ = closeApp() })
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

const noDB = "db:\n  disabled: true\n"

func TestToolsList(t *testing.T) {
	out, _, err := execute(t, noDB, "tools", "list")
	require.NoError(t, err)
	for _, name := range []string{"ping_host", "nmap_scan", "dns_lookup_tool", "craft_packet_json"} {
		assert.Contains(t, out, "`"+name+"`")
	}
}

func TestToolsDescribe(t *testing.T) {
	out, _, err := execute(t, noDB, "tools", "describe", "ping_host")
	require.NoError(t, err)
	assert.Contains(t, out, "### ping_host")
	assert.Contains(t, out, "| count | integer | false | 4 |")

	_, _, err = execute(t, noDB, "tools", "describe", "teleport")
	assert.ErrorIs(t, err, tools.ErrToolNotFound)
}

func TestToolsRunCraftPacket(t *testing.T) {
	out, _, err := execute(t, noDB, "tools", "run", "craft_packet_json", `pkt_desc={"IP":{"dst":"10.0.0.1"},"TCP":{"dport":80}}`)
	require.NoError(t, err)
	assert.Contains(t, out, "CRAFT IP/TCP")
	assert.Contains(t, out, `"dport": 80`)
}

func TestToolsRunJSON(t *testing.T) {
	out, _, err := execute(t, noDB, "tools", "run", "--json", "craft_packet_json", `pkt_desc={"IP":{"dst":"10.0.0.1"},"ICMP":{}}`)
	require.NoError(t, err)

	var ex struct {
		Tool    string `json:"tool"`
		Source  string `json:"source"`
		Outcome struct {
			Success bool `json:"success"`
			Payload struct {
				Layers []string `json:"layers"`
			} `json:"payload"`
		} `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &ex))
	assert.Equal(t, "craft_packet_json", ex.Tool)
	assert.Equal(t, "direct", ex.Source)
	assert.True(t, ex.Outcome.Success)
	assert.Equal(t, []string{"IP", "ICMP"}, ex.Outcome.Payload.Layers)
}

func TestToolsRunRejectsBadParams(t *testing.T) {
	_, _, err := execute(t, noDB, "tools", "run", "nmap_scan", "target=10.0.0.1", "ports=22;reboot")
	assert.ErrorIs(t, err, tools.ErrValidation)

	_, _, err = execute(t, noDB, "tools", "run", "ping_host", "target=10.0.0.1", "colour=blue")
	assert.ErrorIs(t, err, tools.ErrValidation)

	_, _, err = execute(t, noDB, "tools", "run", "ping_host", "target=10.0.0.1", "count=four")
	assert.ErrorIs(t, err, tools.ErrValidation)
}

func TestToolsRunFailedPacketExitsNonZero(t *testing.T) {
	out, _, err := execute(t, noDB, "tools", "run", "craft_packet_json", `pkt_desc={"Dot11":{}}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "craft_packet_json failed")
	assert.Contains(t, out, "**failed:**")
}

func TestProviders(t *testing.T) {
	out, _, err := execute(t, noDB, "providers")
	require.NoError(t, err)
	assert.Contains(t, out, "| openai |")
	assert.Contains(t, out, "| ollama |")
	assert.NotContains(t, out, "ready")
	assert.NotContains(t, out, "reachable")
}

func TestCraftWithoutProvider(t *testing.T) {
	_, _, err := execute(t, noDB, "craft", "ping", "the", "gateway")
	assert.ErrorIs(t, err, provider.ErrNoProviderAvailable)

	_, _, err = execute(t, noDB, "craft", "--provider", "nonexistent", "ping")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestHistory(t *testing.T) {
	_, _, err := execute(t, noDB, "history")
	require.Error(t, err)

	withDB := func(dir string) string { return fmt.Sprintf("db:\n  path: %s\n", filepath.Join(dir, "audit.db")) }
	out, _, err := execute(t, withDB(t.TempDir()), "history")
	require.NoError(t, err)
	assert.Contains(t, out, "no crafts recorded")

	_, _, err = execute(t, withDB(t.TempDir()), "history", "show", "1")
	assert.ErrorIs(t, err, db.ErrCraftNotFound)

	_, _, err = execute(t, withDB(t.TempDir()), "history", "show", "abc")
	assert.Error(t, err)
}
