package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nav.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func executeNav(t *testing.T, opts *RootOptions, path string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewNavCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	return buf.String(), err
}

func TestNav_ReplaysScript(t *testing.T) {
	path := writeScript(t, `
steps:
  - do: navigate
    tab: discover
  - do: open_post
    id: e1
  - do: follow
    uri: ember://profile/bob
  - do: back
`)

	out, err := executeNav(t, &RootOptions{Format: "json"}, path)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   NavResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "post(e1, discover)", resp.Data.Route)
	assert.Equal(t, "discover", resp.Data.Tab)
	assert.True(t, resp.Data.CanGoBack)
	assert.Equal(t, []string{"page(discover)"}, resp.Data.History)

	routes := make([]string, 0, len(resp.Data.Steps))
	for _, s := range resp.Data.Steps {
		assert.Empty(t, s.Error)
		routes = append(routes, s.Route)
	}
	assert.Equal(t, []string{
		"page(discover)",
		"post(e1, discover)",
		"profile(bob, discover)",
		"post(e1, discover)",
	}, routes)
}

func TestNav_BackFromDetailOnlyTab(t *testing.T) {
	path := writeScript(t, `
steps:
  - do: open_profile
    pubkey: pk2
    origin: profile
  - do: navigate
    tab: profile
  - do: back
`)

	out, err := executeNav(t, &RootOptions{Format: "text"}, path)
	require.NoError(t, err)
	assert.Contains(t, out, "route: page(home)")
	assert.Contains(t, out, "history: (empty)")
}

func TestNav_FailedStepLeavesState(t *testing.T) {
	path := writeScript(t, `
steps:
  - do: navigate
    tab: wallet
  - do: follow
    uri: ember://tab/lobby
`)

	out, err := executeNav(t, &RootOptions{Format: "text"}, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `✗ invalid deep link "ember://tab/lobby"`)
	assert.Contains(t, out, "route: page(wallet)")
}

func TestNav_ScriptErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown_field", "steps:\n  - do: back\n    speed: fast\n", "invalid script"},
		{"empty_steps", "steps: []\n", "invalid script"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeNav(t, &RootOptions{Format: "text"}, writeScript(t, tt.content))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.wantErr)
		})
	}
}

func TestNav_MissingScript(t *testing.T) {
	out, err := executeNav(t, &RootOptions{Format: "text"}, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E_NOT_FOUND")
}

func TestNavResult_Text(t *testing.T) {
	r := NavResult{
		Route:   "post(e1, home)",
		Tab:     "home",
		History: []string{"page(discover)", "page(home)"},
		Steps:   []NavStepResult{{Do: "open_post", Route: "post(e1, home)"}},
	}
	text := r.Text()
	assert.Contains(t, text, " 1. open_post     → post(e1, home)")
	assert.Contains(t, text, "history: page(discover) < page(home)")
}
