package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine_Defaults(t *testing.T) {
	e, err := NewEngine("")
	require.NoError(t, err)
	assert.Equal(t, []string{Branch, Channel, Identity, Worker}, e.Names())

	out, err := e.Render(Identity, map[string]any{"AgentName": "Mesh"})
	require.NoError(t, err)
	assert.Equal(t, "You are Mesh, a conversational assistant.\n", out)

	channel, err := e.Render(Channel, nil)
	require.NoError(t, err)
	assert.Contains(t, channel, "`reply`")
}

func TestNewEngine_Overrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "channel.md"), []byte("custom {{.AgentName | upper}}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.md"), []byte("extra"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	e, err := NewEngine(dir)
	require.NoError(t, err)

	out, err := e.Render(Channel, map[string]any{"AgentName": "mesh"})
	require.NoError(t, err)
	assert.Equal(t, "custom MESH", out)
	assert.Contains(t, e.Names(), "extra")
	assert.NotContains(t, e.Names(), "notes")
}

func TestNewEngine_MissingDir(t *testing.T) {
	_, err := NewEngine(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestRender_Errors(t *testing.T) {
	e, err := NewEngine("")
	require.NoError(t, err)

	_, err = e.Render("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	require.Error(t, e.Set("broken", "{{ .Missing"))
	_, err = e.Render("broken", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	require.NoError(t, e.Set("call", `{{call .fn}}`))
	_, err = e.Render("call", map[string]any{"fn": "not a func"})
	assert.Error(t, err)
}

func TestNewEngine_BrokenOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker.md"), []byte("{{ if }}"), 0o600))

	_, err := NewEngine(dir)
	assert.Error(t, err)
}
