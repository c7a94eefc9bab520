package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/channelmesh"
)

func executeCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channelmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, channelmesh.Version+"\n", stdout)
}

func TestRun_AnswersEveryLine(t *testing.T) {
	stdout, _, err := executeCLI(t, "hello\n\nhow are you\n", "run")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "hello")
	assert.Contains(t, lines[1], "how are you")
}

func TestRun_WithConfigFile(t *testing.T) {
	path := writeConfig(t, `
agent:
  id: test-agent
  name: Tester
models:
  channel:
    provider: mock
    model: scripted
store:
  driver: sqlite
  path: `+filepath.Join(t.TempDir(), "log.db")+`
logging:
  level: debug
  format: json
`)

	stdout, stderr, err := executeCLI(t, "ping\n", "run", "--config", path, "--status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Mock response to:")
	assert.Contains(t, stdout, "[thinking]")
	assert.Contains(t, stderr, `"msg":"mesh.started"`)
}

func TestRun_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "models:\n  channel:\n    provider: llama\n")

	_, _, err := executeCLI(t, "", "run", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llama")
}

func TestRun_RejectsArgs(t *testing.T) {
	_, _, err := executeCLI(t, "", "run", "extra")
	require.Error(t, err)
}
