package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	msgs []string
	args [][]any
}

func (r *recordingLogger) record(msg string, args []any) {
	r.msgs = append(r.msgs, msg)
	r.args = append(r.args, args)
}

func (r *recordingLogger) Debug(msg string, args ...any) { r.record(msg, args) }
func (r *recordingLogger) Info(msg string, args ...any)  { r.record(msg, args) }
func (r *recordingLogger) Warn(msg string, args ...any)  { r.record(msg, args) }
func (r *recordingLogger) Error(msg string, args ...any) { r.record(msg, args) }

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewLogger_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf, Component: "channel"})

	l.Debug("hidden")
	l.Info("channel.started", "channel_id", "c1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"channel.started"`)
	assert.Contains(t, out, `"component":"channel"`)
	assert.Contains(t, out, `"channel_id":"c1"`)
}

func TestWith_SlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "text", Output: &buf})

	With(l, "branch_id", "b1").Debug("branch.spawned")

	assert.Contains(t, buf.String(), "branch_id=b1")
}

func TestWith_WrapsForeignLogger(t *testing.T) {
	rec := &recordingLogger{}
	l := With(With(rec, "a", 1), "b", 2)

	l.Warn("msg", "c", 3)

	require.Len(t, rec.msgs, 1)
	assert.Equal(t, []any{"a", 1, "b", 2, "c", 3}, rec.args[0])
}

func TestWith_NilAndNoOp(t *testing.T) {
	assert.Equal(t, NoOpLogger{}, With(nil, "k", "v"))
	assert.Equal(t, NoOpLogger{}, With(NoOpLogger{}, "k", "v"))
	assert.Equal(t, NoOpLogger{}, OrNoOp(nil))
}
