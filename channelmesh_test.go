package channelmesh

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/channelmesh/config"
	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/internal/testutil"
	"github.com/hupe1980/channelmesh/model"
	"github.com/hupe1980/channelmesh/model/anthropic"
	"github.com/hupe1980/channelmesh/model/openai"
	"github.com/hupe1980/channelmesh/store"
	"github.com/hupe1980/channelmesh/tool"
)

func quiet(o *Options) { o.LogOutput = io.Discard }

func nextText(t *testing.T, m *Mesh) string {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env := <-m.Responses():
			if tr, ok := env.Response.(core.TextResponse); ok {
				return tr.Text
			}
		case <-timeout:
			t.Fatal("timed out waiting for a reply")
			return ""
		}
	}
}

func TestMesh_MockRoundTrip(t *testing.T) {
	m, err := New(nil, quiet)
	require.NoError(t, err)

	require.NoError(t, m.Dispatch(context.Background(), core.NewTextMessage("console", "local", "me", "hello")))

	text := nextText(t, m)
	assert.True(t, strings.HasPrefix(text, "Mock response to:"), text)
	assert.Contains(t, text, "hello")

	require.NoError(t, m.Close(context.Background()))
}

func TestMesh_ModelOverrideAndTools(t *testing.T) {
	scripted := testutil.NewScriptedModel(testutil.CallTool("lookup", `{}`)).WithFallback("found it")

	lookup := tool.NewFunctionTool("lookup", "Look something up.", map[string]any{"type": "object"},
		func(_ *tool.CallContext, _ map[string]any) (any, error) { return "42", nil })

	m, err := New(config.Default(), quiet, func(o *Options) {
		o.Models = &model.StaticRouter{Default: scripted}
		o.Tools = []tool.Tool{lookup}
	})
	require.NoError(t, err)

	assert.True(t, m.Tools().Has("lookup"))
	require.NoError(t, m.Dispatch(context.Background(), core.NewTextMessage("console", "local", "me", "what is it?")))
	assert.Equal(t, "found it", nextText(t, m))

	require.NoError(t, m.Close(context.Background()))
}

func TestMesh_SQLiteStorePersistsAcrossRestarts(t *testing.T) {
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "mesh.db")}
	cfg.Channel.HistoryBackfill = 10

	m, err := New(cfg, quiet)
	require.NoError(t, err)
	require.NoError(t, m.Dispatch(context.Background(), core.NewTextMessage("console", "local", "me", "remember me")))
	nextText(t, m)
	require.NoError(t, m.Close(context.Background()))

	st, err := NewStore(cfg.Store, nil)
	require.NoError(t, err)
	defer st.Close()

	recs, err := st.Recent(context.Background(), "console:local", 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, store.KindUser, recs[0].Kind)
	assert.Contains(t, recs[0].Content, "remember me")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Agent.ID = ""
	_, err := New(cfg, quiet)
	require.Error(t, err)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.ModelConfig{Provider: config.ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "test"})
	require.NoError(t, err)
	assert.IsType(t, &openai.Model{}, m)

	m, err = NewModel(config.ModelConfig{Provider: config.ProviderAnthropic, Model: "claude-sonnet-4-0", APIKey: "test"})
	require.NoError(t, err)
	assert.IsType(t, &anthropic.Model{}, m)

	m, err = NewModel(config.ModelConfig{Provider: config.ProviderMock})
	require.NoError(t, err)
	assert.Equal(t, "mock", m.Info().Name)

	_, err = NewModel(config.ModelConfig{Provider: "llama"})
	require.Error(t, err)
}

func TestNewRouter_FallsBackToChannelModel(t *testing.T) {
	r, err := NewRouter(config.ModelsConfig{
		Channel: config.ModelConfig{Provider: config.ProviderMock, Model: "channel"},
		Branch:  config.ModelConfig{Provider: config.ProviderMock, Model: "branch"},
	})
	require.NoError(t, err)

	assert.Equal(t, "channel", r.Resolve(core.ProcessTypeChannel).Info().Name)
	assert.Equal(t, "branch", r.Resolve(core.ProcessTypeBranch).Info().Name)
	assert.Equal(t, "channel", r.Resolve(core.ProcessTypeWorker).Info().Name)
}

func TestChannelConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Channel.MaxConcurrentBranches = 2
	cfg.Worker.InteractiveIdleTimeout = time.Minute

	cc := ChannelConfig(cfg)
	assert.Equal(t, 2, cc.MaxConcurrentBranches)
	assert.Equal(t, time.Minute, cc.InteractiveIdleTimeout)
	require.NoError(t, cc.Validate())
}
