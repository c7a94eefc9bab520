package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/channelmesh/bus"
	"github.com/hupe1980/channelmesh/channel"
	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/internal/testutil"
	"github.com/hupe1980/channelmesh/model"
)

const waitTimeout = 2 * time.Second

func newTestRuntime(t *testing.T, m model.Model) *Runtime {
	t.Helper()
	rt, err := New(channel.Deps{
		AgentID: "agent",
		Models:  &model.StaticRouter{Default: m},
		Events:  bus.New(),
	})
	require.NoError(t, err)
	return rt
}

func nextText(t *testing.T, rt *Runtime) Envelope {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case env, ok := <-rt.Responses():
			require.True(t, ok, "responses closed")
			if _, isText := env.Response.(core.TextResponse); isText {
				return env
			}
		case <-timeout:
			t.Fatal("timed out waiting for a text response")
			return Envelope{}
		}
	}
}

func TestRuntime_CreatesChannelPerConversation(t *testing.T) {
	rt := newTestRuntime(t, testutil.NewScriptedModel().WithFallback("pong"))
	ctx := context.Background()

	require.NoError(t, rt.Dispatch(ctx, testutil.NewMessageBuilder("hi").Source("console").Conversation("a").Build()))
	env := nextText(t, rt)
	assert.Equal(t, ChannelIDFor("console", "a"), env.ChannelID)
	assert.Equal(t, "console", env.Source)
	assert.Equal(t, "a", env.ConversationID)
	assert.Equal(t, core.TextResponse{Text: "pong"}, env.Response)

	require.NoError(t, rt.Dispatch(ctx, testutil.NewMessageBuilder("again").Source("console").Conversation("a").Build()))
	nextText(t, rt)

	require.NoError(t, rt.Dispatch(ctx, testutil.NewMessageBuilder("hello").Source("console").Conversation("b").Build()))
	env = nextText(t, rt)
	assert.Equal(t, "b", env.ConversationID)

	assert.Equal(t, []core.ChannelID{"console:a", "console:b"}, rt.Channels())

	_, ok := rt.Channel("console", "a")
	assert.True(t, ok)
	_, ok = rt.Channel("slack", "a")
	assert.False(t, ok)

	require.NoError(t, rt.Close(context.Background()))
}

func TestRuntime_DispatchRequiresConversation(t *testing.T) {
	rt := newTestRuntime(t, testutil.NewScriptedModel())
	err := rt.Dispatch(context.Background(), core.NewTextMessage("console", "", "user", "hi"))
	require.Error(t, err)
	require.NoError(t, rt.Close(context.Background()))
}

func TestRuntime_CloseDrainsQueuedMessages(t *testing.T) {
	m := testutil.NewScriptedModel().WithFallback("ok")
	rt := newTestRuntime(t, m)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, rt.Dispatch(ctx, testutil.NewMessageBuilder("msg").Conversation("c").Build()))
	}

	var texts []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range rt.Responses() {
			if tr, ok := env.Response.(core.TextResponse); ok {
				texts = append(texts, tr.Text)
			}
		}
	}()

	require.NoError(t, rt.Close(ctx))
	<-done

	assert.Equal(t, []string{"ok", "ok", "ok"}, texts)
	assert.ErrorIs(t, rt.Dispatch(ctx, testutil.NewMessageBuilder("late").Conversation("c").Build()), ErrClosed)
	assert.NoError(t, rt.Close(ctx), "second close is a no-op")
}

func TestRuntime_CloseWaitsForBranchResults(t *testing.T) {
	channelModel := testutil.NewScriptedModel(
		testutil.CallTool("branch", `{"description":"dig"}`),
		testutil.Reply("On it."),
		testutil.Reply("Here is what I found."),
	)
	release := make(chan struct{})
	branchModel := testutil.NewScriptedModel(testutil.Gate(release, testutil.Reply("found it")))

	rt, err := New(channel.Deps{
		AgentID: "agent",
		Models: &model.StaticRouter{
			Default: channelModel,
			ByType:  map[core.ProcessType]model.Model{core.ProcessTypeBranch: branchModel},
		},
		Events: bus.New(),
	})
	require.NoError(t, err)

	require.NoError(t, rt.Dispatch(context.Background(), testutil.NewMessageBuilder("look").Conversation("c").Build()))
	assert.Equal(t, core.TextResponse{Text: "On it."}, nextText(t, rt).Response)

	closed := make(chan error, 1)
	go func() { closed <- rt.Close(context.Background()) }()
	close(release)

	var texts []string
	for env := range rt.Responses() {
		if tr, ok := env.Response.(core.TextResponse); ok {
			texts = append(texts, tr.Text)
		}
	}

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, []string{"Here is what I found."}, texts)
	assert.Equal(t, 3, channelModel.Calls())
}

func TestRuntime_CloseForcedByContext(t *testing.T) {
	rt := newTestRuntime(t, testutil.NewScriptedModel(testutil.Hang()))
	require.NoError(t, rt.Dispatch(context.Background(), testutil.NewMessageBuilder("stuck").Conversation("c").Build()))

	go func() {
		for range rt.Responses() {
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rt.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(channel.Deps{Models: &model.StaticRouter{}})
	require.Error(t, err)

	_, err = New(channel.Deps{Models: &model.StaticRouter{}, Events: bus.New()}, func(o *Options) {
		o.ChannelConfig.MaxConcurrentBranches = 0
	})
	require.Error(t, err)
}
