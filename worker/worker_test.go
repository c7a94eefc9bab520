package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/internal/testutil"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []core.ProcessEvent
}

func (p *fakePublisher) Publish(ev core.ProcessEvent) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return 1
}

func (p *fakePublisher) statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		if ws, ok := ev.(core.WorkerStatus); ok {
			out = append(out, ws.Status)
		}
	}
	return out
}

func TestRun_Plain(t *testing.T) {
	pub := &fakePublisher{}
	m := testutil.NewScriptedModel(
		testutil.CallTool("set_status", `{"status":"halfway"}`),
		testutil.Reply("report ready"),
	)
	w := New("c1", "write report", m, pub, func(o *Options) {
		o.AgentID = "agent"
		o.SystemPrompt = "you are a worker"
	})
	assert.False(t, w.Interactive())

	out, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "report ready", out)

	pub.mu.Lock()
	require.Len(t, pub.events, 3) // ToolStarted, WorkerStatus, ToolCompleted
	assert.Equal(t, core.WorkerStatus{AgentID: "agent", WorkerID: w.ID(), ChannelID: "c1", Status: "halfway"}, pub.events[1])
	pub.mu.Unlock()

	req := m.Requests()[0]
	assert.Equal(t, "you are a worker", req.Instructions)
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "write report", req.Contents[0].Text())
}

func TestRun_Failure(t *testing.T) {
	w := New("c1", "task", testutil.NewScriptedModel(testutil.Fail(errors.New("quota"))), nil)
	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestRun_InteractiveFollowUpsUntilCancel(t *testing.T) {
	pub := &fakePublisher{}
	m := testutil.NewScriptedModel(testutil.Reply("initial"), testutil.Reply("second answer"))
	w := NewInteractive("c1", "watch", m, pub)
	assert.True(t, w.Interactive())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan string, 1)
	go func() {
		out, err := w.Run(ctx)
		assert.NoError(t, err)
		done <- out
	}()

	require.NoError(t, w.Send("what changed?"))
	require.Eventually(t, func() bool {
		s := pub.statuses()
		return len(s) == 2 && s[1] == "second answer"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "waiting for input", pub.statuses()[0])

	cancel()
	select {
	case out := <-done:
		assert.Equal(t, "second answer", out)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	// the follow-up saw the earlier exchange
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Contents, 3)
}

func TestRun_InteractiveIdleTimeout(t *testing.T) {
	w := NewInteractive("c1", "watch", testutil.NewScriptedModel(testutil.Reply("only")), nil, func(o *Options) {
		o.IdleTimeout = 20 * time.Millisecond
	})

	out, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "only", out)

	// an idled out worker takes no more follow-ups
	assert.ErrorIs(t, w.Send("still there?"), core.ErrUnknownProcess)
}

func TestSend(t *testing.T) {
	plain := New("c1", "task", testutil.NewScriptedModel(), nil)
	assert.ErrorIs(t, plain.Send("hi"), core.ErrWorkerNotInteractive)
	assert.NotPanics(t, plain.CloseInput)

	w := NewInteractive("c1", "watch", testutil.NewScriptedModel(), nil, func(o *Options) {
		o.InputCapacity = 1
	})
	require.NoError(t, w.Send("first"))
	assert.ErrorIs(t, w.Send("second"), core.ErrWorkerBusy)

	w.CloseInput()
	w.CloseInput()
	assert.ErrorIs(t, w.Send("third"), core.ErrUnknownProcess)
}

func TestRun_InteractiveEndsWhenInputClosed(t *testing.T) {
	m := testutil.NewScriptedModel(testutil.Reply("initial"), testutil.Reply("queued answer"))
	w := NewInteractive("c1", "watch", m, nil)

	require.NoError(t, w.Send("one more"))
	w.CloseInput()

	done := make(chan string, 1)
	go func() {
		out, err := w.Run(context.Background())
		assert.NoError(t, err)
		done <- out
	}()

	select {
	case out := <-done:
		assert.Equal(t, "queued answer", out)
	case <-time.After(time.Second):
		t.Fatal("worker did not end after its input closed")
	}
	assert.Equal(t, 2, m.Calls())
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "first", summarize("  first\nsecond"))
	long := strings.Repeat("x", 100)
	got := summarize(long)
	assert.Len(t, []rune(got), 80)
	assert.True(t, strings.HasSuffix(got, "..."))
}
