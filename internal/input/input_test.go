package input

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytrail/internal/keys"
)

type recorded struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorded) handlers() Handlers {
	add := func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	}
	return Handlers{
		OnClick:      func(x, y int, b Button, p bool) { add(Click(x, y, b, p)) },
		OnScroll:     func(x, y, dx, dy int) { add(Scroll(x, y, dx, dy)) },
		OnMove:       func(x, y int) { add(Move(x, y)) },
		OnKeyPress:   func(k keys.Key) { add(KeyPress(k)) },
		OnKeyRelease: func(k keys.Key) { add(KeyRelease(k)) },
	}
}

func (r *recorded) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestDispatchRoutesByKind(t *testing.T) {
	var r recorded
	h := r.handlers()

	in := []Event{
		Click(1, 2, ButtonRight, true),
		Scroll(3, 4, 0, -2),
		Move(5, 6),
		KeyPress(keys.Key{Char: 'a'}),
		KeyRelease(keys.Esc),
	}
	for _, ev := range in {
		h.Dispatch(ev)
	}
	assert.Equal(t, in, r.snapshot())
}

func TestDispatchSkipsNilHandlers(t *testing.T) {
	var h Handlers
	assert.NotPanics(t, func() {
		h.Dispatch(Click(0, 0, ButtonLeft, true))
		h.Dispatch(Move(0, 0))
		h.Dispatch(Event{Kind: Kind(99)})
	})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "click", KindClick.String())
	assert.Equal(t, "key_release", KindKeyRelease.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestSyntheticSubscribeLifecycle(t *testing.T) {
	s := NewSynthetic()
	var r recorded

	s.Move(1, 1)
	require.NoError(t, s.Subscribe(r.handlers()))
	require.NoError(t, s.Subscribe(r.handlers()), "second subscribe is a no-op")
	assert.Equal(t, 1, s.Subscriptions())

	s.Move(2, 2)
	s.Click(2, 2, ButtonLeft, true)

	require.NoError(t, s.Unsubscribe())
	require.NoError(t, s.Unsubscribe())
	s.Move(3, 3)

	assert.Equal(t, []Event{Move(2, 2), Click(2, 2, ButtonLeft, true)}, r.snapshot())
	assert.False(t, s.Subscribed())
}

func TestSyntheticFailures(t *testing.T) {
	s := NewSynthetic()
	boom := errors.New("boom")

	s.FailSubscribe(boom)
	assert.ErrorIs(t, s.Subscribe(Handlers{}), boom)
	assert.False(t, s.Subscribed())

	s.FailSubscribe(nil)
	s.FailUnsubscribe(boom)
	require.NoError(t, s.Subscribe(Handlers{}))
	assert.ErrorIs(t, s.Unsubscribe(), boom)
	assert.False(t, s.Subscribed())
}

func TestSyntheticConcurrentEmit(t *testing.T) {
	s := NewSynthetic()
	var r recorded
	require.NoError(t, s.Subscribe(r.handlers()))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Scroll(g, i, 0, 1)
			}
		}(g)
	}
	wg.Wait()
	assert.Len(t, r.snapshot(), 200)
}

func TestScriptedPlaysAllSteps(t *testing.T) {
	steps := []Step{
		{Event: Move(1, 1)},
		{Delay: time.Millisecond, Event: Click(1, 1, ButtonLeft, true)},
		{Delay: time.Millisecond, Event: KeyPress(keys.Key{Char: 'x'})},
	}
	s := NewScripted(steps)
	var r recorded
	require.NoError(t, s.Subscribe(r.handlers()))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("script did not finish")
	}
	require.NoError(t, s.Unsubscribe())

	got := r.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, KindMove, got[0].Kind)
	assert.Equal(t, KindClick, got[1].Kind)
	assert.Equal(t, KindKeyPress, got[2].Kind)
	assert.Nil(t, s.Done())
}

func TestScriptedUnsubscribeCancels(t *testing.T) {
	s := NewScripted([]Step{
		{Event: Move(1, 1)},
		{Delay: time.Hour, Event: Move(2, 2)},
	})
	var r recorded
	require.NoError(t, s.Subscribe(r.handlers()))

	require.Eventually(t, func() bool { return len(r.snapshot()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, s.Unsubscribe())
	assert.Len(t, r.snapshot(), 1)
}

func TestScriptedRequiresSteps(t *testing.T) {
	assert.Error(t, NewScripted(nil).Subscribe(Handlers{}))
}

func TestDemoScriptEndsWithExitKey(t *testing.T) {
	steps := DemoScript(0)
	require.NotEmpty(t, steps)
	last := steps[len(steps)-1].Event
	assert.Equal(t, KindKeyRelease, last.Kind)
	assert.True(t, keys.Esc.Matches(last.Key))
}
