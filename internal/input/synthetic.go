package input

import (
	"context"
	"errors"
	"sync"
	"time"

	"keytrail/internal/keys"
)

// Synthetic is an EventSource driven by explicit calls. Fire methods are safe
// from any goroutine and do nothing while unsubscribed.
type Synthetic struct {
	mu         sync.Mutex
	handlers   *Handlers
	failSub    error
	failUnsub  error
	subscribes int
}

// NewSynthetic creates an unsubscribed synthetic source.
func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

// FailSubscribe makes the next Subscribe calls return err. Pass nil to reset.
func (s *Synthetic) FailSubscribe(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSub = err
}

// FailUnsubscribe makes the next Unsubscribe calls return err.
func (s *Synthetic) FailUnsubscribe(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUnsub = err
}

func (s *Synthetic) Subscribe(h Handlers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSub != nil {
		return s.failSub
	}
	if s.handlers != nil {
		return nil
	}
	s.handlers = &h
	s.subscribes++
	return nil
}

func (s *Synthetic) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		return nil
	}
	s.handlers = nil
	return s.failUnsub
}

// Subscribed reports whether handlers are currently attached.
func (s *Synthetic) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers != nil
}

// Subscriptions returns how many successful subscriptions happened.
func (s *Synthetic) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes
}

// Emit dispatches ev to the current handlers. Handlers run outside the lock so
// they may block without stalling other emitters.
func (s *Synthetic) Emit(ev Event) {
	s.mu.Lock()
	h := s.handlers
	s.mu.Unlock()
	if h == nil {
		return
	}
	h.Dispatch(ev)
}

func (s *Synthetic) Click(x, y int, button Button, pressed bool) {
	s.Emit(Click(x, y, button, pressed))
}

func (s *Synthetic) Scroll(x, y, dx, dy int) { s.Emit(Scroll(x, y, dx, dy)) }

func (s *Synthetic) Move(x, y int) { s.Emit(Move(x, y)) }

func (s *Synthetic) KeyPress(k keys.Key) { s.Emit(KeyPress(k)) }

func (s *Synthetic) KeyRelease(k keys.Key) { s.Emit(KeyRelease(k)) }

// Step is one scripted event, delivered Delay after the previous step.
type Step struct {
	Delay time.Duration
	Event Event
}

// Scripted replays a fixed list of steps after each Subscribe. It backs the
// demo source and end-to-end tests.
type Scripted struct {
	steps []Step

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScripted creates a source that plays steps on subscribe.
func NewScripted(steps []Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Subscribe(h Handlers) error {
	if len(s.steps) == 0 {
		return errors.New("scripted source has no steps")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		for _, step := range s.steps {
			if step.Delay > 0 {
				timer := time.NewTimer(step.Delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			} else if ctx.Err() != nil {
				return
			}
			h.Dispatch(step.Event)
		}
	}()
	return nil
}

func (s *Scripted) Unsubscribe() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Done returns a channel closed once the current script has finished or was
// cancelled. It is nil while unsubscribed.
func (s *Scripted) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// DemoScript is a short session: some pointer movement, a click, a scroll and
// a typed word followed by the exit key.
func DemoScript(interval time.Duration) []Step {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	steps := make([]Step, 0, 32)
	for i := 0; i < 10; i++ {
		steps = append(steps, Step{Delay: interval, Event: Move(100+i*8, 200+i*3)})
	}
	steps = append(steps,
		Step{Delay: interval, Event: Click(180, 230, ButtonLeft, true)},
		Step{Delay: interval, Event: Click(180, 230, ButtonLeft, false)},
		Step{Delay: interval, Event: Scroll(180, 230, 0, -1)},
	)
	for _, r := range "hello" {
		k := keys.Key{Char: r}
		steps = append(steps,
			Step{Delay: interval, Event: KeyPress(k)},
			Step{Delay: interval / 2, Event: KeyRelease(k)},
		)
	}
	steps = append(steps,
		Step{Delay: interval, Event: KeyPress(keys.Key{Name: "enter"})},
		Step{Delay: interval / 2, Event: KeyRelease(keys.Key{Name: "enter"})},
		Step{Delay: interval, Event: KeyPress(keys.Esc)},
		Step{Delay: interval / 2, Event: KeyRelease(keys.Esc)},
	)
	return steps
}
