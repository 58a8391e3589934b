package recorder

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"keytrail/internal/input"
	"keytrail/internal/keys"
)

// DefaultBufferSize is the capacity of the per-session event queue.
const DefaultBufferSize = 1024

// Options configures a Recorder.
type Options struct {
	// Source delivers raw input. When nil, SourceFactory is called on the
	// first start.
	Source        input.EventSource
	SourceFactory func() (input.EventSource, error)

	Interval   time.Duration // motion throttle, DefaultPoolingInterval if zero
	ExitKey    keys.Key      // DefaultExitKey if zero
	StopChord  string        // optional chord that stops recording, e.g. "ctrl+shift+f12"
	BufferSize int
	Clock      func() time.Time
	Logger     *slog.Logger
}

// Recorder coordinates recording sessions: it attaches to the event source,
// funnels every callback through a single consumer and owns the current
// History.
type Recorder struct {
	logger   *slog.Logger
	clock    func() time.Time
	interval time.Duration
	exitKey  keys.Key
	bufSize  int
	factory  func() (input.EventSource, error)
	matcher  *keys.Matcher

	mu       sync.Mutex // serializes Start/Stop/Clean
	source   input.EventSource
	session  *session
	active   atomic.Pointer[session] // routing target of the source handlers
	handlers input.Handlers

	// translator carries the motion throttle of history across resumed
	// sessions.
	histMu     sync.RWMutex
	history    *History
	translator *Translator

	obsMu   sync.RWMutex
	onMove  []func(Move)
	onState []func(Info)
}

type item struct {
	ev   input.Event
	stop chan struct{}
}

type session struct {
	history    *History
	translator *Translator
	events     chan item
	done       chan struct{}
	wg         sync.WaitGroup
	dropped    atomic.Int64
}

// New creates a Recorder with an empty IDLE history.
func New(opts Options) (*Recorder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPoolingInterval
	}
	exitKey := opts.ExitKey
	if exitKey.IsZero() {
		exitKey = DefaultExitKey
	}
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	factory := opts.SourceFactory
	if factory == nil {
		factory = func() (input.EventSource, error) {
			return input.NewHook(logger.With("component", "hook")), nil
		}
	}

	r := &Recorder{
		logger:   logger,
		clock:    clock,
		interval: interval,
		exitKey:  exitKey,
		bufSize:  bufSize,
		factory:  factory,
		source:   opts.Source,
		matcher:  keys.NewMatcher(logger),
	}
	r.history = newHistory(logger, clock)
	r.translator = NewTranslator(interval, exitKey, logger)
	r.handlers = r.routeHandlers()

	if _, err := r.matcher.Register(opts.StopChord, r.chordFired); err != nil {
		return nil, err
	}
	return r, nil
}

// GetHistory returns the current history. The pointer is shared, not a copy.
func (r *Recorder) GetHistory() *History {
	r.histMu.RLock()
	defer r.histMu.RUnlock()
	return r.history
}

// State returns the state of the current history.
func (r *Recorder) State() State {
	return r.GetHistory().State()
}

// Recording reports whether a session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// OnMove registers fn to be called after every appended move. fn runs on the
// session consumer and must not block.
func (r *Recorder) OnMove(fn func(Move)) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.onMove = append(r.onMove, fn)
}

// OnState registers fn to be called after every state change. fn must not
// block.
func (r *Recorder) OnState(fn func(Info)) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.onState = append(r.onState, fn)
}

// StartRecording moves the history to RECORDING and subscribes to the event
// source. It is a no-op while a session is active. If subscribing fails the
// history returns to its previous state and a *SubscriptionError is returned.
func (r *Recorder) StartRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return nil
	}

	src, err := r.ensureSource()
	if err != nil {
		r.logger.Error("create event source failed", "error", err)
		return &SubscriptionError{Op: "subscribe", Err: err}
	}

	r.histMu.RLock()
	h, tr := r.history, r.translator
	r.histMu.RUnlock()
	prev := h.mark()
	h.Start()

	s := &session{
		history:    h,
		translator: tr,
		events:     make(chan item, r.bufSize),
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go r.consume(s)
	r.active.Store(s)

	// The handlers never change, so a source that kept them after a failed
	// unsubscribe still feeds this session.
	if err := src.Subscribe(r.handlers); err != nil {
		r.active.Store(nil)
		close(s.done)
		s.wg.Wait()
		h.restore(prev)
		r.logger.Error("subscribe to event source failed", "error", err)
		return &SubscriptionError{Op: "subscribe", Err: err}
	}

	r.session = s
	r.logger.Info("recording started", "id", h.ID())
	r.notifyState(h.Info())
	return nil
}

// StopRecording stops the active session. Every event captured before the
// call is appended, later ones are dropped. Without a session it is a no-op.
func (r *Recorder) StopRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

func (r *Recorder) stopLocked() error {
	s := r.session
	if s == nil {
		r.GetHistory().Stop()
		return nil
	}

	ack := make(chan struct{})
	s.events <- item{stop: ack}
	<-ack
	r.active.Store(nil)

	err := r.source.Unsubscribe()

	close(s.done)
	s.wg.Wait()
	r.session = nil
	r.matcher.Reset()

	info := s.history.Info()
	r.logger.Info("recording stopped",
		"id", info.ID,
		"moves", info.Moves,
		"dropped_motion", s.dropped.Load(),
	)
	r.notifyState(info)

	if err != nil {
		r.logger.Error("unsubscribe from event source failed", "error", err)
		return &SubscriptionError{Op: "unsubscribe", Err: err}
	}
	return nil
}

// CleanHistory replaces the history with a fresh IDLE one. It is rejected
// while a session is active.
func (r *Recorder) CleanHistory() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return ErrRecordingActive
	}

	h := newHistory(r.logger, r.clock)
	r.histMu.Lock()
	r.history = h
	r.translator = NewTranslator(r.interval, r.exitKey, r.logger)
	r.histMu.Unlock()

	r.logger.Info("history cleared", "id", h.ID())
	r.notifyState(h.Info())
	return nil
}

// Close stops any active session.
func (r *Recorder) Close() error {
	return r.StopRecording()
}

func (r *Recorder) ensureSource() (input.EventSource, error) {
	if r.source != nil {
		return r.source, nil
	}
	src, err := r.factory()
	if err != nil {
		return nil, err
	}
	r.source = src
	return src, nil
}

// routeHandlers stamps each callback and queues it for the active session.
// Without a session the event is dropped. Motion is lossy when the queue is
// full; everything else waits for room or for the session to end.
func (r *Recorder) routeHandlers() input.Handlers {
	push := func(ev input.Event) {
		s := r.active.Load()
		if s == nil {
			return
		}
		ev.At = r.clock()
		it := item{ev: ev}
		if ev.Kind == input.KindMove {
			select {
			case s.events <- it:
			default:
				s.dropped.Add(1)
			}
			return
		}
		select {
		case s.events <- it:
		case <-s.done:
		}
	}
	return input.Handlers{
		OnClick: func(x, y int, button input.Button, pressed bool) {
			push(input.Click(x, y, button, pressed))
		},
		OnScroll: func(x, y, dx, dy int) {
			push(input.Scroll(x, y, dx, dy))
		},
		OnMove: func(x, y int) {
			push(input.Move(x, y))
		},
		OnKeyPress: func(k keys.Key) {
			push(input.KeyPress(k))
		},
		OnKeyRelease: func(k keys.Key) {
			push(input.KeyRelease(k))
		},
	}
}

func (r *Recorder) consume(s *session) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case it := <-s.events:
			if it.stop != nil {
				s.history.Stop()
				close(it.stop)
				continue
			}
			r.handle(s, it.ev)
		}
	}
}

func (r *Recorder) handle(s *session, ev input.Event) {
	switch ev.Kind {
	case input.KindKeyPress:
		r.matcher.Update(ev.Key, true)
	case input.KindKeyRelease:
		r.matcher.Update(ev.Key, false)
	}

	m, ok := s.translator.Translate(ev)
	if !ok {
		return
	}
	if err := s.history.Add(m); err != nil {
		r.logger.Debug("move dropped", "type", m.Type().String(), "error", err)
		return
	}

	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, fn := range r.onMove {
		fn(m)
	}
}

func (r *Recorder) notifyState(info Info) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, fn := range r.onState {
		fn(info)
	}
}

// chordFired runs on the consumer goroutine. The stop itself happens
// elsewhere because StopRecording waits for the consumer.
func (r *Recorder) chordFired() {
	s := r.active.Load()
	if s == nil {
		return
	}
	go r.stopFromChord(s)
}

// stopFromChord stops s unless a different session has started meanwhile.
func (r *Recorder) stopFromChord(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != s {
		r.logger.Debug("stop chord ignored, session already ended")
		return
	}
	if err := r.stopLocked(); err != nil {
		r.logger.Error("stop from chord failed", "error", err)
	}
}
