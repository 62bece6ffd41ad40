// Package session holds the (user, session) pair the rest of the
// application reads, reconciling the provider's event stream with the
// one-time hydration of a persisted session.
//
// Startup order matters: the store subscribes to the provider's events
// before it asks for the current session. An event published before that
// request resolved is a replay of an existing session and never navigates;
// the fetched session is applied after the replays and before any event
// published later.
// Events and the hydration result are applied by a single goroutine, and
// navigations decided while handling an event run only after the handler
// has returned.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
	"github.com/marcogenualdo/session-coordinator/internal/gateway"
	"github.com/marcogenualdo/session-coordinator/internal/navigation"
	"github.com/marcogenualdo/session-coordinator/internal/notify"
	"github.com/marcogenualdo/session-coordinator/internal/pending"
)

const (
	defaultHydrationTimeout = 10 * time.Second
	pendingReadTimeout      = 2 * time.Second
)

// State is a snapshot of the store. User is nil exactly when Session is.
type State struct {
	User    *auth.User
	Session *auth.Session
	// Ready is false until the persisted session has been fetched.
	Ready bool
	// PasswordRecovery is set by a PasswordRecovery event and cleared by
	// the next sign-in or sign-out.
	PasswordRecovery bool
}

// Listener observes every state change. Listeners must not call Close.
type Listener func(State)

type Options struct {
	Provider  auth.Provider
	Gateway   *gateway.Gateway
	Pending   *pending.Gate
	Policy    navigation.Policy
	Location  navigation.Location
	Navigator navigation.Navigator
	Notifier  notify.Notifier

	// LandingRoute is where sign-out always navigates.
	LandingRoute     string
	HydrationTimeout time.Duration
	Logger           *slog.Logger
}

type Store struct {
	provider     auth.Provider
	gateway      *gateway.Gateway
	pending      *pending.Gate
	policy       navigation.Policy
	location     navigation.Location
	navigator    navigation.Navigator
	notifier     notify.Notifier
	landingRoute string
	hydrateFor   time.Duration
	logger       *slog.Logger

	mu        sync.RWMutex
	state     State
	listeners map[uint64]*listener
	nextID    uint64
	started   bool
	closed    bool

	// Owned by the run goroutine.
	initialLoad bool
	lastSeq     uint64
	deferred    []func()

	fetched atomic.Pointer[hydration]

	unsubscribe func()
	stop        chan struct{}
	done        chan struct{}
	ready       chan struct{}
	closeOnce   sync.Once
}

type listener struct {
	fn     Listener
	active atomic.Bool
}

type hydration struct {
	session *auth.Session
	err     error
	// mark is the provider's event Seq when the fetch returned.
	mark uint64
}

func New(opts Options) *Store {
	hydrateFor := opts.HydrationTimeout
	if hydrateFor <= 0 {
		hydrateFor = defaultHydrationTimeout
	}

	return &Store{
		provider:     opts.Provider,
		gateway:      opts.Gateway,
		pending:      opts.Pending,
		policy:       opts.Policy,
		location:     opts.Location,
		navigator:    opts.Navigator,
		notifier:     opts.Notifier,
		landingRoute: opts.LandingRoute,
		hydrateFor:   hydrateFor,
		logger:       opts.Logger.With("component", "session_store"),
		listeners:    make(map[uint64]*listener),
		initialLoad:  true,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		ready:        make(chan struct{}),
	}
}

// Start subscribes to the provider and begins hydration. It returns
// immediately; Ready is closed once hydration has been applied. Calling
// Start more than once, or after Close, has no effect.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	events, unsubscribe := s.provider.OnAuthStateChange()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	hydrated := make(chan *hydration, 1)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, s.hydrateFor)
		defer cancel()

		session, err := s.provider.GetCurrentSession(ctx)
		h := &hydration{session: session, err: err, mark: s.provider.EventSeq()}
		s.fetched.Store(h)
		hydrated <- h
	}()

	go s.run(events, hydrated)
}

// Close releases the event subscription and waits for the event loop to
// exit. Credential operations still in flight complete unobserved.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)

		s.mu.Lock()
		s.closed = true
		started := s.started
		unsubscribe := s.unsubscribe
		s.mu.Unlock()

		if !started {
			return
		}
		unsubscribe()
		<-s.done
	})
}

// Ready is closed once the persisted session has been fetched.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Session returns the current state without blocking.
func (s *Store) Session() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for every subsequent state change. The returned
// function unregisters it; fn is not called after it returns.
func (s *Store) Subscribe(fn Listener) func() {
	l := &listener{fn: fn}
	l.active.Store(true)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		l.active.Store(false)

		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) run(events <-chan auth.Event, hydrated <-chan *hydration) {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.dispatch(evt)
		case h := <-hydrated:
			hydrated = nil
			s.drain(events)
			if s.initialLoad {
				s.handleHydration(h)
			}
		}

		s.runDeferred()
	}
}

func (s *Store) drain(events <-chan auth.Event) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.dispatch(evt)
		default:
			return
		}
	}
}

// dispatch applies a fetched session ahead of the first event published
// after the fetch returned, so that event is handled as live.
func (s *Store) dispatch(evt auth.Event) {
	if s.initialLoad {
		if h := s.fetched.Load(); h != nil && evt.Seq > h.mark {
			s.handleHydration(h)
		}
	}
	s.handleEvent(evt)
}

func (s *Store) handleEvent(evt auth.Event) {
	if evt.Seq > s.lastSeq {
		s.lastSeq = evt.Seq
	}
	s.logger.Debug("auth event", "event", evt.Kind.String(), "initial_load", s.initialLoad)

	s.update(func(st *State) {
		st.Session = evt.Session
		st.User = auth.UserOf(evt.Session)

		switch evt.Kind {
		case auth.EventPasswordRecovery:
			st.PasswordRecovery = true
		case auth.EventSignedIn, auth.EventSignedOut:
			st.PasswordRecovery = false
		}
	})

	if evt.Kind != auth.EventSignedIn || evt.Session == nil {
		return
	}

	in := navigation.Input{
		Event:       evt.Kind,
		InitialLoad: s.initialLoad,
		CurrentPath: s.location.CurrentPath(),
	}
	if !in.InitialLoad {
		in.PendingAction = s.hasPendingAction()
	}

	if target, ok := s.policy.Decide(in); ok {
		s.deferred = append(s.deferred, func() {
			s.navigator.NavigateTo(target)
		})
	}
}

func (s *Store) handleHydration(h *hydration) {
	if h.err != nil {
		s.logger.Warn("failed to fetch persisted session", "error", h.err)
	}
	// An event newer than the fetch already holds the current session.
	stale := s.lastSeq > h.mark

	s.initialLoad = false
	s.update(func(st *State) {
		if h.err == nil && !stale {
			st.Session = h.session
			st.User = auth.UserOf(h.session)
		}
		st.Ready = true
	})
	close(s.ready)

	s.logger.Info("session hydrated", "signed_in", s.Session().User != nil)
}

// hasPendingAction treats an unreadable marker as present so a caller's
// flow is never navigated away from.
func (s *Store) hasPendingAction() bool {
	ctx, cancel := context.WithTimeout(context.Background(), pendingReadTimeout)
	defer cancel()

	action, err := s.pending.Peek(ctx)
	if err != nil {
		s.logger.Warn("failed to read pending action, suppressing navigation", "error", err)
		return true
	}
	if action != nil {
		s.logger.Debug("pending action present, not navigating", "kind", action.Kind)
	}
	return action != nil
}

func (s *Store) runDeferred() {
	for len(s.deferred) > 0 {
		tasks := s.deferred
		s.deferred = nil
		for _, task := range tasks {
			task()
		}
	}
}

func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	snapshot := s.state
	listeners := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		if l.active.Load() {
			l.fn(snapshot)
		}
	}
}
