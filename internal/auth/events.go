package auth

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// EventKind tags a transition reported by the provider's event stream.
type EventKind int

const (
	EventInitialSession EventKind = iota
	EventSignedIn
	EventSignedOut
	EventPasswordRecovery
	EventTokenRefreshed
)

func (k EventKind) String() string {
	switch k {
	case EventInitialSession:
		return "INITIAL_SESSION"
	case EventSignedIn:
		return "SIGNED_IN"
	case EventSignedOut:
		return "SIGNED_OUT"
	case EventPasswordRecovery:
		return "PASSWORD_RECOVERY"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	default:
		return "UNKNOWN"
	}
}

// Event is a single auth transition. Session is nil for SignedOut and may be
// nil for InitialSession.
type Event struct {
	Kind    EventKind
	Session *Session
	// Seq is stamped by the Broadcaster. Events reach every subscriber in
	// Seq order; an initial event carries the Seq current at subscription.
	Seq uint64
}

const subscriberBuffer = 32

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Broadcaster fans provider events out to subscribers in publish order.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*subscriber

	// publishMu keeps Seq order and delivery order the same.
	publishMu sync.Mutex
	seq       atomic.Uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uuid.UUID]*subscriber)}
}

// Subscribe registers a subscriber. Any initial events are queued on the
// new channel ahead of everything published afterwards. The returned
// function is idempotent.
func (b *Broadcaster) Subscribe(initial ...Event) (<-chan Event, func()) {
	id := uuid.New()
	sub := &subscriber{
		ch:   make(chan Event, subscriberBuffer+len(initial)),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	for _, evt := range initial {
		evt.Seq = b.seq.Load()
		sub.ch <- evt
	}
	b.subs[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		sub.once.Do(func() {
			close(sub.done)

			b.mu.Lock()
			delete(b.subs, id)
			close(sub.ch)
			b.mu.Unlock()
		})
	}

	return sub.ch, unsubscribe
}

// Publish delivers evt to every current subscriber. It blocks while a
// subscriber's buffer is full and gives up on subscribers that unsubscribe.
func (b *Broadcaster) Publish(evt Event) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	evt.Seq = b.seq.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		case <-sub.done:
		}
	}
}

// Seq returns the sequence number of the last published event. Every
// event published after Seq returns carries a larger number.
func (b *Broadcaster) Seq() uint64 {
	return b.seq.Load()
}

// Len reports the number of live subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
