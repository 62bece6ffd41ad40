// Package notify carries user-facing notifications from the session
// coordinator to whatever presents them.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
)

// Notifier is fire-and-forget.
type Notifier interface {
	Notify(kind Kind, title, message string)
}

type Notification struct {
	Kind    Kind      `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Feed logs notifications and keeps the most recent ones for the view
// layer to poll.
type Feed struct {
	mu     sync.RWMutex
	items  []Notification
	limit  int
	logger *slog.Logger
}

func NewFeed(limit int, logger *slog.Logger) *Feed {
	if limit < 1 {
		limit = 1
	}
	return &Feed{
		limit:  limit,
		logger: logger.With("component", "notify"),
	}
}

func (f *Feed) Notify(kind Kind, title, message string) {
	n := Notification{Kind: kind, Title: title, Message: message, At: time.Now().UTC()}

	f.mu.Lock()
	f.items = append(f.items, n)
	if over := len(f.items) - f.limit; over > 0 {
		f.items = f.items[over:]
	}
	f.mu.Unlock()

	f.logger.Info("notification", "kind", kind, "title", title)
}

// Recent returns the retained notifications, oldest first.
func (f *Feed) Recent() []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Notification, len(f.items))
	copy(out, f.items)
	return out
}
