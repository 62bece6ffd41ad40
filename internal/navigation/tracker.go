package navigation

import (
	"log/slog"
	"sync"
	"time"
)

// Visit is one entry of the navigation history.
type Visit struct {
	Path string    `json:"path"`
	At   time.Time `json:"at"`
	// Source is "coordinator" for navigations the session store issued and
	// "view" for paths reported by the view layer.
	Source string `json:"source"`
}

// Tracker is the current location shared by the view layer and the session
// store. It implements both Location and Navigator.
type Tracker struct {
	mu      sync.RWMutex
	path    string
	history []Visit
	limit   int
	logger  *slog.Logger
}

func NewTracker(initial string, limit int, logger *slog.Logger) *Tracker {
	if limit < 1 {
		limit = 1
	}
	return &Tracker{
		path:   initial,
		limit:  limit,
		logger: logger.With("component", "navigation"),
	}
}

func (t *Tracker) CurrentPath() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path
}

func (t *Tracker) NavigateTo(path string) {
	t.record(path, "coordinator")
	t.logger.Info("navigate", "path", path)
}

// Report records a path the view layer moved to on its own.
func (t *Tracker) Report(path string) {
	t.record(path, "view")
}

func (t *Tracker) History() []Visit {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Visit, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Tracker) record(path, source string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.path = path
	t.history = append(t.history, Visit{Path: path, At: time.Now().UTC(), Source: source})
	if over := len(t.history) - t.limit; over > 0 {
		t.history = t.history[over:]
	}
}
