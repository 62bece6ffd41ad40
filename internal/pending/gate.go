// Package pending persists the marker a caller sets before an
// authentication flow it intends to resume itself.
//
// Lifecycle: the owner sets the marker, the session store peeks it once on
// a live sign-in to suppress automatic navigation, and the owner clears it
// after resuming. The gate never clears the marker on its own.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marcogenualdo/session-coordinator/internal/storage"
)

const Key = "pending_action"

// Action is the persisted marker.
type Action struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	ResumePath string    `json:"resume_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewAction(kind, resumePath string) Action {
	return Action{
		ID:         uuid.New().String(),
		Kind:       kind,
		ResumePath: resumePath,
		CreatedAt:  time.Now().UTC(),
	}
}

type Gate struct {
	store storage.Store
}

func NewGate(store storage.Store) *Gate {
	return &Gate{store: store}
}

// Peek returns the marker without clearing it, or nil when none is set.
func (g *Gate) Peek(ctx context.Context) (*Action, error) {
	data, err := g.store.Get(ctx, Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pending action: %w", err)
	}

	var action Action
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, fmt.Errorf("failed to decode pending action: %w", err)
	}

	return &action, nil
}

func (g *Gate) Set(ctx context.Context, action Action) error {
	if action.Kind == "" {
		return errors.New("pending action kind is required")
	}
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to encode pending action: %w", err)
	}

	if err := g.store.Set(ctx, Key, data, 0); err != nil {
		return fmt.Errorf("failed to store pending action: %w", err)
	}

	return nil
}

func (g *Gate) Clear(ctx context.Context) error {
	if err := g.store.Remove(ctx, Key); err != nil {
		return fmt.Errorf("failed to clear pending action: %w", err)
	}
	return nil
}
