package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/marcogenualdo/session-coordinator/internal/storage"
)

// UserKey holds the JSON-encoded signed-in user, removed on sign-out.
const UserKey = "user"

const userWriteTimeout = 2 * time.Second

// PersistUser returns a listener that mirrors the signed-in user into store
// so other processes can read it without talking to the provider.
func PersistUser(store storage.Store, logger *slog.Logger) Listener {
	logger = logger.With("component", "user_blob")

	return func(st State) {
		ctx, cancel := context.WithTimeout(context.Background(), userWriteTimeout)
		defer cancel()

		if st.User == nil {
			if err := store.Remove(ctx, UserKey); err != nil {
				logger.Warn("failed to remove user", "error", err)
			}
			return
		}

		data, err := json.Marshal(st.User)
		if err != nil {
			logger.Error("failed to encode user", "error", err)
			return
		}

		if err := store.Set(ctx, UserKey, data, 0); err != nil {
			logger.Warn("failed to persist user", "error", err)
		}
	}
}
