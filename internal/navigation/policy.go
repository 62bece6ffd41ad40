// Package navigation decides where the application goes as a side effect
// of authentication events and tracks where it currently is.
package navigation

import (
	"net/url"
	"slices"
	"strings"

	"github.com/marcogenualdo/session-coordinator/internal/auth"
)

// Navigator moves the view layer to path. It is fire-and-forget.
type Navigator interface {
	NavigateTo(path string)
}

// Location reports the path the view layer is currently showing.
type Location interface {
	CurrentPath() string
}

// Policy chooses the post-sign-in destination.
type Policy struct {
	// EntryPaths are the only paths a fresh sign-in redirects away from.
	EntryPaths         []string
	AuthenticatedRoute string
}

type Input struct {
	Event         auth.EventKind
	InitialLoad   bool
	CurrentPath   string
	PendingAction bool
}

// Decide returns the navigation target for in, if any. Only a live SignedIn
// on an entry path with no pending action navigates.
func (p Policy) Decide(in Input) (string, bool) {
	switch {
	case in.Event != auth.EventSignedIn:
		return "", false
	case in.InitialLoad:
		return "", false
	case in.PendingAction:
		return "", false
	case !slices.Contains(p.EntryPaths, in.CurrentPath):
		return "", false
	}
	return p.AuthenticatedRoute, true
}

// IsLocalPath reports whether p is an absolute path on this origin.
// Browsers read "//host" and "/\host" as another host.
func IsLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}
