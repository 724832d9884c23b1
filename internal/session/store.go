// Package session persists booking contexts between chat turns, keyed by
// the conversation's session ID.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/averyhale/booking-concierge/internal/scheduler"
)

// DefaultTTL bounds how long an abandoned conversation survives.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned when no context is stored for a session.
var ErrNotFound = errors.New("session: context not found")

// Store loads and saves the booking context for a session. Save replaces
// the stored context and refreshes its TTL; Delete ends the session.
type Store interface {
	Load(ctx context.Context, sessionID string) (*scheduler.BookingContext, error)
	Save(ctx context.Context, sessionID string, bc *scheduler.BookingContext) error
	Delete(ctx context.Context, sessionID string) error
}
