package ports

import "context"

// Notifier wakes change-feed loops when a session is written to.
// It carries no payload: subscribers always re-read the Store.
type Notifier interface {
	Notify(ctx context.Context, sessionID string) error

	// Subscribe returns a channel signalled after writes to the session and a
	// cancel function that MUST be called to release it.
	Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, func())
}
