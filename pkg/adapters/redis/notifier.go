package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/wren/internal/logging"
	backend "github.com/redis/go-redis/v9"
)

// Notifier implements ports.Notifier over Redis Pub/Sub so that feed loops on
// every replica wake up after a write on any of them.
type Notifier struct {
	client backend.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewNotifier creates a Pub/Sub notifier.
func NewNotifier(client backend.UniversalClient, prefix string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Notifier{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (n *Notifier) channel(sessionID string) string {
	return n.prefix + "feed:" + sessionID
}

// Notify publishes a wake-up for the session.
func (n *Notifier) Notify(ctx context.Context, sessionID string) error {
	if err := n.client.Publish(ctx, n.channel(sessionID), "1").Err(); err != nil {
		return fmt.Errorf("publish feed notification: %w", err)
	}
	return nil
}

// Subscribe listens for wake-ups of the session. If the subscription cannot
// be established the returned channel never fires and callers keep polling.
func (n *Notifier) Subscribe(ctx context.Context, sessionID string) (<-chan struct{}, func()) {
	out := make(chan struct{}, 1)
	subCtx, cancel := context.WithCancel(ctx)

	ps := n.client.Subscribe(subCtx, n.channel(sessionID))
	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
		})
	}

	// Wait for the subscription confirmation so no publish is missed afterwards.
	if _, err := ps.Receive(subCtx); err != nil {
		n.logger.Warn("Feed subscription failed, falling back to polling",
			"session_id", sessionID,
			"err", err,
		)
		release()
		return out, release
	}

	msgs := ps.Channel()
	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, release
}
