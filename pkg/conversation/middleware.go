// Package conversation composes the per-participant history stores used by
// the completion bridge.
//
// Stores are combined with decorators: Fallback pairs a durable store with a
// process-local buffer, and Middleware values (encryption, redaction) wrap a
// single store to transform what it persists.
package conversation

import "github.com/aretw0/wren/pkg/ports"

// Middleware wraps a ConversationStore to add behavior.
type Middleware func(ports.ConversationStore) ports.ConversationStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.ConversationStore, mws ...Middleware) ports.ConversationStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
