package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifier_WakesSubscribers(t *testing.T) {
	n := NewNotifier()
	ctx := context.Background()

	a, cancelA := n.Subscribe(ctx, "sr-1")
	defer cancelA()
	b, cancelB := n.Subscribe(ctx, "sr-1")
	defer cancelB()
	other, cancelOther := n.Subscribe(ctx, "sr-2")
	defer cancelOther()

	assert.NoError(t, n.Notify(ctx, "sr-1"))

	for _, ch := range []<-chan struct{}{a, b} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber was not woken")
		}
	}
	select {
	case <-other:
		t.Fatal("notification leaked to another session")
	default:
	}
}

func TestNotifier_CoalescesPendingWakeups(t *testing.T) {
	n := NewNotifier()
	ctx := context.Background()

	ch, cancel := n.Subscribe(ctx, "sr-1")
	defer cancel()

	for i := 0; i < 5; i++ {
		assert.NoError(t, n.Notify(ctx, "sr-1"))
	}
	<-ch
	select {
	case <-ch:
		t.Fatal("expected a single pending wake-up")
	default:
	}
}

func TestNotifier_CancelReleases(t *testing.T) {
	n := NewNotifier()
	_, cancel := n.Subscribe(context.Background(), "sr-1")
	assert.Equal(t, 1, n.Subscribers("sr-1"))
	cancel()
	cancel()
	assert.Equal(t, 0, n.Subscribers("sr-1"))
}
