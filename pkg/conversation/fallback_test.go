package conversation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/wren/pkg/adapters/memory"
	"github.com/aretw0/wren/pkg/conversation"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("database is down")

func TestFallback_Contract(t *testing.T) {
	ports.RunConversationStoreContract(t, conversation.NewFallback(
		memory.NewConversationBuffer(10),
		memory.NewConversationBuffer(10),
	))
}

func TestFallback_ReadsPrimaryFirst(t *testing.T) {
	primary := new(MockStore)
	secondary := new(MockStore)
	want := []domain.Message{{Role: domain.MessageUser, Content: "durable"}}
	primary.On("Recent", mock.Anything, "p1", 5).Return(want, nil)

	f := conversation.NewFallback(primary, secondary)
	got, err := f.Recent(context.Background(), "p1", 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	secondary.AssertNotCalled(t, "Recent", mock.Anything, mock.Anything, mock.Anything)
}

func TestFallback_ReadFallsBackOnError(t *testing.T) {
	primary := new(MockStore)
	primary.On("Append", mock.Anything, "p1", mock.Anything).Return(errDown)
	primary.On("Recent", mock.Anything, "p1", 5).Return(nil, errDown)
	buffer := memory.NewConversationBuffer(10)

	f := conversation.NewFallback(primary, buffer)
	ctx := context.Background()

	err := f.Append(ctx, "p1", domain.Message{Role: domain.MessageUser, Content: "hello"})
	assert.ErrorIs(t, err, errDown)

	got, err := f.Recent(ctx, "p1", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Content)
	primary.AssertExpectations(t)
}

func TestFallback_SecondaryWriteErrorIsNotReturned(t *testing.T) {
	secondary := new(MockStore)
	secondary.On("Append", mock.Anything, "p1", mock.Anything).Return(errDown)
	durable := memory.NewConversationBuffer(10)

	f := conversation.NewFallback(durable, secondary)
	ctx := context.Background()

	require.NoError(t, f.Append(ctx, "p1", domain.Message{Role: domain.MessageAssistant, Content: "ok"}))
	got, err := durable.Recent(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	secondary.AssertExpectations(t)
}
