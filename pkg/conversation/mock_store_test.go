package conversation_test

import (
	"context"

	"github.com/aretw0/wren/pkg/domain"
	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of ports.ConversationStore.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Append(ctx context.Context, participantID string, msg domain.Message) error {
	args := m.Called(ctx, participantID, msg)
	return args.Error(0)
}

func (m *MockStore) Recent(ctx context.Context, participantID string, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, participantID, limit)
	msgs, _ := args.Get(0).([]domain.Message)
	return msgs, args.Error(1)
}
