package conversation_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/wren/pkg/adapters/memory"
	"github.com/aretw0/wren/pkg/conversation"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestEncryption_Roundtrip(t *testing.T) {
	inner := memory.NewConversationBuffer(10)
	mw, err := conversation.NewEncryptionMiddleware(conversation.EncryptionConfig{ActiveKey: key(1)})
	require.NoError(t, err)
	store := mw(inner)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "p1", domain.Message{Role: domain.MessageUser, Content: "my SIN is fake"}))

	raw, err := inner.Recent(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.True(t, strings.HasPrefix(raw[0].Content, "enc:v1:"))
	assert.NotContains(t, raw[0].Content, "SIN")

	got, err := store.Recent(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "my SIN is fake", got[0].Content)
	assert.Equal(t, domain.MessageUser, got[0].Role)
}

func TestEncryption_KeyRotation(t *testing.T) {
	inner := memory.NewConversationBuffer(10)
	ctx := context.Background()

	oldMW, err := conversation.NewEncryptionMiddleware(conversation.EncryptionConfig{ActiveKey: key(1)})
	require.NoError(t, err)
	require.NoError(t, oldMW(inner).Append(ctx, "p1", domain.Message{Role: domain.MessageUser, Content: "before"}))

	newMW, err := conversation.NewEncryptionMiddleware(conversation.EncryptionConfig{
		ActiveKey:    key(2),
		FallbackKeys: [][]byte{key(1)},
	})
	require.NoError(t, err)
	got, err := newMW(inner).Recent(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, "before", got[0].Content)

	strictMW, err := conversation.NewEncryptionMiddleware(conversation.EncryptionConfig{ActiveKey: key(3)})
	require.NoError(t, err)
	_, err = strictMW(inner).Recent(ctx, "p1", 0)
	assert.Error(t, err)
}

func TestEncryption_RejectsPlaintextAndBadKeys(t *testing.T) {
	_, err := conversation.NewEncryptionMiddleware(conversation.EncryptionConfig{ActiveKey: []byte("short")})
	assert.ErrorIs(t, err, conversation.ErrInvalidKey)

	inner := memory.NewConversationBuffer(10)
	ctx := context.Background()
	require.NoError(t, inner.Append(ctx, "p1", domain.Message{Role: domain.MessageUser, Content: "plain"}))

	mw, err := conversation.NewEncryptionMiddleware(conversation.EncryptionConfig{ActiveKey: key(1)})
	require.NoError(t, err)
	_, err = mw(inner).Recent(ctx, "p1", 0)
	assert.Error(t, err)
}

func TestRedact(t *testing.T) {
	inner := memory.NewConversationBuffer(10)
	mw, err := conversation.NewRedactMiddleware([]string{`\b\d{4}-\d{4}-\d{4}-\d{4}\b`, `(?i)password=\S+`})
	require.NoError(t, err)
	ctx := context.Background()

	store := conversation.Chain(inner, mw)
	require.NoError(t, store.Append(ctx, "p1", domain.Message{
		Role:    domain.MessageUser,
		Content: "card 1234-5678-9012-3456 and Password=hunter2 ok",
	}))

	got, err := store.Recent(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, "card *** and *** ok", got[0].Content)

	_, err = conversation.NewRedactMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_Order(t *testing.T) {
	inner := memory.NewConversationBuffer(10)
	redact, err := conversation.NewRedactMiddleware([]string{"secret"})
	require.NoError(t, err)
	enc, err := conversation.NewEncryptionMiddleware(conversation.EncryptionConfig{ActiveKey: key(9)})
	require.NoError(t, err)
	ctx := context.Background()

	// Redaction runs before encryption, so the plaintext never holds the secret.
	store := conversation.Chain(inner, redact, enc)
	require.NoError(t, store.Append(ctx, "p1", domain.Message{Role: domain.MessageUser, Content: "the secret word"}))

	got, err := store.Recent(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, "the *** word", got[0].Content)
}
