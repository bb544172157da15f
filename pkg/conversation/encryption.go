package conversation

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/ports"
)

// envelopePrefix marks encrypted message content.
const envelopePrefix = "enc:v1:"

// ErrInvalidKey is returned for keys that are not 32 bytes long.
var ErrInvalidKey = errors.New("encryption key must be 32 bytes (AES-256)")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new messages. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried when decryption with ActiveKey fails,
	// which allows key rotation without rewriting history.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.ConversationStore
	config EncryptionConfig
}

// NewEncryptionMiddleware stores message content sealed with AES-GCM.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrInvalidKey
	}
	for _, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, ErrInvalidKey
		}
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Append(ctx context.Context, participantID string, msg domain.Message) error {
	sealed, err := encrypt([]byte(msg.Content), m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt message: %w", err)
	}
	msg.Content = envelopePrefix + base64.StdEncoding.EncodeToString(sealed)
	return m.next.Append(ctx, participantID, msg)
}

func (m *encryptionMiddleware) Recent(ctx context.Context, participantID string, limit int) ([]domain.Message, error) {
	msgs, err := m.next.Recent(ctx, participantID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, len(msgs))
	for i, msg := range msgs {
		encoded, ok := strings.CutPrefix(msg.Content, envelopePrefix)
		if !ok {
			// Fail secure: plaintext rows are not trusted once encryption is on.
			return nil, errors.New("message is missing encrypted envelope")
		}
		sealed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
		}
		plain, err := decryptWithRotation(sealed, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt message: %w", err)
		}
		msg.Content = string(plain)
		out[i] = msg
	}
	return out, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
