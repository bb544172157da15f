package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	c := Cursor{
		Seq:        42,
		EntitiesAt: time.Unix(0, 1700000000123456789).UTC(),
		SceneAt:    time.Unix(0, 1700000000987654321).UTC(),
	}

	parsed, err := ParseCursor(c.String())
	require.NoError(t, err)
	assert.Equal(t, c.Seq, parsed.Seq)
	assert.True(t, c.EntitiesAt.Equal(parsed.EntitiesAt))
	assert.True(t, c.SceneAt.Equal(parsed.SceneAt))
}

func TestParseCursor_BareSequence(t *testing.T) {
	c, err := ParseCursor("7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.Seq)
	assert.True(t, c.EntitiesAt.IsZero())
	assert.True(t, c.SceneAt.IsZero())

	zero, err := ParseCursor("")
	require.NoError(t, err)
	assert.Equal(t, Cursor{}, zero)
}

func TestParseCursor_Malformed(t *testing.T) {
	for _, in := range []string{"abc", "1:2", "-1", "1:x:3"} {
		_, err := ParseCursor(in)
		assert.ErrorIs(t, err, ErrValidation, in)
	}
}
