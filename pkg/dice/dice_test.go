package dice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    Spec
		wantErr error
	}{
		{in: "", want: Spec{Count: 1, Faces: 6}},
		{in: "3d6", want: Spec{Count: 3, Faces: 6}},
		{in: "2D10", want: Spec{Count: 2, Faces: 10}},
		{in: "5", want: Spec{Count: 5, Faces: 6}},
		{in: "500d6", want: Spec{Count: MaxDice, Faces: 6}},
		{in: "d6", want: Spec{Count: 1, Faces: 6}},
		{in: "D20", want: Spec{Count: 1, Faces: 20}},
		{in: "0", want: Spec{Count: 1, Faces: 6}},
		{in: "0d6", want: Spec{Count: 1, Faces: 6}},
		{in: "3d1", want: Spec{Count: 3, Faces: 2}},
		{in: "3d", wantErr: ErrInvalidSpec},
		{in: "d", wantErr: ErrInvalidSpec},
		{in: "fireball", wantErr: ErrInvalidSpec},
		{in: "2d6d6", wantErr: ErrInvalidSpec},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSpec(tt.in)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantSpec    Spec
		wantComment string
	}{
		{name: "no args", args: nil, wantSpec: Spec{Count: 1, Faces: 6}},
		{name: "spec and comment", args: []string{"3d6", "sneak", "past"}, wantSpec: Spec{Count: 3, Faces: 6}, wantComment: "sneak past"},
		{name: "omitted count", args: []string{"d8"}, wantSpec: Spec{Count: 1, Faces: 8}},
		{name: "zero count", args: []string{"0", "nothing"}, wantSpec: Spec{Count: 1, Faces: 6}, wantComment: "nothing"},
		{name: "comment only", args: []string{"sneak", "past", "the", "guard"}, wantSpec: Spec{Count: 1, Faces: 6}, wantComment: "sneak past the guard"},
		{name: "broken spec kept as comment", args: []string{"3d", "hack"}, wantSpec: Spec{Count: 1, Faces: 6}, wantComment: "3d hack"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, comment := ParseArgs(tt.args)
			assert.Equal(t, tt.wantSpec, spec)
			assert.Equal(t, tt.wantComment, comment)
		})
	}
}

func TestRoll_3d6Properties(t *testing.T) {
	roller := NewRoller(7)
	for i := 0; i < 2000; i++ {
		res := roller.Roll(Spec{Count: 3, Faces: 6})
		require.Len(t, res.Values, 3)

		ones := 0
		for _, v := range res.Values {
			require.GreaterOrEqual(t, v, 1)
			require.LessOrEqual(t, v, 6)
			if v == 1 {
				ones++
			}
		}
		assert.Equal(t, ones >= 2, res.Glitch)
		if res.CriticalGlitch {
			assert.True(t, res.Glitch)
			assert.Zero(t, res.Successes)
		}
	}
}

func TestRoll_Deterministic(t *testing.T) {
	a := NewRoller(42).Roll(Spec{Count: 10, Faces: 6})
	b := NewRoller(42).Roll(Spec{Count: 10, Faces: 6})
	assert.Equal(t, a.Values, b.Values)
}

func TestEvaluate(t *testing.T) {
	t.Run("top two faces succeed", func(t *testing.T) {
		res := Evaluate(6, []int{5, 6, 4, 2})
		assert.Equal(t, 2, res.Successes)
		assert.False(t, res.Glitch)

		res = Evaluate(10, []int{9, 10, 8})
		assert.Equal(t, 2, res.Successes)
	})

	t.Run("glitch with successes", func(t *testing.T) {
		res := Evaluate(6, []int{1, 1, 6, 3})
		assert.True(t, res.Glitch)
		assert.False(t, res.CriticalGlitch)
	})

	t.Run("critical glitch", func(t *testing.T) {
		res := Evaluate(6, []int{1, 1, 3})
		assert.True(t, res.Glitch)
		assert.True(t, res.CriticalGlitch)
	})

	t.Run("single one glitches", func(t *testing.T) {
		res := Evaluate(6, []int{1})
		assert.True(t, res.CriticalGlitch)
	})
}

func TestFormat(t *testing.T) {
	res := Evaluate(6, []int{1, 1, 3})
	assert.Equal(t,
		"🎲 Rolled 3d6: [1, 1, 3]\nSuccesses: 0\n**CRITICAL GLITCH!**\nComment: dodge",
		Format(res, "dodge"),
	)

	res = Evaluate(6, []int{6, 1})
	assert.Equal(t, "🎲 Rolled 2d6: [6, 1]\nSuccesses: 1\n**GLITCH!**\n", Format(res, ""))

	res = Evaluate(6, []int{5, 4})
	assert.Equal(t, "🎲 Rolled 2d6: [5, 4]\nSuccesses: 1\n", Format(res, ""))
}
