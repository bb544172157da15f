// Package dice implements the success-counting dice pool used by /roll.
//
// # Notation
//
// A spec is "NdM" (N dice with M faces), "dM" (one die) or a bare "N", which
// implies six-sided dice. The count is clamped to MaxDice. Arguments that are
// not a spec roll DefaultSpec and become the comment.
//
// # Successes and glitches
//
// A die succeeds when it shows one of its top two faces (5 or 6 on a d6).
// A glitch happens when at least half of the dice show 1, using real
// division, so three dice glitch on two ones. A critical glitch is a glitch
// with zero successes.
//
// # Determinism
//
// A Roller built with the same seed produces the same sequence of results.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
)

const (
	// MaxDice caps the pool size of a single roll.
	MaxDice = 100
	// DefaultFaces is used for bare counts.
	DefaultFaces = 6
	// DefaultSpec is rolled when no notation is given.
	DefaultSpec = "1d6"
)

var (
	// ErrInvalidSpec is returned for notation that is not NdM, dM or N.
	ErrInvalidSpec = errors.New("invalid dice spec")
)

// Spec is a parsed dice notation.
type Spec struct {
	Count int
	Faces int
}

func (s Spec) String() string {
	return fmt.Sprintf("%dd%d", s.Count, s.Faces)
}

// Result is the outcome of one pool roll.
type Result struct {
	Dice           string `json:"dice"`
	Count          int    `json:"-"`
	Faces          int    `json:"-"`
	Values         []int  `json:"results"`
	Successes      int    `json:"successes"`
	Ones           int    `json:"-"`
	Glitch         bool   `json:"glitch"`
	CriticalGlitch bool   `json:"critical_glitch"`
}

// ParseSpec parses "NdM", "dM" or "N". An empty string yields DefaultSpec.
// An omitted count means one die. Counts are clamped to [1, MaxDice] and faces
// to at least two.
func ParseSpec(s string) (Spec, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = DefaultSpec
	}

	countPart, facesPart, hasD := strings.Cut(s, "d")
	spec := Spec{Count: 1, Faces: DefaultFaces}

	if countPart != "" || !hasD {
		count, err := strconv.Atoi(countPart)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %q", ErrInvalidSpec, s)
		}
		spec.Count = min(max(count, 1), MaxDice)
	}

	if hasD {
		faces, err := strconv.Atoi(facesPart)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %q", ErrInvalidSpec, s)
		}
		spec.Faces = max(faces, 2)
	}
	return spec, nil
}

// ParseArgs reads /roll arguments. When the first argument is a dice spec the
// rest form the comment; otherwise DefaultSpec is rolled and every argument
// is the comment.
func ParseArgs(args []string) (Spec, string) {
	if len(args) > 0 {
		if spec, err := ParseSpec(args[0]); err == nil {
			return spec, strings.Join(args[1:], " ")
		}
	}
	spec, _ := ParseSpec(DefaultSpec)
	return spec, strings.Join(args, " ")
}

// Evaluate scores a set of values rolled with the given face count.
func Evaluate(faces int, values []int) Result {
	res := Result{
		Count:  len(values),
		Faces:  faces,
		Values: values,
	}
	res.Dice = Spec{Count: res.Count, Faces: faces}.String()
	for _, v := range values {
		if v >= faces-1 {
			res.Successes++
		}
		if v == 1 {
			res.Ones++
		}
	}
	res.Glitch = res.Count > 0 && float64(res.Ones) >= float64(res.Count)/2
	res.CriticalGlitch = res.Glitch && res.Successes == 0
	return res
}

// Roller rolls dice pools. Safe for concurrent use.
type Roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRoller creates a Roller seeded with seed.
func NewRoller(seed int64) *Roller {
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Roll rolls the pool described by spec.
func (r *Roller) Roll(spec Spec) Result {
	values := make([]int, spec.Count)
	r.mu.Lock()
	for i := range values {
		values[i] = r.rng.Intn(spec.Faces) + 1
	}
	r.mu.Unlock()
	return Evaluate(spec.Faces, values)
}

// Format renders a result for the scene log. comment may be empty.
func Format(res Result, comment string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎲 Rolled %s: [", res.Dice)
	for i, v := range res.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteString("]\n")
	fmt.Fprintf(&b, "Successes: %d\n", res.Successes)
	switch {
	case res.CriticalGlitch:
		b.WriteString("**CRITICAL GLITCH!**\n")
	case res.Glitch:
		b.WriteString("**GLITCH!**\n")
	}
	if comment != "" {
		b.WriteString("Comment: " + comment)
	}
	return b.String()
}
