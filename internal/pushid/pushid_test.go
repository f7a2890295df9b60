package pushid

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`^[-0-9A-Z_a-z]{20}$`)

func TestNextFormat(t *testing.T) {
	g := New()
	id, err := g.Next()
	require.NoError(t, err)
	assert.Regexp(t, idPattern, id)
}

func TestNextMonotonicAcrossDuplicateMillis(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	g := New()
	g.now = func() time.Time { return fixed }

	seed := byte(0)
	g.randomize = func(dst []byte) error {
		for i := range dst {
			dst[i] = seed
		}
		return nil
	}

	first, err := g.Next()
	require.NoError(t, err)
	second, err := g.Next()
	require.NoError(t, err)
	third, err := g.Next()
	require.NoError(t, err)

	assert.Less(t, first, second)
	assert.Less(t, second, third)
}

func TestNextDistinctTimestampsReseed(t *testing.T) {
	g := New()
	calls := 0
	g.randomize = func(dst []byte) error {
		calls++
		return fillRandom(dst)
	}
	t0 := time.UnixMilli(1_700_000_000_000)
	g.now = func() time.Time { return t0 }
	_, err := g.Next()
	require.NoError(t, err)

	g.now = func() time.Time { return t0.Add(time.Millisecond) }
	_, err = g.Next()
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "a new millisecond should reseed randomness rather than increment")
}

func TestIncrementCounterCarries(t *testing.T) {
	rnd := [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 62, 63}
	overflowed, err := incrementCounter(&rnd)
	require.NoError(t, err)
	assert.False(t, overflowed)
	assert.Equal(t, [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 63, 0}, rnd)
}

func TestIncrementCounterOverflowsWhenAllMax(t *testing.T) {
	rnd := [12]byte{63, 63, 63, 63, 63, 63, 63, 63, 63, 63, 63, 63}
	overflowed, err := incrementCounter(&rnd)
	require.NoError(t, err)
	assert.True(t, overflowed)
}

func TestNextSpinsPastOverflow(t *testing.T) {
	g := New()
	var rnd [12]byte
	for i := range rnd {
		rnd[i] = 63
	}
	g.lastRand = rnd
	g.hasRand = true

	t0 := time.UnixMilli(1_700_000_000_000)
	g.lastMS = t0.UnixMilli()

	tick := 0
	g.now = func() time.Time {
		tick++
		if tick < 3 {
			return t0 // still the duplicate millisecond: keep spinning
		}
		return t0.Add(time.Millisecond)
	}

	id, err := g.Next()
	require.NoError(t, err)
	assert.Regexp(t, idPattern, id)
	assert.GreaterOrEqual(t, tick, 3)
}
