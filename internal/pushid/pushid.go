// Package pushid generates 20-character lexicographically-ordered push
// IDs, modeled after Firebase's client push ID scheme: an 8-character
// big-endian base-64 encoding of a millisecond timestamp, followed by
// 12 characters of randomness that increment on same-millisecond
// collisions so ordering stays monotonic.
package pushid

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// pushChars mirrors Firebase's alphabet, ordered by ASCII so
// lexicographic string comparison agrees with generation order.
const pushChars = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// Generator is the process-wide push-ID state. Construct it with New;
// the zero value has no clock or randomness source. Safe for concurrent
// use; callers never need their own lock.
type Generator struct {
	mu        sync.Mutex
	lastMS    int64
	lastRand  [12]byte
	hasRand   bool
	now       func() time.Time
	randomize func([]byte) error
}

// New returns a ready Generator.
func New() *Generator {
	return &Generator{
		now:       time.Now,
		randomize: fillRandom,
	}
}

func fillRandom(dst []byte) error {
	for i := range dst {
		n, err := rand.Int(rand.Reader, big.NewInt(64))
		if err != nil {
			return errors.Wrap(err, "pushid: reading randomness")
		}
		dst[i] = byte(n.Int64())
	}
	return nil
}

// Next produces the next push ID. It blocks only in the pathological
// case where all 12 random digits have reached 63 under a
// duplicate-timestamp collision; it then spins until the clock
// millisecond advances and reseeds randomness, per the documented
// resolution of that edge case.
func (g *Generator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	spinning := false
	for {
		now := g.now().UnixMilli()
		if spinning && now == g.lastMS {
			// Still the same millisecond as the overflow: keep spinning.
			continue
		}
		duplicate := !spinning && now == g.lastMS
		g.lastMS = now

		var ts [8]byte
		n := now
		for i := 7; i >= 0; i-- {
			ts[i] = pushChars[n%64]
			n /= 64
		}
		if n != 0 {
			return "", errors.New("pushid: timestamp did not fit in 48 bits")
		}

		if !duplicate || !g.hasRand || spinning {
			if err := g.randomize(g.lastRand[:]); err != nil {
				return "", err
			}
			g.hasRand = true
		} else {
			overflowed, err := incrementCounter(&g.lastRand)
			if err != nil {
				return "", err
			}
			if overflowed {
				// All 12 digits were 63: spin until the millisecond
				// advances, then reseed fresh randomness.
				spinning = true
				continue
			}
		}

		var id [20]byte
		copy(id[:8], ts[:])
		for i, b := range g.lastRand {
			id[8+i] = pushChars[b]
		}
		return string(id[:]), nil
	}
}

// incrementCounter treats lastRand as a big-endian base-64 counter and
// adds one. It returns overflowed=true if every digit was already 63
// (counter wrapped to all zero, caller must reseed on a new millisecond).
func incrementCounter(rnd *[12]byte) (overflowed bool, err error) {
	for i := 11; i >= 0; i-- {
		if rnd[i] == 63 {
			rnd[i] = 0
			continue
		}
		rnd[i]++
		return false, nil
	}
	return true, nil
}
