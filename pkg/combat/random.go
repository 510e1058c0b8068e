package combat

import (
	"fmt"
	"math/rand"
	"sync"
)

// RandomSource supplies dice. Draw returns count values in [0, max). The
// engine asks for every die of one logical roll in a single call.
type RandomSource interface {
	Draw(max, count int, annotation string) ([]int, error)
}

// SeededRandom is a RandomSource backed by math/rand with a fixed seed, for
// simulations and local games.
type SeededRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededRandom returns a source that produces the same stream for the
// same seed.
func NewSeededRandom(seed int64) *SeededRandom {
	return &SeededRandom{rng: rand.New(rand.NewSource(seed))}
}

func (r *SeededRandom) Draw(max, count int, annotation string) ([]int, error) {
	if max <= 0 || count < 0 {
		return nil, fmt.Errorf("draw %q: bad request max=%d count=%d", annotation, max, count)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, count)
	for i := range out {
		out[i] = r.rng.Intn(max)
	}
	return out, nil
}

// ScriptedRandom replays a fixed list of values and records every call. It
// returns ErrRandomExhausted when the script runs out.
type ScriptedRandom struct {
	Values      []int
	Calls       int
	Annotations []string
	next        int
}

// NewScriptedRandom returns a source that replays values in order.
func NewScriptedRandom(values ...int) *ScriptedRandom {
	return &ScriptedRandom{Values: values}
}

func (r *ScriptedRandom) Draw(max, count int, annotation string) ([]int, error) {
	r.Calls++
	r.Annotations = append(r.Annotations, annotation)
	if r.next+count > len(r.Values) {
		return nil, fmt.Errorf("draw %d for %q: %w", count, annotation, ErrRandomExhausted)
	}
	out := make([]int, count)
	for i := range out {
		v := r.Values[r.next+i]
		if v < 0 || v >= max {
			return nil, fmt.Errorf("scripted value %d out of range [0,%d)", v, max)
		}
		out[i] = v
	}
	r.next += count
	return out, nil
}

// Remaining returns how many scripted values are left.
func (r *ScriptedRandom) Remaining() int { return len(r.Values) - r.next }
