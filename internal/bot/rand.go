package bot

import (
	"math/rand"
	"sync"
)

// botRng is the package-level random source used by the random bot and for
// estimate seeds. When nil, the functions below delegate to the global
// math/rand default. Use SeedBotRng to set a deterministic source for tests
// and reproducible simulations.
var (
	rngMu  sync.Mutex
	botRng *rand.Rand
)

// SeedBotRng sets a deterministic random source for reproducible bot behavior.
func SeedBotRng(seed int64) {
	rngMu.Lock()
	botRng = rand.New(rand.NewSource(seed))
	rngMu.Unlock()
}

// ResetBotRng reverts to the default (non-deterministic) global random source.
func ResetBotRng() {
	rngMu.Lock()
	botRng = nil
	rngMu.Unlock()
}

func botIntn(n int) int {
	rngMu.Lock()
	defer rngMu.Unlock()
	if botRng != nil {
		return botRng.Intn(n)
	}
	return rand.Intn(n)
}

func botShuffle(n int, swap func(i, j int)) {
	rngMu.Lock()
	defer rngMu.Unlock()
	if botRng != nil {
		botRng.Shuffle(n, swap)
		return
	}
	rand.Shuffle(n, swap)
}

func botInt63() int64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	if botRng != nil {
		return botRng.Int63()
	}
	return rand.Int63()
}
