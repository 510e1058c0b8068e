package combat

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// OrderKey identifies a casualty ordering. Composition is the sorted
// multiset of unit slots, so any two groups with the same make-up share an
// entry.
type OrderKey struct {
	Player      PlayerID
	Territory   TerritoryID
	Defending   bool
	Amphibious  bool
	Composition string
}

// OrderCache remembers casualty orderings per composition. Entries are
// dropped by Clear, which the tracker calls when the battle phase ends.
type OrderCache struct {
	mu      sync.Mutex
	entries map[OrderKey][]string
	hits    int
	misses  int
}

// NewOrderCache returns an empty cache.
func NewOrderCache() *OrderCache {
	return &OrderCache{entries: make(map[OrderKey][]string)}
}

// slot describes a unit for caching: its type, damage and amphibious flag.
func slot(u *Unit) string {
	return fmt.Sprintf("%s:%d:%t", u.Type, u.Hits, u.WasAmphibious)
}

func composition(slots []string) string {
	counts := make(map[string]int)
	for _, s := range slots {
		counts[s]++
	}
	var b strings.Builder
	for _, s := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(&b, "%s=%d;", s, counts[s])
	}
	return b.String()
}

// KeyFor builds the cache key for ordering units.
func KeyFor(player PlayerID, territory TerritoryID, defending, amphibious bool, units []*Unit) OrderKey {
	slots := make([]string, len(units))
	for i, u := range units {
		slots[i] = slot(u)
	}
	return OrderKey{Player: player, Territory: territory, Defending: defending, Amphibious: amphibious, Composition: composition(slots)}
}

// Get returns the cached order applied to units, or false on a miss.
func (c *OrderCache) Get(key OrderKey, units []*Unit) ([]*Unit, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	stored, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	pool := slices.Clone(units)
	out := make([]*Unit, 0, len(units))
	for _, s := range stored {
		i := slices.IndexFunc(pool, func(u *Unit) bool { return slot(u) == s })
		if i < 0 {
			return nil, false
		}
		out = append(out, pool[i])
		pool = slices.Delete(pool, i, i+1)
	}
	return out, true
}

// Put stores the order of units under key, along with the order of every
// suffix, since removing the first casualty leaves a group whose order is
// already known.
func (c *OrderCache) Put(key OrderKey, ordered []*Unit) {
	if c == nil {
		return
	}
	slots := make([]string, len(ordered))
	for i, u := range ordered {
		slots[i] = slot(u)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range slots {
		k := key
		k.Composition = composition(slots[i:])
		c.entries[k] = slices.Clone(slots[i:])
	}
}

// Clear forgets every entry.
func (c *OrderCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[OrderKey][]string)
	c.mu.Unlock()
}

// Stats returns the number of cache hits and misses so far.
func (c *OrderCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached orderings.
func (c *OrderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
