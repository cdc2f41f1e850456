// Package peertable holds the fixed neighbor set an engine actively mongers
// with, and the wider candidate set anti-entropy draws from.
package peertable

import "math/rand"

// Table is the set of endpoints one engine instance knows about, split into
// the fixed neighbor subset used for mongering and the full candidate set
// anti-entropy picks from. Neither set changes shape after NewTable returns.
type Table struct {
	neighbors  []string
	candidates []string
}

// NewTable chooses k distinct neighbors uniformly at random, without
// replacement, from candidates. If candidates has fewer than k entries, all
// of them become neighbors. The candidate set itself is kept in full for
// anti-entropy regardless of how many became neighbors.
func NewTable(candidates []string, k int, rng *rand.Rand) *Table {
	all := append([]string(nil), candidates...)

	if k > len(all) {
		k = len(all)
	}

	perm := rng.Perm(len(all))
	neighbors := make([]string, 0, k)
	for _, i := range perm[:k] {
		neighbors = append(neighbors, all[i])
	}

	return &Table{neighbors: neighbors, candidates: all}
}

// Neighbors returns the fixed neighbor set chosen at construction time.
func (t *Table) Neighbors() []string {
	return append([]string(nil), t.neighbors...)
}

// Candidates returns every known endpoint, including non-neighbors, for
// anti-entropy to pick from.
func (t *Table) Candidates() []string {
	return append([]string(nil), t.candidates...)
}

// RandomNeighbor returns one neighbor chosen uniformly at random, or "" if
// there are none.
func (t *Table) RandomNeighbor(rng *rand.Rand) string {
	return randomFrom(t.neighbors, rng)
}

// RandomNeighborExcept returns one neighbor other than exclude, chosen
// uniformly at random from the remaining neighbors, or "" if none exist.
func (t *Table) RandomNeighborExcept(exclude string, rng *rand.Rand) string {
	others := make([]string, 0, len(t.neighbors))
	for _, n := range t.neighbors {
		if n != exclude {
			others = append(others, n)
		}
	}
	return randomFrom(others, rng)
}

// RandomCandidate returns one endpoint chosen uniformly at random from the
// full candidate set, or "" if there are none.
func (t *Table) RandomCandidate(rng *rand.Rand) string {
	return randomFrom(t.candidates, rng)
}

func randomFrom(set []string, rng *rand.Rand) string {
	if len(set) == 0 {
		return ""
	}
	return set[rng.Intn(len(set))]
}
