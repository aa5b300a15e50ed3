package block

import (
	"cmp"
	"slices"
)

// Compare orders blocks by Order, then by ID.
func Compare(a, b Block) int {
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Sorted returns a copy of blocks in display order.
func Sorted(blocks []Block) []Block {
	out := slices.Clone(blocks)
	slices.SortStableFunc(out, Compare)
	return out
}

// Renumber returns blocks in display order with orders rewritten to 1..N.
func Renumber(blocks []Block) []Block {
	out := Sorted(blocks)
	for i := range out {
		out[i].Order = float64(i + 1)
	}
	if out == nil {
		out = []Block{}
	}
	return out
}
