// Package stock holds the pure ledger arithmetic used during reconciliation:
// availability checks and net deltas over order lines. Nothing in here does I/O.
package stock

import "slices"

// Line is one (product, quantity) pair of an order.
type Line struct {
	ItemID   int64 `json:"itemId"`
	Quantity int   `json:"quantity"`
}

// Lookup reports the current stock of a product and whether it exists.
type Lookup func(itemID int64) (stock int, ok bool)

// Shortage describes a product whose stock cannot cover the requested quantity.
type Shortage struct {
	ItemID    int64
	Requested int
	Available int
	Missing   bool
}

// Adjustment is an unsigned stock movement for one product.
type Adjustment struct {
	ItemID   int64
	Quantity int
}

// Totals sums quantities per product.
func Totals(lines []Line) map[int64]int {
	totals := make(map[int64]int, len(lines))
	for _, l := range lines {
		totals[l.ItemID] += l.Quantity
	}
	return totals
}

// ItemIDs returns the distinct product ids referenced by any of the given
// line sets, in ascending order.
func ItemIDs(sets ...[]Line) []int64 {
	seen := make(map[int64]struct{})
	for _, lines := range sets {
		for _, l := range lines {
			seen[l.ItemID] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Shortages evaluates every line and returns all products whose stock is
// lower than the total requested for them. Lines for the same product are
// summed first. Unknown products count as zero stock.
func Shortages(lines []Line, lookup Lookup) []Shortage {
	totals := Totals(lines)
	ids := make([]int64, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []Shortage
	for _, id := range ids {
		requested := totals[id]
		available, ok := lookup(id)
		if !ok {
			out = append(out, Shortage{ItemID: id, Requested: requested, Missing: true})
			continue
		}
		if available < requested {
			out = append(out, Shortage{ItemID: id, Requested: requested, Available: available})
		}
	}
	return out
}

// CheckAvailability is true iff every line can be served from current stock.
func CheckAvailability(lines []Line, lookup Lookup) bool {
	return len(Shortages(lines, lookup)) == 0
}

// ComputeNetDelta returns, per product, sum(next) - sum(previous).
// Positive means more stock must be consumed, negative means stock returns.
// Products absent from both lists never appear in the result.
func ComputeNetDelta(previous, next []Line) map[int64]int {
	delta := make(map[int64]int, len(previous)+len(next))
	for _, l := range previous {
		delta[l.ItemID] -= l.Quantity
	}
	for _, l := range next {
		delta[l.ItemID] += l.Quantity
	}
	return delta
}

// Partition splits a delta into consumptions (positive entries) and
// releases (zero or negative entries, reported as absolute quantities).
// Both slices are ordered by product id.
func Partition(delta map[int64]int) (consume, release []Adjustment) {
	ids := make([]int64, 0, len(delta))
	for id := range delta {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		d := delta[id]
		if d > 0 {
			consume = append(consume, Adjustment{ItemID: id, Quantity: d})
			continue
		}
		release = append(release, Adjustment{ItemID: id, Quantity: -d})
	}
	return consume, release
}
