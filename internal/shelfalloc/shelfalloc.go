// Package shelfalloc picks a shelf number for a server instance that was
// not started with an explicit -s flag, based on the shelf numbers already
// seen on the wire during discovery.
package shelfalloc

import "sort"

// Allocate returns the shelf number a new server should claim given the
// shelf numbers already in use, discovered via a broadcast probe.
//
// If the highest existing shelf number is less than the count of
// existing shelves, numbering is still dense enough to have a gap
// below it (some number was freed, or numbering never started at
// zero), so the search starts at 0 and takes the first number not
// already in use. Otherwise the new shelf is one past the highest; gaps
// below max (e.g. the 1 in {0, 2, 3}) are not filled on this path.
func Allocate(existing []int) int {
	max := -1
	for _, n := range existing {
		if n > max {
			max = n
		}
	}
	count := len(existing)
	if max < count {
		return firstGap(existing)
	}
	return max + 1
}

// firstGap returns the lowest non-negative integer not present in used.
func firstGap(used []int) int {
	sorted := append([]int(nil), used...)
	sort.Ints(sorted)
	shelf := 0
	for _, n := range sorted {
		if n == shelf {
			shelf++
		} else if n > shelf {
			break
		}
	}
	return shelf
}

// InUse reports whether shelf already appears in existing — the check run
// when a caller requests a specific shelf number explicitly rather than
// asking for auto-assignment.
func InUse(existing []int, shelf int) bool {
	for _, n := range existing {
		if n == shelf {
			return true
		}
	}
	return false
}
