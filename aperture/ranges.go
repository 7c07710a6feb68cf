package aperture

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

type entryRange struct {
	start int
	count int
}

func (r entryRange) end() int {
	return r.start + r.count
}

func lessByStart(a, b entryRange) bool {
	return a.start < b.start
}

// freeRanges tracks the unoccupied entries of a table as a set of maximal, non-adjacent ranges
// ordered by start entry.
type freeRanges struct {
	tree      *btree.BTreeG[entryRange]
	freeCount int
}

func newFreeRanges(numEntries int) *freeRanges {
	r := &freeRanges{
		tree: btree.NewG[entryRange](8, lessByStart),
	}
	if numEntries > 0 {
		r.tree.ReplaceOrInsert(entryRange{start: 0, count: numEntries})
		r.freeCount = numEntries
	}
	return r
}

// allocFirstFit occupies the lowest range of count free entries
func (r *freeRanges) allocFirstFit(count int) (int, bool) {
	var found entryRange
	ok := false

	r.tree.Ascend(func(item entryRange) bool {
		if item.count >= count {
			found = item
			ok = true
			return false
		}
		return true
	})

	if !ok {
		return 0, false
	}

	r.occupy(found, found.start, count)
	return found.start, true
}

// allocAt occupies the entries [start, start+count), if they are all free
func (r *freeRanges) allocAt(start, count int) bool {
	var containing entryRange
	ok := false

	r.tree.DescendLessOrEqual(entryRange{start: start}, func(item entryRange) bool {
		containing = item
		ok = true
		return false
	})

	if !ok || containing.end() < start+count {
		return false
	}

	r.occupy(containing, start, count)
	return true
}

func (r *freeRanges) occupy(containing entryRange, start, count int) {
	r.tree.Delete(containing)

	if start > containing.start {
		r.tree.ReplaceOrInsert(entryRange{start: containing.start, count: start - containing.start})
	}
	if start+count < containing.end() {
		r.tree.ReplaceOrInsert(entryRange{start: start + count, count: containing.end() - (start + count)})
	}

	r.freeCount -= count
}

// release returns [start, start+count) to the free set, merging it with free neighbors
func (r *freeRanges) release(start, count int) {
	merged := entryRange{start: start, count: count}

	var prev, next entryRange
	hasPrev, hasNext := false, false

	r.tree.DescendLessOrEqual(entryRange{start: start}, func(item entryRange) bool {
		prev = item
		hasPrev = true
		return false
	})
	r.tree.AscendGreaterOrEqual(entryRange{start: start}, func(item entryRange) bool {
		next = item
		hasNext = true
		return false
	})

	if hasPrev && prev.end() > start {
		panic(fmt.Sprintf("aperture: released entries %d-%d overlap free entries %d-%d", start, start+count, prev.start, prev.end()))
	}
	if hasNext && next.start < merged.end() {
		panic(fmt.Sprintf("aperture: released entries %d-%d overlap free entries %d-%d", start, start+count, next.start, next.end()))
	}

	if hasPrev && prev.end() == start {
		r.tree.Delete(prev)
		merged.start = prev.start
		merged.count += prev.count
	}
	if hasNext && next.start == start+count {
		r.tree.Delete(next)
		merged.count += next.count
	}

	r.tree.ReplaceOrInsert(merged)
	r.freeCount += count
}

func (r *freeRanges) largest() int {
	largest := 0
	r.tree.Ascend(func(item entryRange) bool {
		if item.count > largest {
			largest = item.count
		}
		return true
	})
	return largest
}

func (r *freeRanges) Validate(numEntries int) error {
	total := 0
	lastEnd := -1
	var err error

	r.tree.Ascend(func(item entryRange) bool {
		if item.count <= 0 {
			err = errors.Newf("free range at entry %d is empty", item.start)
			return false
		}
		if item.start <= lastEnd {
			err = errors.Newf("free range at entry %d overlaps or touches the previous free range", item.start)
			return false
		}
		if item.end() > numEntries {
			err = errors.Newf("free range %d-%d runs past the end of the table (%d entries)", item.start, item.end(), numEntries)
			return false
		}
		lastEnd = item.end()
		total += item.count
		return true
	})
	if err != nil {
		return err
	}

	if total != r.freeCount {
		return errors.Newf("free ranges cover %d entries, but the free count is %d", total, r.freeCount)
	}
	return nil
}
