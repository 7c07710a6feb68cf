package ttm

import (
	"github.com/cockroachdb/errors"
)

type ttmList struct {
	count int
	head  *TTM
	tail  *TTM
}

func (l *ttmList) Validate() error {
	declaredCount := l.count
	actualCount := 0

	var prev *TTM
	for ttm := l.head; ttm != nil; ttm = ttm.next {
		if ttm.prev != prev {
			return errors.Newf("the TTM at position %d does not link back to its predecessor", actualCount)
		}
		prev = ttm
		actualCount++
	}

	if prev != l.tail {
		return errors.New("the last TTM in the list is not the list's tail")
	}

	if declaredCount != actualCount {
		return errors.Errorf("the listed number of TTMs in the list (%d) does not match the actual number of TTMs (%d)", declaredCount, actualCount)
	}

	return nil
}

func (l *ttmList) remove(ttm *TTM) {
	prev := ttm.prev
	next := ttm.next

	if prev != nil {
		prev.next = next
	} else {
		l.head = next
	}

	if next != nil {
		next.prev = prev
	} else {
		l.tail = prev
	}

	ttm.next = nil
	ttm.prev = nil

	l.count--
}

func (l *ttmList) push(ttm *TTM) {
	if l.count == 0 {
		l.head = ttm
		l.tail = ttm
		l.count = 1
	} else {
		ttm.prev = l.tail
		l.tail.next = ttm

		l.tail = ttm
		l.count++
	}
}
