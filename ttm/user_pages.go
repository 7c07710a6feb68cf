package ttm

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// PinUserPages backs the TTM with pages pinned from a task's address space instead of allocated pages.
// numPages must equal NumPages and the TTM must not hold any pages yet.
//
// Pages that are not resident in the address space cannot be pinned. For a writable TTM this fails the
// call with ErrResourceExhausted and every page pinned by the call is unpinned again. For a read-only
// TTM the hole is filled with dummyPage, which the GPU may read but which is never marked dirty.
func (t *TTM) PinUserPages(addressSpace AddressSpace, writable bool, start uintptr, numPages int, dummyPage Page) error {
	t.checkLive("PinUserPages")
	if numPages != t.numPages {
		panic(fmt.Sprintf("called TTM::PinUserPages for %d pages on a TTM of %d pages", numPages, t.numPages))
	}
	if t.state != StateUnpopulated || t.flags&PageFlagUser != 0 || t.residentCount() != 0 {
		panic("called TTM::PinUserPages on a TTM that already has pages")
	}
	if addressSpace == nil {
		return errors.Wrap(ErrInvalidArgument, "attempted to pin pages from a nil address space")
	}
	if start%PageSize != 0 {
		return errors.Wrapf(ErrInvalidArgument, "user page range start %#x is not page aligned", start)
	}
	if !writable && numPages > 0 && dummyPage == NoPage {
		return errors.Wrap(ErrInvalidArgument, "read-only user pages require a dummy page")
	}

	t.logger.Debug("TTM::PinUserPages", slog.Int("NumPages", numPages), slog.Bool("Writable", writable))

	pinned := t.pinPages(addressSpace, writable, start)

	if pinned != numPages && writable {
		for i, page := range t.pages {
			if page != NoPage {
				addressSpace.UnpinPage(page)
				t.pages[i] = NoPage
			}
		}
		return errors.Wrapf(ErrResourceExhausted, "only %d of %d writable user pages could be pinned", pinned, numPages)
	}

	if !writable {
		t.dummyPage = dummyPage
		for i := range t.pages {
			if t.pages[i] == NoPage {
				t.pages[i] = dummyPage
			}
		}
	}

	resident, dummy := t.countSlots()
	atomic.AddInt64(&t.residentSlots, int64(resident))
	atomic.AddInt64(&t.dummySlots, int64(dummy))

	flags := t.flags | PageFlagUser
	if writable {
		flags |= PageFlagUserWrite
	}
	t.setFlags(flags)
	t.addressSpace = addressSpace

	return nil
}

func (t *TTM) pinPages(addressSpace AddressSpace, writable bool, start uintptr) int {
	addressSpace.RLockMap()
	defer addressSpace.RUnlockMap()

	return addressSpace.PinPages(start, writable, t.pages)
}

// releaseUserPages unpins every user page. Pages the GPU may have written are marked dirty first so
// the host writes them back.
func (t *TTM) releaseUserPages() {
	if t.flags&PageFlagUser == 0 {
		panic("called TTM::releaseUserPages on a TTM that is not user-backed")
	}

	write := t.flags&PageFlagUserWrite != 0
	dirty := t.flags&PageFlagUserDirty != 0
	host := t.device.host

	for i, page := range t.pages {
		if page == NoPage {
			continue
		}

		if page == t.dummyPage {
			if write {
				panic("dummy read page found in a writable user TTM")
			}
			t.pages[i] = NoPage
			atomic.AddInt64(&t.dummySlots, -1)
			continue
		}

		if write && dirty && !host.IsReserved(page) {
			t.addressSpace.SetPageDirty(page)
		}

		t.pages[i] = NoPage
		atomic.AddInt64(&t.residentSlots, -1)
		t.addressSpace.UnpinPage(page)
	}
}
