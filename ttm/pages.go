package ttm

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// GetPage returns the page in slot index, allocating a zero-filled page and installing it if the slot
// is empty. Newly installed pages count against the device's resident pages.
func (t *TTM) GetPage(index int) (Page, error) {
	t.checkLive("GetPage")
	if index < 0 || index >= t.numPages {
		panic(fmt.Sprintf("called TTM::GetPage with index %d on a TTM of %d pages", index, t.numPages))
	}

	page := t.pages[index]
	if page != NoPage {
		return page, nil
	}

	err := t.device.reserveResidentPage()
	if err != nil {
		return NoPage, err
	}

	page, err = t.device.host.AllocPage()
	if err == nil && page == NoPage {
		err = errors.New("host returned an empty page")
	}
	if err != nil {
		t.device.releaseResidentPage()
		return NoPage, errors.Mark(errors.Wrapf(err, "failed to allocate page %d", index), ErrResourceExhausted)
	}

	t.pages[index] = page
	atomic.AddInt64(&t.residentSlots, 1)
	return page, nil
}

// freeAllocatedPages returns every allocated page to the host. A page that is still referenced
// elsewhere or still mapped is leaked instead, since freeing it would hand memory that is in use
// back to the allocator.
func (t *TTM) freeAllocatedPages() {
	host := t.device.host

	for i, page := range t.pages {
		if page == NoPage {
			continue
		}

		leak := false
		if refs := host.PageRefCount(page); refs != 1 {
			t.logger.Error("erroneous page count, leaking pages", slog.Int("Index", i), slog.Int("RefCount", refs))
			leak = true
		}
		if host.PageMapped(page) {
			t.logger.Error("erroneous map count, leaking page mappings", slog.Int("Index", i))
			leak = true
		}

		if leak {
			t.device.recordLeakedPage()
		} else {
			host.FreePage(page)
		}

		t.pages[i] = NoPage
		atomic.AddInt64(&t.residentSlots, -1)
		t.device.releaseResidentPage()
	}
}
