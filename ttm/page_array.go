package ttm

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

const pageHandleSize = int(unsafe.Sizeof(NoPage))

// allocPageArray reserves the TTM's page slots. Arrays that fit in a single page are allocated
// compactly; anything larger comes from the host's virtually-backed array allocator, and
// PageFlagVirtual records that so freePageArray returns it to the right place.
func (t *TTM) allocPageArray() error {
	size := t.numPages * pageHandleSize
	t.pages = nil

	if size <= PageSize {
		t.pages = make([]Page, t.numPages)
		return nil
	}

	pages, err := t.device.host.AllocArray(t.numPages)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to allocate a page array of %d pages", t.numPages), ErrResourceExhausted)
	}
	if len(pages) != t.numPages {
		panic("host array allocator returned an array of the wrong length")
	}

	for i := range pages {
		pages[i] = NoPage
	}

	t.logger.Debug("TTM::allocPageArray virtual", slog.Int("NumPages", t.numPages))
	t.pages = pages
	t.setFlags(t.flags | PageFlagVirtual)
	return nil
}

func (t *TTM) freePageArray() {
	if t.flags&PageFlagVirtual != 0 {
		t.device.host.FreeArray(t.pages)
		t.setFlags(t.flags &^ PageFlagVirtual)
	}
	t.pages = nil
}
