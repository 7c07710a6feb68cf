package ttm

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/ttm/memutils"
	"golang.org/x/exp/slog"
)

// TTM is the CPU-side page backing of one GPU buffer. It owns a fixed-length array of page slots,
// the caching state of the pages in it, and the Backend that binds them into the GPU aperture.
//
// A TTM is not synchronized internally: callers must serialize Bind, Unbind, Evict, Populate,
// PinUserPages, SetCaching, and Destroy calls on the same TTM. Its state, flags, and slot counts are
// published atomically so the device can gather statistics while other TTMs are in use.
type TTM struct {
	device  *Device
	logger  *slog.Logger
	backend Backend

	numPages  int
	pages     []Page
	flags     PageFlags
	state     State
	dummyPage Page

	addressSpace AddressSpace
	mapCount     int32

	residentSlots int64
	dummySlots    int64

	next *TTM
	prev *TTM
}

// Create creates a new, unpopulated TTM large enough to hold sizeBytes bytes. The page array is
// allocated immediately; pages are allocated lazily by GetPage, Populate, or Bind.
func Create(device *Device, sizeBytes int) (*TTM, error) {
	if device == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "attempted to create a TTM on a nil device")
	}
	if sizeBytes < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "attempted to create a TTM of negative size %d", sizeBytes)
	}

	ttm := &TTM{
		device:   device,
		logger:   device.logger,
		numPages: memutils.PageCount(sizeBytes, PageSize),
		state:    StateUnpopulated,
	}

	ttm.logger.Debug("TTM::Create", slog.Int("Size", sizeBytes), slog.Int("NumPages", ttm.numPages))

	err := ttm.allocPageArray()
	if err != nil {
		ttm.logger.Error("failed allocating page table", slog.Int("NumPages", ttm.numPages), slog.Any("error", err))
		ttm.release()
		return nil, err
	}

	ttm.backend, err = device.driver.CreateBackend(device)
	if err == nil && ttm.backend == nil {
		err = errors.New("driver returned a nil backend")
	}
	if err != nil {
		ttm.logger.Error("failed creating ttm backend entry", slog.Any("error", err))
		ttm.release()
		return nil, errors.Wrap(err, "failed creating ttm backend entry")
	}

	device.register(ttm)
	return ttm, nil
}

func (t *TTM) Device() *Device    { return t.device }
func (t *TTM) Backend() Backend   { return t.backend }
func (t *TTM) NumPages() int      { return t.numPages }
func (t *TTM) State() State       { return t.loadState() }
func (t *TTM) Flags() PageFlags   { return t.loadFlags() }
func (t *TTM) DummyPage() Page    { return t.dummyPage }
func (t *TTM) IsUncached() bool   { return t.loadFlags()&PageFlagUncached != 0 }
func (t *TTM) IsUserBacked() bool { return t.loadFlags()&PageFlagUser != 0 }

// Pages returns the TTM's page slots. The slice is owned by the TTM and must not be modified or
// retained past Destroy.
func (t *TTM) Pages() []Page { return t.pages }

// MappingCount returns the number of active CPU mappings of this TTM's pages
func (t *TTM) MappingCount() int {
	return int(atomic.LoadInt32(&t.mapCount))
}

// AcquireMapping records a new CPU mapping of the TTM's pages. Destroy refuses to release pages
// while any mapping is outstanding.
func (t *TTM) AcquireMapping() {
	t.checkLive("AcquireMapping")
	atomic.AddInt32(&t.mapCount, 1)
}

// ReleaseMapping records that a mapping acquired with AcquireMapping has been torn down.
func (t *TTM) ReleaseMapping() {
	newVal := atomic.AddInt32(&t.mapCount, -1)
	if newVal < 0 {
		panic(fmt.Sprintf("TTM mapping count went negative (%d)", newVal))
	}
}

func (t *TTM) checkLive(operation string) {
	if t == nil {
		panic(fmt.Sprintf("called TTM::%s on a nil TTM", operation))
	}
	if t.state == StateDestroyed {
		panic(fmt.Sprintf("called TTM::%s on a destroyed TTM", operation))
	}
}

func (t *TTM) loadState() State {
	return State(atomic.LoadUint32((*uint32)(&t.state)))
}

func (t *TTM) setState(state State) {
	atomic.StoreUint32((*uint32)(&t.state), uint32(state))
}

func (t *TTM) loadFlags() PageFlags {
	return PageFlags(atomic.LoadUint32((*uint32)(&t.flags)))
}

func (t *TTM) setFlags(flags PageFlags) {
	atomic.StoreUint32((*uint32)(&t.flags), uint32(flags))
}

// residentCount is the number of slots holding a real page, allocated or pinned
func (t *TTM) residentCount() int {
	return int(atomic.LoadInt64(&t.residentSlots))
}

func (t *TTM) dummyCount() int {
	return int(atomic.LoadInt64(&t.dummySlots))
}

func (t *TTM) countSlots() (resident, dummy int) {
	for _, page := range t.pages {
		if page == NoPage {
			continue
		}
		if page == t.dummyPage {
			dummy++
		} else {
			resident++
		}
	}
	return resident, dummy
}

// Validate performs internal consistency checks on the TTM. When the TTM is functioning correctly, it
// should not be possible for this method to return an error.
func (t *TTM) Validate() error {
	if t.state == StateDestroyed {
		if t.pages != nil {
			return errors.New("destroyed TTM still holds its page array")
		}
		return nil
	}

	if len(t.pages) != t.numPages {
		return errors.Newf("page array holds %d slots, but the TTM has %d pages", len(t.pages), t.numPages)
	}

	if t.flags&PageFlagUser == 0 {
		if t.flags&(PageFlagUserWrite|PageFlagUserDirty) != 0 {
			return errors.Newf("TTM is not user-backed but has user flags %s", t.flags.String())
		}
		if t.dummyPage != NoPage {
			return errors.New("TTM is not user-backed but has a dummy page")
		}
	} else if t.addressSpace == nil {
		return errors.New("user-backed TTM has no address space")
	} else if t.dummyPage != NoPage && t.flags&PageFlagUserWrite != 0 {
		return errors.New("writable user TTM has a dummy page")
	}

	if t.state != StateUnpopulated {
		for index, page := range t.pages {
			if page == NoPage {
				return errors.Newf("TTM in state %s has an empty page slot at index %d", t.state.String(), index)
			}
		}
	}

	if t.backend == nil {
		return errors.New("TTM has no backend")
	}

	resident, dummy := t.countSlots()
	if resident != t.residentCount() || dummy != t.dummyCount() {
		return errors.Newf("TTM slots hold %d pages and %d dummy pages, but %d and %d are counted",
			resident, dummy, t.residentCount(), t.dummyCount())
	}

	if atomic.LoadInt32(&t.mapCount) < 0 {
		return errors.New("TTM mapping count is negative")
	}

	return nil
}

var _ memutils.Validatable = &TTM{}
