package ttm

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/ttm/memutils"
	"golang.org/x/exp/slog"
)

// Populate materializes every page of the TTM and hands the page list to the backend, moving the TTM
// from StateUnpopulated to StateUnbound. It does nothing for a TTM that is already populated. If it
// fails, the TTM stays unpopulated; pages installed before the failure remain resident until Destroy.
func (t *TTM) Populate() error {
	t.checkLive("Populate")

	if t.state != StateUnpopulated {
		return nil
	}

	t.logger.Debug("TTM::Populate", slog.Int("NumPages", t.numPages))

	for i := 0; i < t.numPages; i++ {
		_, err := t.GetPage(i)
		if err != nil {
			return err
		}
	}

	err := t.backend.Populate(t.pages)
	if err != nil {
		return errors.Wrap(err, "backend failed to accept the populated page list")
	}

	t.setState(StateUnbound)
	memutils.DebugValidate(t)
	return nil
}

// Bind populates the TTM if needed, adjusts the caching of its pages for the region, and binds it into
// the aperture through the backend. Binding a TTM that is already bound does nothing.
//
// If the backend refuses the binding, the TTM is left in StateEvicted and an error wrapping
// ErrBackendBind is returned so the caller can retry with a different region.
func (t *TTM) Bind(region *Region) error {
	t.checkLive("Bind")
	if region == nil {
		return errors.Wrap(ErrInvalidArgument, "attempted to bind a TTM to a nil region")
	}

	if t.state == StateBound {
		return nil
	}

	t.logger.Debug("TTM::Bind",
		slog.String("RegionFlags", region.Flags.String()),
		slog.Int("Start", region.Start),
		slog.Int("NumPages", region.NumPages),
	)

	err := t.Populate()
	if err != nil {
		return err
	}

	if t.state == StateUnbound && region.Flags&RegionCached == 0 {
		t.SetCaching(true)
	} else if region.Flags&RegionCachedMapped != 0 {
		flusher, ok := t.device.driver.(CachedMappedFlusher)
		if ok {
			flusher.FlushCachedMapped(t)
		}
	}

	err = t.backend.Bind(region)
	if err != nil {
		t.setState(StateEvicted)
		t.logger.Error("couldn't bind backend", slog.Any("error", err))
		return errors.Mark(errors.Wrap(err, "couldn't bind backend"), ErrBackendBind)
	}

	t.setState(StateBound)
	if t.flags&PageFlagUser != 0 {
		t.setFlags(t.flags | PageFlagUserDirty)
	}

	memutils.DebugValidate(t)
	return nil
}

// Evict removes a bound TTM from the aperture, leaving its pages resident for a later rebind. A
// populated TTM is always left in StateEvicted. An unpopulated TTM has neither pages nor a binding and
// is left as it is, so that a later Bind still populates it. The backend's unbind must not fail: a
// backend that cannot release a binding it accepted has broken its contract, and Evict panics.
func (t *TTM) Evict() {
	t.checkLive("Evict")

	if t.state == StateUnpopulated {
		return
	}

	if t.state == StateBound {
		t.logger.Debug("TTM::Evict")

		err := t.backend.Unbind()
		if err != nil {
			panic(fmt.Sprintf("backend failed to unbind a bound TTM: %+v", err))
		}
	}

	t.setState(StateEvicted)
}

// Unbind evicts a bound TTM and then restores the caching of its pages if the backend requires it,
// leaving the TTM in StateUnbound.
func (t *TTM) Unbind() {
	t.checkLive("Unbind")

	if t.state == StateBound {
		t.Evict()
	}

	t.fixupCaching()
}

// Destroy releases everything the TTM owns: the backend, any binding, the uncached mappings, the
// pages, and the page array. It is safe to call on a nil TTM or on a TTM that is already destroyed.
//
// Destroy refuses to release anything while CPU mappings of the pages are outstanding, returning
// ErrMappingsOutstanding.
func (t *TTM) Destroy() error {
	if t == nil || t.state == StateDestroyed {
		return nil
	}

	if mappings := t.MappingCount(); mappings > 0 {
		return errors.Wrapf(ErrMappingsOutstanding, "attempted to destroy a TTM with %d active mappings", mappings)
	}

	t.logger.Debug("TTM::Destroy", slog.Int("NumPages", t.numPages), slog.String("State", t.state.String()))

	t.device.unregister(t)
	t.release()
	return nil
}

func (t *TTM) release() {
	if t.backend != nil {
		// Destroying the backend tears down any binding it still holds
		t.backend.Destroy()
		t.backend = nil
	}

	if t.pages != nil {
		if t.flags&PageFlagUncached != 0 {
			t.SetCaching(false)
		}

		if t.flags&PageFlagUser != 0 {
			t.releaseUserPages()
		} else {
			t.freeAllocatedPages()
		}

		t.freePageArray()
	}

	t.addressSpace = nil
	t.dummyPage = NoPage
	t.setFlags(0)
	t.setState(StateDestroyed)
}
