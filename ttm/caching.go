package ttm

import (
	"context"
	"sync/atomic"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

// GlobalCacheFlush flushes the caches of every CPU and waits until all of them acknowledge or the
// device's flush timeout elapses. A timeout is logged but not retried: the flush is best effort once
// the deadline passes.
//
// GlobalCacheFlush must not be called while holding a lock that any CPU's flush path might need.
func (d *Device) GlobalCacheFlush() {
	atomic.AddUint64(&d.flushCount, 1)

	numCPU := d.host.NumCPU()
	d.logger.Debug("Device::GlobalCacheFlush", slog.Int("CPUs", numCPU))

	ctx, cancel := context.WithTimeout(context.Background(), d.flushTimeout)
	defer cancel()

	var group errgroup.Group
	for cpu := 0; cpu < numCPU; cpu++ {
		cpu := cpu
		group.Go(func() error {
			return d.host.FlushCPUCache(cpu)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			d.logger.Error("cache flush failed on at least one cpu", slog.Any("error", err))
		}
	case <-ctx.Done():
		d.logger.Error("timed out waiting for cache flush",
			slog.Duration("Timeout", d.flushTimeout),
			slog.Int("CPUs", numCPU),
		)
	}
}

// SetCaching moves the TTM's resident pages between the cached and uncached states. Moving to uncached
// flushes all CPU caches first so that no stale cache line survives into GPU-coherent use, then maps
// each page into the aperture's page tables. Moving to cached removes those mappings. Pages in high
// memory have no linear mapping and are skipped.
func (t *TTM) SetCaching(uncached bool) {
	t.checkLive("SetCaching")

	if t.IsUncached() == uncached {
		return
	}

	t.logger.Debug("TTM::SetCaching", slog.Bool("Uncached", uncached))

	if uncached {
		t.device.GlobalCacheFlush()
	}

	host := t.device.host
	for _, page := range t.pages {
		if page == NoPage || host.IsHighMem(page) {
			continue
		}

		if uncached {
			host.MapPage(page)
		} else {
			host.UnmapPage(page)
		}
	}

	if uncached {
		t.setFlags(t.flags | PageFlagUncached)
	} else {
		t.setFlags(t.flags &^ PageFlagUncached)
	}
}

// fixupCaching finishes an unbind: evicted pages are returned to the cached state if the backend
// requires it, and the TTM becomes unbound.
func (t *TTM) fixupCaching() {
	if t.state != StateEvicted {
		return
	}

	if t.backend.NeedsCacheAdjustOnUnbind() {
		t.SetCaching(false)
	}
	t.setState(StateUnbound)
}
