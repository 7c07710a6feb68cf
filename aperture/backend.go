package aperture

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/ttm/memutils"
	"github.com/vkngwrapper/ttm/ttm"
	"golang.org/x/exp/slog"
)

// entryBookkeepingSize is the memory a Backend occupies apart from its share of the table
const entryBookkeepingSize = 96

// DriverOptions configures a Driver
type DriverOptions struct {
	// NeedsCacheAdjustOnUnbind makes the backends return evicted pages to the cached state. Apertures
	// whose entries do not snoop the CPU caches need this
	NeedsCacheAdjustOnUnbind bool
}

// Driver creates Backends that bind into a shared Table
type Driver struct {
	table   *Table
	options DriverOptions

	cachedMappedFlushes int64
}

var _ ttm.Driver = &Driver{}
var _ ttm.BackendSizer = &Driver{}
var _ ttm.CachedMappedFlusher = &Driver{}

func NewDriver(table *Table, options DriverOptions) *Driver {
	return &Driver{table: table, options: options}
}

func (d *Driver) Table() *Table { return d.table }

func (d *Driver) CreateBackend(device *ttm.Device) (ttm.Backend, error) {
	if d.table == nil {
		return nil, errors.New("aperture driver has no table")
	}

	return &Backend{
		driver: d,
		logger: device.Logger(),
		start:  AnyStart,
	}, nil
}

// BackendSize is the host memory a backend for numPages pages consumes
func (d *Driver) BackendSize(device *ttm.Device, numPages int) int {
	return memutils.SizeAlign(entryBookkeepingSize, ttm.PageSize)
}

// FlushCachedMapped runs before a TTM is bound into a cached, CPU-mapped region. The aperture snoops
// the CPU caches for such regions, so there is nothing to flush beyond recording the request.
func (d *Driver) FlushCachedMapped(t *ttm.TTM) {
	atomic.AddInt64(&d.cachedMappedFlushes, 1)
}

// CachedMappedFlushes returns the number of FlushCachedMapped calls the driver has received
func (d *Driver) CachedMappedFlushes() int {
	return int(atomic.LoadInt64(&d.cachedMappedFlushes))
}

// Backend binds one TTM's pages into its driver's Table
type Backend struct {
	driver *Driver
	logger *slog.Logger

	pages     []ttm.Page
	start     int
	bound     bool
	destroyed bool
}

var _ ttm.Backend = &Backend{}

func (b *Backend) Populate(pages []ttm.Page) error {
	if b.destroyed {
		panic("called Backend::Populate on a destroyed backend")
	}
	if b.bound {
		return errors.New("attempted to repopulate a bound backend")
	}

	b.pages = pages
	return nil
}

// Bind writes the page list into the table. A region with a Start of AnyStart is placed first-fit.
func (b *Backend) Bind(region *ttm.Region) error {
	if b.destroyed {
		panic("called Backend::Bind on a destroyed backend")
	}
	if b.bound {
		return errors.Newf("backend is already bound at entry %d", b.start)
	}
	if region.NumPages < len(b.pages) {
		return errors.Wrapf(ErrRangeBusy, "region of %d pages cannot hold %d pages", region.NumPages, len(b.pages))
	}

	start, err := b.driver.table.bind(b, region.Start)
	if err != nil {
		return err
	}

	b.start = start
	b.bound = true
	b.logger.Debug("Backend::Bind", slog.Int("Start", start), slog.Int("NumPages", len(b.pages)))
	return nil
}

func (b *Backend) Unbind() error {
	if !b.bound {
		return errors.New("attempted to unbind a backend that is not bound")
	}

	err := b.driver.table.unbind(b)
	if err != nil {
		return err
	}

	b.bound = false
	b.start = AnyStart
	return nil
}

func (b *Backend) NeedsCacheAdjustOnUnbind() bool {
	return b.driver.options.NeedsCacheAdjustOnUnbind
}

func (b *Backend) Destroy() {
	if b.destroyed {
		return
	}

	if b.bound {
		err := b.Unbind()
		if err != nil {
			b.logger.Error("failed to unbind backend during destroy", slog.Any("error", err))
		}
	}

	b.pages = nil
	b.destroyed = true
}

// Start returns the first entry the backend is bound at, or AnyStart if it is not bound
func (b *Backend) Start() int    { return b.start }
func (b *Backend) IsBound() bool { return b.bound }
