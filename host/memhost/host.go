// Package memhost is an in-memory implementation of the host primitives a ttm.Device needs. Pages are
// plain handles tracked in maps, the aperture is a set of mapped handles, and a cache flush only
// records which cores were asked to flush. It is used by tests and by tools that simulate a device.
package memhost

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/ttm/ttm"
)

// ErrOutOfPages is returned by AllocPage once the host's page limit is reached
var ErrOutOfPages = errors.New("memhost: out of pages")

// ErrOutOfArrays is returned by AllocArray once the host's array limit is reached
var ErrOutOfArrays = errors.New("memhost: out of page arrays")

// Options configures a Host. It is valid to leave all the fields blank.
type Options struct {
	// NumCPU is the number of simulated cores. Zero uses runtime.NumCPU
	NumCPU int
	// MaxPages limits the number of live pages, counting both allocated pages and pages faulted into
	// address spaces. Zero means no limit
	MaxPages int
	// MaxArrays limits the number of live page arrays. Zero means no limit
	MaxArrays int
	// FlushHook, if set, runs on every per-core flush, so tests can inject failures or delays
	FlushHook func(cpu int) error
}

type pageInfo struct {
	refs     int
	mapped   bool
	highMem  bool
	reserved bool
	user     bool
}

// Host is an in-memory ttm.Host
type Host struct {
	mutex    sync.Mutex
	options  Options
	numCPU   int
	nextPage ttm.Page

	pages    *swiss.Map[ttm.Page, *pageInfo]
	aperture *swiss.Map[ttm.Page, struct{}]
	arrays   *swiss.Map[*ttm.Page, int]

	flushes []uint64
}

var _ ttm.Host = &Host{}

// New creates a new Host
func New(options Options) *Host {
	numCPU := options.NumCPU
	if numCPU <= 0 {
		numCPU = runtime.NumCPU()
	}

	return &Host{
		options:  options,
		numCPU:   numCPU,
		nextPage: ttm.PageSize,
		pages:    swiss.NewMap[ttm.Page, *pageInfo](64),
		aperture: swiss.NewMap[ttm.Page, struct{}](64),
		arrays:   swiss.NewMap[*ttm.Page, int](8),
		flushes:  make([]uint64, numCPU),
	}
}

func (h *Host) newPage(user bool) (ttm.Page, error) {
	if h.options.MaxPages > 0 && h.pages.Count() >= h.options.MaxPages {
		return ttm.NoPage, errors.Wrapf(ErrOutOfPages, "host page limit of %d reached", h.options.MaxPages)
	}

	page := h.nextPage
	h.nextPage += ttm.PageSize
	h.pages.Put(page, &pageInfo{refs: 1, user: user})

	return page, nil
}

func (h *Host) info(page ttm.Page) *pageInfo {
	info, ok := h.pages.Get(page)
	if !ok {
		panic(fmt.Sprintf("memhost: unknown page %#x", uintptr(page)))
	}
	return info
}

// AllocPage returns a new zero-filled page with a reference count of 1
func (h *Host) AllocPage() (ttm.Page, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.newPage(false)
}

// FreePage releases a page returned by AllocPage
func (h *Host) FreePage(page ttm.Page) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	info := h.info(page)
	if info.user {
		panic(fmt.Sprintf("memhost: attempted to free user page %#x", uintptr(page)))
	}
	if h.aperture.Has(page) {
		panic(fmt.Sprintf("memhost: attempted to free page %#x while it is mapped into the aperture", uintptr(page)))
	}

	h.pages.Delete(page)
}

func (h *Host) PageRefCount(page ttm.Page) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.info(page).refs
}

func (h *Host) PageMapped(page ttm.Page) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.info(page).mapped
}

func (h *Host) IsHighMem(page ttm.Page) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.info(page).highMem
}

func (h *Host) IsReserved(page ttm.Page) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.info(page).reserved
}

// AllocArray returns a page array of numPages empty slots
func (h *Host) AllocArray(numPages int) ([]ttm.Page, error) {
	if numPages <= 0 {
		return nil, errors.Newf("memhost: cannot allocate a page array of %d pages", numPages)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.options.MaxArrays > 0 && h.arrays.Count() >= h.options.MaxArrays {
		return nil, errors.Wrapf(ErrOutOfArrays, "host array limit of %d reached", h.options.MaxArrays)
	}

	pages := make([]ttm.Page, numPages)
	h.arrays.Put(&pages[0], numPages)
	return pages, nil
}

// FreeArray releases an array returned by AllocArray
func (h *Host) FreeArray(pages []ttm.Page) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if len(pages) == 0 || !h.arrays.Delete(&pages[0]) {
		panic("memhost: attempted to free a page array that was not allocated by this host")
	}
}

// MapPage maps a page into the aperture with uncached attributes
func (h *Host) MapPage(page ttm.Page) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.info(page)
	h.aperture.Put(page, struct{}{})
}

// UnmapPage restores a page's cached attributes
func (h *Host) UnmapPage(page ttm.Page) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.info(page)
	h.aperture.Delete(page)
}

func (h *Host) NumCPU() int {
	return h.numCPU
}

// FlushCPUCache records a flush of one core's cache
func (h *Host) FlushCPUCache(cpu int) error {
	if cpu < 0 || cpu >= h.numCPU {
		return errors.Newf("memhost: cpu %d out of range", cpu)
	}

	if h.options.FlushHook != nil {
		err := h.options.FlushHook(cpu)
		if err != nil {
			return err
		}
	}

	atomic.AddUint64(&h.flushes[cpu], 1)
	return nil
}

// LivePages returns the number of pages that have been allocated or faulted in and not yet freed
func (h *Host) LivePages() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.pages.Count()
}

// LiveArrays returns the number of page arrays allocated and not yet freed
func (h *Host) LiveArrays() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.arrays.Count()
}

// ApertureMapped reports whether a page is currently mapped into the aperture
func (h *Host) ApertureMapped(page ttm.Page) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.aperture.Has(page)
}

// AperturePages returns the number of pages currently mapped into the aperture
func (h *Host) AperturePages() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.aperture.Count()
}

// CPUFlushes returns the number of times the cache of a core was flushed
func (h *Host) CPUFlushes(cpu int) int {
	return int(atomic.LoadUint64(&h.flushes[cpu]))
}

// AddReference adds a foreign reference to a page, as if another owner still held it
func (h *Host) AddReference(page ttm.Page) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.info(page).refs++
}

// DropReference removes a reference added by AddReference
func (h *Host) DropReference(page ttm.Page) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	info := h.info(page)
	if info.refs <= 1 {
		panic(fmt.Sprintf("memhost: page %#x has no foreign references to drop", uintptr(page)))
	}
	info.refs--
}

// SetMapped marks a page as mapped into some CPU address space
func (h *Host) SetMapped(page ttm.Page, mapped bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.info(page).mapped = mapped
}

// SetHighMem marks a page as living in high memory
func (h *Host) SetHighMem(page ttm.Page, highMem bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.info(page).highMem = highMem
}

// SetReserved marks a page as reserved by the host
func (h *Host) SetReserved(page ttm.Page, reserved bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.info(page).reserved = reserved
}
