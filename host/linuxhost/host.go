//go:build linux

// Package linuxhost implements the host primitives of a ttm.Device on Linux. Pages are anonymous
// mappings of the running process, aperture visibility is modelled by locking pages into memory, and
// a per-core cache flush migrates the calling thread onto the core and issues a memory barrier there.
package linuxhost

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/ttm/memutils"
	"github.com/vkngwrapper/ttm/ttm"
	"golang.org/x/sys/unix"
)

const membarrierCmdGlobal = 1

// ErrBarrierUnavailable is returned by FlushCPUCache when the kernel refuses the memory barrier, so
// the flush did not happen
var ErrBarrierUnavailable = errors.New("linuxhost: membarrier unavailable")

func membarrier() unix.Errno {
	_, _, errno := unix.Syscall(unix.SYS_MEMBARRIER, membarrierCmdGlobal, 0, 0)
	return errno
}

// Host is a ttm.Host backed by the current process's memory
type Host struct {
	mutex    sync.Mutex
	pages    *swiss.Map[ttm.Page, []byte]
	arrays   *swiss.Map[*ttm.Page, []byte]
	aperture *swiss.Map[ttm.Page, struct{}]

	cpus    []int
	barrier func() unix.Errno
}

var _ ttm.Host = &Host{}

// New creates a Host that flushes every core the process may run on
func New() (*Host, error) {
	pageSize := unix.Getpagesize()
	err := memutils.CheckPow2(pageSize, "system page size")
	if err != nil {
		return nil, err
	}
	if pageSize != ttm.PageSize {
		return nil, errors.Newf("system page size %d does not match the TTM page size %d", pageSize, ttm.PageSize)
	}

	var set unix.CPUSet
	err = unix.SchedGetaffinity(0, &set)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the process cpu affinity")
	}

	var cpus []int
	for cpu := 0; len(cpus) < set.Count(); cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}

	return &Host{
		pages:    swiss.NewMap[ttm.Page, []byte](64),
		arrays:   swiss.NewMap[*ttm.Page, []byte](8),
		aperture: swiss.NewMap[ttm.Page, struct{}](64),
		cpus:     cpus,
		barrier:  membarrier,
	}, nil
}

func pageBytes(page ttm.Page) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(page))), ttm.PageSize)
}

// AllocPage maps a new anonymous page. The kernel hands out anonymous memory zero-filled.
func (h *Host) AllocPage() (ttm.Page, error) {
	mem, err := unix.Mmap(-1, 0, ttm.PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		return ttm.NoPage, errors.Wrap(err, "failed to map an anonymous page")
	}

	page := ttm.Page(uintptr(unsafe.Pointer(&mem[0])))

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.pages.Put(page, mem)

	return page, nil
}

func (h *Host) FreePage(page ttm.Page) {
	h.mutex.Lock()
	mem, ok := h.pages.Get(page)
	if ok {
		h.pages.Delete(page)
	}
	h.mutex.Unlock()

	if !ok {
		panic(fmt.Sprintf("linuxhost: attempted to free unknown page %#x", uintptr(page)))
	}

	err := unix.Munmap(mem)
	if err != nil {
		panic(fmt.Sprintf("linuxhost: failed to unmap page %#x: %+v", uintptr(page), err))
	}
}

// PageRefCount is always 1: pages are private mappings that only this host hands out
func (h *Host) PageRefCount(page ttm.Page) int { return 1 }

// PageMapped is always false: pages are never mapped anywhere but their own allocation
func (h *Host) PageMapped(page ttm.Page) bool { return false }

// IsHighMem is always false: every page of a 64-bit process has a permanent mapping
func (h *Host) IsHighMem(page ttm.Page) bool { return false }

func (h *Host) IsReserved(page ttm.Page) bool { return false }

// AllocArray maps an anonymous region large enough for numPages page handles
func (h *Host) AllocArray(numPages int) ([]ttm.Page, error) {
	if numPages <= 0 {
		return nil, errors.Newf("linuxhost: cannot allocate a page array of %d pages", numPages)
	}

	size := numPages * int(unsafe.Sizeof(ttm.NoPage))
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to map a page array of %d pages", numPages)
	}

	pages := unsafe.Slice((*ttm.Page)(unsafe.Pointer(&mem[0])), numPages)

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.arrays.Put(&pages[0], mem)

	return pages, nil
}

func (h *Host) FreeArray(pages []ttm.Page) {
	if len(pages) == 0 {
		panic("linuxhost: attempted to free an empty page array")
	}

	h.mutex.Lock()
	mem, ok := h.arrays.Get(&pages[0])
	if ok {
		h.arrays.Delete(&pages[0])
	}
	h.mutex.Unlock()

	if !ok {
		panic("linuxhost: attempted to free a page array that was not allocated by this host")
	}

	err := unix.Munmap(mem)
	if err != nil {
		panic(fmt.Sprintf("linuxhost: failed to unmap page array: %+v", err))
	}
}

// MapPage locks the page into memory so it cannot be swapped while the device may access it
func (h *Host) MapPage(page ttm.Page) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.aperture.Has(page) {
		return
	}

	err := unix.Mlock(pageBytes(page))
	if err != nil {
		panic(fmt.Sprintf("linuxhost: failed to lock page %#x: %+v", uintptr(page), err))
	}
	h.aperture.Put(page, struct{}{})
}

func (h *Host) UnmapPage(page ttm.Page) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.aperture.Delete(page) {
		return
	}

	err := unix.Munlock(pageBytes(page))
	if err != nil {
		panic(fmt.Sprintf("linuxhost: failed to unlock page %#x: %+v", uintptr(page), err))
	}
}

// AperturePages returns the number of pages currently locked for device access
func (h *Host) AperturePages() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.aperture.Count()
}

func (h *Host) NumCPU() int {
	return len(h.cpus)
}

// FlushCPUCache runs a global memory barrier from the requested core. The calling goroutine's thread
// is pinned to the core for the duration and its affinity restored afterwards.
func (h *Host) FlushCPUCache(cpu int) error {
	if cpu < 0 || cpu >= len(h.cpus) {
		return errors.Newf("linuxhost: cpu index %d out of range", cpu)
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var previous unix.CPUSet
	err := unix.SchedGetaffinity(0, &previous)
	if err != nil {
		return errors.Wrap(err, "failed to read thread affinity")
	}

	var target unix.CPUSet
	target.Set(h.cpus[cpu])
	err = unix.SchedSetaffinity(0, &target)
	if err != nil {
		return errors.Wrapf(err, "failed to migrate to cpu %d", h.cpus[cpu])
	}
	defer func() {
		_ = unix.SchedSetaffinity(0, &previous)
	}()

	errno := h.barrier()
	switch errno {
	case 0:
		return nil
	case unix.ENOSYS, unix.EINVAL, unix.EPERM:
		return errors.Mark(errors.Wrapf(errno, "membarrier refused on cpu %d", h.cpus[cpu]), ErrBarrierUnavailable)
	default:
		return errors.Wrapf(errno, "membarrier failed on cpu %d", h.cpus[cpu])
	}
}
