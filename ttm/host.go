package ttm

// Page is a handle to a single page of host memory. The host issues handles; NoPage marks an empty slot.
type Page uintptr

// NoPage is the value of a page slot that holds no page.
const NoPage Page = 0

// PageSize is the size in bytes of every page managed by a TTM.
const PageSize = 4096

// PageAllocator hands out individual zero-filled, DMA-addressable pages and answers questions about
// their ownership.
type PageAllocator interface {
	// AllocPage returns a zero-filled page, or an error if the host is out of pages.
	AllocPage() (Page, error)
	// FreePage returns a page obtained from AllocPage.
	FreePage(page Page)
	// PageRefCount returns the number of owners currently holding the page.
	PageRefCount(page Page) int
	// PageMapped reports whether the page is still mapped into some address space.
	PageMapped(page Page) bool
	// IsHighMem reports whether the page lives outside the permanently mapped part of host memory. Such
	// pages have no linear mapping whose caching attributes could be changed.
	IsHighMem(page Page) bool
	// IsReserved reports whether the page is reserved by the host, in which case its dirty state is not
	// tracked.
	IsReserved(page Page) bool
}

// ArrayAllocator provides virtually-backed storage for page arrays that are too large to be allocated
// compactly.
type ArrayAllocator interface {
	AllocArray(numPages int) ([]Page, error)
	FreeArray(pages []Page)
}

// ApertureMapper inserts pages into, and removes them from, the page tables that make them visible
// to the GPU aperture with uncached attributes.
type ApertureMapper interface {
	MapPage(page Page)
	UnmapPage(page Page)
}

// CacheFlusher flushes CPU caches one core at a time.
type CacheFlusher interface {
	// NumCPU returns the number of cores whose caches must be flushed for a global flush.
	NumCPU() int
	// FlushCPUCache flushes the cache of a single core, blocking until the core acknowledges.
	FlushCPUCache(cpu int) error
}

// Host bundles the host primitives a Device requires.
type Host interface {
	PageAllocator
	ArrayAllocator
	ApertureMapper
	CacheFlusher
}

// AddressSpace is the address space of a task whose pages can be pinned for zero-copy buffers.
type AddressSpace interface {
	// RLockMap takes the address space's map lock in read mode.
	RLockMap()
	// RUnlockMap releases a read lock taken by RLockMap.
	RUnlockMap()
	// PinPages pins the pages backing len(pages) pages of address space starting at start. Pinned pages
	// are written into pages; slots whose page is not resident are left as NoPage. It returns the
	// number of pages pinned.
	PinPages(start uintptr, write bool, pages []Page) int
	// UnpinPage releases a pin taken by PinPages.
	UnpinPage(page Page)
	// SetPageDirty marks a pinned page as written so the host writes it back.
	SetPageDirty(page Page)
}
