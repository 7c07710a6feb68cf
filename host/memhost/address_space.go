package memhost

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/ttm/ttm"
)

// AddressSpace is an in-memory task address space. Pages become resident through Fault and stop being
// resident through Unmap; only resident pages can be pinned.
type AddressSpace struct {
	host *Host

	mapLock sync.RWMutex
	readers int32

	mutex    sync.Mutex
	resident *swiss.Map[uintptr, ttm.Page]
	pins     *swiss.Map[ttm.Page, int]
	dirty    *swiss.Map[ttm.Page, struct{}]
}

var _ ttm.AddressSpace = &AddressSpace{}

// NewAddressSpace creates an empty address space whose pages come from host
func NewAddressSpace(host *Host) *AddressSpace {
	return &AddressSpace{
		host:     host,
		resident: swiss.NewMap[uintptr, ttm.Page](64),
		pins:     swiss.NewMap[ttm.Page, int](64),
		dirty:    swiss.NewMap[ttm.Page, struct{}](16),
	}
}

// Fault makes numPages pages starting at the page-aligned address start resident
func (a *AddressSpace) Fault(start uintptr, numPages int) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.host.mutex.Lock()
	defer a.host.mutex.Unlock()

	for i := 0; i < numPages; i++ {
		address := start + uintptr(i)*ttm.PageSize
		if a.resident.Has(address) {
			continue
		}

		page, err := a.host.newPage(true)
		if err != nil {
			return err
		}
		a.resident.Put(address, page)
	}

	return nil
}

// Unmap removes the page at address from the address space. Pinned pages stay alive until unpinned.
func (a *AddressSpace) Unmap(address uintptr) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	page, ok := a.resident.Get(address)
	if !ok {
		return
	}
	a.resident.Delete(address)

	if !a.pins.Has(page) {
		a.releasePage(page)
	}
}

// PageAt returns the page resident at address, or ttm.NoPage
func (a *AddressSpace) PageAt(address uintptr) ttm.Page {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	page, _ := a.resident.Get(address)
	return page
}

func (a *AddressSpace) RLockMap() {
	a.mapLock.RLock()
	atomic.AddInt32(&a.readers, 1)
}

func (a *AddressSpace) RUnlockMap() {
	atomic.AddInt32(&a.readers, -1)
	a.mapLock.RUnlock()
}

// LockMap takes the map lock in write mode, as a task changing its mappings would
func (a *AddressSpace) LockMap() {
	a.mapLock.Lock()
}

func (a *AddressSpace) UnlockMap() {
	a.mapLock.Unlock()
}

// PinPages pins every resident page in the range. The caller must hold the map lock in read mode.
func (a *AddressSpace) PinPages(start uintptr, write bool, pages []ttm.Page) int {
	if atomic.LoadInt32(&a.readers) <= 0 {
		panic("memhost: PinPages called without holding the map lock")
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	pinned := 0
	for i := range pages {
		page, ok := a.resident.Get(start + uintptr(i)*ttm.PageSize)
		if !ok {
			pages[i] = ttm.NoPage
			continue
		}

		count, _ := a.pins.Get(page)
		a.pins.Put(page, count+1)
		pages[i] = page
		pinned++
	}

	return pinned
}

func (a *AddressSpace) UnpinPage(page ttm.Page) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	count, ok := a.pins.Get(page)
	if !ok {
		panic(fmt.Sprintf("memhost: attempted to unpin page %#x, which is not pinned", uintptr(page)))
	}

	if count > 1 {
		a.pins.Put(page, count-1)
		return
	}
	a.pins.Delete(page)

	stillResident := false
	a.resident.Iter(func(_ uintptr, resident ttm.Page) bool {
		stillResident = resident == page
		return stillResident
	})
	if !stillResident {
		a.releasePage(page)
	}
}

func (a *AddressSpace) SetPageDirty(page ttm.Page) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if !a.pins.Has(page) {
		panic(fmt.Sprintf("memhost: attempted to dirty page %#x, which is not pinned", uintptr(page)))
	}
	a.dirty.Put(page, struct{}{})
}

func (a *AddressSpace) releasePage(page ttm.Page) {
	a.dirty.Delete(page)

	a.host.mutex.Lock()
	defer a.host.mutex.Unlock()
	a.host.pages.Delete(page)
}

// PinCount returns the number of outstanding pins of page
func (a *AddressSpace) PinCount(page ttm.Page) int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	count, _ := a.pins.Get(page)
	return count
}

// PinnedPages returns the number of distinct pages with at least one outstanding pin
func (a *AddressSpace) PinnedPages() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.pins.Count()
}

// IsDirty reports whether page was marked dirty while pinned
func (a *AddressSpace) IsDirty(page ttm.Page) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.dirty.Has(page)
}
