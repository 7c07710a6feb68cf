//go:build linux

package linuxhost

import (
	"fmt"
	"sync"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/ttm/ttm"
	"golang.org/x/sys/unix"
)

// AddressSpace pins pages of the current process. Only pages that are resident when the pin is taken
// can be pinned; pinning locks them into memory until they are unpinned.
type AddressSpace struct {
	mapLock sync.RWMutex

	mutex sync.Mutex
	pins  *swiss.Map[ttm.Page, int]
	dirty *swiss.Map[ttm.Page, struct{}]
}

var _ ttm.AddressSpace = &AddressSpace{}

func NewAddressSpace() *AddressSpace {
	return &AddressSpace{
		pins:  swiss.NewMap[ttm.Page, int](64),
		dirty: swiss.NewMap[ttm.Page, struct{}](16),
	}
}

func (a *AddressSpace) RLockMap()   { a.mapLock.RLock() }
func (a *AddressSpace) RUnlockMap() { a.mapLock.RUnlock() }

func resident(address uintptr) bool {
	vec := make([]byte, 1)
	err := unix.Mincore(pageBytes(ttm.Page(address)), vec)
	return err == nil && vec[0]&1 != 0
}

// PinPages locks every resident page of the range into memory
func (a *AddressSpace) PinPages(start uintptr, write bool, pages []ttm.Page) int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	pinned := 0
	for i := range pages {
		address := start + uintptr(i)*ttm.PageSize
		pages[i] = ttm.NoPage

		page := ttm.Page(address)
		count, ok := a.pins.Get(page)
		if !ok {
			if !resident(address) {
				continue
			}
			if unix.Mlock(pageBytes(page)) != nil {
				continue
			}
		}

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
		panic(fmt.Sprintf("linuxhost: attempted to unpin page %#x, which is not pinned", uintptr(page)))
	}

	if count > 1 {
		a.pins.Put(page, count-1)
		return
	}

	a.pins.Delete(page)
	_ = unix.Munlock(pageBytes(page))
}

// SetPageDirty records the page as written. Anonymous memory needs no writeback, so this is bookkeeping
// only.
func (a *AddressSpace) SetPageDirty(page ttm.Page) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.dirty.Put(page, struct{}{})
}

func (a *AddressSpace) PinnedPages() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.pins.Count()
}

// IsDirty reports whether page was marked dirty while it was pinned
func (a *AddressSpace) IsDirty(page ttm.Page) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.dirty.Has(page)
}
