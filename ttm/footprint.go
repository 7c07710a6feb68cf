package ttm

import (
	"unsafe"

	"github.com/vkngwrapper/ttm/memutils"
)

// backendEntrySize is the bookkeeping a backend is assumed to need per allocation when its driver
// does not implement BackendSizer
const backendEntrySize = 64

// EstimateFootprint estimates the host memory a TTM of numPages pages will consume: the TTM itself, its
// page array, the pages (unless they are pinned from a user address space), and its backend. Placement
// code uses it to account for a buffer before creating it.
func EstimateFootprint(device *Device, numPages int, userBacked bool) int {
	if numPages < 0 {
		panic("called EstimateFootprint with a negative page count")
	}

	size := memutils.SizeAlign(int(unsafe.Sizeof(TTM{})), PageSize)
	size += memutils.SizeAlign(numPages*pageHandleSize, PageSize)

	if !userBacked {
		size += memutils.SizeAlign(numPages*PageSize, PageSize)
	}

	if device != nil {
		sizer, ok := device.driver.(BackendSizer)
		if ok {
			return size + sizer.BackendSize(device, numPages)
		}
	}

	size += memutils.SizeAlign(numPages*pageHandleSize, PageSize)
	size += 3 * memutils.SizeAlign(backendEntrySize, PageSize)

	return size
}
