package ttm

import "github.com/vkngwrapper/core/v2/common"

// RegionFlags describe the placement a TTM is being bound into.
type RegionFlags uint32

var regionFlagsMapping = common.NewFlagStringMapping[RegionFlags]()

func (f RegionFlags) Register(str string) {
	regionFlagsMapping.Register(f, str)
}
func (f RegionFlags) String() string {
	return regionFlagsMapping.FlagsToString(f)
}

const (
	// RegionCached indicates that GPU access to the region snoops CPU caches, so the TTM's pages can
	// remain CPU cacheable while bound
	RegionCached RegionFlags = 1 << iota
	// RegionCachedMapped indicates a cached region that the CPU also accesses through a mapping. Drivers
	// that implement CachedMappedFlusher get a chance to flush before such a bind
	RegionCachedMapped
)

func init() {
	RegionCached.Register("RegionCached")
	RegionCachedMapped.Register("RegionCachedMapped")
}

// Region is the memory region descriptor a TTM is bound into. It is owned by the placement layer and
// only read during Bind.
type Region struct {
	Flags RegionFlags
	// Start is the first aperture page the TTM's pages should occupy
	Start int
	// NumPages is the size of the region in pages
	NumPages int
}

// Backend is the aperture capability of a single TTM. Each TTM owns exactly one Backend, created when the
// TTM is created and destroyed when the TTM is destroyed.
type Backend interface {
	// Populate hands the backend the TTM's complete page list. The slice is owned by the TTM and stays
	// valid until the backend is destroyed.
	Populate(pages []Page) error
	// Bind makes the populated pages visible to the GPU at the provided region.
	Bind(region *Region) error
	// Unbind removes a previous binding. It must not fail after a successful Bind.
	Unbind() error
	// NeedsCacheAdjustOnUnbind reports whether the TTM's pages must be returned to the cached state
	// after they are evicted from this backend.
	NeedsCacheAdjustOnUnbind() bool
	// Destroy releases all backend resources.
	Destroy()
}

// Driver is the per-device driver hook that produces backends for new TTMs.
type Driver interface {
	CreateBackend(device *Device) (Backend, error)
}

// BackendSizer can be implemented by a Driver to declare the memory its backends consume, for use by
// EstimateFootprint.
type BackendSizer interface {
	BackendSize(device *Device, numPages int) int
}

// CachedMappedFlusher can be implemented by a Driver that needs a lighter flush than a global cache
// flush before a TTM is bound into a RegionCachedMapped region.
type CachedMappedFlusher interface {
	FlushCachedMapped(ttm *TTM)
}
