package ttm

import "github.com/vkngwrapper/core/v2/common"

// PageFlags record how a TTM's pages were obtained and what state they are in.
type PageFlags uint32

var pageFlagsMapping = common.NewFlagStringMapping[PageFlags]()

func (f PageFlags) Register(str string) {
	pageFlagsMapping.Register(f, str)
}
func (f PageFlags) String() string {
	return pageFlagsMapping.FlagsToString(f)
}

const (
	// PageFlagVirtual indicates that the page array was obtained from the host's ArrayAllocator rather
	// than allocated compactly, and must be returned to it
	PageFlagVirtual PageFlags = 1 << iota
	// PageFlagUncached indicates that the TTM's resident pages are mapped uncached for GPU access
	PageFlagUncached
	// PageFlagUser indicates that the pages are pinned from a task's address space instead of allocated
	PageFlagUser
	// PageFlagUserWrite indicates that user pages were pinned for writing
	PageFlagUserWrite
	// PageFlagUserDirty indicates that user pages were bound and may have been written by the GPU
	PageFlagUserDirty
)

func init() {
	PageFlagVirtual.Register("PageFlagVirtual")
	PageFlagUncached.Register("PageFlagUncached")
	PageFlagUser.Register("PageFlagUser")
	PageFlagUserWrite.Register("PageFlagUserWrite")
	PageFlagUserDirty.Register("PageFlagUserDirty")
}
