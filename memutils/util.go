package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uintptr
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	DebugCheckPow2(alignment, "alignment")
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	DebugCheckPow2(alignment, "alignment")
	return value & int(^(alignment - 1))
}

// PageCount returns the number of pages of pageSize bytes needed to hold size bytes.
func PageCount(size int, pageSize uint) int {
	return AlignUp(size, pageSize) / int(pageSize)
}

// SizeAlign rounds an accounting size the way small kernel allocations are rounded: sizes above a page
// are page aligned, smaller sizes go to the next power of two (with a floor of 4 bytes).
func SizeAlign(size int, pageSize uint) int {
	if size > int(pageSize) {
		return AlignUp(size, pageSize)
	}

	aligned := 4
	for aligned < size {
		aligned <<= 1
	}
	return aligned
}
