package memutils

import "github.com/pkg/errors"

var (
	// PowerOfTwoError is returned from CheckPow2 when a size or alignment that the page math depends on
	// is not a power of two
	PowerOfTwoError error = errors.New("value must be a power of two")
	// ValidationError marks every failure reported by ValidateAll
	ValidationError error = errors.New("consistency check failed")
)
