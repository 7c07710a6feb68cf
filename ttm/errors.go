package ttm

import "github.com/cockroachdb/errors"

var (
	// ErrResourceExhausted is returned when pages, page arrays, or the device page budget run out
	ErrResourceExhausted = errors.New("ttm: resource exhausted")
	// ErrInvalidArgument is returned for arguments that cannot describe a valid TTM operation
	ErrInvalidArgument = errors.New("ttm: invalid argument")
	// ErrBackendBind is returned when the backend refuses to bind a TTM. The TTM is left evicted and
	// the bind may be retried with a different region
	ErrBackendBind = errors.New("ttm: backend bind failed")
	// ErrMappingsOutstanding is returned by Destroy while CPU mappings of the TTM's pages are still active
	ErrMappingsOutstanding = errors.New("ttm: mappings outstanding")
)
