package memutils

import cerrors "github.com/cockroachdb/errors"

// Validatable is anything that can check its own internal consistency, such as a device, a TTM, or an
// aperture table. DebugValidate acts on these after state transitions.
type Validatable interface {
	Validate() error
}

// ValidateAll runs Validate on every object in order and returns the first failure, marked with
// ValidationError. Nil objects are skipped.
func ValidateAll(validatables ...Validatable) error {
	for index, validatable := range validatables {
		if validatable == nil {
			continue
		}

		err := validatable.Validate()
		if err != nil {
			return cerrors.Mark(cerrors.Wrapf(err, "object %d (%T)", index, validatable), ValidationError)
		}
	}
	return nil
}
