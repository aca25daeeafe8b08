package sparse

import "github.com/pkg/errors"

// ErrInvalidMatrix is returned when a matrix violates the invariants of its
// storage format (index array lengths, bounds, ordering or duplicates).
var ErrInvalidMatrix = errors.New("sparse: invalid matrix")

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidMatrix, format, args...)
}
