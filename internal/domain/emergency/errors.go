package emergency

import (
	"errors"
	"fmt"

	"github.com/medroute/medroute/internal/domain/facility"
)

var (
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers unknown ids and requests that are no longer pending.
	ErrNotFound   = errors.New("request not found or already resolved")
	ErrNoFacility = facility.ErrNoFacility
)

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
