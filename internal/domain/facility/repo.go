package facility

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("facility not found")

// Directory is the read-only view of registered facilities.
type Directory interface {
	// ListApprovedWithLocation returns routable facilities in registration
	// order. The order is stable between calls.
	ListApprovedWithLocation(ctx context.Context) ([]*Facility, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Facility, error)
	List(ctx context.Context, limit, offset int) ([]*Facility, int, error)
}
