package emergency

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RequestRepository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	// ListPending returns pending requests in insertion order. A nil
	// facilityID lists every facility.
	ListPending(ctx context.Context, facilityID *uuid.UUID) ([]*Request, error)
	// MarkResolved flips a PENDING request to RESOLVED and returns it. It
	// returns ErrNotFound when the id is unknown, the request is not pending,
	// or facilityID is set and does not match.
	MarkResolved(ctx context.Context, id uuid.UUID, facilityID *uuid.UUID, at time.Time) (*Request, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	ListByRequest(ctx context.Context, requestID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
}

// TxRunner runs fn in a transaction; repositories called with the context
// passed to fn join it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
