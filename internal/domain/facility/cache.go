package facility

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheObserver receives hit/miss notifications. *metrics.Metrics satisfies it.
type CacheObserver interface {
	ObserveCache(hit bool)
}

const approvedKey = "approved"

// CachedDirectory keeps a short-lived snapshot of the routable facility
// list. Approvals and new coordinates become visible once the snapshot
// expires. GetByID and List always read through.
type CachedDirectory struct {
	inner    Directory
	snapshot *expirable.LRU[string, []*Facility]
	observer CacheObserver
}

// NewCachedDirectory wraps inner. A ttl of zero or less returns inner
// unchanged.
func NewCachedDirectory(inner Directory, ttl time.Duration, observer CacheObserver) Directory {
	if ttl <= 0 {
		return inner
	}
	return &CachedDirectory{
		inner:    inner,
		snapshot: expirable.NewLRU[string, []*Facility](1, nil, ttl),
		observer: observer,
	}
}

// ListApprovedWithLocation returns the cached snapshot. Callers must treat
// the returned facilities as read-only.
func (d *CachedDirectory) ListApprovedWithLocation(ctx context.Context) ([]*Facility, error) {
	if items, ok := d.snapshot.Get(approvedKey); ok {
		d.observe(true)
		return items, nil
	}
	d.observe(false)

	items, err := d.inner.ListApprovedWithLocation(ctx)
	if err != nil {
		return nil, err
	}
	d.snapshot.Add(approvedKey, items)
	return items, nil
}

func (d *CachedDirectory) GetByID(ctx context.Context, id uuid.UUID) (*Facility, error) {
	return d.inner.GetByID(ctx, id)
}

func (d *CachedDirectory) List(ctx context.Context, limit, offset int) ([]*Facility, int, error) {
	return d.inner.List(ctx, limit, offset)
}

// Invalidate drops the snapshot so the next lookup reads the store.
func (d *CachedDirectory) Invalidate() {
	d.snapshot.Purge()
}

func (d *CachedDirectory) observe(hit bool) {
	if d.observer != nil {
		d.observer.ObserveCache(hit)
	}
}
