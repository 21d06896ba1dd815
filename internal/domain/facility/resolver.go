package facility

import (
	"context"
	"errors"
	"fmt"

	"github.com/medroute/medroute/pkg/geo"
)

// ErrNoFacility means no approved facility with a location exists.
var ErrNoFacility = errors.New("no approved facility with a known location")

// FindNearest scans candidates in order and returns the closest eligible
// one. Ties keep the earlier candidate. ok is false when no candidate is
// eligible.
func FindNearest(point geo.Coordinate, candidates []*Facility) (m Match, ok bool) {
	for _, f := range candidates {
		if !f.Eligible() {
			continue
		}
		d := geo.DistanceKm(point, *f.Location)
		if !ok || d < m.DistanceKm {
			m = Match{Facility: f, DistanceKm: d}
			ok = true
		}
	}
	return m, ok
}

// Resolver picks the facility a new request is routed to.
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

func (r *Resolver) Nearest(ctx context.Context, point geo.Coordinate) (Match, error) {
	if err := point.Validate(); err != nil {
		return Match{}, err
	}
	candidates, err := r.dir.ListApprovedWithLocation(ctx)
	if err != nil {
		return Match{}, fmt.Errorf("load facilities: %w", err)
	}
	m, ok := FindNearest(point, candidates)
	if !ok {
		return Match{}, ErrNoFacility
	}
	return m, nil
}
