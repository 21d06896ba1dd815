package facility

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/medroute/medroute/pkg/geo"
)

type mockDirectory struct {
	mu         sync.Mutex
	facilities []*Facility
	listCalls  int
	err        error
}

func (m *mockDirectory) ListApprovedWithLocation(_ context.Context) ([]*Facility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.err != nil {
		return nil, m.err
	}
	var out []*Facility
	for _, f := range m.facilities {
		if f.Eligible() {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockDirectory) GetByID(_ context.Context, id uuid.UUID) (*Facility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.facilities {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockDirectory) List(_ context.Context, limit, offset int) ([]*Facility, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, m.err
	}
	total := len(m.facilities)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return m.facilities[offset:end], total, nil
}

var errStore = errors.New("store unavailable")

func approved(name string, lat, lon float64) *Facility {
	return &Facility{
		ID:       uuid.New(),
		Name:     name,
		Location: &geo.Coordinate{Latitude: lat, Longitude: lon},
		Status:   StatusApproved,
	}
}
