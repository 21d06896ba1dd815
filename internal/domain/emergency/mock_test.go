package emergency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medroute/medroute/internal/domain/facility"
	"github.com/medroute/medroute/internal/platform/websocket"
	"github.com/medroute/medroute/pkg/geo"
)

// memStore backs both repositories so memTx can roll them back together.
type memStore struct {
	mu            sync.Mutex
	requests      map[uuid.UUID]*Request
	order         []uuid.UUID
	prescriptions map[uuid.UUID]*Prescription
	failRx        error
}

func newMemStore() *memStore {
	return &memStore{
		requests:      make(map[uuid.UUID]*Request),
		prescriptions: make(map[uuid.UUID]*Prescription),
	}
}

type memRequests struct{ s *memStore }
type memPrescriptions struct{ s *memStore }

func (m memRequests) Create(_ context.Context, r *Request) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	cp := *r
	m.s.requests[r.ID] = &cp
	m.s.order = append(m.s.order, r.ID)
	return nil
}

func (m memRequests) GetByID(_ context.Context, id uuid.UUID) (*Request, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m memRequests) ListPending(_ context.Context, facilityID *uuid.UUID) ([]*Request, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	items := []*Request{}
	for _, id := range m.s.order {
		r := m.s.requests[id]
		if r.Status != StatusPending {
			continue
		}
		if facilityID != nil && r.FacilityID != *facilityID {
			continue
		}
		cp := *r
		items = append(items, &cp)
	}
	return items, nil
}

func (m memRequests) MarkResolved(_ context.Context, id uuid.UUID, facilityID *uuid.UUID, at time.Time) (*Request, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.requests[id]
	if !ok || r.Status != StatusPending {
		return nil, ErrNotFound
	}
	if facilityID != nil && r.FacilityID != *facilityID {
		return nil, ErrNotFound
	}
	r.Status = StatusResolved
	r.ResolvedAt = &at
	cp := *r
	return &cp, nil
}

func (m memPrescriptions) Create(_ context.Context, p *Prescription) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failRx != nil {
		return m.s.failRx
	}
	for _, existing := range m.s.prescriptions {
		if existing.RequestID == p.RequestID {
			return errors.New("duplicate prescription for request")
		}
	}
	cp := *p
	m.s.prescriptions[p.ID] = &cp
	return nil
}

func (m memPrescriptions) ListByRequest(_ context.Context, requestID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	items := []*Prescription{}
	for _, p := range m.s.prescriptions {
		if p.RequestID == requestID {
			items = append(items, p)
		}
	}
	return items, len(items), nil
}

// memTx snapshots the store and restores it when fn fails.
type memTx struct{ s *memStore }

func (t memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.s.mu.Lock()
	reqs := make(map[uuid.UUID]Request, len(t.s.requests))
	for id, r := range t.s.requests {
		reqs[id] = *r
	}
	rxs := make(map[uuid.UUID]*Prescription, len(t.s.prescriptions))
	for id, p := range t.s.prescriptions {
		rxs[id] = p
	}
	t.s.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.s.mu.Lock()
		for id, r := range reqs {
			cp := r
			t.s.requests[id] = &cp
		}
		t.s.prescriptions = rxs
		t.s.mu.Unlock()
		return err
	}
	return nil
}

type staticDirectory struct{ facilities []*facility.Facility }

func (d *staticDirectory) ListApprovedWithLocation(_ context.Context) ([]*facility.Facility, error) {
	return d.facilities, nil
}

func (d *staticDirectory) GetByID(_ context.Context, id uuid.UUID) (*facility.Facility, error) {
	for _, f := range d.facilities {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, facility.ErrNotFound
}

func (d *staticDirectory) List(_ context.Context, _, _ int) ([]*facility.Facility, int, error) {
	return d.facilities, len(d.facilities), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type countingObserver struct {
	dispatch map[string]int
	resolve  map[string]int
	events   int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{dispatch: map[string]int{}, resolve: map[string]int{}}
}

func (o *countingObserver) ObserveDispatch(kind, outcome string, _ float64) {
	o.dispatch[kind+"/"+outcome]++
}
func (o *countingObserver) ObserveResolve(outcome string) { o.resolve[outcome]++ }
func (o *countingObserver) ObserveEvent(error)            { o.events++ }

// Bengaluru fixtures used across the tests.
var (
	cityHospitalLoc = geo.Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	patientLoc      = geo.Coordinate{Latitude: 12.9352, Longitude: 77.6245}
)

func newHospital(name string, loc geo.Coordinate) *facility.Facility {
	l := loc
	return &facility.Facility{ID: uuid.New(), Name: name, Location: &l, Status: facility.StatusApproved}
}

type testEnv struct {
	svc       *Service
	store     *memStore
	publisher *recordingPublisher
	observer  *countingObserver
	hospital  *facility.Facility
}

func newTestEnv(facilities ...*facility.Facility) *testEnv {
	if facilities == nil {
		facilities = []*facility.Facility{newHospital("City Hospital", cityHospitalLoc)}
	}
	store := newMemStore()
	resolver := facility.NewResolver(&staticDirectory{facilities: facilities})
	svc := NewService(resolver, memRequests{store}, memPrescriptions{store}, memTx{store}, zerolog.Nop())
	pub := &recordingPublisher{}
	obs := newCountingObserver()
	svc.SetPublisher(pub)
	svc.SetObserver(obs)
	env := &testEnv{svc: svc, store: store, publisher: pub, observer: obs}
	if len(facilities) > 0 {
		env.hospital = facilities[0]
	}
	return env
}

func loc(c geo.Coordinate) *LocationInput {
	lat, lon := c.Latitude, c.Longitude
	return &LocationInput{Latitude: &lat, Longitude: &lon}
}
