package emergency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medroute/medroute/internal/domain/facility"
	"github.com/medroute/medroute/internal/platform/websocket"
	"github.com/medroute/medroute/pkg/geo"
)

// NearestFinder is satisfied by *facility.Resolver.
type NearestFinder interface {
	Nearest(ctx context.Context, point geo.Coordinate) (facility.Match, error)
}

// Observer receives dispatch and resolve outcomes. *metrics.Metrics
// satisfies it.
type Observer interface {
	ObserveDispatch(kind, outcome string, distanceKm float64)
	ObserveResolve(outcome string)
	ObserveEvent(err error)
}

type Service struct {
	resolver      NearestFinder
	requests      RequestRepository
	prescriptions PrescriptionRepository
	tx            TxRunner
	logger        zerolog.Logger

	events   websocket.EventPublisher
	observer Observer
	now      func() time.Time
}

func NewService(resolver NearestFinder, requests RequestRepository, prescriptions PrescriptionRepository, tx TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		resolver:      resolver,
		requests:      requests,
		prescriptions: prescriptions,
		tx:            tx,
		logger:        logger.With().Str("component", "dispatch").Logger(),
		now:           time.Now,
	}
}

// SetPublisher attaches a queue notification sink. Without one, staff rely
// on polling.
func (s *Service) SetPublisher(p websocket.EventPublisher) {
	s.events = p
}

func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

func (s *Service) DispatchSOS(ctx context.Context, in SOSInput) (*DispatchResult, error) {
	return s.Dispatch(ctx, in)
}

func (s *Service) DispatchDoctorConnect(ctx context.Context, in DoctorConnectInput) (*DispatchResult, error) {
	return s.Dispatch(ctx, in)
}

// Dispatch routes a request to the nearest approved facility and stores it
// as PENDING. It fails with ErrNoFacility when nothing can receive it. Each
// call stores a new request; identical calls are not merged.
func (s *Service) Dispatch(ctx context.Context, in DispatchInput) (*DispatchResult, error) {
	kind := string(in.Kind())

	req, err := in.draft()
	if err != nil {
		s.observeDispatch(kind, "invalid", 0)
		return nil, err
	}

	m, err := s.resolver.Nearest(ctx, req.Location)
	if errors.Is(err, facility.ErrNoFacility) {
		s.observeDispatch(kind, "no_facility", 0)
		s.logger.Error().Str("kind", kind).Msg("no facility available for request")
		return nil, ErrNoFacility
	}
	if err != nil {
		s.observeDispatch(kind, "error", 0)
		return nil, fmt.Errorf("resolve nearest facility: %w", err)
	}

	req.ID = uuid.New()
	req.FacilityID = m.Facility.ID
	req.FacilityName = m.Facility.Name
	req.DistanceKm = m.DistanceKm
	req.CreatedAt = s.now()

	if err := s.requests.Create(ctx, req); err != nil {
		s.observeDispatch(kind, "error", 0)
		return nil, fmt.Errorf("store request: %w", err)
	}

	s.observeDispatch(kind, "routed", req.DistanceKm)
	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("kind", kind).
		Str("criticality", string(req.Criticality)).
		Str("facility_id", req.FacilityID.String()).
		Float64("distance_km", req.DistanceKm).
		Msg("request dispatched")

	s.publish(ctx, websocket.EventRequestCreated, req)

	return &DispatchResult{
		RequestID:    req.ID,
		Kind:         req.Kind,
		Criticality:  req.Criticality,
		FacilityID:   req.FacilityID,
		FacilityName: req.FacilityName,
		DistanceKm:   req.DistanceKm,
	}, nil
}

// ListPending returns the queue for scope, most critical first and oldest
// first within a criticality.
func (s *Service) ListPending(ctx context.Context, scope QueueScope) ([]*Request, error) {
	var filter *uuid.UUID
	if !scope.All {
		if scope.FacilityID == uuid.Nil {
			return nil, validationError("facility_id is required")
		}
		filter = &scope.FacilityID
	}

	items, err := s.requests.ListPending(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	SortQueue(items)
	return items, nil
}

// GetRequest loads a request. A non-zero facilityID hides requests routed
// elsewhere.
func (s *Service) GetRequest(ctx context.Context, id, facilityID uuid.UUID) (*Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if facilityID != uuid.Nil && req.FacilityID != facilityID {
		return nil, ErrNotFound
	}
	return req, nil
}

// Resolve marks a pending request RESOLVED and stores its prescription in
// one transaction. A request that is unknown, already resolved or routed to
// another facility yields ErrNotFound and nothing is written.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (*Prescription, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		s.observeResolve("invalid")
		return nil, validationError("content is required")
	}
	author := strings.TrimSpace(in.AuthorName)
	if author == "" {
		s.observeResolve("invalid")
		return nil, validationError("author_name is required")
	}

	var facilityFilter *uuid.UUID
	if in.FacilityID != uuid.Nil {
		facilityFilter = &in.FacilityID
	}

	var (
		resolved *Request
		p        *Prescription
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.now()
		req, err := s.requests.MarkResolved(ctx, in.RequestID, facilityFilter, now)
		if err != nil {
			return err
		}
		rx := &Prescription{
			ID:            uuid.New(),
			RequestID:     req.ID,
			FacilityID:    req.FacilityID,
			RequesterName: req.RequesterName,
			Content:       content,
			AuthorName:    author,
			CreatedAt:     now,
		}
		if err := s.prescriptions.Create(ctx, rx); err != nil {
			return fmt.Errorf("store prescription: %w", err)
		}
		resolved, p = req, rx
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		s.observeResolve("not_found")
		return nil, ErrNotFound
	}
	if err != nil {
		s.observeResolve("error")
		return nil, err
	}

	s.observeResolve("resolved")
	s.logger.Info().
		Str("request_id", resolved.ID.String()).
		Str("facility_id", resolved.FacilityID.String()).
		Str("prescription_id", p.ID.String()).
		Msg("request resolved")

	s.publish(ctx, websocket.EventRequestResolved, resolved)
	return p, nil
}

func (s *Service) ListPrescriptions(ctx context.Context, requestID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	if requestID == uuid.Nil {
		return nil, 0, validationError("request_id is required")
	}
	return s.prescriptions.ListByRequest(ctx, requestID, limit, offset)
}

// publish never fails the caller; queue consumers can always fall back to
// polling.
func (s *Service) publish(ctx context.Context, typ string, req *Request) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, websocket.Event{
		Type:        typ,
		Topic:       websocket.FacilityTopic(req.FacilityID.String()),
		RequestID:   req.ID.String(),
		FacilityID:  req.FacilityID.String(),
		Criticality: string(req.Criticality),
		Timestamp:   s.now(),
	})
	if s.observer != nil {
		s.observer.ObserveEvent(err)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.ID.String()).Str("event", typ).Msg("queue notification failed")
	}
}

func (s *Service) observeDispatch(kind, outcome string, km float64) {
	if s.observer != nil {
		s.observer.ObserveDispatch(kind, outcome, km)
	}
}

func (s *Service) observeResolve(outcome string) {
	if s.observer != nil {
		s.observer.ObserveResolve(outcome)
	}
}
