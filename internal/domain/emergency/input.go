package emergency

import (
	"strings"

	"github.com/google/uuid"

	"github.com/medroute/medroute/pkg/geo"
)

// LocationInput uses pointers so a missing coordinate is distinguishable
// from 0.
type LocationInput struct {
	Latitude  *float64 `json:"latitude" validate:"required,lat"`
	Longitude *float64 `json:"longitude" validate:"required,lng"`
}

func (l *LocationInput) coordinate() (geo.Coordinate, error) {
	if l == nil || l.Latitude == nil || l.Longitude == nil {
		return geo.Coordinate{}, validationError("location.latitude and location.longitude are required")
	}
	c := geo.Coordinate{Latitude: *l.Latitude, Longitude: *l.Longitude}
	if err := c.Validate(); err != nil {
		return geo.Coordinate{}, validationError(err.Error())
	}
	return c, nil
}

// DispatchInput is implemented by SOSInput and DoctorConnectInput only.
type DispatchInput interface {
	Kind() Kind
	draft() (*Request, error)
}

type SOSInput struct {
	RequesterName string         `json:"requester_name" validate:"required,max=255"`
	RequesterID   string         `json:"-"`
	Reason        string         `json:"reason" validate:"required,max=2000"`
	Location      *LocationInput `json:"location" validate:"required"`
}

func (SOSInput) Kind() Kind { return KindSOS }

// draft forces HIGH criticality and marks the reason, without stacking the
// marker on a reason that already carries it.
func (in SOSInput) draft() (*Request, error) {
	r, err := baseDraft(KindSOS, in.RequesterName, in.RequesterID, in.Reason, in.Location)
	if err != nil {
		return nil, err
	}
	r.Criticality = CriticalityHigh
	if !strings.HasPrefix(r.Reason, sosMarker) {
		r.Reason = sosMarker + r.Reason
	}
	return r, nil
}

type DoctorConnectInput struct {
	RequesterName string         `json:"requester_name" validate:"required,max=255"`
	RequesterID   string         `json:"-"`
	Reason        string         `json:"reason" validate:"required,max=2000"`
	Criticality   string         `json:"criticality" validate:"max=16"`
	Location      *LocationInput `json:"location" validate:"required"`
}

func (DoctorConnectInput) Kind() Kind { return KindDoctorConnect }

func (in DoctorConnectInput) draft() (*Request, error) {
	r, err := baseDraft(KindDoctorConnect, in.RequesterName, in.RequesterID, in.Reason, in.Location)
	if err != nil {
		return nil, err
	}
	if r.Criticality, err = ParseCriticality(in.Criticality); err != nil {
		return nil, err
	}
	return r, nil
}

func baseDraft(kind Kind, name, requesterID, reason string, loc *LocationInput) (*Request, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("requester_name is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("reason is required")
	}
	point, err := loc.coordinate()
	if err != nil {
		return nil, err
	}
	r := &Request{
		Kind:          kind,
		RequesterName: name,
		Reason:        reason,
		Location:      point,
		Status:        StatusPending,
	}
	if requesterID != "" {
		r.RequesterID = &requesterID
	}
	return r, nil
}

// ResolveInput closes a pending request with a prescription. A zero
// FacilityID skips the facility check (admin).
type ResolveInput struct {
	RequestID  uuid.UUID `json:"-"`
	FacilityID uuid.UUID `json:"-"`
	Content    string    `json:"content" validate:"required,max=10000"`
	AuthorName string    `json:"author_name" validate:"max=255"`
}
