package emergency

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medroute/medroute/pkg/geo"
)

type Kind string

const (
	KindSOS           Kind = "SOS"
	KindDoctorConnect Kind = "DOCTOR_CONNECT"
)

type Criticality string

const (
	CriticalityHigh   Criticality = "HIGH"
	CriticalityMedium Criticality = "MEDIUM"
	CriticalityLow    Criticality = "LOW"
)

// Rank orders criticalities for the queue. Unrecognized values rank below LOW.
func (c Criticality) Rank() int {
	switch c {
	case CriticalityHigh:
		return 3
	case CriticalityMedium:
		return 2
	case CriticalityLow:
		return 1
	default:
		return 0
	}
}

// ParseCriticality normalizes user input: surrounding space is trimmed, case
// is ignored and an empty value means LOW.
func ParseCriticality(s string) (Criticality, error) {
	c := Criticality(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case "":
		return CriticalityLow, nil
	case CriticalityHigh, CriticalityMedium, CriticalityLow:
		return c, nil
	default:
		return "", validationError("criticality must be one of HIGH, MEDIUM, LOW")
	}
}

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusResolved Status = "RESOLVED"
)

// sosMarker is prepended to SOS reasons so staff can tell them apart in
// free-text views.
const sosMarker = "[SOS] "

// Request maps to the care_request table. The facility fields and distance
// are a snapshot taken at dispatch time.
type Request struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	Kind          Kind           `db:"kind" json:"kind"`
	RequesterName string         `db:"requester_name" json:"requester_name"`
	RequesterID   *string        `db:"requester_id" json:"requester_id,omitempty"`
	Reason        string         `db:"reason" json:"reason"`
	Criticality   Criticality    `db:"criticality" json:"criticality"`
	Location      geo.Coordinate `json:"location"`
	FacilityID    uuid.UUID      `db:"facility_id" json:"facility_id"`
	FacilityName  string         `db:"facility_name" json:"facility_name"`
	DistanceKm    float64        `db:"distance_km" json:"distance_km"`
	Status        Status         `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	ResolvedAt    *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Prescription maps to the prescription table. It is written once, in the
// same transaction that resolves its request.
type Prescription struct {
	ID            uuid.UUID `db:"id" json:"id"`
	RequestID     uuid.UUID `db:"request_id" json:"request_id"`
	FacilityID    uuid.UUID `db:"facility_id" json:"facility_id"`
	RequesterName string    `db:"requester_name" json:"requester_name"`
	Content       string    `db:"content" json:"content"`
	AuthorName    string    `db:"author_name" json:"author_name"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DispatchResult is returned to the requester once the request is stored.
type DispatchResult struct {
	RequestID    uuid.UUID   `json:"request_id"`
	Kind         Kind        `json:"kind"`
	Criticality  Criticality `json:"criticality"`
	FacilityID   uuid.UUID   `json:"facility_id"`
	FacilityName string      `json:"facility_name"`
	DistanceKm   float64     `json:"distance_km"`
}
