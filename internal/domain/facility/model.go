package facility

import (
	"time"

	"github.com/google/uuid"

	"github.com/medroute/medroute/pkg/geo"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
)

// Facility maps to the hospital table owned by the account service. Location
// is nil until the hospital has registered coordinates.
type Facility struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Location  *geo.Coordinate `json:"location,omitempty"`
	Status    Status          `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Eligible reports whether the facility may receive routed requests.
func (f *Facility) Eligible() bool {
	return f != nil && f.Status == StatusApproved && f.Location != nil
}

// Match is the result of a nearest-facility lookup.
type Match struct {
	Facility   *Facility `json:"facility"`
	DistanceKm float64   `json:"distance_km"`
}
