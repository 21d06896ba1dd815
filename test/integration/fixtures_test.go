//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medroute/medroute/internal/domain/facility"
)

type hospitalRow struct {
	name      string
	lat, lon  *float64
	status    facility.Status
	createdAt time.Time
}

func ptr(f float64) *float64 { return &f }

func insertHospital(t *testing.T, h hospitalRow) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if h.createdAt.IsZero() {
		h.createdAt = time.Now()
	}
	_, err := testPool.Exec(context.Background(), `
		INSERT INTO hospital (id, name, latitude, longitude, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		id, h.name, h.lat, h.lon, h.status, h.createdAt)
	if err != nil {
		t.Fatalf("insert hospital %s: %v", h.name, err)
	}
	return id
}

func insertCityHospital(t *testing.T) uuid.UUID {
	t.Helper()
	return insertHospital(t, hospitalRow{
		name:   "City Hospital",
		lat:    ptr(12.9716),
		lon:    ptr(77.5946),
		status: facility.StatusApproved,
	})
}
