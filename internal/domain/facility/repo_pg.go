package facility

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medroute/medroute/internal/platform/db"
	"github.com/medroute/medroute/pkg/geo"
)

type directoryPG struct{ pool *pgxpool.Pool }

func NewDirectoryPG(pool *pgxpool.Pool) Directory { return &directoryPG{pool: pool} }

const facilityCols = `id, name, latitude, longitude, status, created_at, updated_at`

func scanFacility(row pgx.Row) (*Facility, error) {
	var f Facility
	var lat, lon sql.NullFloat64
	if err := row.Scan(&f.ID, &f.Name, &lat, &lon, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if lat.Valid && lon.Valid {
		f.Location = &geo.Coordinate{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	return &f, nil
}

func (r *directoryPG) ListApprovedWithLocation(ctx context.Context) ([]*Facility, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+facilityCols+` FROM hospital
		WHERE status = 'APPROVED' AND latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list approved facilities: %w", err)
	}
	defer rows.Close()

	var items []*Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, fmt.Errorf("scan facility: %w", err)
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (r *directoryPG) GetByID(ctx context.Context, id uuid.UUID) (*Facility, error) {
	f, err := scanFacility(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+facilityCols+` FROM hospital WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get facility: %w", err)
	}
	return f, nil
}

func (r *directoryPG) List(ctx context.Context, limit, offset int) ([]*Facility, int, error) {
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM hospital`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count facilities: %w", err)
	}

	rows, err := conn.Query(ctx, `
		SELECT `+facilityCols+` FROM hospital
		ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list facilities: %w", err)
	}
	defer rows.Close()

	var items []*Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan facility: %w", err)
		}
		items = append(items, f)
	}
	return items, total, rows.Err()
}
