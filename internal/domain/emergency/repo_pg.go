package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medroute/medroute/internal/platform/db"
)

// =========== Request Repository ===========

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRequestRepoPG(pool *pgxpool.Pool) RequestRepository { return &requestRepoPG{pool: pool} }

const requestCols = `id, kind, requester_name, requester_id, reason, criticality,
	latitude, longitude, facility_id, facility_name, distance_km, status,
	created_at, resolved_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.Kind, &r.RequesterName, &r.RequesterID, &r.Reason, &r.Criticality,
		&r.Location.Latitude, &r.Location.Longitude, &r.FacilityID, &r.FacilityName, &r.DistanceKm, &r.Status,
		&r.CreatedAt, &r.ResolvedAt)
	return &r, err
}

func (r *requestRepoPG) Create(ctx context.Context, req *Request) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO care_request (id, kind, requester_name, requester_id, reason, criticality,
			latitude, longitude, facility_id, facility_name, distance_km, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at`,
		req.ID, req.Kind, req.RequesterName, req.RequesterID, req.Reason, req.Criticality,
		req.Location.Latitude, req.Location.Longitude, req.FacilityID, req.FacilityName, req.DistanceKm, req.Status,
	).Scan(&req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert care request: %w", err)
	}
	return nil
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := scanRequest(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+requestCols+` FROM care_request WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get care request: %w", err)
	}
	return req, nil
}

func (r *requestRepoPG) ListPending(ctx context.Context, facilityID *uuid.UUID) ([]*Request, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+requestCols+` FROM care_request
		WHERE status = 'PENDING' AND ($1::uuid IS NULL OR facility_id = $1)
		ORDER BY created_at, id`, facilityID)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	items := []*Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan care request: %w", err)
		}
		items = append(items, req)
	}
	return items, rows.Err()
}

func (r *requestRepoPG) MarkResolved(ctx context.Context, id uuid.UUID, facilityID *uuid.UUID, at time.Time) (*Request, error) {
	req, err := scanRequest(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE care_request SET status = 'RESOLVED', resolved_at = $3
		WHERE id = $1 AND status = 'PENDING' AND ($2::uuid IS NULL OR facility_id = $2)
		RETURNING `+requestCols, id, facilityID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve care request: %w", err)
	}
	return req, nil
}

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

const prescriptionCols = `id, request_id, facility_id, requester_name, content, author_name, created_at`

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO prescription (id, request_id, facility_id, requester_name, content, author_name)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		p.ID, p.RequestID, p.FacilityID, p.RequesterName, p.Content, p.AuthorName,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepoPG) ListByRequest(ctx context.Context, requestID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM prescription WHERE request_id = $1`, requestID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prescriptions: %w", err)
	}

	rows, err := conn.Query(ctx, `
		SELECT `+prescriptionCols+` FROM prescription WHERE request_id = $1
		ORDER BY created_at LIMIT $2 OFFSET $3`, requestID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	items := []*Prescription{}
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.RequestID, &p.FacilityID, &p.RequesterName, &p.Content, &p.AuthorName, &p.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan prescription: %w", err)
		}
		items = append(items, &p)
	}
	return items, total, rows.Err()
}
