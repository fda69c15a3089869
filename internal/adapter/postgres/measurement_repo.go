package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tensiometer/internal/domain"

	"github.com/google/uuid"
)

const measurementCols = "id, user_id, systolic, diastolic, pulse, measurement_date, measurement_time, notes, created_at, updated_at"

var _ domain.MeasurementRepository = (*DB)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateMeasurement inserts m under a new UUID.
func (d *DB) CreateMeasurement(ctx context.Context, m domain.Measurement) (*domain.Measurement, error) {
	now := time.Now().UTC()
	row := d.sql.QueryRowContext(ctx,
		"INSERT INTO measurements ("+measurementCols+") VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $9) RETURNING "+measurementCols,
		uuid.New(), m.UserID, m.Systolic, m.Diastolic, m.Pulse,
		sqlDate(m.MeasurementDate), m.MeasurementTime, m.Notes, now,
	)
	return scanMeasurement(row)
}

// ListMeasurements returns one page of a user's measurements plus their total.
func (d *DB) ListMeasurements(ctx context.Context, userID int64, offset int64, limit int) ([]domain.Measurement, int64, error) {
	var total int64
	if err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM measurements WHERE user_id=$1;", userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	if offset >= total {
		return []domain.Measurement{}, total, nil
	}

	rows, err := d.sql.QueryContext(ctx,
		"SELECT "+measurementCols+" FROM measurements WHERE user_id=$1 ORDER BY measurement_date DESC, measurement_time DESC, created_at DESC OFFSET $2 LIMIT $3;",
		userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

// ListMeasurementsInRange returns a user's measurements dated within [start, end].
func (d *DB) ListMeasurementsInRange(ctx context.Context, userID int64, start, end time.Time) ([]domain.Measurement, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT "+measurementCols+" FROM measurements WHERE user_id=$1 AND measurement_date BETWEEN $2::date AND $3::date ORDER BY measurement_date ASC, measurement_time ASC, created_at ASC;",
		userID, sqlDate(start), sqlDate(end))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// UpdateMeasurement patches a measurement in one statement scoped to its owner.
func (d *DB) UpdateMeasurement(ctx context.Context, userID int64, id string, patch domain.MeasurementPatch) (*domain.Measurement, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	var date *string
	if patch.MeasurementDate != nil {
		s := sqlDate(*patch.MeasurementDate)
		date = &s
	}

	row := d.sql.QueryRowContext(ctx, `UPDATE measurements SET
			systolic = COALESCE($3, systolic),
			diastolic = COALESCE($4, diastolic),
			pulse = COALESCE($5, pulse),
			measurement_date = COALESCE($6::date, measurement_date),
			measurement_time = COALESCE($7, measurement_time),
			notes = COALESCE($8, notes),
			updated_at = $9
		WHERE id=$1 AND user_id=$2 RETURNING `+measurementCols,
		uid, userID, patch.Systolic, patch.Diastolic, patch.Pulse,
		date, patch.MeasurementTime, patch.Notes, time.Now().UTC(),
	)
	m, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return m, err
}

// DeleteMeasurement removes a measurement in one statement scoped to its owner.
func (d *DB) DeleteMeasurement(ctx context.Context, userID int64, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return domain.ErrNotFound
	}
	var deleted uuid.UUID
	err = d.sql.QueryRowContext(ctx,
		"DELETE FROM measurements WHERE id=$1 AND user_id=$2 RETURNING id;", uid, userID,
	).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func collect(rows *sql.Rows) ([]domain.Measurement, error) {
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Measurement, 0)
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMeasurement(row rowScanner) (*domain.Measurement, error) {
	var (
		m  domain.Measurement
		id uuid.UUID
	)
	err := row.Scan(&id, &m.UserID, &m.Systolic, &m.Diastolic, &m.Pulse,
		&m.MeasurementDate, &m.MeasurementTime, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.ID = id.String()
	y, mo, dd := m.MeasurementDate.Date()
	m.MeasurementDate = time.Date(y, mo, dd, 0, 0, 0, 0, time.UTC)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

// sqlDate renders a calendar date so the server never shifts it by time zone.
func sqlDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
