package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no measurement matches both the requested ID
// and the caller. A record owned by another user is reported the same way.
var ErrNotFound = errors.New("measurement not found")

// Measurement is a single blood-pressure reading.
type Measurement struct {
	ID              string    `json:"id"`
	UserID          int64     `json:"userId"`
	Systolic        int       `json:"systolic"`
	Diastolic       int       `json:"diastolic"`
	Pulse           int       `json:"pulse"`
	MeasurementDate time.Time `json:"measurementDate"`
	MeasurementTime string    `json:"measurementTime"`
	Notes           string    `json:"notes"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// MeasurementPatch holds already-validated field values. Nil fields are left
// untouched by an update.
type MeasurementPatch struct {
	Systolic        *int
	Diastolic       *int
	Pulse           *int
	MeasurementDate *time.Time
	MeasurementTime *string
	Notes           *string
}

// Empty reports whether the patch changes nothing.
func (p MeasurementPatch) Empty() bool {
	return p.Systolic == nil && p.Diastolic == nil && p.Pulse == nil &&
		p.MeasurementDate == nil && p.MeasurementTime == nil && p.Notes == nil
}

// Apply copies the set fields of p onto m.
func (p MeasurementPatch) Apply(m *Measurement) {
	if p.Systolic != nil {
		m.Systolic = *p.Systolic
	}
	if p.Diastolic != nil {
		m.Diastolic = *p.Diastolic
	}
	if p.Pulse != nil {
		m.Pulse = *p.Pulse
	}
	if p.MeasurementDate != nil {
		m.MeasurementDate = *p.MeasurementDate
	}
	if p.MeasurementTime != nil {
		m.MeasurementTime = *p.MeasurementTime
	}
	if p.Notes != nil {
		m.Notes = *p.Notes
	}
}

// MeasurementRepository is the port for measurement persistence. Every
// method is scoped to userID inside a single store operation.
type MeasurementRepository interface {
	// CreateMeasurement stores m, assigning ID, CreatedAt and UpdatedAt.
	CreateMeasurement(ctx context.Context, m Measurement) (*Measurement, error)
	// ListMeasurements returns one page ordered by date then time, newest
	// first, along with the user's total count.
	ListMeasurements(ctx context.Context, userID int64, offset int64, limit int) ([]Measurement, int64, error)
	// ListMeasurementsInRange returns measurements with start <= date <= end,
	// oldest first.
	ListMeasurementsInRange(ctx context.Context, userID int64, start, end time.Time) ([]Measurement, error)
	// UpdateMeasurement applies patch and returns the result, or ErrNotFound.
	UpdateMeasurement(ctx context.Context, userID int64, id string, patch MeasurementPatch) (*Measurement, error)
	// DeleteMeasurement removes the record atomically, or returns ErrNotFound.
	DeleteMeasurement(ctx context.Context, userID int64, id string) error
}
