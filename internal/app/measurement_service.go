package app

import (
	"context"
	"errors"
	"math"
	"strings"

	"tensiometer/internal/domain"
)

// Pagination defaults for List.
const (
	DefaultPage  = 1
	DefaultLimit = 50
)

// ErrMissingParameter is returned when a required query parameter is absent.
var ErrMissingParameter = errors.New("start date and end date are required")

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	Current int   `json:"current"`
	Pages   int64 `json:"pages"`
	Total   int64 `json:"total"`
}

// MeasurementPage is one page of a user's measurements.
type MeasurementPage struct {
	Measurements []domain.Measurement `json:"measurements"`
	Pagination   Pagination           `json:"pagination"`
}

// MeasurementService encapsulates blood-pressure measurement use cases.
type MeasurementService struct {
	repo domain.MeasurementRepository
}

// NewMeasurementService creates a MeasurementService backed by the given repository.
func NewMeasurementService(repo domain.MeasurementRepository) *MeasurementService {
	return &MeasurementService{repo: repo}
}

// List returns page of the user's measurements, newest first. Non-positive
// page or limit values fall back to the defaults.
func (s *MeasurementService) List(ctx context.Context, userID int64, page, limit int) (*MeasurementPage, error) {
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	items, total, err := s.repo.ListMeasurements(ctx, userID, pageOffset(page, limit), limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Measurement{}
	}
	return &MeasurementPage{
		Measurements: items,
		Pagination: Pagination{
			Current: page,
			Pages:   pageCount(total, limit),
			Total:   total,
		},
	}, nil
}

// ListRange returns the user's measurements dated within [startDate,
// endDate], oldest first.
func (s *MeasurementService) ListRange(ctx context.Context, userID int64, startDate, endDate string) ([]domain.Measurement, error) {
	if strings.TrimSpace(startDate) == "" || strings.TrimSpace(endDate) == "" {
		return nil, ErrMissingParameter
	}
	var fieldErrs []domain.FieldError
	start, err := domain.ParseDate(startDate)
	if err != nil {
		fieldErrs = append(fieldErrs, domain.FieldError{Field: "startDate", Message: "must be a valid date", Value: startDate})
	}
	end, err := domain.ParseDate(endDate)
	if err != nil {
		fieldErrs = append(fieldErrs, domain.FieldError{Field: "endDate", Message: "must be a valid date", Value: endDate})
	}
	if len(fieldErrs) > 0 {
		return nil, &domain.ValidationError{Errors: fieldErrs}
	}

	items, err := s.repo.ListMeasurementsInRange(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Measurement{}
	}
	return items, nil
}

// Create validates every field and stores a new measurement owned by userID.
func (s *MeasurementService) Create(ctx context.Context, userID int64, in domain.MeasurementInput) (*domain.Measurement, error) {
	p, err := in.Validate(false)
	if err != nil {
		return nil, err
	}
	m := domain.Measurement{UserID: userID}
	p.Apply(&m)
	return s.repo.CreateMeasurement(ctx, m)
}

// Update validates the supplied fields and applies them to the user's
// measurement id. Absent fields are left untouched.
func (s *MeasurementService) Update(ctx context.Context, userID int64, id string, in domain.MeasurementInput) (*domain.Measurement, error) {
	p, err := in.Validate(true)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateMeasurement(ctx, userID, id, p)
}

// Delete removes the user's measurement id.
func (s *MeasurementService) Delete(ctx context.Context, userID int64, id string) error {
	return s.repo.DeleteMeasurement(ctx, userID, id)
}

// pageOffset computes (page-1)*limit, saturating instead of overflowing.
func pageOffset(page, limit int) int64 {
	p, l := int64(page-1), int64(limit)
	if p > 0 && l > math.MaxInt64/p {
		return math.MaxInt64
	}
	return p * l
}

func pageCount(total int64, limit int) int64 {
	l := int64(limit)
	pages := total / l
	if total%l != 0 {
		pages++
	}
	return pages
}
