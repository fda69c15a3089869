package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits for a measurement.
const (
	SystolicMin  = 50
	SystolicMax  = 300
	DiastolicMin = 30
	DiastolicMax = 200
	PulseMin     = 30
	PulseMax     = 220
	NotesMaxLen  = 500
)

var timePattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

var dateLayouts = []string{"2006-01-02", "2006/01/02", time.RFC3339Nano}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationError lists every field that failed its constraint.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// MeasurementInput is the loosely typed request body for create and update.
// A nil field is absent. Numbers may arrive as JSON numbers or numeric strings.
type MeasurementInput struct {
	Systolic        any `json:"systolic"`
	Diastolic       any `json:"diastolic"`
	Pulse           any `json:"pulse"`
	MeasurementDate any `json:"measurementDate"`
	MeasurementTime any `json:"measurementTime"`
	Notes           any `json:"notes"`
}

// Validate checks every field against its constraint and returns the typed
// values. With partial set, absent fields are skipped instead of reported;
// otherwise they are required, except notes which defaults to "".
func (in MeasurementInput) Validate(partial bool) (MeasurementPatch, error) {
	v := validator{partial: partial}
	p := MeasurementPatch{
		Systolic:        v.intRange("systolic", in.Systolic, SystolicMin, SystolicMax),
		Diastolic:       v.intRange("diastolic", in.Diastolic, DiastolicMin, DiastolicMax),
		Pulse:           v.intRange("pulse", in.Pulse, PulseMin, PulseMax),
		MeasurementDate: v.date("measurementDate", in.MeasurementDate),
		MeasurementTime: v.clock("measurementTime", in.MeasurementTime),
		Notes:           v.notes("notes", in.Notes),
	}
	if len(v.errs) > 0 {
		return MeasurementPatch{}, &ValidationError{Errors: v.errs}
	}
	return p, nil
}

// ParseDate parses a calendar date and returns UTC midnight of that day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

type validator struct {
	partial bool
	errs    []FieldError
}

func (v *validator) fail(field, msg string, value any) {
	v.errs = append(v.errs, FieldError{Field: field, Message: msg, Value: value})
}

// missing reports whether raw is absent, recording an error when the field
// is required.
func (v *validator) missing(field string, raw any) bool {
	if raw != nil {
		return false
	}
	if !v.partial {
		v.fail(field, "is required", nil)
	}
	return true
}

func (v *validator) intRange(field string, raw any, lo, hi int) *int {
	if v.missing(field, raw) {
		return nil
	}
	n, ok := toInt64(raw)
	if !ok || n < int64(lo) || n > int64(hi) {
		v.fail(field, fmt.Sprintf("must be an integer between %d and %d", lo, hi), raw)
		return nil
	}
	out := int(n)
	return &out
}

func (v *validator) date(field string, raw any) *time.Time {
	if v.missing(field, raw) {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		v.fail(field, "must be a valid date", raw)
		return nil
	}
	t, err := ParseDate(s)
	if err != nil {
		v.fail(field, "must be a valid date", raw)
		return nil
	}
	return &t
}

func (v *validator) clock(field string, raw any) *string {
	if v.missing(field, raw) {
		return nil
	}
	s, ok := raw.(string)
	if !ok || !timePattern.MatchString(s) {
		v.fail(field, "must be a time in HH:MM 24-hour format", raw)
		return nil
	}
	// 8:30 sorts after 10:00 as a string; pad the hour.
	if len(s) == 4 {
		s = "0" + s
	}
	return &s
}

func (v *validator) notes(field string, raw any) *string {
	if raw == nil {
		if v.partial {
			return nil
		}
		empty := ""
		return &empty
	}
	s, ok := raw.(string)
	if !ok {
		v.fail(field, "must be a string", raw)
		return nil
	}
	if utf8.RuneCountInString(s) > NotesMaxLen {
		v.fail(field, fmt.Sprintf("must be at most %d characters", NotesMaxLen), nil)
		return nil
	}
	return &s
}

func toInt64(raw any) (int64, bool) {
	switch x := raw.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) || math.Abs(x) > math.MaxInt32 {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
