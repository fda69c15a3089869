package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tensiometer/internal/adapter/memory"
	"tensiometer/internal/adapter/mongo"
	"tensiometer/internal/adapter/postgres"
	"tensiometer/internal/domain"
)

// ErrStoreUnavailable is returned by every call on a store that failed to open.
var ErrStoreUnavailable = errors.New("store unavailable")

// Store bundles the repositories of one backend.
type Store struct {
	Measurements domain.MeasurementRepository
	Users        domain.UserRepository
	Sessions     domain.SessionRepository
	Close        func() error
}

// OpenStore connects to the configured backend.
func (c *Config) OpenStore(ctx context.Context) (*Store, error) {
	switch c.Store {
	case StorePostgres:
		db, err := postgres.Open(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Store{Measurements: db, Users: db, Sessions: postgres.NewSessionRepo(db), Close: db.Close}, nil
	case StoreMongo:
		db, err := mongo.Open(ctx, c.MongoURI)
		if err != nil {
			return nil, err
		}
		return &Store{Measurements: db, Users: db, Sessions: mongo.NewSessionRepo(db), Close: db.Close}, nil
	case StoreMemory:
		db := memory.New()
		return &Store{Measurements: db, Users: db, Sessions: db.NewSessionRepo(), Close: func() error { return nil }}, nil
	default:
		return nil, fmt.Errorf("unknown backend: %q", c.Store)
	}
}

// UnavailableStore stands in for a backend that failed to open: every call
// fails with ErrStoreUnavailable wrapping cause.
func UnavailableStore(cause error) *Store {
	u := unavailable{err: fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)}
	return &Store{Measurements: u, Users: u, Sessions: unavailableSessions(u), Close: func() error { return nil }}
}

type unavailable struct {
	err error
}

func (u unavailable) CreateMeasurement(context.Context, domain.Measurement) (*domain.Measurement, error) {
	return nil, u.err
}

func (u unavailable) ListMeasurements(context.Context, int64, int64, int) ([]domain.Measurement, int64, error) {
	return nil, 0, u.err
}

func (u unavailable) ListMeasurementsInRange(context.Context, int64, time.Time, time.Time) ([]domain.Measurement, error) {
	return nil, u.err
}

func (u unavailable) UpdateMeasurement(context.Context, int64, string, domain.MeasurementPatch) (*domain.Measurement, error) {
	return nil, u.err
}

func (u unavailable) DeleteMeasurement(context.Context, int64, string) error { return u.err }

func (u unavailable) GetByUsername(context.Context, string) (*domain.User, error) { return nil, u.err }

func (u unavailable) GetByID(context.Context, int64) (*domain.User, error) { return nil, u.err }

func (u unavailable) Create(context.Context, string, string) (*domain.User, error) { return nil, u.err }

func (u unavailable) Count(context.Context) (int, error) { return 0, u.err }

type unavailableSessions unavailable

func (u unavailableSessions) Create(context.Context, int64, string, time.Time) error { return u.err }

func (u unavailableSessions) GetByToken(context.Context, string) (*domain.Session, error) {
	return nil, u.err
}

func (u unavailableSessions) Delete(context.Context, string) error { return u.err }

func (u unavailableSessions) DeleteExpired(context.Context) error { return u.err }
