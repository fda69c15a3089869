// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"tensiometer/internal/domain"

	"github.com/google/uuid"
)

// DB implements an in-memory database storage.
type DB struct {
	mu           sync.Mutex
	measurements []domain.Measurement
	users        []*domain.User
	sessions     map[string]*domain.Session

	userIDCounter int64
	now           func() time.Time
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		sessions: make(map[string]*domain.Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ensure interfaces are met.
var _ domain.MeasurementRepository = (*DB)(nil)
var _ domain.UserRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- MeasurementRepository ---

// CreateMeasurement stores a copy of m with a fresh ID and timestamps.
func (db *DB) CreateMeasurement(ctx context.Context, m domain.Measurement) (*domain.Measurement, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now()
	m.ID = uuid.NewString()
	m.CreatedAt = now
	m.UpdatedAt = now
	db.measurements = append(db.measurements, m)
	return &m, nil
}

// ListMeasurements returns one page of the user's measurements, newest first.
func (db *DB) ListMeasurements(ctx context.Context, userID int64, offset int64, limit int) ([]domain.Measurement, int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	owned := db.owned(userID, func(domain.Measurement) bool { return true })
	sort.SliceStable(owned, func(i, j int) bool { return later(owned[i], owned[j]) })

	total := int64(len(owned))
	if offset >= total {
		return []domain.Measurement{}, total, nil
	}
	end := total
	if int64(limit) < total-offset {
		end = offset + int64(limit)
	}
	return owned[offset:end], total, nil
}

// ListMeasurementsInRange returns the user's measurements between start and
// end inclusive, oldest first.
func (db *DB) ListMeasurementsInRange(ctx context.Context, userID int64, start, end time.Time) ([]domain.Measurement, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	owned := db.owned(userID, func(m domain.Measurement) bool {
		return !m.MeasurementDate.Before(start) && !m.MeasurementDate.After(end)
	})
	sort.SliceStable(owned, func(i, j int) bool { return later(owned[j], owned[i]) })
	return owned, nil
}

// UpdateMeasurement patches the user's measurement in place.
func (db *DB) UpdateMeasurement(ctx context.Context, userID int64, id string, patch domain.MeasurementPatch) (*domain.Measurement, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	i := db.index(userID, id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	m := &db.measurements[i]
	patch.Apply(m)
	m.UpdatedAt = db.now()
	out := *m
	return &out, nil
}

// DeleteMeasurement removes the user's measurement.
func (db *DB) DeleteMeasurement(ctx context.Context, userID int64, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	i := db.index(userID, id)
	if i < 0 {
		return domain.ErrNotFound
	}
	db.measurements = append(db.measurements[:i], db.measurements[i+1:]...)
	return nil
}

// owned copies the user's measurements that satisfy keep. Callers hold mu.
func (db *DB) owned(userID int64, keep func(domain.Measurement) bool) []domain.Measurement {
	out := make([]domain.Measurement, 0)
	for _, m := range db.measurements {
		if m.UserID == userID && keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func (db *DB) index(userID int64, id string) int {
	for i, m := range db.measurements {
		if m.ID == id && m.UserID == userID {
			return i
		}
	}
	return -1
}

// later orders by measurement date, then time of day, then insertion.
func later(a, b domain.Measurement) bool {
	if !a.MeasurementDate.Equal(b.MeasurementDate) {
		return a.MeasurementDate.After(b.MeasurementDate)
	}
	if a.MeasurementTime != b.MeasurementTime {
		return a.MeasurementTime > b.MeasurementTime
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// --- UserRepository ---

// GetByUsername retrieves a user by username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return nil, errors.New("user already exists")
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    db.now(),
	}
	db.users = append(db.users, u)
	cp := *u
	return &cp, nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.sessions[token] = &domain.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: r.db.now(),
	}
	return nil
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if s, ok := r.db.sessions[token]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.now()
	for k, v := range r.db.sessions {
		if now.After(v.ExpiresAt) {
			delete(r.db.sessions, k)
		}
	}
	return nil
}
