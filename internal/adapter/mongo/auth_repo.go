package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tensiometer/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ domain.UserRepository    = (*DB)(nil)
	_ domain.SessionRepository = (*SessionRepo)(nil)
)

type userDoc struct {
	ID           int64     `bson:"_id"`
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
}

type sessionDoc struct {
	Token     string    `bson:"_id"`
	UserID    int64     `bson:"userId"`
	ExpiresAt time.Time `bson:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt"`
}

// GetByUsername retrieves a user by username.
func (d *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return d.findUser(ctx, bson.D{{Key: "username", Value: username}})
}

// GetByID retrieves a user by ID.
func (d *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return d.findUser(ctx, bson.D{{Key: "_id", Value: id}})
}

func (d *DB) findUser(ctx context.Context, filter bson.D) (*domain.User, error) {
	var doc userDoc
	err := d.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.User{ID: doc.ID, Username: doc.Username, PasswordHash: doc.PasswordHash, CreatedAt: doc.CreatedAt.UTC()}, nil
}

// Create inserts a user under the next sequential ID.
func (d *DB) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	id, err := d.nextSeq(ctx, "users")
	if err != nil {
		return nil, err
	}
	doc := userDoc{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	if _, err := d.users.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &domain.User{ID: doc.ID, Username: doc.Username, PasswordHash: doc.PasswordHash, CreatedAt: doc.CreatedAt}, nil
}

// Count returns the total number of users.
func (d *DB) Count(ctx context.Context) (int, error) {
	n, err := d.users.CountDocuments(ctx, bson.D{})
	return int(n), err
}

// nextSeq atomically increments and returns the named counter.
func (d *DB) nextSeq(ctx context.Context, name string) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	err := d.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", name, err)
	}
	return out.Seq, nil
}

// SessionRepo implements session repository operations on DB.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo wraps a DB as a SessionRepository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create stores a new session token. The TTL index on expiresAt lets the
// server reap it as well.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := r.db.sessions.InsertOne(ctx, sessionDoc{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	})
	return err
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var doc sessionDoc
	err := r.db.sessions.FindOne(ctx, bson.D{{Key: "_id", Value: token}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Session{Token: doc.Token, UserID: doc.UserID, ExpiresAt: doc.ExpiresAt, CreatedAt: doc.CreatedAt}, nil
}

// Delete deletes a session by token.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.sessions.DeleteOne(ctx, bson.D{{Key: "_id", Value: token}})
	return err
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.db.sessions.DeleteMany(ctx, bson.D{{Key: "expiresAt", Value: bson.D{{Key: "$lt", Value: time.Now().UTC()}}}})
	return err
}
