package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tensiometer/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ domain.MeasurementRepository = (*DB)(nil)

type measurementDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	UserID          int64              `bson:"userId"`
	Systolic        int                `bson:"systolic"`
	Diastolic       int                `bson:"diastolic"`
	Pulse           int                `bson:"pulse"`
	MeasurementDate time.Time          `bson:"measurementDate"`
	MeasurementTime string             `bson:"measurementTime"`
	Notes           string             `bson:"notes"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func (doc measurementDoc) toDomain() domain.Measurement {
	return domain.Measurement{
		ID:              doc.ID.Hex(),
		UserID:          doc.UserID,
		Systolic:        doc.Systolic,
		Diastolic:       doc.Diastolic,
		Pulse:           doc.Pulse,
		MeasurementDate: doc.MeasurementDate.UTC(),
		MeasurementTime: doc.MeasurementTime,
		Notes:           doc.Notes,
		CreatedAt:       doc.CreatedAt.UTC(),
		UpdatedAt:       doc.UpdatedAt.UTC(),
	}
}

var (
	newestFirst = bson.D{{Key: "measurementDate", Value: -1}, {Key: "measurementTime", Value: -1}, {Key: "createdAt", Value: -1}}
	oldestFirst = bson.D{{Key: "measurementDate", Value: 1}, {Key: "measurementTime", Value: 1}, {Key: "createdAt", Value: 1}}
)

// CreateMeasurement inserts m under a new ObjectID.
func (d *DB) CreateMeasurement(ctx context.Context, m domain.Measurement) (*domain.Measurement, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := measurementDoc{
		ID:              primitive.NewObjectID(),
		UserID:          m.UserID,
		Systolic:        m.Systolic,
		Diastolic:       m.Diastolic,
		Pulse:           m.Pulse,
		MeasurementDate: m.MeasurementDate.UTC(),
		MeasurementTime: m.MeasurementTime,
		Notes:           m.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := d.measurements.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert measurement: %w", err)
	}
	out := doc.toDomain()
	return &out, nil
}

// ListMeasurements returns one page of a user's measurements plus their total.
func (d *DB) ListMeasurements(ctx context.Context, userID int64, offset int64, limit int) ([]domain.Measurement, int64, error) {
	filter := bson.D{{Key: "userId", Value: userID}}
	total, err := d.measurements.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count measurements: %w", err)
	}
	if offset >= total {
		return []domain.Measurement{}, total, nil
	}

	opts := options.Find().SetSort(newestFirst).SetSkip(offset).SetLimit(int64(limit))
	items, err := d.find(ctx, filter, opts)
	return items, total, err
}

// ListMeasurementsInRange returns a user's measurements dated within [start, end].
func (d *DB) ListMeasurementsInRange(ctx context.Context, userID int64, start, end time.Time) ([]domain.Measurement, error) {
	filter := bson.D{
		{Key: "userId", Value: userID},
		{Key: "measurementDate", Value: bson.D{{Key: "$gte", Value: start.UTC()}, {Key: "$lte", Value: end.UTC()}}},
	}
	return d.find(ctx, filter, options.Find().SetSort(oldestFirst))
}

// UpdateMeasurement applies patch with a single find-and-modify on (_id, userId).
func (d *DB) UpdateMeasurement(ctx context.Context, userID int64, id string, patch domain.MeasurementPatch) (*domain.Measurement, error) {
	filter, ok := ownedBy(userID, id)
	if !ok {
		return nil, domain.ErrNotFound
	}

	var doc measurementDoc
	err := d.measurements.FindOneAndUpdate(ctx, filter,
		bson.D{{Key: "$set", Value: updateSet(patch, time.Now().UTC())}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update measurement: %w", err)
	}
	out := doc.toDomain()
	return &out, nil
}

// DeleteMeasurement removes a measurement with a single find-and-delete on (_id, userId).
func (d *DB) DeleteMeasurement(ctx context.Context, userID int64, id string) error {
	filter, ok := ownedBy(userID, id)
	if !ok {
		return domain.ErrNotFound
	}
	err := d.measurements.FindOneAndDelete(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete measurement: %w", err)
	}
	return nil
}

func (d *DB) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]domain.Measurement, error) {
	cur, err := d.measurements.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find measurements: %w", err)
	}
	defer cur.Close(ctx) //nolint:errcheck

	out := make([]domain.Measurement, 0)
	for cur.Next(ctx) {
		var doc measurementDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cur.Err()
}

// ownedBy builds the (_id, userId) filter. A malformed id matches nothing.
func ownedBy(userID int64, id string) (bson.D, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	return bson.D{{Key: "_id", Value: oid}, {Key: "userId", Value: userID}}, true
}

// updateSet renders the $set document for the fields present in patch.
func updateSet(p domain.MeasurementPatch, now time.Time) bson.D {
	set := bson.D{}
	if p.Systolic != nil {
		set = append(set, bson.E{Key: "systolic", Value: *p.Systolic})
	}
	if p.Diastolic != nil {
		set = append(set, bson.E{Key: "diastolic", Value: *p.Diastolic})
	}
	if p.Pulse != nil {
		set = append(set, bson.E{Key: "pulse", Value: *p.Pulse})
	}
	if p.MeasurementDate != nil {
		set = append(set, bson.E{Key: "measurementDate", Value: p.MeasurementDate.UTC()})
	}
	if p.MeasurementTime != nil {
		set = append(set, bson.E{Key: "measurementTime", Value: *p.MeasurementTime})
	}
	if p.Notes != nil {
		set = append(set, bson.E{Key: "notes", Value: *p.Notes})
	}
	return append(set, bson.E{Key: "updatedAt", Value: now})
}
