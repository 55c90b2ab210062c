package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/infrastructure/repository/entity"
	"crm-schema-migrator/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProfileRepository implements ports.ProfileRepository using MongoDB
type MongoProfileRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoProfileRepository creates a new MongoDB profile repository
func NewMongoProfileRepository(db *mongo.Database) *MongoProfileRepository {
	return &MongoProfileRepository{
		collection: db.Collection("profiles"),
		now:        time.Now,
	}
}

var _ ports.ProfileRepository = (*MongoProfileRepository)(nil)

// EnsureIndexes creates the unique index on userId the revision check relies on
func (r *MongoProfileRepository) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("failed to create profile index: %w", err)
	}
	return nil
}

// ReadProfile retrieves a profile by user ID
func (r *MongoProfileRepository) ReadProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var doc entity.MongoProfileDoc
	err := r.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile, err := doc.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", userID, err)
	}
	return profile, nil
}

// UpdateProfile applies a partial update. Instance fields are merged field by field;
// a changes write replaces the whole changes document, guarded by ExpectedRevision.
func (r *MongoProfileRepository) UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) error {
	now := r.now()
	set := bson.M{"updatedAt": now}
	unset := bson.M{}
	inc := bson.M{}

	for instance, u := range update.Instances {
		if u.Clear {
			unset["instances."+string(instance)] = ""
			continue
		}
		for path, value := range entity.InstanceFieldUpdates(instance, u) {
			set[path] = value
		}
	}

	filter := bson.M{"userId": userID}
	upsert := true

	if update.Changes != nil {
		raw, err := domain.EncodeChanges(update.Changes)
		if err != nil {
			return err
		}
		set["changes"] = raw

		if update.ExpectedRevision != nil {
			expected := *update.ExpectedRevision
			if expected == 0 {
				filter["changesRevision"] = bson.M{"$in": bson.A{int64(0), nil}}
			} else {
				filter["changesRevision"] = expected
				// a missing profile cannot carry a non-zero revision
				upsert = false
			}
			set["changesRevision"] = expected + 1
		} else {
			inc["changesRevision"] = int64(1)
		}
	}

	updateDoc := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": now},
	}
	if len(unset) > 0 {
		updateDoc["$unset"] = unset
	}
	if len(inc) > 0 {
		updateDoc["$inc"] = inc
	}

	result, err := r.collection.UpdateOne(ctx, filter, updateDoc, options.Update().SetUpsert(upsert))
	if err != nil {
		if update.ExpectedRevision != nil && mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: profile %s", domain.ErrRevisionConflict, userID)
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if update.ExpectedRevision != nil && result.MatchedCount == 0 && result.UpsertedCount == 0 {
		return fmt.Errorf("%w: profile %s", domain.ErrRevisionConflict, userID)
	}
	return nil
}
