package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/id"
	"github.com/mmont5/megarray/recurring"
)

// SaveRecurringJob inserts or fully replaces a recurring job.
func (s *Store) SaveRecurringJob(ctx context.Context, j *recurring.Job) error {
	m := toRecurringModel(j)
	m.UpdatedAt = now()

	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(colRecurring).ReplaceOne(ctx, bson.M{"_id": m.ID}, m, opts)
	if err != nil {
		return fmt.Errorf("megarray/mongo: save recurring job: %w", err)
	}
	return nil
}

// GetRecurringJob retrieves a recurring job by ID.
func (s *Store) GetRecurringJob(ctx context.Context, jobID id.RecurringID) (*recurring.Job, error) {
	var m recurringModel
	err := s.db.Collection(colRecurring).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, megarray.ErrRecurringNotFound
		}
		return nil, fmt.Errorf("megarray/mongo: get recurring job: %w", err)
	}
	return fromRecurringModel(&m)
}

// ListRecurringJobs returns recurring jobs for an organization, newest
// first. An empty orgID means all organizations.
func (s *Store) ListRecurringJobs(ctx context.Context, orgID string) ([]*recurring.Job, error) {
	filter := bson.M{}
	if orgID != "" {
		filter["org_id"] = orgID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.findRecurring(ctx, filter, opts)
}

// ListActiveRecurringJobs returns every ACTIVE recurring job.
func (s *Store) ListActiveRecurringJobs(ctx context.Context) ([]*recurring.Job, error) {
	filter := bson.M{"status": string(recurring.StatusActive)}
	return s.findRecurring(ctx, filter, options.Find())
}

func (s *Store) findRecurring(ctx context.Context, filter bson.M, findOpts *options.FindOptionsBuilder) ([]*recurring.Job, error) {
	cur, err := s.db.Collection(colRecurring).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("megarray/mongo: list recurring jobs: %w", err)
	}
	defer cur.Close(ctx)

	var out []*recurring.Job
	for cur.Next(ctx) {
		var m recurringModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("megarray/mongo: decode recurring job: %w", err)
		}
		j, err := fromRecurringModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("megarray/mongo: iterate recurring jobs: %w", err)
	}
	return out, nil
}
