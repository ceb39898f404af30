package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/content"
	"github.com/mmont5/megarray/id"
)

// SaveContent inserts or fully replaces a content item.
func (s *Store) SaveContent(ctx context.Context, c *content.Content) error {
	m := toContentModel(c)
	col := s.db.Collection(colContent)

	opts := options.Replace().SetUpsert(true)
	_, err := col.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, opts)
	if err != nil {
		return fmt.Errorf("megarray/mongo: save content: %w", err)
	}
	return nil
}

// GetContent retrieves a content item by ID.
func (s *Store) GetContent(ctx context.Context, contentID id.ContentID) (*content.Content, error) {
	col := s.db.Collection(colContent)
	var m contentModel
	err := col.FindOne(ctx, bson.M{"_id": contentID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, megarray.ErrContentNotFound
		}
		return nil, fmt.Errorf("megarray/mongo: get content: %w", err)
	}
	return fromContentModel(&m)
}

// DeleteContent removes a content item and its versions.
func (s *Store) DeleteContent(ctx context.Context, contentID id.ContentID) error {
	key := contentID.String()

	res, err := s.db.Collection(colContent).DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("megarray/mongo: delete content: %w", err)
	}
	if res.DeletedCount == 0 {
		return megarray.ErrContentNotFound
	}

	if _, err := s.db.Collection(colVersions).DeleteMany(ctx, bson.M{"content_id": key}); err != nil {
		return fmt.Errorf("megarray/mongo: delete content versions: %w", err)
	}
	if _, err := s.db.Collection(colApprovals).DeleteMany(ctx, bson.M{"content_id": key}); err != nil {
		return fmt.Errorf("megarray/mongo: delete content approvals: %w", err)
	}
	return nil
}

// ListContent returns content matching the given options, newest first.
func (s *Store) ListContent(ctx context.Context, opts content.ListOpts) ([]*content.Content, error) {
	filter := bson.M{}
	if opts.OrgID != "" {
		filter["org_id"] = opts.OrgID
	}
	if opts.OwnerID != "" {
		filter["owner_id"] = opts.OwnerID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	return s.findContent(ctx, filter, findOpts)
}

// ListScheduledDue returns SCHEDULED content due at or before now, oldest
// schedule first.
func (s *Store) ListScheduledDue(ctx context.Context, now time.Time) ([]*content.Content, error) {
	filter := bson.M{
		"status":        string(content.StatusScheduled),
		"scheduled_for": bson.M{"$lte": now},
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "scheduled_for", Value: 1}})
	return s.findContent(ctx, filter, findOpts)
}

// ListScheduledAfter returns SCHEDULED content with a strictly future
// schedule.
func (s *Store) ListScheduledAfter(ctx context.Context, now time.Time) ([]*content.Content, error) {
	filter := bson.M{
		"status":        string(content.StatusScheduled),
		"scheduled_for": bson.M{"$gt": now},
	}
	return s.findContent(ctx, filter, options.Find())
}

func (s *Store) findContent(ctx context.Context, filter bson.M, findOpts *options.FindOptionsBuilder) ([]*content.Content, error) {
	cur, err := s.db.Collection(colContent).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("megarray/mongo: list content: %w", err)
	}
	defer cur.Close(ctx)

	var out []*content.Content
	for cur.Next(ctx) {
		var m contentModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("megarray/mongo: decode content: %w", err)
		}
		c, err := fromContentModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("megarray/mongo: iterate content: %w", err)
	}
	return out, nil
}

// CreateVersion persists a new content version. The unique content_id +
// number index rejects duplicate version numbers.
func (s *Store) CreateVersion(ctx context.Context, v *content.Version) error {
	m := toVersionModel(v)
	_, err := s.db.Collection(colVersions).InsertOne(ctx, m)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("megarray/mongo: version %d already exists for %s: %w",
				v.Number, v.ContentID.String(), err)
		}
		return fmt.Errorf("megarray/mongo: create version: %w", err)
	}
	return nil
}

// LatestVersion returns the highest-numbered version, or nil when none
// exists.
func (s *Store) LatestVersion(ctx context.Context, contentID id.ContentID) (*content.Version, error) {
	col := s.db.Collection(colVersions)
	opts := options.FindOne().SetSort(bson.D{{Key: "number", Value: -1}})

	var m versionModel
	err := col.FindOne(ctx, bson.M{"content_id": contentID.String()}, opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("megarray/mongo: latest version: %w", err)
	}
	return fromVersionModel(&m)
}

// ListVersions returns all versions ordered by number ascending.
func (s *Store) ListVersions(ctx context.Context, contentID id.ContentID) ([]*content.Version, error) {
	opts := options.Find().SetSort(bson.D{{Key: "number", Value: 1}})
	cur, err := s.db.Collection(colVersions).Find(ctx, bson.M{"content_id": contentID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("megarray/mongo: list versions: %w", err)
	}
	defer cur.Close(ctx)

	var out []*content.Version
	for cur.Next(ctx) {
		var m versionModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("megarray/mongo: decode version: %w", err)
		}
		v, err := fromVersionModel(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("megarray/mongo: iterate versions: %w", err)
	}
	return out, nil
}

// CreateApproval persists a new approval request.
func (s *Store) CreateApproval(ctx context.Context, a *content.ApprovalRequest) error {
	m := toApprovalModel(a)
	_, err := s.db.Collection(colApprovals).InsertOne(ctx, m)
	if err != nil {
		return fmt.Errorf("megarray/mongo: create approval: %w", err)
	}
	return nil
}

// GetPendingApproval returns the PENDING approval request for a content
// item.
func (s *Store) GetPendingApproval(ctx context.Context, contentID id.ContentID) (*content.ApprovalRequest, error) {
	col := s.db.Collection(colApprovals)
	filter := bson.M{
		"content_id": contentID.String(),
		"status":     string(content.ApprovalPending),
	}

	var m approvalModel
	err := col.FindOne(ctx, filter).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, megarray.ErrNoPendingApproval
		}
		return nil, fmt.Errorf("megarray/mongo: get pending approval: %w", err)
	}
	return fromApprovalModel(&m)
}

// SaveApproval persists changes to an existing approval request.
func (s *Store) SaveApproval(ctx context.Context, a *content.ApprovalRequest) error {
	m := toApprovalModel(a)
	res, err := s.db.Collection(colApprovals).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("megarray/mongo: save approval: %w", err)
	}
	if res.MatchedCount == 0 {
		return megarray.ErrNoPendingApproval
	}
	return nil
}
