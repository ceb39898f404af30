package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DeleteExpiredSessions removes sessions whose expiry is at or before now
// and returns the number removed. Session documents are written by the
// auth layer outside this module; the core only prunes them.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.Collection(colSessions).DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$lte": now},
	})
	if err != nil {
		return 0, fmt.Errorf("megarray/mongo: delete expired sessions: %w", err)
	}
	return res.DeletedCount, nil
}
