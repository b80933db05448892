// Package hold keeps non-binding slot reservations in Redis. A hold is a UX
// hint with a TTL, not a lock: expiry is enforced by Redis, and booking never
// consults holds.
package hold

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tessaly/bookingd/internal/model"
)

var ErrUnavailable = errors.New("hold store unavailable")

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func holdKey(orgID, token string) string {
	return fmt.Sprintf("hold:%s:%s", orgID, token)
}

func (s *Store) Place(ctx context.Context, orgID, staffID string, start, end time.Time) (model.Hold, error) {
	if s.rdb == nil {
		return model.Hold{}, ErrUnavailable
	}
	h := model.Hold{
		Token:     uuid.NewString(),
		OrgID:     orgID,
		StaffID:   staffID,
		Start:     start,
		End:       end,
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return model.Hold{}, err
	}
	if err := s.rdb.Set(ctx, holdKey(orgID, h.Token), raw, s.ttl).Err(); err != nil {
		return model.Hold{}, fmt.Errorf("place hold: %w", err)
	}
	return h, nil
}

// Release is idempotent; releasing an expired or unknown token is a no-op.
func (s *Store) Release(ctx context.Context, orgID, token string) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	return s.rdb.Del(ctx, holdKey(orgID, token)).Err()
}

func (s *Store) List(ctx context.Context, orgID string) ([]model.Hold, error) {
	if s.rdb == nil {
		return nil, ErrUnavailable
	}
	var holds []model.Hold
	iter := s.rdb.Scan(ctx, 0, holdKey(orgID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, err
		}
		var h model.Hold
		if err := json.Unmarshal(raw, &h); err != nil {
			continue
		}
		holds = append(holds, h)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return holds, nil
}
