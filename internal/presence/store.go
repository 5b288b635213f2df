package presence

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"pulse-backend/internal/models"
)

const recordKeyPrefix = "presence:"

// RedisStore keeps PresenceRecords in Redis so last-seen timestamps survive
// process restarts. Records are tiny JSON blobs keyed per user.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, rec models.PresenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := recordKeyPrefix + strconv.Itoa(rec.UserID)
	return s.rdb.Set(ctx, key, data, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context, userID int) (*models.PresenceRecord, error) {
	key := recordKeyPrefix + strconv.Itoa(userID)
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec models.PresenceRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
