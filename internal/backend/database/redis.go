package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "carddraw"
	redisSeqKey    = redisKeyPrefix + ":images:seq"
	redisIndexKey  = redisKeyPrefix + ":images"
)

func redisImageKey(id int64) string {
	return fmt.Sprintf("%s:image:%d", redisKeyPrefix, id)
}

// selectScript increments the selection count of one image hash when it is
// still below quota. Returns -1 for a missing image, 0 when at quota and 1
// after a successful update.
var selectScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local count = tonumber(redis.call('HGET', KEYS[1], 'selected_count'))
if count >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'selected_count', count + 1, 'selected', '1', 'group_id', ARGV[2], 'timestamp', ARGV[3])
return 1
`)

type redisImage struct {
	ID            int64  `redis:"id"`
	Name          string `redis:"name"`
	Data          string `redis:"data"`
	Selected      bool   `redis:"selected"`
	SelectedCount int    `redis:"selected_count"`
	GroupID       int    `redis:"group_id"`
	Timestamp     string `redis:"timestamp"`
}

func (r *redisImage) toImage() *Image {
	return &Image{
		ID:            r.ID,
		Name:          r.Name,
		Data:          r.Data,
		Selected:      r.Selected,
		SelectedCount: r.SelectedCount,
		GroupID:       r.GroupID,
		Timestamp:     r.Timestamp,
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func imageFields(img *Image) []any {
	return []any{
		"id", img.ID,
		"name", img.Name,
		"data", img.Data,
		"selected", boolField(img.Selected),
		"selected_count", img.SelectedCount,
		"group_id", img.GroupID,
		"timestamp", img.Timestamp,
	}
}

// RedisDatabase stores every image as a hash and keeps the ids in a sorted set.
type RedisDatabase struct {
	client *redis.Client
}

// NewRedisDatabase connects using a redis:// URL, e.g. redis://localhost:6379/0.
func NewRedisDatabase(connectionString string) (*RedisDatabase, error) {
	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid redis connection string: %w", err)
	}
	return NewRedisDatabaseFromClient(redis.NewClient(opts)), nil
}

func NewRedisDatabaseFromClient(client *redis.Client) *RedisDatabase {
	return &RedisDatabase{client: client}
}

// CreateDatabase is a no-op; keys are created on first write.
func (r *RedisDatabase) CreateDatabase(context.Context) error { return nil }

func (r *RedisDatabase) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisDatabase) Close() error {
	return r.client.Close()
}

func (r *RedisDatabase) ids(ctx context.Context) ([]int64, error) {
	members, err := r.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt image index member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *RedisDatabase) GetAllImages(ctx context.Context) ([]*Image, error) {
	ids, err := r.ids(ctx)
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, redisImageKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	images := make([]*Image, 0, len(ids))
	for _, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			// deleted between ZRANGE and HGETALL
			continue
		}
		var ri redisImage
		if err := cmd.Scan(&ri); err != nil {
			return nil, err
		}
		images = append(images, ri.toImage())
	}
	return images, nil
}

func (r *RedisDatabase) GetImage(ctx context.Context, id int64) (*Image, error) {
	cmd := r.client.HGetAll(ctx, redisImageKey(id))
	if err := cmd.Err(); err != nil {
		return nil, err
	}
	if len(cmd.Val()) == 0 {
		return nil, ErrImageNotFound
	}
	var ri redisImage
	if err := cmd.Scan(&ri); err != nil {
		return nil, err
	}
	return ri.toImage(), nil
}

func (r *RedisDatabase) CreateImages(ctx context.Context, images []NewImage) ([]*Image, error) {
	if len(images) == 0 {
		return []*Image{}, nil
	}

	// Reserve a contiguous id range up front.
	last, err := r.client.IncrBy(ctx, redisSeqKey, int64(len(images))).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate image ids: %w", err)
	}
	first := last - int64(len(images)) + 1

	created := make([]*Image, 0, len(images))
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, in := range images {
			img := &Image{
				ID:        first + int64(i),
				Name:      in.Name,
				Data:      in.Data,
				Timestamp: in.Timestamp,
			}
			pipe.HSet(ctx, redisImageKey(img.ID), imageFields(img)...)
			pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(img.ID), Member: img.ID})
			created = append(created, img)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store images: %w", err)
	}
	return created, nil
}

func (r *RedisDatabase) SelectImage(ctx context.Context, id int64, groupID int, quota int) (*Image, error) {
	res, err := selectScript.Run(ctx, r.client, []string{redisImageKey(id)}, quota, groupID, Now()).Int()
	if err != nil {
		return nil, err
	}
	if res < 0 {
		return nil, ErrImageNotFound
	}
	return r.GetImage(ctx, id)
}

func (r *RedisDatabase) DeleteImage(ctx context.Context, id int64) error {
	var removed *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, redisIndexKey, id)
		pipe.Del(ctx, redisImageKey(id))
		return nil
	})
	if err != nil {
		return err
	}
	if removed.Val() == 0 {
		return ErrImageNotFound
	}
	return nil
}

func (r *RedisDatabase) ResetImages(ctx context.Context, policy ResetPolicy) error {
	if !policy.Valid() {
		return errInvalidResetPolicy(policy)
	}

	ids, err := r.ids(ctx)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			key := redisImageKey(id)
			if policy == ResetDelete {
				pipe.Del(ctx, key)
				continue
			}
			pipe.HSet(ctx, key, "selected", boolField(false), "selected_count", 0, "group_id", 0)
		}
		if policy == ResetDelete {
			// The sequence key is kept so ids are never reused.
			pipe.Del(ctx, redisIndexKey)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
