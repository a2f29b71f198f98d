package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "vetcare:"

// RedisStore implements SlotBackend on Redis. Each device keeps a set of its
// slot keys so the whole namespace can be dropped at once.
type RedisStore struct {
	client redis.UniversalClient
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return NewRedisWithClient(client), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func slotKey(deviceID, key string) string {
	return redisKeyPrefix + "slot:" + deviceID + ":" + key
}

func slotIndexKey(deviceID string) string {
	return redisKeyPrefix + "slots:" + deviceID
}

// GetSlot returns the value of a device slot.
func (r *RedisStore) GetSlot(ctx context.Context, deviceID, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, slotKey(deviceID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get slot %s: %w", key, err)
	}
	return value, true, nil
}

// SetSlot creates or replaces a device slot.
func (r *RedisStore) SetSlot(ctx context.Context, deviceID, key, value string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, slotKey(deviceID, key), value, 0)
		pipe.SAdd(ctx, slotIndexKey(deviceID), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set slot %s: %w", key, err)
	}
	return nil
}

// DeleteSlot removes a device slot.
func (r *RedisStore) DeleteSlot(ctx context.Context, deviceID, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, slotKey(deviceID, key))
		pipe.SRem(ctx, slotIndexKey(deviceID), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

// DeleteDeviceSlots removes all slots of a device.
func (r *RedisStore) DeleteDeviceSlots(ctx context.Context, deviceID string) error {
	keys, err := r.client.SMembers(ctx, slotIndexKey(deviceID)).Result()
	if err != nil {
		return fmt.Errorf("list device slots: %w", err)
	}

	del := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		del = append(del, slotKey(deviceID, k))
	}
	del = append(del, slotIndexKey(deviceID))

	if err := r.client.Del(ctx, del...).Err(); err != nil {
		return fmt.Errorf("delete device slots: %w", err)
	}
	return nil
}

// Ping verifies Redis connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
