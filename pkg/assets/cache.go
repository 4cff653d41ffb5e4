package assets

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v9"
)

// A Store keeps raw asset bytes around between render sessions so a restarted
// renderer does not have to download every logo again.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
}

var Missing = fmt.Errorf("asset missing")

// Key turns an asset URL into something safe to use as a file name or redis
// key.
func Key(url string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(url)))[:32]
}

type FSStore string

func (f FSStore) getPath(key string) string {
	return filepath.Join(string(f), key)
}

func (f FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	target := f.getPath(key)

	if !FileExists(target) {
		return nil, Missing
	}

	return os.ReadFile(target)
}

func (f FSStore) Set(ctx context.Context, key string, data []byte) error {
	target := f.getPath(key)
	return WriteBytes(data, target)
}

const (
	ASSET_KEY    = "quipcast-asset-%s"
	ASSET_EXPIRY = time.Duration(24 * time.Hour)
)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = ASSET_EXPIRY
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	key := fmt.Sprintf(ASSET_KEY, id)
	data, err := r.client.Get(ctx, key).Bytes()

	if err == redis.Nil {
		return nil, Missing
	}

	if err != nil {
		return nil, err
	}

	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, id string, data []byte) error {
	key := fmt.Sprintf(ASSET_KEY, id)
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

// NoStore never remembers anything.
type NoStore struct{}

func (NoStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, Missing
}

func (NoStore) Set(ctx context.Context, key string, data []byte) error {
	return nil
}

var _ Store = (*FSStore)(nil)
var _ Store = (*RedisStore)(nil)
var _ Store = NoStore{}

// OpenStore picks a store: redis when a URL is given, then a cache
// directory, and otherwise none.
func OpenStore(ctx context.Context, redisURL string, cacheDir string, ttl time.Duration) (Store, error) {
	if redisURL != "" {
		options, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}

		client := redis.NewClient(options)
		err = client.Ping(ctx).Err()
		if err != nil {
			return nil, fmt.Errorf("could not reach redis: %w", err)
		}
		return NewRedisStore(client, ttl), nil
	}

	if cacheDir != "" {
		err := os.MkdirAll(cacheDir, 0755)
		if err != nil {
			return nil, fmt.Errorf("failed to make cache dir %s: %w", cacheDir, err)
		}
		return FSStore(cacheDir), nil
	}

	return NoStore{}, nil
}
