package store

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store implements the PackageStore interface using Redis as the backend.
// The keys namespace is organized as follows:
// - `/<prefix>/tools/<author>/<name>/<version>` for storing the package
// - `/<prefix>/tools/index` for storing the set of package keys

type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a PackageStore backed by Redis.
// Zero ttl keeps packages until deleted.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) PackageStore {
	return &redisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (m *redisStore) indexKey() string {
	return path.Join("/", m.prefix, "tools", "index")
}

func (m *redisStore) Get(ctx context.Context, key PackageKey) (*Package, error) {
	data, err := m.client.Get(ctx, packagePath(m.prefix, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.WithMessagef(ErrNotFound, "%s", key)
		}
		return nil, errors.Wrap(err, "failed to get package from Redis")
	}

	pkg := new(Package)
	if err = json.Unmarshal(data, pkg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal package")
	}
	return pkg, nil
}

func (m *redisStore) Put(ctx context.Context, pkg *Package) error {
	if pkg == nil {
		return errors.New("store: package is required")
	}
	if err := pkg.Validate(); err != nil {
		return err
	}

	cp := *pkg
	cp.Version = cp.GetVersion()
	data, err := json.Marshal(&cp)
	if err != nil {
		return errors.Wrap(err, "failed to marshal package")
	}
	member, err := json.Marshal(cp.PackageKey)
	if err != nil {
		return errors.Wrap(err, "failed to marshal package key")
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, packagePath(m.prefix, cp.PackageKey), data, m.ttl)
	pipe.SAdd(ctx, m.indexKey(), member)
	if _, err = pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to store package in Redis")
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "stored",
		"package", cp.PackageKey.String(),
		"files", len(cp.Files))
	return nil
}

func (m *redisStore) Delete(ctx context.Context, key PackageKey) error {
	key.Version = key.GetVersion()
	member, err := json.Marshal(key)
	if err != nil {
		return errors.Wrap(err, "failed to marshal package key")
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, packagePath(m.prefix, key))
	pipe.SRem(ctx, m.indexKey(), member)
	if _, err = pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to delete package from Redis")
	}
	return nil
}

// List returns the indexed keys whose package is still stored.
// Keys of expired packages are removed from the index.
func (m *redisStore) List(ctx context.Context) ([]PackageKey, error) {
	members, err := m.client.SMembers(ctx, m.indexKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list packages from Redis")
	}

	keys := make([]PackageKey, 0, len(members))
	for _, member := range members {
		var key PackageKey
		if err := json.Unmarshal([]byte(member), &key); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal key", "err", err.Error())
			continue
		}

		n, err := m.client.Exists(ctx, packagePath(m.prefix, key)).Result()
		if err != nil {
			return nil, errors.Wrap(err, "failed to check package in Redis")
		}
		if n == 0 {
			_ = m.client.SRem(ctx, m.indexKey(), member).Err()
			continue
		}
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys, nil
}
