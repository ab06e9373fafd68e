package todo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures a RedisStore
type RedisOptions struct {
	URL        string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	// KeyPrefix namespaces every key; defaults to "todo"
	KeyPrefix string
}

// RedisStore keeps items in Redis.
//
// Keys:
//
//	<prefix>:<id>            JSON item
//	<prefix>:ids             sorted set of IDs (score = ID)
//	<prefix>:owner:<owner>   set of IDs owned by owner
type RedisStore struct {
	client *redis.Client
	prefix string
}

// nextIDScript allocates max(ID)+1 and reserves it atomically
var nextIDScript = redis.NewScript(`
local top = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local id = 1
if #top > 0 then id = tonumber(top[2]) + 1 end
redis.call('ZADD', KEYS[1], id, id)
return id
`)

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if opts.Password != "" {
		redisOpts.Password = opts.Password
	}
	if opts.DB > 0 {
		redisOpts.DB = opts.DB
	}
	if opts.MaxRetries > 0 {
		redisOpts.MaxRetries = opts.MaxRetries
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}

	redisOpts.DialTimeout = 5 * time.Second
	redisOpts.ReadTimeout = 3 * time.Second
	redisOpts.WriteTimeout = 3 * time.Second
	redisOpts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreFromClient(client, opts.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "todo"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Client exposes the underlying client for health checks
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) itemKey(id int) string {
	return fmt.Sprintf("%s:%d", s.prefix, id)
}

func (s *RedisStore) idsKey() string {
	return s.prefix + ":ids"
}

func (s *RedisStore) ownerKey(owner string) string {
	return fmt.Sprintf("%s:owner:%s", s.prefix, owner)
}

func (s *RedisStore) List(ctx context.Context, owner string) ([]Todo, error) {
	members, err := s.client.SMembers(ctx, s.ownerKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}

	todos := make([]Todo, 0, len(members))
	if len(members) == 0 {
		return todos, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		keys = append(keys, s.itemKey(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var t Todo
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal todo: %w", err)
		}
		todos = append(todos, t)
	}

	sort.Slice(todos, func(i, j int) bool { return todos[i].ID < todos[j].ID })
	return todos, nil
}

func (s *RedisStore) Get(ctx context.Context, id int) (Todo, error) {
	data, err := s.client.Get(ctx, s.itemKey(id)).Result()
	if err == redis.Nil {
		return Todo{}, ErrNotFound
	} else if err != nil {
		return Todo{}, fmt.Errorf("redis get failed: %w", err)
	}

	var t Todo
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return Todo{}, fmt.Errorf("failed to unmarshal todo: %w", err)
	}
	return t, nil
}

func (s *RedisStore) Create(ctx context.Context, todo Todo) (Todo, error) {
	id, err := nextIDScript.Run(ctx, s.client, []string{s.idsKey()}).Int()
	if err != nil {
		return Todo{}, fmt.Errorf("failed to allocate todo id: %w", err)
	}
	todo.ID = id

	if err := s.write(ctx, todo, ""); err != nil {
		return Todo{}, err
	}
	return todo, nil
}

func (s *RedisStore) Update(ctx context.Context, todo Todo) (Todo, error) {
	existing, err := s.Get(ctx, todo.ID)
	if err != nil {
		return Todo{}, err
	}

	if err := s.write(ctx, todo, existing.Owner); err != nil {
		return Todo{}, err
	}
	return todo, nil
}

// write stores the item and moves it between owner sets when the owner changed
func (s *RedisStore) write(ctx context.Context, todo Todo, previousOwner string) error {
	data, err := json.Marshal(todo)
	if err != nil {
		return fmt.Errorf("failed to marshal todo: %w", err)
	}

	member := strconv.Itoa(todo.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.itemKey(todo.ID), data, 0)
		pipe.ZAdd(ctx, s.idsKey(), &redis.Z{Score: float64(todo.ID), Member: member})
		if previousOwner != "" && previousOwner != todo.Owner {
			pipe.SRem(ctx, s.ownerKey(previousOwner), member)
		}
		pipe.SAdd(ctx, s.ownerKey(todo.Owner), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id int) error {
	existing, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	member := strconv.Itoa(id)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.itemKey(id))
		pipe.ZRem(ctx, s.idsKey(), member)
		pipe.SRem(ctx, s.ownerKey(existing.Owner), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Seed(ctx context.Context, owner string) error {
	count, err := s.client.ZCard(ctx, s.idsKey()).Result()
	if err != nil {
		return fmt.Errorf("redis zcard failed: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, title := range SampleTitles {
		if _, err := s.Create(ctx, Todo{Title: title, Owner: owner}); err != nil {
			return err
		}
	}
	return nil
}
