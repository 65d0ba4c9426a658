package facets

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
)

// RedisOptions configures the retry queue connection
type RedisOptions struct {
	URL      string
	Password string
	DB       int
}

// DialRedis connects to Redis and pings it
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	parsed, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if opts.Password != "" {
		parsed.Password = opts.Password
	}
	if opts.DB > 0 {
		parsed.DB = opts.DB
	}

	parsed.DialTimeout = 5 * time.Second
	parsed.ReadTimeout = 3 * time.Second
	parsed.WriteTimeout = 3 * time.Second
	parsed.PoolTimeout = 4 * time.Second

	client := redis.NewClient(parsed)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisRetryQueue holds projects whose projection failed in a sorted set
// scored by first failure time. A project is queued at most once.
type RedisRetryQueue struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisRetryQueue creates a retry queue under key
func NewRedisRetryQueue(client *redis.Client, key string) *RedisRetryQueue {
	return &RedisRetryQueue{client: client, key: key, now: time.Now}
}

// Enqueue adds a project, keeping its original position if already queued
func (q *RedisRetryQueue) Enqueue(ctx context.Context, projectID loaderfields.ProjectID) error {
	err := q.client.ZAddNX(ctx, q.key, &redis.Z{
		Score:  float64(q.now().UnixMilli()),
		Member: strconv.FormatInt(int64(projectID), 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue project %d: %w", projectID, err)
	}
	return nil
}

// Dequeue removes and returns up to n of the oldest queued projects
func (q *RedisRetryQueue) Dequeue(ctx context.Context, n int) ([]loaderfields.ProjectID, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := q.client.ZPopMin(ctx, q.key, int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue projects: %w", err)
	}

	ids := make([]loaderfields.ProjectID, 0, len(members))
	for _, m := range members {
		s, ok := m.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, loaderfields.ProjectID(id))
	}
	return ids, nil
}

// Len returns the number of queued projects
func (q *RedisRetryQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read retry queue length: %w", err)
	}
	return n, nil
}
