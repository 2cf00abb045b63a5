package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "migru"

// Connect accepts either a redis:// URL or a bare host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisEventLog keeps one sorted set per user scored by occurred_at in microseconds.
type RedisEventLog struct {
	client *redis.Client
	prefix string
}

func NewRedisEventLog(client *redis.Client, prefix string) *RedisEventLog {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisEventLog{client: client, prefix: prefix}
}

func (repo *RedisEventLog) eventsKey(userID string) string {
	return repo.prefix + ":events:" + userID
}

func (repo *RedisEventLog) sequenceKey(userID string) string {
	return repo.prefix + ":seq:" + userID
}

func (repo *RedisEventLog) usersKey() string {
	return repo.prefix + ":users"
}

func (repo *RedisEventLog) Append(ctx context.Context, event models.Event) (models.EventID, error) {
	seq, err := repo.client.Incr(ctx, repo.sequenceKey(event.UserID)).Result()
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}

	event.ID = 0
	event.Seq = models.EventID(seq)
	event.OccurredAt = event.OccurredAt.UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}

	_, err = repo.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, repo.eventsKey(event.UserID), redis.Z{
			Score:  float64(event.OccurredAt.UnixMicro()),
			Member: payload,
		})
		pipe.SAdd(ctx, repo.usersKey(), event.UserID)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return event.Seq, nil
}

// Range returns events with occurred_at in [from, to), oldest first.
func (repo *RedisEventLog) Range(ctx context.Context, userID string, from time.Time, to time.Time) ([]models.Event, error) {
	members, err := repo.client.ZRangeByScore(ctx, repo.eventsKey(userID), &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UTC().UnixMicro(), 10),
		Max: "(" + strconv.FormatInt(to.UTC().UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range events: %w", err)
	}

	events := make([]models.Event, 0, len(members))
	for _, member := range members {
		event := models.Event{}
		if err := json.Unmarshal([]byte(member), &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		event.UserID = userID
		event.OccurredAt = event.OccurredAt.UTC()
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].Seq < events[j].Seq
		}
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events, nil
}

func (repo *RedisEventLog) Trim(ctx context.Context, userID string, olderThan time.Time) (int64, error) {
	removed, err := repo.client.ZRemRangeByScore(ctx, repo.eventsKey(userID),
		"-inf",
		"("+strconv.FormatInt(olderThan.UTC().UnixMicro(), 10),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("trim events: %w", err)
	}
	return removed, nil
}

func (repo *RedisEventLog) Users(ctx context.Context) ([]string, error) {
	users, err := repo.client.SMembers(ctx, repo.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

func (repo *RedisEventLog) DeleteUser(ctx context.Context, userID string) error {
	_, err := repo.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, repo.eventsKey(userID), repo.sequenceKey(userID))
		pipe.SRem(ctx, repo.usersKey(), userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete user events: %w", err)
	}
	return nil
}
