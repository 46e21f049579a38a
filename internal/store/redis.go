package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/redis"
)

// RedisReader is the subset of the Redis client RedisIndex reads through.
type RedisReader interface {
	Get(ctx context.Context, key string) (string, error)
	HGet(ctx context.Context, key, field string) (string, error)
}

// RedisWriter is the subset of the Redis client used to publish an index.
type RedisWriter interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

// RedisIndex is an IndexStore backed by Redis. Document frequencies live in
// one hash (<prefix>df) and each posting list is a JSON string under
// <prefix>postings:<term>.
type RedisIndex struct {
	client RedisReader
	prefix string
}

// NewRedisIndex creates a RedisIndex reading keys under prefix.
func NewRedisIndex(client RedisReader, prefix string) *RedisIndex {
	return &RedisIndex{client: client, prefix: prefix}
}

func (r *RedisIndex) DocumentFrequency(ctx context.Context, term string) (int, error) {
	raw, err := r.client.HGet(ctx, dfKey(r.prefix), term)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return 0, nil
		}
		return 0, apperrors.Unavailable(fmt.Sprintf("redis df %q", term), err)
	}
	df, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing df for %q: %w", term, err)
	}
	return df, nil
}

func (r *RedisIndex) ReadPostingList(ctx context.Context, term string) ([]Posting, error) {
	raw, err := r.client.Get(ctx, postingsKey(r.prefix, term))
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, nil
		}
		return nil, apperrors.Unavailable(fmt.Sprintf("redis postings %q", term), err)
	}
	var postings []Posting
	if err := json.Unmarshal([]byte(raw), &postings); err != nil {
		return nil, fmt.Errorf("decoding postings for %q: %w", term, err)
	}
	return postings, nil
}

// PublishToRedis writes every term of postings into Redis under prefix in
// the layout RedisIndex reads.
func PublishToRedis(ctx context.Context, w RedisWriter, prefix string, postings map[string][]Posting) error {
	df := make(map[string]interface{}, len(postings))
	for term, list := range postings {
		data, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("marshaling postings for %q: %w", term, err)
		}
		if err := w.Set(ctx, postingsKey(prefix, term), data, 0); err != nil {
			return fmt.Errorf("writing postings for %q: %w", term, err)
		}
		df[term] = len(list)
	}
	if len(df) == 0 {
		return nil
	}
	if err := w.HSet(ctx, dfKey(prefix), df); err != nil {
		return fmt.Errorf("writing document frequencies: %w", err)
	}
	return nil
}

func dfKey(prefix string) string {
	return prefix + "df"
}

func postingsKey(prefix, term string) string {
	return prefix + "postings:" + term
}
