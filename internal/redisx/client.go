package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Ping(ctx context.Context, rdb *redis.Client) error {
	return errors.Wrap(rdb.Ping(ctx).Err(), "redis ping")
}

// Deduper records processed event ids with SETNX so a redelivered event is
// recognised within the TTL.
type Deduper struct {
	RDB      *redis.Client
	Consumer string
	TTL      time.Duration
}

func (d *Deduper) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = TTLDedup
	}
	ok, err := d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Consumer, eventID), "1", ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "dedup setnx")
	}
	return ok, nil
}

// Idempotency maps client-supplied Idempotency-Key values to the order they
// created.
type Idempotency struct {
	RDB *redis.Client
	TTL time.Duration
}

// Lookup returns the order id recorded for key, if any.
func (i *Idempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	id, err := i.RDB.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "idempotency get")
	}
	return id, true, nil
}

// Remember records orderID under key unless the key is already taken.
func (i *Idempotency) Remember(ctx context.Context, key, orderID string) error {
	ttl := i.TTL
	if ttl <= 0 {
		ttl = TTLIdempotency
	}
	if err := i.RDB.SetNX(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, ttl).Err(); err != nil {
		return errors.Wrap(err, "idempotency set")
	}
	return nil
}
