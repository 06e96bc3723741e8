// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRedisPoolSize        = 10
	defaultRedisMinIdleConns    = 2
	defaultRedisPoolTimeout     = 5 * time.Second
	defaultRedisDialTimeout     = 5 * time.Second
	defaultRedisReadTimeout     = 3 * time.Second
	defaultRedisWriteTimeout    = 3 * time.Second
	defaultRedisMaxRetries      = 3
	defaultRedisMinRetryBackoff = 300 * time.Millisecond
	defaultRedisMaxRetryBackoff = 500 * time.Millisecond
	redisPingTimeout            = 5 * time.Second
)

// RedisConfig holds connection settings for [NewRedisClient].
// Zero fields take defaults.
type RedisConfig struct {
	Addr            string        `validate:"required,hostname_port"`
	Password        string        `validate:"-"`
	Database        int           `validate:"gte=0"`
	PoolSize        int           `validate:"gte=0"`
	MinIdleConns    int           `validate:"gte=0"`
	PoolTimeout     time.Duration `validate:"gte=0"`
	DialTimeout     time.Duration `validate:"gte=0"`
	ReadTimeout     time.Duration `validate:"gte=0"`
	WriteTimeout    time.Duration `validate:"gte=0"`
	MaxRetries      int           `validate:"gte=0"`
	MinRetryBackoff time.Duration `validate:"gte=0"`
	MaxRetryBackoff time.Duration `validate:"gte=0"`
}

func (c *RedisConfig) setDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = defaultRedisPoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = defaultRedisMinIdleConns
	}
	if c.PoolTimeout == 0 {
		c.PoolTimeout = defaultRedisPoolTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultRedisDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultRedisReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultRedisWriteTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultRedisMaxRetries
	}
	if c.MinRetryBackoff == 0 {
		c.MinRetryBackoff = defaultRedisMinRetryBackoff
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = defaultRedisMaxRetryBackoff
	}
}

// NewRedisClient validates cfg, connects and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if err := validate.Struct(&cfg); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	cfg.setDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.Database,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		MaxRetries:      cfg.MaxRetries,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolTimeout:     cfg.PoolTimeout,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	})

	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "bq: ping redis %s", cfg.Addr)
	}
	return client, nil
}

// Put result codes returned by putScript.
const (
	redisPutOK     = 1
	redisPutFull   = 0
	redisPutClosed = -1
)

// KEYS: list, bytes, closed. ARGV: payload, capacity.
var putScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then
	return -1
end
local n = string.len(ARGV[1])
local used = tonumber(redis.call('GET', KEYS[2]) or '0')
if used + n > tonumber(ARGV[2]) then
	return 0
end
redis.call('RPUSH', KEYS[1], ARGV[1])
redis.call('INCRBY', KEYS[2], n)
return 1
`)

// KEYS: list, bytes.
var getScript = redis.NewScript(`
local v = redis.call('LPOP', KEYS[1])
if not v then
	return false
end
redis.call('DECRBY', KEYS[2], string.len(v))
return v
`)

// Redis is the networked transport.
//
// The queue is a Redis list at key. Two sibling keys carry shared state:
// key:bytes counts buffered payload bytes and key:closed marks the queue
// closed. Put and Get each run one Lua script, so the capacity check, the
// list update and the byte counter change atomically on the server, which
// is the single serialization point for every client.
//
// Items are encoded with the queue's Codec; CapBytes bounds encoded bytes.
type Redis[T any] struct {
	ctx    context.Context
	client redis.UniversalClient
	keys   []string
	cap    int
	codec  Codec[T]
	log    *zap.Logger
}

var _ Channel[int] = (*Redis[int])(nil)

// NewRedis returns a transport over the list at key. Every client using the
// same key and server shares the queue. ctx bounds all server calls; a
// cancelled ctx turns further operations into errors.
func NewRedis[T any](ctx context.Context, client redis.UniversalClient, key string, capacityBytes int, codec Codec[T], log *zap.Logger) (*Redis[T], error) {
	if client == nil || key == "" || capacityBytes < 1 {
		return nil, errors.Wrap(ErrInvalidConfig, "bq: redis transport needs a client, a key and a positive capacity")
	}
	if codec == nil {
		codec = DefaultCodec[T]()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis[T]{
		ctx:    ctx,
		client: client,
		keys:   []string{key, key + ":bytes", key + ":closed"},
		cap:    capacityBytes,
		codec:  codec,
		log:    log.With(zap.String("key", key)),
	}, nil
}

// Put encodes and enqueues one item.
func (q *Redis[T]) Put(item T, block bool, timeout time.Duration) error {
	if q.Closed() {
		return ErrClosed
	}
	data, err := q.codec.Marshal(item)
	if err != nil {
		return err
	}
	if len(data) > q.cap {
		return ErrTooLarge
	}
	err = poll(block, timeout, q.Closed, func() error {
		return q.tryPut(data)
	})
	q.warn("bq: redis put failed", err)
	return err
}

func (q *Redis[T]) tryPut(data []byte) error {
	code, err := putScript.Run(q.ctx, q.client, q.keys, data, q.cap).Int()
	if err != nil {
		return errors.Wrap(err, "bq: redis put")
	}
	switch code {
	case redisPutOK:
		return nil
	case redisPutFull:
		return ErrWouldBlock
	case redisPutClosed:
		return ErrClosed
	}
	return errors.Wrapf(ErrCorrupted, "bq: redis put returned %d", code)
}

// Get dequeues and decodes one item.
func (q *Redis[T]) Get(block bool, timeout time.Duration) (T, error) {
	var data string
	err := poll(block, timeout, q.Closed, func() error {
		v, err := getScript.Run(q.ctx, q.client, q.keys[:2]).Text()
		if errors.Is(err, redis.Nil) {
			return ErrWouldBlock
		}
		if err != nil {
			return errors.Wrap(err, "bq: redis get")
		}
		data = v
		return nil
	})
	q.warn("bq: redis get failed", err)
	if err = emptyError(err, q.Closed()); err != nil {
		var zero T
		return zero, err
	}
	return q.codec.Unmarshal([]byte(data))
}

// warn logs err once per operation when it is a server or transport fault
// rather than a queue condition.
func (q *Redis[T]) warn(msg string, err error) {
	if err == nil || IsWouldBlock(err) || IsTimeout(err) || IsClosed(err) {
		return
	}
	q.log.Warn(msg, zap.Error(err))
}

// Len returns the list length, or 0 when the server cannot be reached.
func (q *Redis[T]) Len() int {
	n, err := q.client.LLen(q.ctx, q.keys[0]).Result()
	if err != nil {
		q.log.Warn("bq: redis llen failed", zap.Error(err))
		return 0
	}
	return int(n)
}

// Empty reports whether no items are buffered.
func (q *Redis[T]) Empty() bool {
	return q.Len() == 0
}

// Full reports whether the byte counter has reached capacity.
func (q *Redis[T]) Full() bool {
	return q.UsedBytes() >= q.cap
}

// UsedBytes returns the encoded bytes currently buffered.
func (q *Redis[T]) UsedBytes() int {
	v, err := q.client.Get(q.ctx, q.keys[1]).Result()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		q.log.Warn("bq: redis get bytes failed", zap.Error(err))
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// CapBytes returns the capacity in encoded bytes.
func (q *Redis[T]) CapBytes() int {
	return q.cap
}

// Close marks the queue closed for every client.
func (q *Redis[T]) Close() error {
	if err := q.client.Set(q.ctx, q.keys[2], 1, 0).Err(); err != nil {
		return errors.Wrap(err, "bq: redis close")
	}
	q.log.Debug("bq: redis queue closed")
	return nil
}

// Closed reports whether any client closed the queue. An unreachable
// server counts as open so waiters keep polling until their deadline.
func (q *Redis[T]) Closed() bool {
	n, err := q.client.Exists(q.ctx, q.keys[2]).Result()
	return err == nil && n == 1
}

// Purge deletes the queue's keys, discarding buffered items and the closed
// mark.
func (q *Redis[T]) Purge() error {
	return errors.Wrap(q.client.Del(q.ctx, q.keys...).Err(), "bq: redis purge")
}
