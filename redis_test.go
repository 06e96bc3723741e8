// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"code.hybscloud.com/bq"
)

const (
	redisImage = "redis:7-alpine"
	redisPort  = "6379/tcp"
)

var redisEnv struct {
	once      sync.Once
	client    *redis.Client
	terminate func()
	err       error
}

func init() {
	testBackends = append(testBackends, backend{"redis", func(t *testing.T, n int) bq.Queue[[]byte] {
		client := redisClient(t)
		key := "bq-test:" + t.Name()
		q, err := bq.Build[[]byte](bq.New(itemSize * n).Redis(client, key))
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		r := q.(*bq.Batched[[]byte]).Unwrap().(*bq.Redis[[]byte])
		if err := r.Purge(); err != nil {
			t.Fatalf("Purge: %v", err)
		}
		t.Cleanup(func() { r.Purge() })
		return q
	}})
}

func TestMain(m *testing.M) {
	code := m.Run()
	if redisEnv.terminate != nil {
		redisEnv.terminate()
	}
	os.Exit(code)
}

// redisClient returns a client for a shared Redis container, starting it
// on first use. Skips when containers are unavailable.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	redisEnv.once.Do(func() {
		ctx := context.Background()
		if !isDockerRunning(ctx) {
			redisEnv.err = errors.New("docker is not running")
			return
		}
		addr, terminate, err := setupRedisContainer(ctx)
		if err != nil {
			redisEnv.err = err
			return
		}
		redisEnv.terminate = terminate
		redisEnv.client, redisEnv.err = bq.NewRedisClient(ctx, bq.RedisConfig{Addr: addr})
	})
	if redisEnv.err != nil {
		t.Skipf("skipping redis integration test: %v", redisEnv.err)
	}
	return redisEnv.client
}

func setupRedisContainer(ctx context.Context) (string, func(), error) {
	req := testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{redisPort},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to start container: %w", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("failed to get endpoint: %w", err)
	}

	terminate := func() {
		if err := container.Terminate(ctx); err != nil {
			fmt.Printf("failed to terminate container: %v\n", err)
		}
	}
	return endpoint, terminate, nil
}

func isDockerRunning(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "info")
	return cmd.Run() == nil
}

func TestRedisSharedBetweenClients(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	key := "bq-test:" + t.Name()

	producer, err := bq.NewRedis[event](ctx, client, key, 1024, nil, nil)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	producer.Purge()
	defer producer.Purge()
	consumer, err := bq.NewRedis[event](ctx, client, key, 1024, nil, nil)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}

	in := bq.Wrap[event](producer, nil)
	if n, err := in.PutMany([]event{{1, "a"}, {2, "b"}}, true, time.Second); err != nil || n != 2 {
		t.Fatalf("PutMany: %d, %v", n, err)
	}
	if consumer.UsedBytes() == 0 || consumer.Len() != 2 {
		t.Fatalf("consumer view: Len=%d UsedBytes=%d", consumer.Len(), consumer.UsedBytes())
	}

	out, err := bq.Wrap[event](consumer, nil).GetMany(true, time.Second, 10)
	if err != nil || len(out) != 2 || out[0].ID != 1 || out[1].ID != 2 {
		t.Fatalf("GetMany: %v, %v", out, err)
	}
	if consumer.UsedBytes() != 0 {
		t.Fatalf("UsedBytes after drain: got %d, want 0", consumer.UsedBytes())
	}

	consumer.Close()
	if !producer.Closed() {
		t.Fatal("Close not visible to the other client")
	}
}

func TestNewRedisInvalid(t *testing.T) {
	ctx := context.Background()
	if _, err := bq.NewRedis[string](ctx, nil, "k", 10, nil, nil); !errors.Is(err, bq.ErrInvalidConfig) {
		t.Fatalf("nil client: got %v, want ErrInvalidConfig", err)
	}
	if _, err := bq.NewRedisClient(ctx, bq.RedisConfig{}); !errors.Is(err, bq.ErrInvalidConfig) {
		t.Fatalf("empty address: got %v, want ErrInvalidConfig", err)
	}
	if _, err := bq.Build[string](bq.New(10).Redis(nil, "k")); !errors.Is(err, bq.ErrInvalidConfig) {
		t.Fatalf("Build without client: got %v, want ErrInvalidConfig", err)
	}
}

// A server fault fails the operation at once and logs it a single time,
// even for a waiter without a deadline.
func TestRedisUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer client.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	q, err := bq.NewRedis[string](context.Background(), client, "bq-test:unreachable", 64, nil, zap.New(core))
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := q.Put("x", true, bq.NoTimeout); err == nil || bq.IsRetryable(err) || bq.IsClosed(err) {
			t.Errorf("Put: got %v, want a server error", err)
		}
		if _, err := q.Get(true, bq.NoTimeout); err == nil || bq.IsRetryable(err) || bq.IsClosed(err) {
			t.Errorf("Get: got %v, want a server error", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("operations against an unreachable server did not return")
	}

	for _, msg := range []string{"bq: redis put failed", "bq: redis get failed"} {
		if n := logs.FilterMessage(msg).Len(); n != 1 {
			t.Fatalf("%q logged %d times, want 1", msg, n)
		}
	}
}
