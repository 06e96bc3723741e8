// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"code.hybscloud.com/bq/internal/ring"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Backend selects the transport a queue is built on.
type Backend uint8

const (
	// InProcess keeps items in this process's memory ([Local]).
	InProcess Backend = iota
	// CrossProcess keeps items in a shared memory file ([Shared]).
	CrossProcess
	// Networked keeps items in a Redis list ([Redis]).
	Networked
)

func (b Backend) String() string {
	switch b {
	case InProcess:
		return "in-process"
	case CrossProcess:
		return "cross-process"
	case Networked:
		return "networked"
	}
	return "unknown"
}

// Config describes a queue. Builder fills it; Build validates it.
type Config struct {
	Backend Backend `validate:"lte=2"`

	// CapacityBytes bounds buffered payload. Ignored when attaching to an
	// existing shared queue.
	CapacityBytes int `validate:"required_unless=Attach true,omitempty,gt=0"`

	// Slots bounds the item count of an InProcess queue. 0 means
	// DefaultSlots. Rounds up to the next power of 2.
	Slots int `validate:"omitempty,gte=2"`

	// SingleProducer, SingleConsumer and Compact select the InProcess ring
	// algorithm.
	SingleProducer bool
	SingleConsumer bool
	Compact        bool

	// Name identifies a CrossProcess queue; Dir overrides its directory.
	Name string `validate:"required_if=Backend 1,omitempty,excludesall=/"`
	Dir  string

	// Attach opens an existing CrossProcess queue instead of creating it.
	Attach bool

	// RedisKey is the list key of a Networked queue.
	RedisKey string `validate:"required_if=Backend 2"`
}

// Validate reports configuration errors wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	if c.Attach && c.Backend != CrossProcess {
		return errors.Wrapf(ErrInvalidConfig, "bq: attach needs the %s backend", CrossProcess)
	}
	return nil
}

// Builder creates queues with fluent configuration.
//
// The backend defaults to InProcess. The builder selects the ring
// algorithm of an in-process queue from producer/consumer constraints.
//
// Example:
//
//	// In-process, 1 MiB of payload
//	q, err := bq.Build[[]byte](bq.New(1 << 20))
//
//	// In-process SPSC pipeline stage
//	q, err := bq.Build[Event](bq.New(1 << 20).SingleProducer().SingleConsumer())
//
//	// Shared between processes: one creates, the others attach
//	q, err := bq.Build[[]byte](bq.New(1 << 20).CrossProcess("jobs"))
//	q, err := bq.Build[[]byte](bq.New(0).CrossProcess("jobs").Attach())
//
//	// Over Redis
//	q, err := bq.Build[Task](bq.New(1 << 20).Redis(client, "tasks"))
type Builder struct {
	cfg    Config
	ctx    context.Context
	client redis.UniversalClient
	log    *zap.Logger
	sizer  any
}

// New creates a queue builder holding at most capacityBytes of payload.
func New(capacityBytes int) *Builder {
	return &Builder{cfg: Config{CapacityBytes: capacityBytes}}
}

// FromConfig creates a builder from a prepared Config.
func FromConfig(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// Config returns the configuration built so far.
func (b *Builder) Config() Config {
	return b.cfg
}

// SingleProducer declares that only one goroutine will enqueue.
func (b *Builder) SingleProducer() *Builder {
	b.cfg.SingleProducer = true
	return b
}

// SingleConsumer declares that only one goroutine will dequeue.
func (b *Builder) SingleConsumer() *Builder {
	b.cfg.SingleConsumer = true
	return b
}

// Compact selects a CAS-based ring with n physical slots instead of an
// FAA-based ring with 2n slots. Ignored for SPSC.
func (b *Builder) Compact() *Builder {
	b.cfg.Compact = true
	return b
}

// Slots sets the slot count of an in-process queue.
func (b *Builder) Slots(n int) *Builder {
	b.cfg.Slots = n
	return b
}

// CrossProcess selects the shared memory backend under name.
func (b *Builder) CrossProcess(name string) *Builder {
	b.cfg.Backend = CrossProcess
	b.cfg.Name = name
	return b
}

// Dir sets the directory of the shared memory file.
func (b *Builder) Dir(dir string) *Builder {
	b.cfg.Dir = dir
	return b
}

// Attach opens an existing shared queue instead of creating one.
func (b *Builder) Attach() *Builder {
	b.cfg.Attach = true
	return b
}

// Redis selects the networked backend on client under key.
func (b *Builder) Redis(client redis.UniversalClient, key string) *Builder {
	b.cfg.Backend = Networked
	b.cfg.RedisKey = key
	b.client = client
	return b
}

// Context sets the context bounding Redis calls. Defaults to
// context.Background.
func (b *Builder) Context(ctx context.Context) *Builder {
	b.ctx = ctx
	return b
}

// Logger sets the logger used by the queue. Defaults to zap.NewNop.
func (b *Builder) Logger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// Sizer sets the function charging in-process items against capacity.
// fn must be a Sizer[T] or func(T) int for the T passed to Build; any other
// type is reported by Build as an error wrapping ErrInvalidConfig.
func (b *Builder) Sizer(fn any) *Builder {
	b.sizer = fn
	return b
}

// Build creates a Queue[T] on the configured backend using DefaultCodec[T]
// for backends that serialize.
//
// In-process ring selection:
//
//	SingleProducer + SingleConsumer → Lamport SPSC ring
//	Compact                         → CAS ring, n slots
//	otherwise                       → FAA ring, 2n slots
func Build[T any](b *Builder) (Queue[T], error) {
	return BuildWithCodec[T](b, DefaultCodec[T]())
}

// BuildWithCodec is Build with an explicit codec.
func BuildWithCodec[T any](b *Builder, codec Codec[T]) (Queue[T], error) {
	ch, err := buildChannel(b, codec)
	if err != nil {
		return nil, err
	}
	return Wrap(ch, b.logger()), nil
}

func buildChannel[T any](b *Builder, codec Codec[T]) (Channel[T], error) {
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := b.logger().With(zap.Stringer("backend", cfg.Backend))

	switch cfg.Backend {
	case CrossProcess:
		path := SharedPath(cfg.Dir, cfg.Name)
		if cfg.Attach {
			return OpenShared(path, codec, log)
		}
		return CreateShared(path, cfg.CapacityBytes, codec, log)
	case Networked:
		if b.client == nil {
			return nil, errors.Wrap(ErrInvalidConfig, "bq: networked backend needs a redis client")
		}
		ctx := b.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		return NewRedis(ctx, b.client, cfg.RedisKey, cfg.CapacityBytes, codec, log)
	}

	sizer, err := sizerOf[T](b.sizer)
	if err != nil {
		return nil, err
	}
	slots := cfg.Slots
	if slots == 0 {
		slots = DefaultSlots
	}
	return NewLocal(cfg.CapacityBytes, slots, ringKind(cfg), sizer), nil
}

func ringKind(cfg Config) ring.Kind {
	switch {
	case cfg.SingleProducer && cfg.SingleConsumer:
		return ring.KindLamport
	case cfg.Compact:
		return ring.KindSeq
	}
	return ring.KindSCQ
}

func sizerOf[T any](fn any) (Sizer[T], error) {
	switch s := fn.(type) {
	case nil:
		return nil, nil
	case Sizer[T]:
		return s, nil
	case func(T) int:
		return s, nil
	}
	return nil, errors.Wrapf(ErrInvalidConfig, "bq: sizer %T does not accept the item type", fn)
}

func (b *Builder) logger() *zap.Logger {
	if b.log == nil {
		return zap.NewNop()
	}
	return b.log
}

// CreateQueue creates an in-process queue holding at most capacityBytes of
// payload, with default slots and ring.
func CreateQueue[T any](capacityBytes int) (Queue[T], error) {
	return Build[T](New(capacityBytes))
}
