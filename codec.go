// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bq

import (
	"encoding/json"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
)

// Codec serializes items that cross an isolation boundary.
//
// Transports that share no memory with the producer ([Shared], [Redis])
// store encoded bytes; [Local] stores items as they are and needs no codec.
// Implementations must be safe for concurrent use.
type Codec[T any] interface {
	Marshal(item T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// BytesCodec passes []byte items through unchanged.
// Unmarshal returns data itself; transports hand it a fresh copy.
type BytesCodec struct{}

func (BytesCodec) Marshal(item []byte) ([]byte, error)   { return item, nil }
func (BytesCodec) Unmarshal(data []byte) ([]byte, error) { return data, nil }

// StringCodec stores strings as their bytes.
type StringCodec struct{}

func (StringCodec) Marshal(item string) ([]byte, error)   { return []byte(item), nil }
func (StringCodec) Unmarshal(data []byte) (string, error) { return string(data), nil }

// JSONCodec encodes items with encoding/json.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Marshal(item T) ([]byte, error) {
	data, err := json.Marshal(item)
	return data, errors.Wrap(err, "bq: json encode")
}

func (JSONCodec[T]) Unmarshal(data []byte) (T, error) {
	var item T
	err := json.Unmarshal(data, &item)
	return item, errors.Wrap(err, "bq: json decode")
}

// ProtoCodec encodes protobuf messages.
// New must return a fresh empty message for Unmarshal to fill.
//
// Example:
//
//	codec := bq.ProtoCodec[*pb.Event]{New: func() *pb.Event { return new(pb.Event) }}
type ProtoCodec[M proto.Message] struct {
	New func() M
}

func (c ProtoCodec[M]) Marshal(item M) ([]byte, error) {
	data, err := proto.Marshal(item)
	return data, errors.Wrap(err, "bq: proto encode")
}

func (c ProtoCodec[M]) Unmarshal(data []byte) (M, error) {
	msg := c.New()
	err := proto.Unmarshal(data, msg)
	return msg, errors.Wrap(err, "bq: proto decode")
}

// DefaultCodec returns the codec used when none is configured:
// BytesCodec for []byte, StringCodec for string, JSONCodec otherwise.
func DefaultCodec[T any]() Codec[T] {
	var zero T
	switch any(zero).(type) {
	case []byte:
		return any(BytesCodec{}).(Codec[T])
	case string:
		return any(StringCodec{}).(Codec[T])
	}
	return JSONCodec[T]{}
}
