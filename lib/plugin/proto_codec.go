// Package plugin provides the Protocol Buffers message codec for typed
// channels.
package plugin

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ProtoMessageCodec encodes and decodes typed channel messages as Protocol
// Buffers. T must be a pointer to a generated message struct (e.g.
// *pb.MyMessage).
type ProtoMessageCodec[T proto.Message] struct {
	newInstance func() T
}

// NewProtoMessageCodec creates a protobuf codec for T. newInstance is a
// factory returning a fresh, non-nil instance of T used as the decode
// target, e.g. func() *pb.MyMessage { return new(pb.MyMessage) }.
func NewProtoMessageCodec[T proto.Message](newInstance func() T) ProtoMessageCodec[T] {
	return ProtoMessageCodec[T]{newInstance: newInstance}
}

// EncodeMessage implements MessageCodec.
func (c ProtoMessageCodec[T]) EncodeMessage(message T) ([]byte, error) {
	return proto.Marshal(message)
}

// DecodeMessage implements MessageCodec.
func (c ProtoMessageCodec[T]) DecodeMessage(data []byte) (T, error) {
	instance := c.newInstance()
	if err := proto.Unmarshal(data, instance); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to unmarshal protobuf message: %w", err)
	}
	return instance, nil
}
