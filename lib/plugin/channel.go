// Package plugin provides typed message channels layered on the binary
// messenger. This file contains the generic channel and codec types; the
// concrete codecs live in json_codec.go, proto_codec.go, and bytes_codec.go.
package plugin

import (
	"fmt"

	"go.uber.org/zap"
)

// MessageCodec converts typed messages to and from the raw bytes a
// BinaryMessenger carries.
type MessageCodec[T any] interface {
	// EncodeMessage encodes message into bytes for the wire.
	EncodeMessage(message T) ([]byte, error)

	// DecodeMessage decodes raw wire bytes into a message.
	DecodeMessage(data []byte) (T, error)
}

// TypedMessageHandler handles a decoded inbound message. reply sends a typed
// reply; like BinaryReply it fires at most once and may be invoked after the
// handler returned.
type TypedMessageHandler[T any] func(message T, reply func(T))

// BasicMessageChannel sends and receives typed messages on one channel of a
// BinaryMessenger, encoding and decoding through a MessageCodec.
type BasicMessageChannel[T any] struct {
	messenger BinaryMessenger
	name      string
	codec     MessageCodec[T]
	logger    *zap.Logger
}

// NewBasicMessageChannel creates a typed channel with the given name over
// messenger. opts may be nil.
func NewBasicMessageChannel[T any](messenger BinaryMessenger, name string, codec MessageCodec[T], opts *Options) *BasicMessageChannel[T] {
	opts = opts.normalize()
	return &BasicMessageChannel[T]{
		messenger: messenger,
		name:      name,
		codec:     codec,
		logger:    opts.Logger,
	}
}

// Name returns the channel name.
func (c *BasicMessageChannel[T]) Name() string {
	return c.name
}

// Send encodes message and forwards it on the channel without waiting for a
// reply.
func (c *BasicMessageChannel[T]) Send(message T) error {
	data, err := c.codec.EncodeMessage(message)
	if err != nil {
		return fmt.Errorf("failed to encode message for channel %s: %w", c.name, err)
	}
	return c.messenger.Send(c.name, data)
}

// SetMessageHandler registers handler for inbound messages on the channel,
// replacing any prior handler. A nil handler unregisters the channel.
//
// A message that fails to decode is logged and dropped without invoking the
// handler; its reply callback is released unsent and the sender receives no
// response.
func (c *BasicMessageChannel[T]) SetMessageHandler(handler TypedMessageHandler[T]) {
	if handler == nil {
		c.messenger.SetMessageHandler(c.name, nil)
		return
	}

	c.messenger.SetMessageHandler(c.name, func(data []byte, reply BinaryReply) {
		message, err := c.codec.DecodeMessage(data)
		if err != nil {
			c.logger.Error("failed to decode inbound message, dropping",
				zap.String("channel", c.name),
				zap.Error(err))
			return
		}

		handler(message, func(response T) {
			encoded, err := c.codec.EncodeMessage(response)
			if err != nil {
				c.logger.Error("failed to encode reply, dropping",
					zap.String("channel", c.name),
					zap.Error(err))
				return
			}
			reply(encoded)
		})
	})
}
