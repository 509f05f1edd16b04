// Package plugin provides the JSON message codec for typed channels.
package plugin

import (
	"encoding/json"
)

// JSONMessageCodec encodes and decodes typed channel messages as JSON.
type JSONMessageCodec[T any] struct{}

// NewJSONMessageCodec creates a JSON codec for T. T is any Go type that can
// be marshaled to and from JSON.
func NewJSONMessageCodec[T any]() JSONMessageCodec[T] {
	return JSONMessageCodec[T]{}
}

// EncodeMessage implements MessageCodec.
func (JSONMessageCodec[T]) EncodeMessage(message T) ([]byte, error) {
	return json.Marshal(message)
}

// DecodeMessage implements MessageCodec.
func (JSONMessageCodec[T]) DecodeMessage(data []byte) (T, error) {
	var message T
	// If T is a pointer type json.Unmarshal allocates through &message; for
	// value types &message supplies the necessary pointer.
	err := json.Unmarshal(data, &message)
	return message, err
}
