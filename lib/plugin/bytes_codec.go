package plugin

// BytesMessageCodec is the identity codec for channels that carry raw bytes.
type BytesMessageCodec struct{}

// EncodeMessage implements MessageCodec.
func (BytesMessageCodec) EncodeMessage(message []byte) ([]byte, error) {
	return message, nil
}

// DecodeMessage implements MessageCodec.
func (BytesMessageCodec) DecodeMessage(data []byte) ([]byte, error) {
	return data, nil
}
