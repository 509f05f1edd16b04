// Package stream implements the host transport capability over a byte
// stream. Two peers connected by an io.Reader/io.Writer pair (a pipe, a
// socket, a child process's stdio) each run a Transport; channel messages,
// requests, and responses are carried as length-prefixed frames with a
// UUID correlation id, so a plugin messenger on one side can talk to a host
// on the other.
package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/embercore/hostplug.go/lib/plugin"
)

// Frame kinds on the wire.
const (
	frameKindMessage  byte = 0x01 // one-way message, no reply expected
	frameKindRequest  byte = 0x02 // message expecting a correlated response
	frameKindResponse byte = 0x03 // response to an earlier request
)

// frame layout: [1 kind][16 message id][4 channel len][channel]
// [4 payload len][payload], big-endian. Responses carry an empty channel.
const frameHeaderSize = 1 + 16 + 4

var (
	// ErrClosed is returned for operations on a closed transport.
	ErrClosed = errors.New("transport is closed")

	// ErrMessageTooLarge is returned when a frame exceeds the configured
	// maximum message size.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
)

// Config holds configuration options for a Transport.
type Config struct {
	// MaxMessageSize caps channel name plus payload bytes per frame
	// (default: 10MB).
	MaxMessageSize int

	// Logger receives transport diagnostics. When nil a no-op logger is
	// used.
	Logger *zap.Logger
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxMessageSize: 10 * 1024 * 1024,
	}
}

// Transport speaks the framed protocol over one reader/writer pair and
// implements plugin.Messenger. Inbound frames are dispatched by Serve.
type Transport struct {
	reader io.Reader
	writer io.Writer
	logger *zap.Logger

	maxMessageSize int

	writeMutex sync.Mutex

	callbackMutex sync.RWMutex
	callbacks     map[string]plugin.ChannelCallback

	pendingMutex sync.Mutex
	pending      map[uuid.UUID]chan []byte

	closed atomic.Bool
}

// NewTransport creates a transport over the given stream pair. config may be
// nil.
func NewTransport(reader io.Reader, writer io.Writer, config *Config) *Transport {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxSize := config.MaxMessageSize
	if maxSize <= 0 {
		maxSize = DefaultConfig().MaxMessageSize
	}
	return &Transport{
		reader:         reader,
		writer:         writer,
		logger:         logger,
		maxMessageSize: maxSize,
		callbacks:      make(map[string]plugin.ChannelCallback),
		pending:        make(map[uuid.UUID]chan []byte),
	}
}

// Send implements plugin.Messenger; it writes a one-way message frame.
func (t *Transport) Send(channel string, message []byte) error {
	return t.writeFrame(frameKindMessage, uuid.Nil, channel, message)
}

// SetChannelCallback implements plugin.Messenger. A nil callback unregisters
// the channel; inbound messages on it are dropped and inbound requests
// receive an empty response so the remote peer is not left waiting.
func (t *Transport) SetChannelCallback(channel string, callback plugin.ChannelCallback) {
	t.callbackMutex.Lock()
	defer t.callbackMutex.Unlock()
	if callback == nil {
		delete(t.callbacks, channel)
		return
	}
	t.callbacks[channel] = callback
}

// SendResponse implements plugin.Messenger. The handle token is the message
// id of the inbound request frame.
func (t *Transport) SendResponse(handle *plugin.ResponseHandle, reply []byte) error {
	id, ok := handle.Token().(uuid.UUID)
	if !ok {
		return fmt.Errorf("response handle token has unexpected type %T", handle.Token())
	}
	return t.writeFrame(frameKindResponse, id, "", reply)
}

// SendRequest writes a request frame on channel and waits for the correlated
// response or context cancellation.
func (t *Transport) SendRequest(ctx context.Context, channel string, message []byte) ([]byte, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	responseChan := make(chan []byte, 1)
	t.pendingMutex.Lock()
	t.pending[id] = responseChan
	t.pendingMutex.Unlock()

	defer func() {
		t.pendingMutex.Lock()
		delete(t.pending, id)
		t.pendingMutex.Unlock()
	}()

	if err := t.writeFrame(frameKindRequest, id, channel, message); err != nil {
		return nil, fmt.Errorf("failed to write request frame: %w", err)
	}

	select {
	case reply, ok := <-responseChan:
		if !ok {
			return nil, ErrClosed
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Serve reads and dispatches inbound frames until the stream ends, the
// context is canceled, or the transport is closed. It returns nil on clean
// EOF. Channel callbacks are invoked on the Serve goroutine.
func (t *Transport) Serve(ctx context.Context) error {
	defer t.failPending()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.closed.Load() {
			return nil
		}

		kind, id, channel, payload, err := t.readFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || t.closed.Load() {
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}

		switch kind {
		case frameKindMessage:
			t.dispatchMessage(id, channel, payload, false)
		case frameKindRequest:
			t.dispatchMessage(id, channel, payload, true)
		case frameKindResponse:
			t.resolvePending(id, payload)
		default:
			t.logger.Warn("skipping frame of unknown kind", zap.Uint8("kind", kind))
		}
	}
}

// dispatchMessage routes an inbound message or request frame to the
// registered channel callback.
func (t *Transport) dispatchMessage(id uuid.UUID, channel string, payload []byte, wantsReply bool) {
	t.callbackMutex.RLock()
	callback, exists := t.callbacks[channel]
	t.callbackMutex.RUnlock()

	if !exists {
		t.logger.Debug("no callback registered for channel",
			zap.String("channel", channel))
		if wantsReply {
			// Resolve the remote request so its sender does not wait
			// forever.
			if err := t.writeFrame(frameKindResponse, id, "", nil); err != nil {
				t.logger.Error("failed to respond for unregistered channel",
					zap.String("channel", channel),
					zap.Error(err))
			}
		}
		return
	}

	message := &plugin.Message{
		Channel: channel,
		Data:    payload,
	}
	if wantsReply {
		message.ResponseHandle = plugin.NewResponseHandle(id)
	}
	callback(message)
}

// resolvePending delivers a response frame to the goroutine waiting in
// SendRequest. Responses without a pending entry are dropped; the request
// was canceled or already answered.
func (t *Transport) resolvePending(id uuid.UUID, payload []byte) {
	t.pendingMutex.Lock()
	responseChan, exists := t.pending[id]
	delete(t.pending, id)
	t.pendingMutex.Unlock()

	if !exists {
		t.logger.Debug("dropping response with no pending request",
			zap.String("message_id", id.String()))
		return
	}
	responseChan <- payload
}

// failPending closes every pending response channel so waiting requests
// return ErrClosed.
func (t *Transport) failPending() {
	t.pendingMutex.Lock()
	defer t.pendingMutex.Unlock()
	for id, responseChan := range t.pending {
		close(responseChan)
		delete(t.pending, id)
	}
}

// Close marks the transport closed and closes the underlying streams when
// they implement io.Closer, unblocking Serve.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if closer, ok := t.reader.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := t.writer.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// writeFrame encodes and writes one frame under the write lock so concurrent
// senders never interleave bytes.
func (t *Transport) writeFrame(kind byte, id uuid.UUID, channel string, payload []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if len(channel)+len(payload) > t.maxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(channel)+len(payload))
	}

	var buffer bytes.Buffer
	buffer.Grow(frameHeaderSize + len(channel) + 4 + len(payload))

	buffer.WriteByte(kind)
	buffer.Write(id[:])

	if err := binary.Write(&buffer, binary.BigEndian, uint32(len(channel))); err != nil {
		return fmt.Errorf("failed to write channel length: %w", err)
	}
	buffer.WriteString(channel)

	if err := binary.Write(&buffer, binary.BigEndian, uint32(len(payload))); err != nil {
		return fmt.Errorf("failed to write payload length: %w", err)
	}
	buffer.Write(payload)

	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()
	if _, err := t.writer.Write(buffer.Bytes()); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// readFrame reads and decodes one frame from the stream.
func (t *Transport) readFrame() (kind byte, id uuid.UUID, channel string, payload []byte, err error) {
	header := make([]byte, frameHeaderSize)
	if _, err = io.ReadFull(t.reader, header); err != nil {
		return 0, uuid.Nil, "", nil, err
	}

	kind = header[0]
	copy(id[:], header[1:17])
	channelLen := binary.BigEndian.Uint32(header[17:21])
	if int(channelLen) > t.maxMessageSize {
		return 0, uuid.Nil, "", nil, fmt.Errorf("%w: channel name %d bytes", ErrMessageTooLarge, channelLen)
	}

	channelBytes := make([]byte, channelLen)
	if _, err = io.ReadFull(t.reader, channelBytes); err != nil {
		return 0, uuid.Nil, "", nil, err
	}

	var lengthBytes [4]byte
	if _, err = io.ReadFull(t.reader, lengthBytes[:]); err != nil {
		return 0, uuid.Nil, "", nil, err
	}
	payloadLen := binary.BigEndian.Uint32(lengthBytes[:])
	if int(payloadLen)+int(channelLen) > t.maxMessageSize {
		return 0, uuid.Nil, "", nil, fmt.Errorf("%w: payload %d bytes", ErrMessageTooLarge, payloadLen)
	}

	payload = make([]byte, payloadLen)
	if _, err = io.ReadFull(t.reader, payload); err != nil {
		return 0, uuid.Nil, "", nil, err
	}

	return kind, id, string(channelBytes), payload, nil
}
