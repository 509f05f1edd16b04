// Package loopback provides an in-process implementation of the host
// capability surface consumed by lib/plugin. It implements the transport,
// texture engine, and registration handle in memory, which makes it both a
// reference host for single-process embedding and a test bed for plugin
// code: messages sent by the host side are delivered synchronously to the
// registered channel callback, and replies resolve pending host requests by
// correlation id.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/embercore/hostplug.go/lib/plugin"
)

// ErrDuplicateResponse is returned by SendResponse when the response handle
// was already consumed, or never issued by this host.
var ErrDuplicateResponse = errors.New("response handle unknown or already consumed")

// Host is an in-process plugin host. It implements plugin.Messenger,
// plugin.TextureEngine, and plugin.Registration.
type Host struct {
	logger *zap.Logger

	callbackMutex sync.RWMutex
	callbacks     map[string]plugin.ChannelCallback

	pendingMutex sync.Mutex
	pending      map[uuid.UUID]chan []byte

	textureMutex  sync.Mutex
	textures      map[int64]plugin.PixelFetch
	frameCounts   map[int64]int
	nextTextureID int64

	blockingMutex sync.Mutex
	inputBlocking map[string]struct{}
}

// NewHost creates an empty in-process host. logger may be nil.
func NewHost(logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		logger:        logger,
		callbacks:     make(map[string]plugin.ChannelCallback),
		pending:       make(map[uuid.UUID]chan []byte),
		textures:      make(map[int64]plugin.PixelFetch),
		frameCounts:   make(map[int64]int),
		inputBlocking: make(map[string]struct{}),
	}
}

// Messenger implements plugin.Registration.
func (h *Host) Messenger() plugin.Messenger {
	return h
}

// TextureEngine implements plugin.Registration.
func (h *Host) TextureEngine() plugin.TextureEngine {
	return h
}

// EnableInputBlocking implements plugin.Registration. The host records the
// channel; InputBlockingEnabled reports it back.
func (h *Host) EnableInputBlocking(channel string) error {
	h.blockingMutex.Lock()
	defer h.blockingMutex.Unlock()
	h.inputBlocking[channel] = struct{}{}
	return nil
}

// InputBlockingEnabled reports whether input blocking was requested for
// channel.
func (h *Host) InputBlockingEnabled(channel string) bool {
	h.blockingMutex.Lock()
	defer h.blockingMutex.Unlock()
	_, enabled := h.inputBlocking[channel]
	return enabled
}

// SetChannelCallback implements plugin.Messenger. A nil callback unregisters
// the channel.
func (h *Host) SetChannelCallback(channel string, callback plugin.ChannelCallback) {
	h.callbackMutex.Lock()
	defer h.callbackMutex.Unlock()
	if callback == nil {
		delete(h.callbacks, channel)
		return
	}
	h.callbacks[channel] = callback
}

// callbackFor returns the registered callback for channel.
func (h *Host) callbackFor(channel string) (plugin.ChannelCallback, bool) {
	h.callbackMutex.RLock()
	defer h.callbackMutex.RUnlock()
	callback, exists := h.callbacks[channel]
	return callback, exists
}

// Send implements plugin.Messenger: it carries outbound plugin messages.
// In this in-process host both sides share one channel namespace, so the
// message is delivered to the channel's registered callback without a
// response handle; when no callback is registered the message is dropped,
// matching host transport semantics.
func (h *Host) Send(channel string, message []byte) error {
	callback, exists := h.callbackFor(channel)
	if !exists {
		h.logger.Debug("no callback registered for channel, dropping message",
			zap.String("channel", channel))
		return nil
	}
	callback(&plugin.Message{
		Channel: channel,
		Data:    message,
	})
	return nil
}

// SendResponse implements plugin.Messenger. The handle token is the
// correlation id issued by Call or SendMessageWithReply; the pending entry
// is consumed on delivery, so a second response for the same handle fails
// with ErrDuplicateResponse.
func (h *Host) SendResponse(handle *plugin.ResponseHandle, reply []byte) error {
	id, ok := handle.Token().(uuid.UUID)
	if !ok {
		return fmt.Errorf("response handle token has unexpected type %T", handle.Token())
	}

	h.pendingMutex.Lock()
	responseChan, exists := h.pending[id]
	delete(h.pending, id)
	h.pendingMutex.Unlock()

	if !exists {
		h.logger.Warn("rejecting response for consumed or unknown handle",
			zap.String("message_id", id.String()))
		return ErrDuplicateResponse
	}

	responseChan <- reply
	return nil
}

// SendMessageWithReply delivers a host-side message on channel and returns a
// buffered channel that receives the plugin's reply. The returned channel
// never receives more than one value. When no callback is registered for
// channel the message is dropped and the reply channel never resolves.
func (h *Host) SendMessageWithReply(channel string, message []byte) <-chan []byte {
	responseChan := make(chan []byte, 1)

	callback, exists := h.callbackFor(channel)
	if !exists {
		h.logger.Debug("no callback registered for channel, dropping message",
			zap.String("channel", channel))
		return responseChan
	}

	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the system random source does.
		h.logger.Error("failed to generate message id, dropping message", zap.Error(err))
		return responseChan
	}

	h.pendingMutex.Lock()
	h.pending[id] = responseChan
	h.pendingMutex.Unlock()

	callback(&plugin.Message{
		Channel:        channel,
		Data:           message,
		ResponseHandle: plugin.NewResponseHandle(id),
	})
	return responseChan
}

// Call delivers a host-side message on channel and waits for the plugin's
// reply or context cancellation.
func (h *Host) Call(ctx context.Context, channel string, message []byte) ([]byte, error) {
	select {
	case reply := <-h.SendMessageWithReply(channel, message):
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RegisterExternalTexture implements plugin.TextureEngine. Identifiers are
// assigned from a non-negative counter.
func (h *Host) RegisterExternalTexture(fetch plugin.PixelFetch) int64 {
	h.textureMutex.Lock()
	defer h.textureMutex.Unlock()
	id := h.nextTextureID
	h.nextTextureID++
	h.textures[id] = fetch
	return id
}

// MarkExternalTextureFrameAvailable implements plugin.TextureEngine. Stale
// identifiers are a no-op.
func (h *Host) MarkExternalTextureFrameAvailable(textureID int64) {
	h.textureMutex.Lock()
	defer h.textureMutex.Unlock()
	if _, exists := h.textures[textureID]; !exists {
		return
	}
	h.frameCounts[textureID]++
}

// UnregisterExternalTexture implements plugin.TextureEngine. After it
// returns the host never invokes the texture's pixel fetch again.
func (h *Host) UnregisterExternalTexture(textureID int64) {
	h.textureMutex.Lock()
	defer h.textureMutex.Unlock()
	delete(h.textures, textureID)
	delete(h.frameCounts, textureID)
}

// Fetch asks the registered texture for a pixel buffer of the requested
// size, simulating a compositor poll. It returns nil for unknown
// identifiers.
func (h *Host) Fetch(textureID int64, width, height uint) *plugin.PixelBuffer {
	h.textureMutex.Lock()
	fetch, exists := h.textures[textureID]
	h.textureMutex.Unlock()
	if !exists {
		return nil
	}
	return fetch(width, height)
}

// FrameAvailableCount reports how many frame-available notifications the
// host received for textureID since registration.
func (h *Host) FrameAvailableCount(textureID int64) int {
	h.textureMutex.Lock()
	defer h.textureMutex.Unlock()
	return h.frameCounts[textureID]
}
