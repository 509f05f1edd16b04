// Package plugin provides the binary message routing layer.
// This file contains the standard BinaryMessenger implementation and the
// dispatch adaptor that bridges the host's callback interface to registered
// per-channel handlers.
package plugin

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// StandardBinaryMessenger implements BinaryMessenger on top of a host
// Messenger. It owns the mapping from channel name to handler; the host
// callback registered per channel is a single dispatch adaptor that looks
// the current handler up by channel name on every inbound message, so a
// replaced handler is never invoked again once SetMessageHandler returns.
type StandardBinaryMessenger struct {
	messenger Messenger
	logger    *zap.Logger

	handlerMutex sync.RWMutex
	handlers     map[string]BinaryMessageHandler
}

// NewBinaryMessenger wraps the given host transport. opts may be nil.
func NewBinaryMessenger(messenger Messenger, opts *Options) *StandardBinaryMessenger {
	opts = opts.normalize()
	return &StandardBinaryMessenger{
		messenger: messenger,
		logger:    opts.Logger,
		handlers:  make(map[string]BinaryMessageHandler),
	}
}

// Send forwards message unconditionally to the host transport on the named
// channel. It never blocks on a reply; a reply, if any, arrives via a
// handler registered on another channel by convention.
func (m *StandardBinaryMessenger) Send(channel string, message []byte) error {
	return m.messenger.Send(channel, message)
}

// SetMessageHandler registers handler for inbound messages on channel.
//
// A nil handler removes any existing handler and unregisters the channel
// with the host transport. Otherwise the handler is stored, replacing any
// prior handler for the channel (the displaced handler is dropped without
// notification), and the dispatch adaptor is registered with the host.
//
// Handler invocation occurs on whatever goroutine the host transport invokes
// the channel callback on. Mutation of registrations is safe against
// concurrent dispatch but concurrent SetMessageHandler calls for the same
// channel must be serialized by the caller.
func (m *StandardBinaryMessenger) SetMessageHandler(channel string, handler BinaryMessageHandler) {
	if handler == nil {
		m.handlerMutex.Lock()
		delete(m.handlers, channel)
		m.handlerMutex.Unlock()
		m.messenger.SetChannelCallback(channel, nil)
		return
	}

	// Store the handler before registering the adaptor so a message arriving
	// immediately after registration always finds it.
	m.handlerMutex.Lock()
	m.handlers[channel] = handler
	m.handlerMutex.Unlock()

	m.messenger.SetChannelCallback(channel, m.forwardToHandler)
}

// handlerFor returns the currently registered handler for channel.
func (m *StandardBinaryMessenger) handlerFor(channel string) (BinaryMessageHandler, bool) {
	m.handlerMutex.RLock()
	defer m.handlerMutex.RUnlock()
	handler, exists := m.handlers[channel]
	return handler, exists
}

// forwardToHandler is the dispatch adaptor registered with the host
// transport for every channel with a handler. It adapts the host's
// single-callback interface to the per-channel BinaryMessageHandler
// interface: it looks up the current handler by the message's channel name,
// builds a reply callback bound to the message's response handle, and
// invokes the handler. It does not send a reply itself.
func (m *StandardBinaryMessenger) forwardToHandler(message *Message) {
	handler, exists := m.handlerFor(message.Channel)
	if !exists {
		// The channel was unregistered or replaced between the host queuing
		// the message and dispatch; matches host-side drop semantics.
		m.logger.Debug("dropping message for channel without handler",
			zap.String("channel", message.Channel))
		return
	}

	handler(message.Data, m.newBinaryReply(message.Channel, message.ResponseHandle))
}

// newBinaryReply builds the one-shot reply callback for an inbound message.
// The response handle is held in an atomic pointer and swapped out on first
// use, so the reply fires at most once even when invoked from another
// goroutine after the handler returned.
func (m *StandardBinaryMessenger) newBinaryReply(channel string, handle *ResponseHandle) BinaryReply {
	var pending atomic.Pointer[ResponseHandle]
	pending.Store(handle)

	return func(reply []byte) {
		h := pending.Swap(nil)
		if h == nil {
			m.logger.Warn("response can be sent only once, ignoring duplicate response",
				zap.String("channel", channel))
			return
		}
		if err := m.messenger.SendResponse(h, reply); err != nil {
			m.logger.Error("failed to send response",
				zap.String("channel", channel),
				zap.Error(err))
		}
	}
}
