// Package plugin adapts a capability-based, callback/handle-style plugin
// host API into an object-oriented messaging interface for plugin
// implementations.
//
// The host side of the boundary is described by the Messenger, Registration,
// and TextureEngine interfaces. An embedding environment (or one of the
// in-repo hosts, lib/loopback and lib/stream) implements those; plugin code
// works against BinaryMessenger, TextureRegistrar, and PluginRegistrar,
// which wrap them.
package plugin

// ChannelCallback is invoked by the host transport for every inbound message
// on a channel it was registered for. The message, including its response
// handle, is owned by the host for the duration of the call.
type ChannelCallback func(message *Message)

// Message is one inbound message from the host transport.
//
// Data is valid for the duration of the handler invocation; a handler that
// needs the bytes afterwards must copy them. ResponseHandle is nil when the
// sender does not expect a reply.
type Message struct {
	// Channel is the logical path the message arrived on.
	Channel string

	// Data is the raw message payload.
	Data []byte

	// ResponseHandle authorizes exactly one reply to this message.
	ResponseHandle *ResponseHandle
}

// ResponseHandle is an opaque, host-owned token representing the right to
// send exactly one reply for a given message. Host implementations create
// handles with NewResponseHandle and read the token back with Token when a
// reply comes in; plugin code never inspects a handle directly.
//
// The at-most-once guarantee is enforced by the reply closure the dispatch
// adaptor builds around the handle, not by the handle itself.
type ResponseHandle struct {
	token any
}

// NewResponseHandle wraps a host-chosen correlation token in a handle.
func NewResponseHandle(token any) *ResponseHandle {
	return &ResponseHandle{token: token}
}

// Token returns the correlation token the handle was created with.
func (h *ResponseHandle) Token() any {
	return h.token
}

// Messenger is the host transport capability consumed by this layer. It is
// the Go rendition of the C-style function set
// (send, set_channel_callback, send_response) on a transport reference.
type Messenger interface {
	// Send forwards a message to the host transport on the named channel.
	// Fire-and-forget: a reply, if any, arrives via a handler registered on
	// another channel by convention.
	Send(channel string, message []byte) error

	// SetChannelCallback registers callback for inbound messages on channel.
	// A nil callback unregisters the channel; the host thereafter drops
	// inbound messages on it or applies its own default behavior.
	SetChannelCallback(channel string, callback ChannelCallback)

	// SendResponse sends the reply authorized by handle. The host consumes
	// the handle; callers must not pass the same handle twice.
	SendResponse(handle *ResponseHandle, reply []byte) error
}

// PixelFetch is the callback a TextureEngine invokes to obtain pixels for a
// registered external texture. Ownership of the returned buffer stays with
// the producer.
type PixelFetch func(width, height uint) *PixelBuffer

// TextureEngine is the host compositor capability consumed by the texture
// registrar.
type TextureEngine interface {
	// RegisterExternalTexture registers a pixel source and returns a
	// host-assigned identifier. A negative identifier means the host
	// rejected the registration; this layer adds no validation on top.
	RegisterExternalTexture(fetch PixelFetch) int64

	// MarkExternalTextureFrameAvailable notifies the host that a new frame
	// is ready. The host is authoritative on identifier validity; a stale
	// identifier is a no-op.
	MarkExternalTextureFrameAvailable(textureID int64)

	// UnregisterExternalTexture deregisters the texture. After it returns
	// the host will not invoke the pixel fetch for this identifier again.
	UnregisterExternalTexture(textureID int64)
}

// Registration is the host-provided registration handle a PluginRegistrar
// is constructed from.
type Registration interface {
	// Messenger returns the host transport associated with the registration.
	Messenger() Messenger

	// TextureEngine returns the host compositor registrar associated with
	// the registration.
	TextureEngine() TextureEngine

	// EnableInputBlocking informs the host that messages on channel should
	// block input delivery until a reply is sent.
	EnableInputBlocking(channel string) error
}

// BinaryReply sends a reply to an inbound message. The first invocation
// sends the bytes to the host and consumes the underlying response handle;
// any later invocation is refused and reported as a diagnostic.
type BinaryReply func(reply []byte)

// BinaryMessageHandler handles an inbound message on a channel. The handler
// may invoke reply synchronously, store it and invoke it later from another
// goroutine, or never invoke it at all; it fires at most once regardless.
type BinaryMessageHandler func(message []byte, reply BinaryReply)

// BinaryMessenger is the object-style messaging interface exposed to plugin
// implementations.
type BinaryMessenger interface {
	// Send forwards message to the host transport on the named channel
	// without waiting for any reply.
	Send(channel string, message []byte) error

	// SetMessageHandler registers handler for inbound messages on channel,
	// replacing any prior handler. A nil handler unregisters the channel.
	SetMessageHandler(channel string, handler BinaryMessageHandler)
}

// TextureRegistrar is the object-style texture interface exposed to plugin
// implementations.
type TextureRegistrar interface {
	// RegisterTexture registers texture with the host compositor and
	// returns the host-assigned identifier.
	RegisterTexture(texture Texture) int64

	// MarkTextureFrameAvailable notifies the host that a new frame is ready
	// for the given identifier.
	MarkTextureFrameAvailable(textureID int64)

	// UnregisterTexture deregisters the texture with the given identifier.
	UnregisterTexture(textureID int64)
}

// Plugin is a unit of functionality registered with a PluginRegistrar. The
// registrar owns registered plugins for the lifetime of the registration.
type Plugin interface {
	// Name identifies the plugin in diagnostics.
	Name() string
}
