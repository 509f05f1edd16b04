package loopback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/embercore/hostplug.go/lib/plugin"
)

type pongPlugin struct{}

func (pongPlugin) Name() string { return "pong" }

func TestHost_RequestReplyEndToEnd(t *testing.T) {
	host := NewHost(zap.NewNop())
	registrar := plugin.NewPluginRegistrar(host, plugin.WithLogger(zap.NewNop()))
	registrar.AddPlugin(pongPlugin{})

	registrar.Messenger().SetMessageHandler("ping", func(message []byte, reply plugin.BinaryReply) {
		require.Equal(t, []byte("ping"), message)
		reply([]byte("pong"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := host.Call(ctx, "ping", []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), reply)
}

func TestHost_DeferredReplyResolvesPendingCall(t *testing.T) {
	host := NewHost(zap.NewNop())
	messenger := plugin.NewBinaryMessenger(host, plugin.WithLogger(zap.NewNop()))

	messenger.SetMessageHandler("work", func(message []byte, reply plugin.BinaryReply) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			reply([]byte("done"))
		}()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := host.Call(ctx, "work", []byte("job"))
	require.NoError(t, err)
	assert.Equal(t, []byte("done"), reply)
}

func TestHost_DuplicateResponseRejected(t *testing.T) {
	host := NewHost(zap.NewNop())

	var handle *plugin.ResponseHandle
	host.SetChannelCallback("once", func(message *plugin.Message) {
		handle = message.ResponseHandle
	})

	replies := host.SendMessageWithReply("once", []byte("hi"))
	require.NotNil(t, handle)

	require.NoError(t, host.SendResponse(handle, []byte("first")))
	assert.ErrorIs(t, host.SendResponse(handle, []byte("second")), ErrDuplicateResponse)

	assert.Equal(t, []byte("first"), <-replies)
}

func TestHost_CallTimesOutWithoutReply(t *testing.T) {
	host := NewHost(zap.NewNop())
	messenger := plugin.NewBinaryMessenger(host, plugin.WithLogger(zap.NewNop()))

	messenger.SetMessageHandler("silent", func(message []byte, reply plugin.BinaryReply) {
		// Never replies.
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := host.Call(ctx, "silent", []byte("hello"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHost_SendToUnregisteredChannelDrops(t *testing.T) {
	host := NewHost(zap.NewNop())

	require.NoError(t, host.Send("nobody", []byte("hello")))
}

func TestHost_UnregisterChannelStopsDelivery(t *testing.T) {
	host := NewHost(zap.NewNop())
	messenger := plugin.NewBinaryMessenger(host, plugin.WithLogger(zap.NewNop()))

	var invocations int
	messenger.SetMessageHandler("echo", func(message []byte, reply plugin.BinaryReply) {
		invocations++
	})
	messenger.SetMessageHandler("echo", nil)

	require.NoError(t, host.Send("echo", []byte("hello")))
	assert.Equal(t, 0, invocations)
}

type solidTexture struct {
	pixels []byte
	copies int
}

func (s *solidTexture) CopyPixelBuffer(width, height uint) *plugin.PixelBuffer {
	s.copies++
	return &plugin.PixelBuffer{Buffer: s.pixels, Width: width, Height: height}
}

func TestHost_TextureLifecycle(t *testing.T) {
	host := NewHost(zap.NewNop())
	registrar := plugin.NewPluginRegistrar(host, plugin.WithLogger(zap.NewNop()))
	textures := registrar.Textures()

	texture := &solidTexture{pixels: []byte{9, 9, 9, 9}}
	id := textures.RegisterTexture(texture)
	require.GreaterOrEqual(t, id, int64(0))

	buffer := host.Fetch(id, 2, 2)
	require.NotNil(t, buffer)
	assert.Equal(t, []byte{9, 9, 9, 9}, buffer.Buffer)
	assert.Equal(t, uint(2), buffer.Width)

	textures.MarkTextureFrameAvailable(id)
	assert.Equal(t, 1, host.FrameAvailableCount(id))

	// Stale ids are the host's concern: no-op, no panic.
	textures.MarkTextureFrameAvailable(id + 100)

	textures.UnregisterTexture(id)
	assert.Nil(t, host.Fetch(id, 2, 2))
	assert.Equal(t, 1, texture.copies)
}

func TestHost_InputBlockingRecorded(t *testing.T) {
	host := NewHost(zap.NewNop())
	registrar := plugin.NewPluginRegistrar(host, plugin.WithLogger(zap.NewNop()))

	require.NoError(t, registrar.EnableInputBlockingForChannel("text-input"))

	assert.True(t, host.InputBlockingEnabled("text-input"))
	assert.False(t, host.InputBlockingEnabled("other"))
}
