package plugin

// PixelBuffer is one frame of pixels produced by a Texture. Ownership of
// Buffer stays with the producing texture; the host copies what it needs
// before the next fetch.
type PixelBuffer struct {
	Buffer []byte
	Width  uint
	Height uint
}

// Texture is an external pixel source registered with the host compositor.
type Texture interface {
	// CopyPixelBuffer returns a pixel buffer for the requested size, or nil
	// when no frame is available. The returned buffer remains owned by the
	// texture.
	CopyPixelBuffer(width, height uint) *PixelBuffer
}

// StandardTextureRegistrar implements TextureRegistrar on top of a host
// TextureEngine. All operations are pass-throughs; the host is authoritative
// on identifier validity.
type StandardTextureRegistrar struct {
	engine TextureEngine
}

// NewTextureRegistrar wraps the given host texture engine.
func NewTextureRegistrar(engine TextureEngine) *StandardTextureRegistrar {
	return &StandardTextureRegistrar{engine: engine}
}

// RegisterTexture registers texture with the host compositor, supplying a
// pixel fetch that delegates to the texture, and returns the host-assigned
// identifier.
func (r *StandardTextureRegistrar) RegisterTexture(texture Texture) int64 {
	return r.engine.RegisterExternalTexture(func(width, height uint) *PixelBuffer {
		return texture.CopyPixelBuffer(width, height)
	})
}

// MarkTextureFrameAvailable notifies the host that a new frame is ready for
// the given identifier. A stale identifier is a no-op on the host side.
func (r *StandardTextureRegistrar) MarkTextureFrameAvailable(textureID int64) {
	r.engine.MarkExternalTextureFrameAvailable(textureID)
}

// UnregisterTexture deregisters the texture. After it returns the host will
// not invoke the texture's pixel fetch for this identifier again; the host
// may reuse the identifier at its discretion.
func (r *StandardTextureRegistrar) UnregisterTexture(textureID int64) {
	r.engine.UnregisterExternalTexture(textureID)
}
