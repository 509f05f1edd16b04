package plugin

import (
	"sync"

	"go.uber.org/zap"
)

// PluginRegistrar composes a BinaryMessenger and a TextureRegistrar for one
// host registration handle and owns registered plugin instances for the
// registration's lifetime. The wrapped objects live exactly as long as the
// registrar.
type PluginRegistrar struct {
	registration Registration
	messenger    *StandardBinaryMessenger
	textures     *StandardTextureRegistrar
	logger       *zap.Logger

	pluginMutex sync.Mutex
	plugins     map[Plugin]struct{}
}

// NewPluginRegistrar builds a registrar from a host-provided registration
// handle, wrapping its transport and texture engine. opts may be nil.
func NewPluginRegistrar(registration Registration, opts *Options) *PluginRegistrar {
	opts = opts.normalize()
	return &PluginRegistrar{
		registration: registration,
		messenger:    NewBinaryMessenger(registration.Messenger(), opts),
		textures:     NewTextureRegistrar(registration.TextureEngine()),
		logger:       opts.Logger,
		plugins:      make(map[Plugin]struct{}),
	}
}

// Messenger returns the registrar's binary messenger.
func (r *PluginRegistrar) Messenger() BinaryMessenger {
	return r.messenger
}

// Textures returns the registrar's texture registrar.
func (r *PluginRegistrar) Textures() TextureRegistrar {
	return r.textures
}

// AddPlugin takes ownership of a plugin instance. Plugins are held in an
// owning, unordered collection; there is no lookup or removal, the set is
// released when the registrar is.
func (r *PluginRegistrar) AddPlugin(plugin Plugin) {
	r.pluginMutex.Lock()
	defer r.pluginMutex.Unlock()
	r.plugins[plugin] = struct{}{}
	r.logger.Debug("plugin registered", zap.String("plugin", plugin.Name()))
}

// PluginCount returns the number of owned plugin instances.
func (r *PluginRegistrar) PluginCount() int {
	r.pluginMutex.Lock()
	defer r.pluginMutex.Unlock()
	return len(r.plugins)
}

// EnableInputBlockingForChannel informs the host that messages on channel
// should block input delivery until a reply is sent. Pure delegation, no
// local state.
func (r *PluginRegistrar) EnableInputBlockingForChannel(channel string) error {
	return r.registration.EnableInputBlocking(channel)
}

// RegistrarManager hands out one PluginRegistrar per registration handle,
// creating it on first request. Embedders that route multiple registrations
// through one place use this instead of tracking registrars themselves.
type RegistrarManager struct {
	opts *Options

	mutex      sync.Mutex
	registrars map[Registration]*PluginRegistrar
}

// NewRegistrarManager creates an empty manager. opts applies to every
// registrar the manager creates and may be nil.
func NewRegistrarManager(opts *Options) *RegistrarManager {
	return &RegistrarManager{
		opts:       opts.normalize(),
		registrars: make(map[Registration]*PluginRegistrar),
	}
}

// RegistrarFor returns the registrar for the given registration handle,
// creating it on first use.
func (m *RegistrarManager) RegistrarFor(registration Registration) *PluginRegistrar {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if registrar, exists := m.registrars[registration]; exists {
		return registrar
	}
	registrar := NewPluginRegistrar(registration, m.opts)
	m.registrars[registration] = registrar
	return registrar
}

// Reset drops all registrars. Intended for tests.
func (m *RegistrarManager) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.registrars = make(map[Registration]*PluginRegistrar)
}
