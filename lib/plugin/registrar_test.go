package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRegistration bundles the fake transport and texture engine behind the
// Registration interface, the way a host registration handle does.
type fakeRegistration struct {
	transport *fakeTransport
	engine    *fakeTextureEngine
	blocking  []string
}

func newFakeRegistration() *fakeRegistration {
	return &fakeRegistration{
		transport: newFakeTransport(),
		engine:    newFakeTextureEngine(),
	}
}

func (r *fakeRegistration) Messenger() Messenger         { return r.transport }
func (r *fakeRegistration) TextureEngine() TextureEngine { return r.engine }

func (r *fakeRegistration) EnableInputBlocking(ch string) error {
	r.blocking = append(r.blocking, ch)
	return nil
}

// namedPlugin is a minimal Plugin for registrar tests.
type namedPlugin struct {
	name string
}

func (p *namedPlugin) Name() string { return p.name }

func TestPluginRegistrar_ComposesWrappers(t *testing.T) {
	registration := newFakeRegistration()
	registrar := NewPluginRegistrar(registration, WithLogger(zap.NewNop()))

	require.NotNil(t, registrar.Messenger())
	require.NotNil(t, registrar.Textures())

	require.NoError(t, registrar.Messenger().Send("boot", []byte("up")))
	require.Len(t, registration.transport.sent["boot"], 1)
}

func TestPluginRegistrar_AddPluginOwnsInstances(t *testing.T) {
	registrar := NewPluginRegistrar(newFakeRegistration(), WithLogger(zap.NewNop()))

	first := &namedPlugin{name: "first"}
	registrar.AddPlugin(first)
	registrar.AddPlugin(&namedPlugin{name: "second"})
	// Re-adding the same instance does not grow the set.
	registrar.AddPlugin(first)

	assert.Equal(t, 2, registrar.PluginCount())
}

func TestPluginRegistrar_EnableInputBlockingDelegates(t *testing.T) {
	registration := newFakeRegistration()
	registrar := NewPluginRegistrar(registration, WithLogger(zap.NewNop()))

	require.NoError(t, registrar.EnableInputBlockingForChannel("keyboard"))

	assert.Equal(t, []string{"keyboard"}, registration.blocking)
}

func TestRegistrarManager_OneRegistrarPerRegistration(t *testing.T) {
	manager := NewRegistrarManager(WithLogger(zap.NewNop()))

	first := newFakeRegistration()
	second := newFakeRegistration()

	before := manager.RegistrarFor(first)
	assert.Same(t, before, manager.RegistrarFor(first))
	assert.NotSame(t, before, manager.RegistrarFor(second))

	manager.Reset()
	assert.NotSame(t, before, manager.RegistrarFor(first))
}
