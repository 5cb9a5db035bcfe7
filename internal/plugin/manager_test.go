package plugin_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repomd/vaultproc/internal/issues"
	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/internal/plugin/plugintest"
	"github.com/repomd/vaultproc/pkg/types"
)

func newContext() (*plugin.Context, *issues.Collector) {
	c := issues.NewCollector("test", nil)
	return plugin.NewContext("out", nil, c), c
}

func TestManager_InitializesAll(t *testing.T) {
	pc, col := newContext()
	text := plugintest.NewTextEmbedder(8)
	db := plugintest.NewDatabase()

	m := plugin.NewManager(plugin.Set{TextEmbedder: text, Database: db}, nil, pc)
	require.NoError(t, m.Initialize(context.Background()))

	active := m.Active()
	assert.NotNil(t, active.TextEmbedder)
	assert.NotNil(t, active.Database)
	assert.Equal(t, 2, active.Len())
	assert.Equal(t, 0, col.Len())

	got, ok := pc.TextEmbedder()
	assert.True(t, ok)
	assert.Equal(t, "fake-text", got.Name())
}

func TestManager_DependenciesInitializeFirst(t *testing.T) {
	pc, _ := newContext()
	text := plugintest.NewTextEmbedder(8)
	db := plugintest.NewDatabase()
	db.Deps = []plugin.Dependency{{Capability: plugin.CapabilityTextEmbedder}}

	m := plugin.NewManager(plugin.Set{TextEmbedder: text, Database: db}, nil, pc)
	require.NoError(t, m.Initialize(context.Background()))

	assert.Equal(t, []plugin.Capability{plugin.CapabilityTextEmbedder, plugin.CapabilityDatabase}, m.Order())
	assert.Contains(t, db.Seen, plugin.CapabilityTextEmbedder)
	assert.Empty(t, text.Seen)
}

func TestManager_DependencyOrderOverridesCanonicalOrder(t *testing.T) {
	pc, _ := newContext()
	// image-processor sorts first canonically but depends on the database
	proc := &imageProcessor{}
	proc.PluginName = "proc"
	proc.Deps = []plugin.Dependency{{Capability: plugin.CapabilityDatabase}}
	db := plugintest.NewDatabase()

	m := plugin.NewManager(plugin.Set{ImageProcessor: proc, Database: db}, nil, pc)
	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, []plugin.Capability{plugin.CapabilityDatabase, plugin.CapabilityImageProcessor}, m.Order())
}

func TestManager_MissingDependencyDisablesOptionalPlugin(t *testing.T) {
	pc, col := newContext()
	db := plugintest.NewDatabase()
	db.Deps = []plugin.Dependency{{Capability: plugin.CapabilityTextEmbedder}}

	m := plugin.NewManager(plugin.Set{Database: db}, nil, pc)
	require.NoError(t, m.Initialize(context.Background()))

	assert.Nil(t, m.Active().Database)
	assert.Equal(t, int32(0), db.InitCount.Load())

	report := col.Report()
	require.Equal(t, 1, report.Count(types.CategoryPluginError))
	assert.Equal(t, types.SeverityWarning, report.Issues[0].Severity)
}

func TestManager_OptionalDependencyMayBeAbsent(t *testing.T) {
	pc, col := newContext()
	db := plugintest.NewDatabase()
	db.Deps = []plugin.Dependency{{Capability: plugin.CapabilityTextEmbedder, Optional: true}}

	m := plugin.NewManager(plugin.Set{Database: db}, nil, pc)
	require.NoError(t, m.Initialize(context.Background()))
	assert.NotNil(t, m.Active().Database)
	assert.Equal(t, 0, col.Len())
}

func TestManager_MissingDependencyFatalWhenRequired(t *testing.T) {
	pc, col := newContext()
	db := plugintest.NewDatabase()
	db.Deps = []plugin.Dependency{{Capability: plugin.CapabilityTextEmbedder}}

	m := plugin.NewManager(plugin.Set{Database: db}, []plugin.Capability{plugin.CapabilityDatabase}, pc)
	err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPluginRequired)
	assert.True(t, col.Report().HasErrors())
}

func TestManager_InitFailure(t *testing.T) {
	t.Run("optional", func(t *testing.T) {
		pc, col := newContext()
		text := plugintest.NewTextEmbedder(8)
		text.InitErr = errors.New("model not found")

		m := plugin.NewManager(plugin.Set{TextEmbedder: text}, nil, pc)
		require.NoError(t, m.Initialize(context.Background()))
		assert.Nil(t, m.Active().TextEmbedder)
		assert.Equal(t, 1, col.Report().Count(types.CategoryPluginError))

		_, ok := pc.TextEmbedder()
		assert.False(t, ok)
	})

	t.Run("required", func(t *testing.T) {
		pc, _ := newContext()
		text := plugintest.NewTextEmbedder(8)
		text.InitErr = errors.New("model not found")

		m := plugin.NewManager(plugin.Set{TextEmbedder: text}, []plugin.Capability{plugin.CapabilityTextEmbedder}, pc)
		err := m.Initialize(context.Background())
		assert.ErrorIs(t, err, types.ErrPluginRequired)
		assert.ErrorIs(t, err, text.InitErr)
	})
}

func TestManager_NotReadyIsDisabled(t *testing.T) {
	pc, col := newContext()
	text := plugintest.NewTextEmbedder(8)
	text.NotReady = true

	m := plugin.NewManager(plugin.Set{TextEmbedder: text}, nil, pc)
	require.NoError(t, m.Initialize(context.Background()))
	assert.Nil(t, m.Active().TextEmbedder)
	assert.Equal(t, 1, col.Len())
}

func TestManager_RequiredButNotConfigured(t *testing.T) {
	pc, _ := newContext()
	m := plugin.NewManager(plugin.Set{}, []plugin.Capability{plugin.CapabilityDatabase}, pc)
	assert.ErrorIs(t, m.Initialize(context.Background()), types.ErrPluginRequired)
}

func TestManager_Cycle(t *testing.T) {
	pc, col := newContext()
	text := plugintest.NewTextEmbedder(8)
	text.Deps = []plugin.Dependency{{Capability: plugin.CapabilityDatabase}}
	db := plugintest.NewDatabase()
	db.Deps = []plugin.Dependency{{Capability: plugin.CapabilityTextEmbedder}}
	sim := &plugintest.Similarity{}
	sim.PluginName = "sim"

	m := plugin.NewManager(plugin.Set{TextEmbedder: text, Database: db, Similarity: sim}, nil, pc)
	require.NoError(t, m.Initialize(context.Background()))

	assert.Equal(t, []plugin.Capability{plugin.CapabilitySimilarity}, m.Order())
	assert.Equal(t, 2, col.Report().Count(types.CategoryPluginError))

	pc2, _ := newContext()
	m2 := plugin.NewManager(plugin.Set{TextEmbedder: text, Database: db}, []plugin.Capability{plugin.CapabilityDatabase}, pc2)
	err := m2.Initialize(context.Background())
	assert.ErrorIs(t, err, plugin.ErrDependencyCycle)
}

func TestManager_DisposeReverseOrder(t *testing.T) {
	pc, _ := newContext()
	text := plugintest.NewTextEmbedder(8)
	db := plugintest.NewDatabase()
	db.DisposeErr = errors.New("close failed")

	m := plugin.NewManager(plugin.Set{TextEmbedder: text, Database: db}, nil, pc)
	require.NoError(t, m.Initialize(context.Background()))

	err := m.Dispose()
	assert.ErrorIs(t, err, db.DisposeErr)
	assert.True(t, text.Disposed.Load())
	assert.True(t, db.Disposed.Load())
	active := m.Active()
	assert.Equal(t, 0, active.Len())

	_, ok := pc.Lookup(plugin.CapabilityDatabase)
	assert.False(t, ok)
}

func TestManager_CancelledContext(t *testing.T) {
	pc, _ := newContext()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := plugin.NewManager(plugin.Set{TextEmbedder: plugintest.NewTextEmbedder(4)}, nil, pc)
	assert.ErrorIs(t, m.Initialize(ctx), context.Canceled)
}

func TestCapability_Valid(t *testing.T) {
	assert.True(t, plugin.CapabilityDatabase.Valid())
	assert.False(t, plugin.Capability("renderer").Valid())
}

type imageProcessor struct {
	plugintest.Base
}

func (p *imageProcessor) CanProcess(string) bool { return true }

func (p *imageProcessor) Metadata(context.Context, string) (plugin.ImageInfo, error) {
	return plugin.ImageInfo{}, nil
}

func (p *imageProcessor) Process(context.Context, string, string, plugin.ProcessOptions) (plugin.ImageInfo, error) {
	return plugin.ImageInfo{}, nil
}

func (p *imageProcessor) Copy(context.Context, string, string) error { return nil }
