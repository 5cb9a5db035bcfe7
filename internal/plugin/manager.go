package plugin

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/repomd/vaultproc/pkg/types"
)

const moduleName = "plugin-manager"

// ErrDependencyCycle is returned when required plugins depend on each other
var ErrDependencyCycle = errors.New("plugin dependency cycle")

// Manager initializes a Set in dependency order and tracks which plugins
// ended up usable. One Manager serves one Processor.
type Manager struct {
	configured Set
	active     Set
	required   map[Capability]bool
	pc         *Context
	order      []Capability
	logger     *zap.Logger
}

// NewManager creates a manager for set. Capabilities in required make the
// run fail when their plugin cannot be initialized.
func NewManager(set Set, required []Capability, pc *Context) *Manager {
	req := make(map[Capability]bool, len(required))
	for _, c := range required {
		req[c] = true
	}
	return &Manager{
		configured: set,
		required:   req,
		pc:         pc,
		logger:     pc.Logger.Named("plugins"),
	}
}

// Initialize runs every plugin's Initialize in dependency order.
// Optional plugins that fail are disabled with a plugin-error issue;
// required ones abort with an error wrapping types.ErrPluginRequired.
func (m *Manager) Initialize(ctx context.Context) error {
	m.active = Set{}
	m.order = nil
	m.pc.reset()

	for c := range m.required {
		if _, ok := m.configured.Get(c); !ok {
			m.issue(c, "", fmt.Sprintf("required plugin %q is not configured", c))
			return fmt.Errorf("%w: %s not configured", types.ErrPluginRequired, c)
		}
	}

	order, cyclic := m.sortByDependencies()
	for _, c := range cyclic {
		p, _ := m.configured.Get(c)
		m.issue(c, p.Name(), fmt.Sprintf("plugin %s is part of a dependency cycle", p.Name()))
		if m.required[c] {
			return fmt.Errorf("%w: %s: %w", types.ErrPluginRequired, c, ErrDependencyCycle)
		}
	}

	for _, c := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.initializeOne(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) initializeOne(ctx context.Context, c Capability) error {
	p, _ := m.configured.Get(c)

	for _, dep := range dependenciesOf(p) {
		if dep.Optional {
			continue
		}
		if _, ok := m.active.Get(dep.Capability); ok {
			continue
		}
		m.issue(c, p.Name(), fmt.Sprintf("plugin %s disabled: missing dependency %s", p.Name(), dep.Capability))
		if m.required[c] {
			return fmt.Errorf("%w: %s needs %s", types.ErrPluginRequired, c, dep.Capability)
		}
		return nil
	}

	if err := p.Initialize(ctx, m.pc); err != nil {
		m.issue(c, p.Name(), fmt.Sprintf("plugin %s failed to initialize: %v", p.Name(), err))
		if m.required[c] {
			return fmt.Errorf("%w: %s: %w", types.ErrPluginRequired, c, err)
		}
		return nil
	}

	if !p.Ready() {
		m.issue(c, p.Name(), fmt.Sprintf("plugin %s is not ready after initialization", p.Name()))
		if m.required[c] {
			return fmt.Errorf("%w: %s not ready", types.ErrPluginRequired, c)
		}
		return nil
	}

	setSlot(&m.active, c, &m.configured)
	m.pc.register(c, &m.configured)
	m.order = append(m.order, c)
	m.logger.Debug("plugin initialized", zap.String("capability", string(c)), zap.String("name", p.Name()))
	return nil
}

// issue records a plugin-error. Required plugins get error severity.
func (m *Manager) issue(c Capability, name, message string) {
	if m.pc.Issues == nil {
		return
	}
	details := map[string]any{"capability": string(c)}
	if name != "" {
		details["plugin"] = name
	}
	if m.required[c] {
		m.pc.Issues.Error(types.CategoryPluginError, moduleName, "", message, details)
		return
	}
	m.pc.Issues.Warning(types.CategoryPluginError, moduleName, "", message, details)
}

// sortByDependencies returns configured capabilities with dependencies first.
// Ties keep canonical capability order. Capabilities left in a cycle are
// returned separately.
func (m *Manager) sortByDependencies() (order, cyclic []Capability) {
	present := m.configured.Present()
	inDegree := make(map[Capability]int, len(present))
	dependents := make(map[Capability][]Capability)
	for _, c := range present {
		inDegree[c] += 0
		p, _ := m.configured.Get(c)
		for _, dep := range dependenciesOf(p) {
			if _, ok := m.configured.Get(dep.Capability); !ok || dep.Capability == c {
				continue
			}
			inDegree[c]++
			dependents[dep.Capability] = append(dependents[dep.Capability], c)
		}
	}

	done := make(map[Capability]bool, len(present))
	for len(order) < len(present) {
		progressed := false
		for _, c := range present {
			if done[c] || inDegree[c] > 0 {
				continue
			}
			done[c] = true
			order = append(order, c)
			for _, d := range dependents[c] {
				inDegree[d]--
			}
			progressed = true
			break
		}
		if !progressed {
			break
		}
	}

	for _, c := range present {
		if !done[c] {
			cyclic = append(cyclic, c)
		}
	}
	return order, cyclic
}

// Active returns the plugins that initialized and reported ready
func (m *Manager) Active() Set {
	return m.active
}

// Order returns the initialization order of active plugins
func (m *Manager) Order() []Capability {
	out := make([]Capability, len(m.order))
	copy(out, m.order)
	return out
}

// Dispose releases active plugins in reverse initialization order
func (m *Manager) Dispose() error {
	var errs []error
	for i := len(m.order) - 1; i >= 0; i-- {
		c := m.order[i]
		p, ok := m.active.Get(c)
		if !ok {
			continue
		}
		if d, ok := p.(Disposer); ok {
			if err := d.Dispose(); err != nil {
				errs = append(errs, fmt.Errorf("dispose %s: %w", p.Name(), err))
			}
		}
	}
	m.active = Set{}
	m.order = nil
	m.pc.reset()
	return errors.Join(errs...)
}

func dependenciesOf(p Plugin) []Dependency {
	if d, ok := p.(Dependent); ok {
		return d.Dependencies()
	}
	return nil
}

func setSlot(dst *Set, c Capability, src *Set) {
	switch c {
	case CapabilityImageProcessor:
		dst.ImageProcessor = src.ImageProcessor
	case CapabilityImageEmbedder:
		dst.ImageEmbedder = src.ImageEmbedder
	case CapabilityTextEmbedder:
		dst.TextEmbedder = src.TextEmbedder
	case CapabilitySimilarity:
		dst.Similarity = src.Similarity
	case CapabilityDatabase:
		dst.Database = src.Database
	}
}
