package processor

import (
	"sync"

	"github.com/repomd/vaultproc/internal/issues"
	"github.com/repomd/vaultproc/pkg/types"
)

// recorder is the issues sink handed to plugins. Plugins keep it from
// Initialize, so it forwards to the collector of the current run.
type recorder struct {
	mu      sync.RWMutex
	current *issues.Collector
}

var _ issues.Recorder = (*recorder)(nil)

func (r *recorder) set(c *issues.Collector) {
	r.mu.Lock()
	r.current = c
	r.mu.Unlock()
}

func (r *recorder) collector() *issues.Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *recorder) Add(issue types.ProcessingIssue) {
	r.collector().Add(issue)
}

func (r *recorder) Error(category types.Category, module, filePath, message string, context map[string]any) {
	r.collector().Error(category, module, filePath, message, context)
}

func (r *recorder) Warning(category types.Category, module, filePath, message string, context map[string]any) {
	r.collector().Warning(category, module, filePath, message, context)
}

func (r *recorder) Info(category types.Category, module, filePath, message string, context map[string]any) {
	r.collector().Info(category, module, filePath, message, context)
}
