// Package issues accumulates diagnostic records for a processing run.
package issues

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/repomd/vaultproc/pkg/types"
)

// Recorder is implemented by both the run-wide Collector and per-item Buffers
type Recorder interface {
	Add(issue types.ProcessingIssue)
	Error(category types.Category, module, filePath, message string, context map[string]any)
	Warning(category types.Category, module, filePath, message string, context map[string]any)
	Info(category types.Category, module, filePath, message string, context map[string]any)
}

// Collector is the append-only issue list for one run. Safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	runID  string
	issues []types.ProcessingIssue
	logger *zap.Logger
	now    func() time.Time
}

// NewCollector creates a collector for runID. A nil logger discards output.
func NewCollector(runID string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		runID:  runID,
		logger: logger.Named("issues"),
		now:    time.Now,
	}
}

// RunID returns the run identifier stamped on the report
func (c *Collector) RunID() string {
	return c.runID
}

// Add appends an issue, stamping the timestamp when unset
func (c *Collector) Add(issue types.ProcessingIssue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(issue)
}

func (c *Collector) appendLocked(issue types.ProcessingIssue) {
	if issue.Timestamp.IsZero() {
		issue.Timestamp = c.now()
	}
	c.issues = append(c.issues, issue)
	c.log(issue)
}

func (c *Collector) log(issue types.ProcessingIssue) {
	fields := []zap.Field{
		zap.String("category", string(issue.Category)),
		zap.String("module", issue.Module),
	}
	if issue.FilePath != "" {
		fields = append(fields, zap.String("file", issue.FilePath))
	}
	switch issue.Severity {
	case types.SeverityError:
		c.logger.Error(issue.Message, fields...)
	case types.SeverityWarning:
		c.logger.Warn(issue.Message, fields...)
	default:
		c.logger.Info(issue.Message, fields...)
	}
}

func (c *Collector) Error(category types.Category, module, filePath, message string, context map[string]any) {
	c.Add(newIssue(types.SeverityError, category, module, filePath, message, context))
}

func (c *Collector) Warning(category types.Category, module, filePath, message string, context map[string]any) {
	c.Add(newIssue(types.SeverityWarning, category, module, filePath, message, context))
}

func (c *Collector) Info(category types.Category, module, filePath, message string, context map[string]any) {
	c.Add(newIssue(types.SeverityInfo, category, module, filePath, message, context))
}

// Merge appends buffered issues in argument order. Nil buffers are skipped.
func (c *Collector) Merge(buffers ...*Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range buffers {
		if b == nil {
			continue
		}
		for _, issue := range b.issues {
			c.appendLocked(issue)
		}
	}
}

// Len returns the number of recorded issues
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.issues)
}

// Issues returns a copy of the recorded issues
func (c *Collector) Issues() []types.ProcessingIssue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.ProcessingIssue, len(c.issues))
	copy(out, c.issues)
	return out
}

// Report finalizes the current issue list with a computed summary.
// It can be called more than once; each call reflects all issues so far.
func (c *Collector) Report() *types.IssueReport {
	list := c.Issues()
	return &types.IssueReport{
		RunID:       c.runID,
		GeneratedAt: c.now(),
		Issues:      list,
		Summary:     Summarize(list),
	}
}

// Summarize counts issues by severity, category and module
func Summarize(list []types.ProcessingIssue) types.IssueSummary {
	summary := types.IssueSummary{
		Total:      len(list),
		BySeverity: make(map[types.Severity]int),
		ByCategory: make(map[types.Category]int),
		ByModule:   make(map[string]int),
	}
	files := make(map[string]struct{})
	for _, issue := range list {
		summary.BySeverity[issue.Severity]++
		summary.ByCategory[issue.Category]++
		if issue.Module != "" {
			summary.ByModule[issue.Module]++
		}
		if issue.FilePath != "" {
			files[issue.FilePath] = struct{}{}
		}
	}
	summary.FilesAffected = len(files)
	return summary
}

// Buffer holds the issues of a single work item until they are merged into
// the Collector. A Buffer is owned by one goroutine.
type Buffer struct {
	issues []types.ProcessingIssue
}

// NewBuffer returns an empty buffer
func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Add(issue types.ProcessingIssue) {
	if issue.Timestamp.IsZero() {
		issue.Timestamp = time.Now()
	}
	b.issues = append(b.issues, issue)
}

func (b *Buffer) Error(category types.Category, module, filePath, message string, context map[string]any) {
	b.Add(newIssue(types.SeverityError, category, module, filePath, message, context))
}

func (b *Buffer) Warning(category types.Category, module, filePath, message string, context map[string]any) {
	b.Add(newIssue(types.SeverityWarning, category, module, filePath, message, context))
}

func (b *Buffer) Info(category types.Category, module, filePath, message string, context map[string]any) {
	b.Add(newIssue(types.SeverityInfo, category, module, filePath, message, context))
}

// Len returns the number of buffered issues
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.issues)
}

func newIssue(severity types.Severity, category types.Category, module, filePath, message string, context map[string]any) types.ProcessingIssue {
	return types.ProcessingIssue{
		Severity: severity,
		Category: category,
		Module:   module,
		FilePath: filePath,
		Message:  message,
		Context:  context,
	}
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = (*Buffer)(nil)
)
