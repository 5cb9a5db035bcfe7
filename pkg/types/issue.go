package types

import "time"

// Severity of a processing issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Category classifies a processing issue
type Category string

const (
	CategoryBrokenLink           Category = "broken-link"
	CategoryMissingMedia         Category = "missing-media"
	CategoryMediaProcessingError Category = "media-processing-error"
	CategorySlugConflict         Category = "slug-conflict"
	CategoryEmbeddingError       Category = "embedding-error"
	CategoryDatabaseError        Category = "database-error"
	CategoryPluginError          Category = "plugin-error"
	CategoryParseError           Category = "parse-error"
	CategoryFileAccess           Category = "file-access"
	CategoryConfiguration        Category = "configuration"
	CategoryOther                Category = "other"
)

// ProcessingIssue is a single diagnostic record
type ProcessingIssue struct {
	Severity  Severity       `json:"severity"`
	Category  Category       `json:"category"`
	Module    string         `json:"module"`
	FilePath  string         `json:"filePath,omitempty"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// IssueSummary aggregates issue counts
type IssueSummary struct {
	Total         int              `json:"total"`
	BySeverity    map[Severity]int `json:"bySeverity"`
	ByCategory    map[Category]int `json:"byCategory"`
	ByModule      map[string]int   `json:"byModule"`
	FilesAffected int              `json:"filesAffected"`
}

// IssueReport is the finalized issue list of a run
type IssueReport struct {
	RunID       string            `json:"runId"`
	GeneratedAt time.Time         `json:"generatedAt"`
	Issues      []ProcessingIssue `json:"issues"`
	Summary     IssueSummary      `json:"summary"`
}

// Count returns the number of issues matching a category
func (r *IssueReport) Count(category Category) int {
	if r == nil {
		return 0
	}
	return r.Summary.ByCategory[category]
}

// HasErrors reports whether any error-severity issue was recorded
func (r *IssueReport) HasErrors() bool {
	return r != nil && r.Summary.BySeverity[SeverityError] > 0
}
