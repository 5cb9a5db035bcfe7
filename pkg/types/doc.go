// Package types provides the shared data model for the vault processor.
//
// These are the records the processor produces and the structures callers
// hand to it. Everything here serialises to the stable JSON output contract
// written by the processor's output stage.
//
// # Core Types
//
// ProcessedDocument is one record per included text document:
//
//	doc := types.ProcessedDocument{
//	    Hash:  "9f86d0...",  // SHA-256 of the raw file bytes
//	    Slug:  "getting-started",
//	    Title: "Getting Started",
//	}
//
// ProcessedMedia is one record per media file. Its Metadata.Hash is computed
// over the original bytes and doubles as the cache key:
//
//	media := types.ProcessedMedia{
//	    OriginalPath: "images/banner.png",
//	    OutputPath:   "_media/9f/9f86d0....jpg",
//	    Type:         types.MediaTypeImage,
//	}
//
// # Cache Context
//
// CacheContext is a read-only snapshot of previously computed media metadata
// and embeddings keyed by content hash. The processor consults it to skip
// transcoding and inference; it never writes to it.
//
// # Issues
//
// ProcessingIssue records a recoverable problem. Issues are collected per run
// and summarised into an IssueReport:
//
//	issue := types.ProcessingIssue{
//	    Severity: types.SeverityWarning,
//	    Category: types.CategoryBrokenLink,
//	    Module:   "document",
//	    FilePath: "notes/a.md",
//	    Message:  "link target not found: missing-page",
//	}
package types
