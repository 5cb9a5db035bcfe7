package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/repomd/vaultproc/pkg/types"
)

// Output file names
const (
	FilePosts        = "posts.json"
	FileMedia        = "media.json"
	FileSlugMap      = "posts-slug-map.json"
	FilePathMap      = "posts-path-map.json"
	FileMediaPathMap = "media-path-map.json"
	FileIssues       = "issues.json"
	FileSimilarity   = "posts-similarity.json"
)

type output struct {
	name  string
	value any
}

// writeOutputs writes every output file. Each file is independent: a failed
// write is recorded and the rest are still attempted. The issue report goes
// last so it includes those failures.
func (r *run) writeOutputs() error {
	res := r.result
	outputs := []output{
		{FilePosts, res.Documents},
		{FileMedia, res.Media},
		{FileSlugMap, res.SlugMap},
		{FilePathMap, res.PathMap},
		{FileMediaPathMap, res.MediaPathMap},
	}
	if res.Similarity != nil {
		outputs = append(outputs, output{FileSimilarity, res.Similarity})
	}

	var errs []error
	for _, o := range outputs {
		if err := writeJSON(r.cfg.OutputDir, o.name, o.value); err != nil {
			r.collector.Error(types.CategoryFileAccess, moduleOutput, o.name,
				fmt.Sprintf("failed to write %s: %v", o.name, err), nil)
			errs = append(errs, fmt.Errorf("%s: %w", o.name, err))
			continue
		}
		res.Files = append(res.Files, o.name)
	}

	if err := r.finish(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrOutputWrite, errors.Join(errs...))
	}
	r.logger.Debug("outputs written", zap.Strings("files", res.Files))
	return nil
}

// writeJSON writes v as indented JSON through a temp file, so readers
// never see a partial output
func writeJSON(dir, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".tmp-"+name+"-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
