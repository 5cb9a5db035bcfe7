package processor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/repomd/vaultproc/internal/document"
	"github.com/repomd/vaultproc/internal/issues"
	"github.com/repomd/vaultproc/pkg/types"
)

// file is one discovered vault file
type file struct {
	// rel is vault-relative with forward slashes
	rel string
	abs string
}

// inventory is the walk result in lexicographic path order
type inventory struct {
	documents []file
	media     []file
}

// discover walks the input directory. Entries are visited in lexical order,
// which fixes slug assignment and issue order for a given vault. Only an
// unreadable root is fatal; unreadable entries below it become issues.
func (p *Processor) discover(rec issues.Recorder) (*inventory, error) {
	root, err := filepath.Abs(p.cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInputUnreadable, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInputUnreadable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", types.ErrInputUnreadable, root)
	}

	outDir, _ := filepath.Abs(p.cfg.OutputDir)
	ignore := make(map[string]bool, len(p.cfg.Ignore))
	for _, name := range p.cfg.Ignore {
		ignore[name] = true
	}

	inv := &inventory{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			rel := relPath(root, path)
			rec.Error(types.CategoryFileAccess, moduleName, rel, fmt.Sprintf("cannot read %s: %v", rel, err), nil)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") || ignore[name] || path == outDir {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || ignore[name] || !d.Type().IsRegular() {
			return nil
		}

		f := file{rel: relPath(root, path), abs: path}
		if document.IsDocument(name) {
			inv.documents = append(inv.documents, f)
		} else {
			inv.media = append(inv.media, f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInputUnreadable, err)
	}
	return inv, nil
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
