package media

import (
	"path"
	"strings"
)

// Naming derives output paths. Paths are relative to the output directory
// and always use forward slashes.
type Naming struct {
	Dir        string
	HashNaming bool
	Sharding   bool
}

// Primary returns the path of the main output for a source file
func (n Naming) Primary(relPath, hash, ext string) string {
	return n.build(relPath, "", hash, "", ext)
}

// Variant returns the path of a size variant
func (n Naming) Variant(relPath, hash, suffix, ext string) string {
	return n.build(relPath, "", hash, suffix, ext)
}

// build derives an output path. stem, when set, replaces the file name
// without extension in original-name mode.
func (n Naming) build(relPath, stem, hash, suffix, ext string) string {
	dir := n.Dir
	if dir == "" {
		dir = DefaultDir
	}
	ext = strings.TrimPrefix(ext, ".")

	if n.HashNaming && hash != "" {
		stem = hash
		if n.Sharding && len(hash) >= 2 {
			dir = path.Join(dir, hash[:2])
		}
	} else {
		rel := path.Clean(relPath)
		if stem == "" {
			stem = strings.TrimSuffix(path.Base(rel), path.Ext(rel))
		}
		if d := path.Dir(rel); d != "." {
			dir = path.Join(dir, d)
		}
	}

	if suffix != "" {
		stem += "-" + suffix
	}
	if ext != "" {
		stem += "." + ext
	}
	return path.Join(dir, stem)
}
