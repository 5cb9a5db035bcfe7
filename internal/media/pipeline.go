package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/identity"
	"github.com/repomd/vaultproc/internal/plugin"
	"github.com/repomd/vaultproc/pkg/types"
)

// Config controls media output
type Config struct {
	OutputDir string
	Naming    Naming
	Format    string
	Quality   int
	Sizes     []SizeSpec
}

// Input is one discovered media file
type Input struct {
	// Path is vault-relative with forward slashes
	Path    string
	AbsPath string
	// Stem overrides the output file name in original-name mode; set by
	// Reserve when the natural name is taken
	Stem string
}

// Collision records a source whose natural output path was already taken
// by an earlier source
type Collision struct {
	Path       string
	Owner      string
	OutputPath string
}

// Outcome is the result of processing one file
type Outcome struct {
	Media    types.ProcessedMedia
	CacheHit bool
	Copied   bool
}

// Pipeline processes media files. Safe for concurrent use when the image
// processor is.
type Pipeline struct {
	cfg    Config
	proc   plugin.ImageProcessor
	cache  *types.CacheContext
	logger *zap.Logger
}

// NewPipeline creates a pipeline. proc may be nil, in which case every file
// is copied verbatim; cache may be nil.
func NewPipeline(cfg Config, proc plugin.ImageProcessor, cache *types.CacheContext, logger *zap.Logger) *Pipeline {
	if cfg.Format == "" {
		cfg.Format = "jpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, proc: proc, cache: cache, logger: logger.Named("media")}
}

// ProcessFile hashes, then transcodes or copies one file. Any error means
// the file produced no output record.
func (p *Pipeline) ProcessFile(ctx context.Context, in Input) (Outcome, error) {
	digest, err := identity.HashFile(in.AbsPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("hash %s: %w", in.Path, err)
	}

	m := types.ProcessedMedia{
		OriginalPath: in.Path,
		FileName:     path.Base(in.Path),
		Type:         Classify(in.Path),
		Metadata: types.MediaMetadata{
			OriginalSize: digest.Size,
			Hash:         digest.Hash,
		},
	}

	if p.transcodes(in) {
		expected := p.primary(in, digest.Hash)

		if cached, ok := p.cache.LookupMedia(digest.Hash); ok && cached.OutputPath == expected {
			m.OutputPath = cached.OutputPath
			m.Metadata.Width = cached.Width
			m.Metadata.Height = cached.Height
			m.Metadata.Format = cached.Format
			m.Metadata.Size = cached.Size
			m.Sizes = cached.Sizes
			p.logger.Debug("media cache hit", zap.String("path", in.Path), zap.String("hash", digest.Hash))
			return Outcome{Media: m, CacheHit: true}, nil
		}

		if err := p.transcode(ctx, in, expected, &m); err != nil {
			return Outcome{}, err
		}
		return Outcome{Media: m}, nil
	}

	ext := sourceExt(in.Path)
	m.OutputPath = p.primary(in, digest.Hash)
	if err := p.copy(ctx, in.AbsPath, p.abs(m.OutputPath)); err != nil {
		return Outcome{}, fmt.Errorf("copy %s: %w", in.Path, err)
	}
	m.Metadata.Format = ext
	m.Metadata.Size = digest.Size
	return Outcome{Media: m, Copied: true}, nil
}

// Reserve assigns output names in the order given, which must be traversal
// order. In original-name mode two sources can map to one output, such as
// photo.png and photo.gif both becoming photo.jpg. The first keeps the name;
// each later one gets its source extension folded into the stem
// (photo.gif.jpg), then a numeric suffix if that is taken too. Hash naming
// never collides, since equal names mean equal bytes.
func (p *Pipeline) Reserve(inputs []Input) []Collision {
	if p.cfg.Naming.HashNaming {
		return nil
	}
	owners := make(map[string]string, len(inputs))
	var collisions []Collision
	for i := range inputs {
		in := &inputs[i]
		natural := p.primary(*in, "")
		key := strings.ToLower(natural)
		owner, taken := owners[key]
		if !taken {
			owners[key] = in.Path
			continue
		}

		base := path.Base(in.Path)
		for n := 1; ; n++ {
			in.Stem = base
			if n > 1 {
				in.Stem = fmt.Sprintf("%s-%d", base, n)
			}
			key = strings.ToLower(p.primary(*in, ""))
			if _, used := owners[key]; !used {
				break
			}
		}
		owners[key] = in.Path
		collisions = append(collisions, Collision{Path: in.Path, Owner: owner, OutputPath: p.primary(*in, "")})
	}
	return collisions
}

func (p *Pipeline) transcodes(in Input) bool {
	return p.proc != nil && p.proc.Ready() && p.proc.CanProcess(in.AbsPath)
}

func (p *Pipeline) primary(in Input, hash string) string {
	ext := sourceExt(in.Path)
	if p.transcodes(in) {
		ext = FormatExtension(p.cfg.Format)
	}
	return p.cfg.Naming.build(in.Path, in.Stem, hash, "", ext)
}

func sourceExt(p string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
}

func (p *Pipeline) transcode(ctx context.Context, in Input, primary string, m *types.ProcessedMedia) error {
	// header check, so a file that is not a decodable image writes nothing
	if _, err := p.proc.Metadata(ctx, in.AbsPath); err != nil {
		return fmt.Errorf("read %s: %w", in.Path, err)
	}

	opts := plugin.ProcessOptions{Format: p.cfg.Format, Quality: p.cfg.Quality}
	info, err := p.proc.Process(ctx, in.AbsPath, p.abs(primary), opts)
	if err != nil {
		return fmt.Errorf("transcode %s: %w", in.Path, err)
	}

	m.OutputPath = primary
	m.Metadata.Width = info.Width
	m.Metadata.Height = info.Height
	m.Metadata.Format = info.Format
	m.Metadata.Size = info.Size

	ext := FormatExtension(p.cfg.Format)
	for _, spec := range PlanVariants(info.Width, p.cfg.Sizes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := p.cfg.Naming.build(in.Path, in.Stem, m.Metadata.Hash, spec.Suffix, ext)
		vopts := opts
		vopts.MaxWidth, vopts.MaxHeight = spec.Width, spec.Height
		vinfo, err := p.proc.Process(ctx, in.AbsPath, p.abs(out), vopts)
		if err != nil {
			return fmt.Errorf("variant %s of %s: %w", spec.Suffix, in.Path, err)
		}
		m.Sizes = append(m.Sizes, types.SizeVariant{
			Suffix:     spec.Suffix,
			OutputPath: out,
			Width:      vinfo.Width,
			Height:     vinfo.Height,
			Size:       vinfo.Size,
		})
	}
	return nil
}

func (p *Pipeline) copy(ctx context.Context, src, dst string) error {
	if p.proc != nil && p.proc.Ready() {
		return p.proc.Copy(ctx, src, dst)
	}
	return copyFile(src, dst)
}

func (p *Pipeline) abs(rel string) string {
	return filepath.Join(p.cfg.OutputDir, filepath.FromSlash(rel))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
