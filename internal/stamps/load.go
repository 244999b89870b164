package stamps

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ironsheep/stamp-detector/internal/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// stampExtensions are the file types picked up from the stamp directory.
var stampExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// Options controls how references are built.
type Options struct {
	MaxStamps    int
	MaxDimension int
	Workers      int

	// Robustness augmentation
	Robust      bool
	BlurSigma   float64
	JPEGQuality int
	Grayscale   bool
}

// DefaultOptions mirrors the stock configuration.
func DefaultOptions() Options {
	return Options{
		MaxStamps:    64,
		MaxDimension: imaging.DefaultMaxDimension,
		Workers:      4,
		Robust:       true,
		BlurSigma:    0.8,
		JPEGQuality:  60,
		Grayscale:    true,
	}
}

// Load builds a Store from the stamp images in dir.
//
// A missing directory yields an empty store and no error, so the detector
// degrades to "no stamps" at runtime. Files that fail to decode are logged
// and skipped. Other directory errors return an empty store together with
// the error.
func Load(ctx context.Context, dir string, opts Options) (*Store, error) {
	log := logrus.WithField("dir", dir)

	files, err := listStampFiles(dir, opts.MaxStamps)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("Stamp directory does not exist")
			return Empty(dir), nil
		}
		return Empty(dir), fmt.Errorf("failed to list stamps: %w", err)
	}
	log.WithField("count", len(files)).Info("Loading stamps")

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	refs := make([]*Reference, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			ref, err := buildReference(filepath.Join(dir, name), name, opts)
			if err != nil {
				log.WithError(err).WithField("stamp", name).Warn("Skipping stamp")
				return nil
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Empty(dir), err
	}

	loaded := refs[:0]
	for _, r := range refs {
		if r != nil {
			loaded = append(loaded, r)
		}
	}
	log.WithField("count", len(loaded)).Info("Loaded stamps")
	return NewStore(dir, loaded), nil
}

// listStampFiles returns up to limit stamp file names in dir, sorted.
func listStampFiles(dir string, limit int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if stampExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func buildReference(path, name string, opts Options) (*Reference, error) {
	raw, err := imaging.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	ref, err := NewReference(name, raw, opts)
	if err != nil {
		return nil, err
	}
	ref.Path = path
	return ref, nil
}

// NewReference normalizes img and builds its variants.
func NewReference(name string, img image.Image, opts Options) (*Reference, error) {
	base, err := imaging.ResizeNormalize(img, opts.MaxDimension)
	if err != nil {
		return nil, err
	}
	return &Reference{
		Name:     name,
		Base:     base,
		Variants: BuildVariants(base, opts),
		Gray:     imaging.GrayVector(base, imaging.SSIMSize),
	}, nil
}
