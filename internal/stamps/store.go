// Package stamps holds the reference stamp library the detector matches
// against.
//
// A Store is built once by Load and never mutated afterwards, so any number
// of detections can read it concurrently without locking. Reloading builds a
// new Store; the detector swaps the pointer.
package stamps

import (
	"image"
	"sort"
	"time"

	"github.com/ironsheep/stamp-detector/internal/imaging"
)

// VariantKind labels the perturbation a variant was built with.
type VariantKind string

const (
	VariantBase VariantKind = "base"
	VariantBlur VariantKind = "blur"
	VariantJPEG VariantKind = "jpeg"
	VariantGray VariantKind = "gray"
)

// Variant is one feature triplet of a stamp.
type Variant struct {
	Kind     VariantKind
	Features imaging.FeatureTriplet
}

// Reference is a loaded stamp. Variants always starts with the base variant.
type Reference struct {
	Name     string
	Path     string
	Base     *image.NRGBA
	Variants []Variant

	// Gray is the base image on the SSIM grid, precomputed for refinement.
	Gray []float64
}

// Primary returns the unperturbed feature triplet.
func (r *Reference) Primary() imaging.FeatureTriplet {
	return r.Variants[0].Features
}

// VariantKinds lists the kinds in variant order.
func (r *Reference) VariantKinds() []string {
	out := make([]string, len(r.Variants))
	for i, v := range r.Variants {
		out[i] = string(v.Kind)
	}
	return out
}

// Store is an immutable snapshot of the stamp library.
type Store struct {
	dir      string
	refs     []*Reference
	byName   map[string]*Reference
	loadedAt time.Time
}

// Empty returns a store with no references for dir.
func Empty(dir string) *Store {
	return NewStore(dir, nil)
}

// NewStore assembles a store from already built references.
func NewStore(dir string, refs []*Reference) *Store {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	byName := make(map[string]*Reference, len(refs))
	for _, r := range refs {
		byName[r.Name] = r
	}
	return &Store{dir: dir, refs: refs, byName: byName, loadedAt: time.Now()}
}

// Dir is the directory the store was loaded from.
func (s *Store) Dir() string { return s.dir }

// LoadedAt is when the store was built.
func (s *Store) LoadedAt() time.Time { return s.loadedAt }

// Len returns the number of references.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.refs)
}

// References returns the references sorted by name. The slice is shared;
// callers must not modify it.
func (s *Store) References() []*Reference {
	if s == nil {
		return nil
	}
	return s.refs
}

// Get looks a reference up by file name.
func (s *Store) Get(name string) (*Reference, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.byName[name]
	return r, ok
}
