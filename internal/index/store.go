package index

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Store is the merged, read-only view over one or more indexes. It is
// immutable after construction and safe for concurrent use without locking.
type Store struct {
	model   string
	dim     int
	vectors [][]float32
	norms   []float64
	meta    []Metadata
	sources []string
}

// LoadOptions controls how [Load] treats unusable artifacts.
type LoadOptions struct {
	// AllowPartial skips missing or corrupt artifacts with a warning instead
	// of failing. The load still fails when nothing usable remains or when
	// usable artifacts disagree on dimension or model.
	AllowPartial bool
	// Logger receives skip warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewStore concatenates ixs in order. Every non-empty index must share one
// dimension and, where recorded, one embedding model.
func NewStore(ixs ...*Index) (*Store, error) {
	s := &Store{}
	for i, ix := range ixs {
		if ix == nil {
			continue
		}
		if err := s.add(ix, fmt.Sprintf("index#%d", i)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load reads every artifact in paths and concatenates them in load order.
func Load(paths []string, opts *LoadOptions) (*Store, error) {
	if opts == nil {
		opts = &LoadOptions{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Store{}
	var skipped []error
	for _, p := range paths {
		ix, err := Read(p)
		if err != nil {
			if !opts.AllowPartial {
				return nil, err
			}
			log.Warn("index: skipping unusable artifact",
				slog.String("path", p),
				slog.Any("error", err),
			)
			skipped = append(skipped, err)
			continue
		}
		if err := s.add(ix, p); err != nil {
			return nil, err
		}
		log.Info("index: loaded artifact",
			slog.String("path", p),
			slog.Int("records", ix.Len()),
			slog.Int("dimension", ix.Dimension),
			slog.String("model", ix.Model),
		)
	}

	if len(s.sources) == 0 && len(skipped) > 0 {
		return nil, fmt.Errorf("index: no usable artifacts: %w", errors.Join(skipped...))
	}
	return s, nil
}

// Merge returns a new store holding the records of every input in order.
// Inputs are not modified.
func Merge(stores ...*Store) (*Store, error) {
	out := &Store{}
	for _, in := range stores {
		if in == nil {
			continue
		}
		if err := out.checkCompatible(in.model, in.dim, in.Len(), "merged store"); err != nil {
			return nil, err
		}
		out.vectors = append(out.vectors, in.vectors...)
		out.norms = append(out.norms, in.norms...)
		out.meta = append(out.meta, in.meta...)
		out.sources = append(out.sources, in.sources...)
	}
	return out, nil
}

func (s *Store) add(ix *Index, source string) error {
	if err := ix.Validate(); err != nil {
		return fmt.Errorf("index: %s: %w", source, err)
	}
	if err := s.checkCompatible(ix.Model, ix.Dimension, ix.Len(), source); err != nil {
		return err
	}
	for _, v := range ix.Vectors {
		s.norms = append(s.norms, norm(v))
	}
	s.vectors = append(s.vectors, ix.Vectors...)
	s.meta = append(s.meta, ix.Metadata...)
	s.sources = append(s.sources, source)
	return nil
}

// checkCompatible adopts dim and model from the first non-empty input and
// rejects later inputs that disagree.
func (s *Store) checkCompatible(model string, dim, n int, source string) error {
	if n == 0 {
		return nil
	}
	if s.dim == 0 {
		s.dim = dim
	} else if dim != s.dim {
		return fmt.Errorf("%w: %s has dimension %d, store has %d", ErrDimensionMismatch, source, dim, s.dim)
	}
	if model == "" {
		return nil
	}
	if s.model == "" {
		s.model = model
	} else if model != s.model {
		return fmt.Errorf("%w: %s was built with %q, store uses %q", ErrModelMismatch, source, model, s.model)
	}
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.vectors) }

// Dimension returns the shared vector length, or zero for an empty store.
func (s *Store) Dimension() int { return s.dim }

// Model returns the embedding model recorded by the loaded artifacts.
func (s *Store) Model() string { return s.model }

// Sources lists the artifacts that contributed records, in load order.
func (s *Store) Sources() []string { return append([]string(nil), s.sources...) }

// Vector returns the i-th vector. The slice must not be modified.
func (s *Store) Vector(i int) []float32 { return s.vectors[i] }

// Norm returns the Euclidean length of the i-th vector.
func (s *Store) Norm(i int) float64 { return s.norms[i] }

// Metadata returns the i-th metadata record.
func (s *Store) Metadata(i int) Metadata { return s.meta[i] }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
