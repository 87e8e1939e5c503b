package rag

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/54b3r/tdsqa-go/internal/index"
)

// Scoring selects the similarity function used by [Search].
type Scoring int

const (
	// ScoreCosine divides the dot product by both magnitudes. A zero-magnitude
	// vector scores 0.
	ScoreCosine Scoring = iota
	// ScoreDot uses the raw dot product, for stores of pre-normalised vectors.
	ScoreDot
)

// String returns the configuration name of s.
func (s Scoring) String() string {
	if s == ScoreDot {
		return "dot"
	}
	return "cosine"
}

// ParseScoring maps a configuration value to a Scoring. The empty string
// selects cosine.
func ParseScoring(s string) (Scoring, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return ScoreCosine, nil
	case "dot":
		return ScoreDot, nil
	default:
		return ScoreCosine, fmt.Errorf("rag: unknown scoring %q (want cosine or dot)", s)
	}
}

// Search scores query against every record in store and returns up to topK
// results in descending score order. Equal scores keep store order. Records
// whose file and content repeat an already selected record are skipped, and
// selection continues down the ranking.
//
// A nil or empty store or a non-positive topK yields an empty result.
func Search(store *index.Store, query []float32, topK int, scoring Scoring) ([]Result, error) {
	if store == nil || store.Len() == 0 || topK <= 0 {
		return []Result{}, nil
	}
	n := store.Len()
	if len(query) != store.Dimension() {
		return nil, fmt.Errorf("%w: query has %d dimensions, store has %d",
			ErrDimensionMismatch, len(query), store.Dimension())
	}

	var qnorm float64
	for _, x := range query {
		qnorm += float64(x) * float64(x)
	}
	qnorm = math.Sqrt(qnorm)

	scored := make([]Result, n)
	for i := range n {
		dot := dotProduct(query, store.Vector(i))
		score := dot
		if scoring == ScoreCosine {
			den := qnorm * store.Norm(i)
			if den == 0 {
				score = 0
			} else {
				score = dot / den
			}
		}
		scored[i] = Result{Score: score, Index: i, Metadata: store.Metadata(i)}
	}

	slices.SortStableFunc(scored, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})

	return Distinct(scored, topK), nil
}

// Distinct returns up to topK results from ranked, skipping any whose file
// and content repeat an earlier result. Order is preserved.
func Distinct(ranked []Result, topK int) []Result {
	if topK <= 0 {
		return []Result{}
	}
	type key struct{ file, content string }
	seen := make(map[key]struct{}, topK)
	out := make([]Result, 0, min(topK, len(ranked)))
	for _, r := range ranked {
		if len(out) == topK {
			break
		}
		k := key{r.Metadata.File, r.Metadata.Content}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// MemorySearcher adapts [Search] to the [Searcher] interface.
type MemorySearcher struct {
	store   *index.Store
	scoring Scoring
}

// NewMemorySearcher returns a Searcher over store.
func NewMemorySearcher(store *index.Store, scoring Scoring) *MemorySearcher {
	return &MemorySearcher{store: store, scoring: scoring}
}

// Search implements [Searcher].
func (m *MemorySearcher) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Search(m.store, query, topK, m.scoring)
}

// Store returns the underlying store.
func (m *MemorySearcher) Store() *index.Store { return m.store }

// Ping reports whether the searcher has records to serve.
func (m *MemorySearcher) Ping(_ context.Context) error {
	if m.store == nil || m.store.Len() == 0 {
		return fmt.Errorf("rag: index is empty")
	}
	return nil
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
