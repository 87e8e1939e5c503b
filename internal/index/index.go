// Package index defines the persisted retrieval index and the in-memory
// store that serves queries from one or more of them.
//
// An [Index] is a pair of parallel slices: Vectors[i] is the embedding of the
// passage described by Metadata[i]. Artifacts are written once by the index
// builder, published with an atomic rename, and never edited afterwards;
// a rebuild supersedes the previous file.
package index

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Callers test them with errors.Is.
var (
	// ErrNotFound reports a missing or unopenable artifact.
	ErrNotFound = errors.New("index: artifact not found")
	// ErrCorrupt reports an artifact that could not be decoded or that
	// violates the parallel-array invariant.
	ErrCorrupt = errors.New("index: artifact corrupt")
	// ErrDimensionMismatch reports vectors of differing length within one
	// artifact or across artifacts merged into one store.
	ErrDimensionMismatch = errors.New("index: embedding dimension mismatch")
	// ErrModelMismatch reports artifacts built with different embedding models.
	ErrModelMismatch = errors.New("index: embedding model mismatch")
)

// Type classifies what an embedded passage was derived from.
type Type string

const (
	// TypeText is a chunk of document text.
	TypeText Type = "text"
	// TypeImage is a caption generated for an image referenced by a document.
	TypeImage Type = "image"
)

// Metadata describes one embedded passage. URL is set only for passages whose
// source has a canonical web address (forum posts); course material leaves it
// empty.
type Metadata struct {
	// File is the base name of the source document file.
	File string `json:"file"`
	// Type is text or image.
	Type Type `json:"type"`
	// Content is the passage text that was embedded.
	Content string `json:"content"`
	// SourceDir is the directory the source document was read from.
	SourceDir string `json:"source_dir"`
	// URL is the canonical address of the source, when it has one.
	URL string `json:"url,omitempty"`
	// Collection is the origin collection, e.g. "discourse" or "course".
	Collection string `json:"collection,omitempty"`
	// DocumentID identifies the parent document.
	DocumentID string `json:"document_id,omitempty"`
	// Position is the chunk position within the parent document. Image
	// captions continue the numbering after the last text chunk.
	Position int `json:"position"`
}

// HasURL reports whether the passage carries a source link.
func (m Metadata) HasURL() bool { return m.URL != "" }

// Index is the persisted unit of retrieval.
type Index struct {
	// Model names the embedding model that produced Vectors.
	Model string
	// Dimension is the length of every vector.
	Dimension int
	// Vectors holds one embedding per record.
	Vectors [][]float32
	// Metadata holds one record per vector, in the same order.
	Metadata []Metadata
	// BuiltAt is when the builder produced the index.
	BuiltAt time.Time
	// BuilderVersion is the tdsqa version that wrote the artifact.
	BuilderVersion string
}

// Len returns the number of records.
func (ix *Index) Len() int { return len(ix.Vectors) }

// Validate checks the parallel-array invariant and that every vector has
// Dimension elements. An empty index with Dimension zero is valid.
func (ix *Index) Validate() error {
	if len(ix.Vectors) != len(ix.Metadata) {
		return fmt.Errorf("%w: %d vectors but %d metadata records", ErrCorrupt, len(ix.Vectors), len(ix.Metadata))
	}
	for i, v := range ix.Vectors {
		if len(v) != ix.Dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, index declares %d",
				ErrDimensionMismatch, i, len(v), ix.Dimension)
		}
	}
	if ix.Dimension <= 0 && len(ix.Vectors) > 0 {
		return fmt.Errorf("%w: non-empty index declares dimension %d", ErrCorrupt, ix.Dimension)
	}
	return nil
}

// Append adds one record, keeping Vectors and Metadata in lockstep. The first
// vector fixes Dimension for an empty index.
func (ix *Index) Append(vec []float32, meta Metadata) error {
	if ix.Dimension == 0 && len(ix.Vectors) == 0 {
		ix.Dimension = len(vec)
	}
	if len(vec) != ix.Dimension || len(vec) == 0 {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.Dimension)
	}
	ix.Vectors = append(ix.Vectors, vec)
	ix.Metadata = append(ix.Metadata, meta)
	return nil
}
