package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/tdsqa-go/internal/index"
)

// upsertBatchSize bounds the number of points sent per Upsert RPC.
const upsertBatchSize = 256

// searchOverfetch multiplies topK when querying so that duplicate passages
// can be dropped without shortening the result.
const searchOverfetch = 2

// ErrScoringMismatch is returned when a collection's distance does not match
// the configured scoring.
var ErrScoringMismatch = errors.New("rag: collection distance does not match scoring")

// pointNamespace seeds the deterministic point IDs so republishing the same
// passage overwrites its previous point.
var pointNamespace = uuid.MustParse("6f1c2f7e-3b0a-4d55-9a57-2b8f3c1e9d40")

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use (default: tdsqa).
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection. Required only when the collection must be created.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Scoring selects the collection distance: cosine or dot.
	Scoring Scoring
}

// QdrantStore mirrors a built index into Qdrant and serves searches from it.
// It satisfies Searcher.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore connects to Qdrant. When cfg.VectorSize is set the target
// collection is created if it does not already exist.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "tdsqa"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if cfg.VectorSize > 0 {
		if err := store.ensureCollection(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: distanceFor(s.cfg.Scoring),
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Upsert publishes every record of ix as a point. Point IDs are derived from
// the record's file, position, type and content, so a rebuild replaces
// earlier points for the same passages.
func (s *QdrantStore) Upsert(ctx context.Context, ix *index.Index) error {
	if err := ix.Validate(); err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}

	wait := true
	for start := 0; start < ix.Len(); start += upsertBatchSize {
		end := min(start+upsertBatchSize, ix.Len())
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			meta := ix.Metadata[i]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(PointID(meta).String()),
				Vectors: qdrant.NewVectors(ix.Vectors[i]...),
				Payload: qdrant.NewValueMap(payload(meta, ix.Model)),
			})
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.cfg.Collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert batch at %d failed: %w", start, err)
		}
	}
	return nil
}

// Verify checks that the collection's distance matches the configured
// scoring and that its points were embedded with model. An empty collection,
// or an empty model, skips the model check.
func (s *QdrantStore) Verify(ctx context.Context, model string) error {
	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to read collection %q: %w", s.cfg.Collection, err)
	}
	got := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetDistance()
	if err := checkDistance(got, s.cfg.Scoring); err != nil {
		return err
	}
	if model == "" {
		return nil
	}

	one := uint32(1)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Limit:          &one,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to sample collection %q: %w", s.cfg.Collection, err)
	}
	if len(points) == 0 {
		return nil
	}
	return checkModel(points[0].GetPayload(), model)
}

// Search queries the collection and returns up to topK results, dropping
// passages whose file and content repeat a higher-ranked one. Index is -1 on
// every result.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}
	limit := uint64(topK * searchOverfetch) //nolint:gosec // topK is positive
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		results = append(results, Result{
			Metadata: metadataFromPayload(p.GetPayload()),
			Score:    float64(p.GetScore()),
			Index:    -1,
		})
	}
	return Distinct(results, topK), nil
}

// Client returns the underlying Qdrant client, for readiness probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// PointID returns the deterministic point ID for a passage.
func PointID(meta index.Metadata) uuid.UUID {
	key := meta.SourceDir + "\x00" + meta.File + "\x00" + string(meta.Type) + "\x00" +
		strconv.Itoa(meta.Position) + "\x00" + meta.Content
	return uuid.NewSHA1(pointNamespace, []byte(key))
}

func distanceFor(sc Scoring) qdrant.Distance {
	if sc == ScoreDot {
		return qdrant.Distance_Dot
	}
	return qdrant.Distance_Cosine
}

func checkDistance(got qdrant.Distance, sc Scoring) error {
	if want := distanceFor(sc); got != want {
		return fmt.Errorf("%w: collection uses %s, scoring is %s", ErrScoringMismatch, got, sc)
	}
	return nil
}

func checkModel(p map[string]*qdrant.Value, model string) error {
	v, ok := p["model"]
	if !ok || v.GetStringValue() == "" || v.GetStringValue() == model {
		return nil
	}
	return fmt.Errorf("%w: collection built with %q, queries embedded with %q",
		index.ErrModelMismatch, v.GetStringValue(), model)
}

func payload(meta index.Metadata, model string) map[string]any {
	p := map[string]any{
		"file":       meta.File,
		"type":       string(meta.Type),
		"content":    meta.Content,
		"source_dir": meta.SourceDir,
		"position":   int64(meta.Position),
	}
	if meta.URL != "" {
		p["url"] = meta.URL
	}
	if meta.Collection != "" {
		p["collection"] = meta.Collection
	}
	if meta.DocumentID != "" {
		p["document_id"] = meta.DocumentID
	}
	if model != "" {
		p["model"] = model
	}
	return p
}

func metadataFromPayload(p map[string]*qdrant.Value) index.Metadata {
	str := func(k string) string {
		if v, ok := p[k]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	meta := index.Metadata{
		File:       str("file"),
		Type:       index.Type(str("type")),
		Content:    str("content"),
		SourceDir:  str("source_dir"),
		URL:        str("url"),
		Collection: str("collection"),
		DocumentID: str("document_id"),
	}
	if v, ok := p["position"]; ok {
		meta.Position = int(v.GetIntegerValue())
	}
	return meta
}
