// Package vectorindex implements fixed-dimension vector storage and k-NN
// search, backed by sqlite-vec's vec0 virtual table.
package vectorindex

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"

	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

// Metric selects the distance function used for k-NN ranking.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dot"
	MetricManhattan  Metric = "manhattan"
)

// Index wraps a fixed-dimension vector table. The dimension is chosen once
// at Open and immutable for the store's life.
type Index struct {
	mu           sync.RWMutex
	db           *sql.DB
	dimension    int
	metric       Metric
	nativeMetric string // vec0's compiled-in distance_metric ("cosine" or "l2")
}

// Open creates (idempotently) the vec0 virtual table sized for dimension,
// sharing the caller's *sql.DB handle (the kernel's).
func Open(db *sql.DB, dimension int, metric Metric) (*Index, error) {
	if dimension <= 0 {
		return nil, memerr.Validation("dimension", "embedding dimension must be positive")
	}
	if metric == "" {
		metric = MetricCosine
	}

	nativeMetric := "cosine"
	switch metric {
	case MetricEuclidean:
		nativeMetric = "l2"
	case MetricCosine, MetricDotProduct, MetricManhattan:
		nativeMetric = "cosine"
	}

	stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_items USING vec0(
		id TEXT PRIMARY KEY,
		embedding FLOAT[%d] distance_metric=%s
	)`, dimension, nativeMetric)
	if _, err := db.Exec(stmt); err != nil {
		return nil, memerr.Storage(fmt.Errorf("vector index bootstrap: %w", err))
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS vec_meta (
		id TEXT PRIMARY KEY,
		source_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	)`); err != nil {
		return nil, memerr.Storage(fmt.Errorf("vector metadata bootstrap: %w", err))
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_vec_meta_source ON vec_meta(source_id)`); err != nil {
		return nil, memerr.Storage(err)
	}

	return &Index{db: db, dimension: dimension, metric: metric, nativeMetric: nativeMetric}, nil
}

// isNative reports whether metric is the one vec0's KNN operator computes
// internally for this table (the table was compiled with exactly one
// distance_metric at Open time; DotProduct/Manhattan have no vec0
// counterpart and always fall back to the in-Go scan).
func (idx *Index) isNative(metric Metric) bool {
	switch metric {
	case MetricCosine:
		return idx.nativeMetric == "cosine"
	case MetricEuclidean:
		return idx.nativeMetric == "l2"
	default:
		return false
	}
}

func (idx *Index) Dimension() int { return idx.dimension }

func encodeVector(v []float32) ([]byte, error) {
	return json.Marshal(v)
}

// Upsert replaces any existing vector with the same id without disturbing
// any surrounding memory/entity metadata.
func (idx *Index) Upsert(v *records.Vector) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(v.Values) != idx.dimension {
		return memerr.Validation("vector", fmt.Sprintf("expected dimension %d, got %d", idx.dimension, len(v.Values)))
	}
	v.Dimension = idx.dimension

	enc, err := encodeVector(v.Values)
	if err != nil {
		return memerr.Storage(err)
	}

	if _, err := idx.db.Exec(`DELETE FROM vec_items WHERE id = ?`, v.ID); err != nil {
		return memerr.Query(err)
	}
	if _, err := idx.db.Exec(`INSERT INTO vec_items (id, embedding) VALUES (?, ?)`, v.ID, string(enc)); err != nil {
		return memerr.Query(err)
	}

	var sourceID any
	if v.SourceID != nil {
		sourceID = *v.SourceID
	}
	if v.CreatedAt == 0 {
		v.CreatedAt = nowMillis()
	}
	_, err = idx.db.Exec(`
		INSERT INTO vec_meta (id, source_id, metadata, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET source_id=excluded.source_id, metadata=excluded.metadata
	`, v.ID, sourceID, jsonOrEmpty(v.Metadata), v.CreatedAt)
	if err != nil {
		return memerr.Query(err)
	}
	return nil
}

func (idx *Index) Delete(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := idx.db.Exec(`DELETE FROM vec_items WHERE id = ?`, id); err != nil {
		return memerr.Query(err)
	}
	if _, err := idx.db.Exec(`DELETE FROM vec_meta WHERE id = ?`, id); err != nil {
		return memerr.Query(err)
	}
	return nil
}

func (idx *Index) Get(id string) (*records.Vector, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var raw string
	err := idx.db.QueryRow(`SELECT embedding FROM vec_items WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFound("vector", id)
	}
	if err != nil {
		return nil, memerr.Query(err)
	}
	var values []float32
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, memerr.Storage(err)
	}

	v := &records.Vector{ID: id, Values: values, Dimension: idx.dimension}
	var sourceID sql.NullString
	var metadata string
	var createdAt int64
	err = idx.db.QueryRow(`SELECT source_id, metadata, created_at FROM vec_meta WHERE id = ?`, id).
		Scan(&sourceID, &metadata, &createdAt)
	if err == nil {
		if sourceID.Valid {
			s := sourceID.String
			v.SourceID = &s
		}
		if metadata != "" {
			v.Metadata = []byte(metadata)
		}
		v.CreatedAt = createdAt
	}
	return v, nil
}

// SearchParams configures k-NN search.
type SearchParams struct {
	Limit          int
	Threshold      *float64 // max distance, or min similarity for Cosine
	MetadataFilter []records.PropertyEQ
	Metric         Metric // override, defaults to the index's metric
}

// ScoredVector pairs a vector with its distance/similarity score.
type ScoredVector struct {
	Vector *records.Vector
	Score  float64 // distance for distance metrics; ascending = better
}

// Search returns the nearest neighbours to query, sorted ascending by
// distance with id as a deterministic tie-breaker. When the requested
// metric is the one the vec0 table was compiled for, a native KNN query (`embedding MATCH ? AND k = ?`) does the
// ranking inside SQLite; any other metric, an unbounded result set
// (Limit <= 0), or a metadata filter (which vec0 cannot evaluate inside
// the KNN operator) falls back to an in-Go scan over every stored vector.
func (idx *Index) Search(query []float32, params SearchParams) ([]ScoredVector, error) {
	if len(query) != idx.dimension {
		return nil, memerr.Validation("query", fmt.Sprintf("expected dimension %d, got %d", idx.dimension, len(query)))
	}
	metric := params.Metric
	if metric == "" {
		metric = idx.metric
	}

	if params.Limit > 0 && len(params.MetadataFilter) == 0 && idx.isNative(metric) {
		all, err := idx.nativeKNN(query, params.Limit)
		if err != nil {
			return nil, err
		}
		if params.Threshold != nil {
			all = applyThreshold(all, metric, *params.Threshold)
		}
		return all, nil
	}

	all, err := idx.scanAll(query, metric, params.MetadataFilter)
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score < all[j].Score
		}
		return all[i].Vector.ID < all[j].Vector.ID
	})

	if params.Threshold != nil {
		all = applyThreshold(all, metric, *params.Threshold)
	}
	if params.Limit > 0 && len(all) > params.Limit {
		all = all[:params.Limit]
	}
	return all, nil
}

// nativeKNN issues a vec0 MATCH query, letting the virtual table's
// compiled-in distance metric do the ranking and top-k selection,
// ascending distance with id as tie-breaker.
func (idx *Index) nativeKNN(query []float32, k int) ([]ScoredVector, error) {
	enc, err := encodeVector(query)
	if err != nil {
		return nil, memerr.Storage(err)
	}

	idx.mu.RLock()
	rows, err := idx.db.Query(`
		SELECT knn.id, knn.embedding, knn.distance, vm.source_id, vm.metadata, vm.created_at
		FROM (
			SELECT id, embedding, distance FROM vec_items
			WHERE embedding MATCH ? AND k = ?
		) knn
		LEFT JOIN vec_meta vm ON vm.id = knn.id
		ORDER BY knn.distance, knn.id
	`, string(enc), k)
	idx.mu.RUnlock()
	if err != nil {
		return nil, memerr.Query(err)
	}
	defer rows.Close()

	var out []ScoredVector
	for rows.Next() {
		var id string
		var raw string
		var dist float64
		var sourceID sql.NullString
		var metadata sql.NullString
		var createdAt sql.NullInt64
		if err := rows.Scan(&id, &raw, &dist, &sourceID, &metadata, &createdAt); err != nil {
			return nil, memerr.Query(err)
		}
		var values []float32
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			continue
		}
		v := &records.Vector{ID: id, Values: values, Dimension: idx.dimension, CreatedAt: createdAt.Int64}
		if sourceID.Valid {
			s := sourceID.String
			v.SourceID = &s
		}
		if metadata.Valid {
			v.Metadata = []byte(metadata.String)
		}
		out = append(out, ScoredVector{Vector: v, Score: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, memerr.Query(err)
	}
	return out, nil
}

// scanAll computes metric by hand against every stored vector, used for
// non-native metrics and whenever a metadata filter must be applied before
// ranking.
func (idx *Index) scanAll(query []float32, metric Metric, metadataFilter []records.PropertyEQ) ([]ScoredVector, error) {
	idx.mu.RLock()
	rows, err := idx.db.Query(`SELECT vi.id, vi.embedding, vm.source_id, vm.metadata, vm.created_at
		FROM vec_items vi LEFT JOIN vec_meta vm ON vm.id = vi.id`)
	idx.mu.RUnlock()
	if err != nil {
		return nil, memerr.Query(err)
	}
	defer rows.Close()

	var all []ScoredVector
	for rows.Next() {
		var id string
		var raw string
		var sourceID sql.NullString
		var metadata sql.NullString
		var createdAt sql.NullInt64
		if err := rows.Scan(&id, &raw, &sourceID, &metadata, &createdAt); err != nil {
			return nil, memerr.Query(err)
		}
		var values []float32
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			continue
		}

		v := &records.Vector{ID: id, Values: values, Dimension: idx.dimension, CreatedAt: createdAt.Int64}
		if sourceID.Valid {
			s := sourceID.String
			v.SourceID = &s
		}
		if metadata.Valid {
			v.Metadata = []byte(metadata.String)
		}
		if !matchesMetadata(metadata.String, metadataFilter) {
			continue
		}

		all = append(all, ScoredVector{Vector: v, Score: distance(metric, query, values)})
	}
	if err := rows.Err(); err != nil {
		return nil, memerr.Query(err)
	}
	return all, nil
}

// applyThreshold drops results that don't clear threshold, interpreting it
// as a maximum distance for distance metrics or a minimum similarity for
// Cosine.
func applyThreshold(all []ScoredVector, metric Metric, threshold float64) []ScoredVector {
	filtered := all[:0]
	for _, sv := range all {
		if metric == MetricCosine && passesSimilarityThreshold(sv.Score, threshold) {
			filtered = append(filtered, sv)
		} else if metric != MetricCosine && sv.Score <= threshold {
			filtered = append(filtered, sv)
		}
	}
	return filtered
}

// passesSimilarityThreshold interprets threshold as a minimum similarity
// for cosine distance (1 - distance = similarity).
func passesSimilarityThreshold(cosineDistance, threshold float64) bool {
	return (1 - cosineDistance) >= threshold
}

func distance(metric Metric, a, b []float32) float64 {
	switch metric {
	case MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	case MetricDotProduct:
		var sum float64
		for i := range a {
			sum += float64(a[i]) * float64(b[i])
		}
		return -sum // higher dot product = closer, so negate for ascending sort
	case MetricManhattan:
		var sum float64
		for i := range a {
			sum += math.Abs(float64(a[i] - b[i]))
		}
		return sum
	default: // Cosine
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 1
		}
		cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
		return 1 - cos
	}
}

func matchesMetadata(raw string, filter []records.PropertyEQ) bool {
	if len(filter) == 0 {
		return true
	}
	if raw == "" {
		return false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return false
	}
	for _, f := range filter {
		v, ok := lookupPath(m, f.Path)
		if !ok || fmt.Sprintf("%v", v) != fmt.Sprintf("%v", f.Value) {
			return false
		}
	}
	return true
}

func lookupPath(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func jsonOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
