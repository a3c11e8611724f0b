package vectorindex

import (
	"database/sql"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	idx, err := Open(db, 3, MetricCosine)
	require.NoError(t, err)
	return idx
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.Upsert(&records.Vector{ID: "v1", Values: []float32{1, 2}})
	require.Error(t, err)
	kind, _ := memerr.Of(err)
	require.Equal(t, memerr.KindValidation, kind)
}

func TestUpsertAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Upsert(&records.Vector{ID: "close", Values: []float32{1, 0, 0}}))
	require.NoError(t, idx.Upsert(&records.Vector{ID: "far", Values: []float32{0, 1, 0}}))

	results, err := idx.Search([]float32{1, 0, 0}, SearchParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "close", results[0].Vector.ID)
	require.Less(t, results[0].Score, results[1].Score)
}

func TestUpsertReplacesExisting(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Upsert(&records.Vector{ID: "v1", Values: []float32{1, 0, 0}}))
	require.NoError(t, idx.Upsert(&records.Vector{ID: "v1", Values: []float32{0, 0, 1}}))

	got, err := idx.Get("v1")
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0, 1}, got.Values)
}
