package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/memoria/internal/memerr"
)

type fakeCounter struct{ counts map[string]int }

func (f *fakeCounter) CountRelationshipsByType(relType string) (int, error) {
	return f.counts[relType], nil
}

func newTestRegistry() *Registry {
	return New(&fakeCounter{counts: map[string]int{}}, func() int64 { return 1000 })
}

func TestRegisterNewType(t *testing.T) {
	r := newTestRegistry()
	def, err := NewDef("custom_type", 1000)
	require.NoError(t, err)
	require.NoError(t, r.Register(def))
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := newTestRegistry()
	def, err := NewDef("custom_type", 1000)
	require.NoError(t, err)
	require.NoError(t, r.Register(def))

	dup, err := NewDef("custom_type", 1000)
	require.NoError(t, err)
	err = r.Register(dup)
	require.Error(t, err)
	kind, ok := memerr.Of(err)
	require.True(t, ok)
	require.Equal(t, memerr.KindTypeAlreadyExists, kind)
}

func TestGetType(t *testing.T) {
	r := newTestRegistry()
	def, _ := NewDef("custom_type", 1000)
	require.NoError(t, r.Register(def))

	got, ok := r.Get("custom_type")
	require.True(t, ok)
	require.Equal(t, "custom_type", got.Name)
}

func TestGetNonexistent(t *testing.T) {
	r := newTestRegistry()
	_, ok := r.Get("nonexistent")
	require.False(t, ok)
}

func TestListTypes(t *testing.T) {
	r := newTestRegistry()
	d1, _ := NewDef("type1", 1000)
	d2, _ := NewDef("type2", 1000)
	require.NoError(t, r.Register(d1))
	require.NoError(t, r.Register(d2))
	require.Len(t, r.List(), 2)
}

func TestDeleteType(t *testing.T) {
	r := newTestRegistry()
	def, _ := NewDef("custom_type", 1000)
	require.NoError(t, r.Register(def))
	require.True(t, r.Exists("custom_type"))

	require.NoError(t, r.Delete("custom_type"))
	require.False(t, r.Exists("custom_type"))
}

func TestDeleteNonexistentFails(t *testing.T) {
	r := newTestRegistry()
	err := r.Delete("nonexistent")
	require.Error(t, err)
	kind, _ := memerr.Of(err)
	require.Equal(t, memerr.KindTypeNotFound, kind)
}

// TestDeleteInUseFails checks that a type with live relationships cannot
// be deleted.
func TestDeleteInUseFails(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int{"knows": 2}}
	r := New(counter, func() int64 { return 1000 })
	def, _ := NewDef("knows", 1000)
	require.NoError(t, r.Register(def))

	err := r.Delete("knows")
	require.Error(t, err)
	kind, _ := memerr.Of(err)
	require.Equal(t, memerr.KindTypeInUse, kind)
}

func TestUpdateType(t *testing.T) {
	r := newTestRegistry()
	def, _ := NewDef("custom_type", 1000)
	require.NoError(t, r.Register(def))

	def.Symmetric = true
	require.NoError(t, r.Update(def))

	got, _ := r.Get("custom_type")
	require.True(t, got.Symmetric)
}

func TestSeedCommonTypes(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.SeedCommonTypes(1000))

	_, ok := r.Get("friendship")
	require.True(t, ok)
	_, ok = r.Get("rivalry")
	require.True(t, ok)
}

func TestInvalidTypeNameEmpty(t *testing.T) {
	_, err := NewDef("", 1000)
	require.Error(t, err)
}

func TestInvalidTypeNameSpecialChars(t *testing.T) {
	_, err := NewDef("type@invalid", 1000)
	require.Error(t, err)
}

func TestCount(t *testing.T) {
	r := newTestRegistry()
	require.Equal(t, 0, r.Count())

	def, _ := NewDef("type1", 1000)
	require.NoError(t, r.Register(def))
	require.Equal(t, 1, r.Count())
}

func TestListByPrefix(t *testing.T) {
	r := newTestRegistry()
	d1, _ := NewDef("mentorship", 1000)
	d2, _ := NewDef("mentee", 1000)
	d3, _ := NewDef("family", 1000)
	require.NoError(t, r.Register(d1))
	require.NoError(t, r.Register(d2))
	require.NoError(t, r.Register(d3))

	names := r.ListByPrefix("ment")
	require.ElementsMatch(t, []string{"mentorship", "mentee"}, names)
}

func TestClear(t *testing.T) {
	r := newTestRegistry()
	def, _ := NewDef("type1", 1000)
	require.NoError(t, r.Register(def))
	r.Clear()
	require.Equal(t, 0, r.Count())
}

func TestRegisterRejectsSchemaOutsideSubset(t *testing.T) {
	r := newTestRegistry()
	def, _ := NewDef("custom_type", 1000)
	def.MetadataSchema = []byte(`{"type": "string", "pattern": "^[a-z]+$"}`)

	err := r.Register(def)
	require.Error(t, err)
	kind, _ := memerr.Of(err)
	require.Equal(t, memerr.KindInvalidSchema, kind)
}

func TestValidatePropertiesAgainstSchema(t *testing.T) {
	schema, err := CompileMetadataSchema([]byte(`{"type":"object","required":["strength"],"properties":{"strength":{"type":"integer","minimum":0,"maximum":10}}}`))
	require.NoError(t, err)

	require.NoError(t, ValidateProperties(schema, []byte(`{"strength":5}`)))

	err = ValidateProperties(schema, []byte(`{"strength":20}`))
	require.Error(t, err)
	kind, _ := memerr.Of(err)
	require.Equal(t, memerr.KindValidation, kind)
}
