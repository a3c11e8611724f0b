// Package registry implements the relationship-type catalog: a
// thread-safe map guarded by a sync.RWMutex with an optional persistence
// backend that mirrors registrations to the store kernel. Readers proceed
// concurrently and writers exclude both, but the lock is not
// reader-preferring: once a writer is waiting, new readers block.
package registry

import (
	"strings"
	"sync"

	"github.com/derekparker/trie/v3"

	"github.com/kittclouds/memoria/internal/memerr"
	"github.com/kittclouds/memoria/internal/records"
)

// Storage is the optional persistence backend internal/kernel satisfies.
type Storage interface {
	SaveRelationshipType(t *records.RelationshipTypeDef) error
	DeleteRelationshipType(name string) error
	LoadAllRelationshipTypes() ([]*records.RelationshipTypeDef, error)
}

// RelationshipCounter lets the registry ask the kernel whether a type is
// in use before allowing deletion.
type RelationshipCounter interface {
	CountRelationshipsByType(relType string) (int, error)
}

// Registry is a thread-safe, process-wide catalog of relationship types.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]*records.RelationshipTypeDef
	trie     *trie.Trie[struct{}]
	storage  Storage
	counter  RelationshipCounter
	nowMilli func() int64
}

// New creates an empty registry without persistence.
func New(counter RelationshipCounter, now func() int64) *Registry {
	return &Registry{
		types:    make(map[string]*records.RelationshipTypeDef),
		trie:     trie.New[struct{}](),
		counter:  counter,
		nowMilli: now,
	}
}

// WithStorage attaches a persistence backend mirroring registrations to
// the store kernel.
func (r *Registry) WithStorage(s Storage) *Registry {
	r.storage = s
	return r
}

// LoadFromStorage populates the registry from the persistence backend, if
// one is configured, returning the number of entries loaded.
func (r *Registry) LoadFromStorage() (int, error) {
	if r.storage == nil {
		return 0, nil
	}
	defs, err := r.storage.LoadAllRelationshipTypes()
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs {
		r.types[def.Name] = def
		r.trie.Add(def.Name, struct{}{})
	}
	return len(defs), nil
}

func validTypeName(name string) error {
	if strings.TrimSpace(name) == "" {
		return memerr.InvalidTypeName("type name cannot be empty")
	}
	for _, c := range name {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			return memerr.InvalidTypeName("type name can only contain alphanumeric characters, hyphens, and underscores")
		}
	}
	return nil
}

// NewDef builds a fresh RelationshipTypeDef with defaults.
func NewDef(name string, now int64) (*records.RelationshipTypeDef, error) {
	if err := validTypeName(name); err != nil {
		return nil, err
	}
	return &records.RelationshipTypeDef{Name: name, Version: 1, CreatedAt: now}, nil
}

// Register adds a new relationship type. Re-registering an existing name
// fails with TypeAlreadyExists.
func (r *Registry) Register(def *records.RelationshipTypeDef) error {
	if err := validTypeName(def.Name); err != nil {
		return err
	}
	if def.Inverse != nil && strings.TrimSpace(*def.Inverse) == "" {
		return memerr.InvalidTypeName("inverse type name cannot be empty")
	}
	if len(def.MetadataSchema) > 0 {
		if err := validateSchemaDocument(def.MetadataSchema); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if _, exists := r.types[def.Name]; exists {
		r.mu.Unlock()
		return memerr.TypeAlreadyExists(def.Name)
	}
	cp := *def
	r.types[def.Name] = &cp
	r.trie.Add(def.Name, struct{}{})
	r.mu.Unlock()

	if r.storage != nil {
		return r.storage.SaveRelationshipType(&cp)
	}
	return nil
}

// Get returns the definition for name, or (nil, false).
func (r *Registry) Get(name string) (*records.RelationshipTypeDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[name]
	if !ok {
		return nil, false
	}
	cp := *def
	return &cp, true
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

// List returns every registered type definition.
func (r *Registry) List() []*records.RelationshipTypeDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*records.RelationshipTypeDef, 0, len(r.types))
	for _, def := range r.types {
		cp := *def
		out = append(out, &cp)
	}
	return out
}

// ListByPrefix returns registered type names starting with prefix, used
// for autocomplete-style lookups.
func (r *Registry) ListByPrefix(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trie.PrefixSearch(prefix)
}

// Count returns the number of registered types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Update replaces an existing type definition; the name must already be
// registered.
func (r *Registry) Update(def *records.RelationshipTypeDef) error {
	if len(def.MetadataSchema) > 0 {
		if err := validateSchemaDocument(def.MetadataSchema); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if _, exists := r.types[def.Name]; !exists {
		r.mu.Unlock()
		return memerr.TypeNotFound(def.Name)
	}
	cp := *def
	r.types[def.Name] = &cp
	r.mu.Unlock()

	if r.storage != nil {
		return r.storage.SaveRelationshipType(&cp)
	}
	return nil
}

// Delete removes a relationship type, rejecting the deletion with
// TypeInUse if any relationship currently uses it.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	if _, exists := r.types[name]; !exists {
		r.mu.Unlock()
		return memerr.TypeNotFound(name)
	}
	r.mu.Unlock()

	if r.counter != nil {
		n, err := r.counter.CountRelationshipsByType(name)
		if err != nil {
			return err
		}
		if n > 0 {
			return memerr.TypeInUse(name)
		}
	}

	r.mu.Lock()
	delete(r.types, name)
	r.trie.Remove(name)
	r.mu.Unlock()

	if r.storage != nil {
		return r.storage.DeleteRelationshipType(name)
	}
	return nil
}

// Clear removes every registered type without consulting storage or
// usage counts.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = make(map[string]*records.RelationshipTypeDef)
	r.trie = trie.New[struct{}]()
}

// commonType is a seed entry for SeedCommonTypes.
type commonType struct {
	name      string
	symmetric bool
	inverse   string
	category  string
}

var commonTypes = []commonType{
	{name: "friendship", symmetric: true, category: "social"},
	{name: "rivalry", category: "competitive"},
	{name: "professional", category: "work"},
	{name: "mentorship", inverse: "mentee", category: "learning"},
	{name: "family", symmetric: true, category: "kinship"},
	{name: "romance", symmetric: true, category: "intimate"},
	{name: "antagonistic", category: "hostile"},
	{name: "neutral", symmetric: true, category: "neutral"},
	{name: "alliance", symmetric: true, category: "collaborative"},
	{name: "competition", category: "competitive"},
}

// SeedCommonTypes registers a stock set of social-graph relationship
// types, skipping any that already exist rather than erroring.
func (r *Registry) SeedCommonTypes(now int64) error {
	for _, ct := range commonTypes {
		def, err := NewDef(ct.name, now)
		if err != nil {
			return err
		}
		def.Symmetric = ct.symmetric
		if ct.inverse != "" {
			inv := ct.inverse
			def.Inverse = &inv
		}
		def.CustomMetadata = []byte(`{"category":"` + ct.category + `"}`)
		// re-seeding is idempotent; ignore TypeAlreadyExists
		if err := r.Register(def); err != nil {
			if kind, _ := memerr.Of(err); kind != memerr.KindTypeAlreadyExists {
				return err
			}
		}
	}
	return nil
}
