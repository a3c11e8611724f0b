package records

// PropertyEQ is an arbitrary JSON-property equality clause, evaluated via
// json_extract in SQL (see internal/kernel). There is no in-Go fallback:
// a path json_extract cannot express is not supported.
type PropertyEQ struct {
	Path  string
	Value any
}

// MemoryFilter composes optional clauses ANDed together when listing
// memories; zero-valued clauses are skipped.
type MemoryFilter struct {
	IDs             []string
	ContentContains string
	MemoryType      *MemoryType
	TagsContainAny  []string
	CreatedBefore   *int64
	CreatedAfter    *int64
	Properties      []PropertyEQ
}

// EntityFilter composes the optional clauses for entities.
type EntityFilter struct {
	IDs           []string
	EntityType    *string
	CreatedBefore *int64
	CreatedAfter  *int64
	Properties    []PropertyEQ
}

// RelationshipFilter composes the optional clauses for relationships.
type RelationshipFilter struct {
	IDs              []string
	SourceID         *string
	TargetID         *string
	RelationshipType *string
	CreatedBefore    *int64
	CreatedAfter     *int64
	Properties       []PropertyEQ
}

// VectorFilter composes the optional clauses for vectors.
type VectorFilter struct {
	IDs      []string
	SourceID *string
	Metadata []PropertyEQ
}
