package domain

// SchemaType defines the type of the source API schema.
type SchemaType string

const (
	SchemaTypeOpenAPI SchemaType = "openapi"
)

// APISchema represents a fetched API schema before conversion into tools.
type APISchema struct {
	// Source is the location the schema was requested from (file path or URL).
	Source string
	// ResolvedSource is where it was actually read from, after auto-discovery.
	ResolvedSource string
	Type           SchemaType
	RawData        []byte
	// ParsedData holds the library-specific parsed document (*openapi3.T for OpenAPI).
	// Kept as any so the domain stays free of parser imports.
	ParsedData any
}
