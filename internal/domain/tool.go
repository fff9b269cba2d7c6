package domain

import (
	"encoding/json"
	"slices"
)

// ParameterLocation is where an operation parameter travels in the HTTP request.
// Values mirror the OpenAPI "in" field.
type ParameterLocation string

const (
	ParameterInPath   ParameterLocation = "path"
	ParameterInQuery  ParameterLocation = "query"
	ParameterInHeader ParameterLocation = "header"
)

// BodyArgument is the reserved argument key holding the request body payload.
const BodyArgument = "requestBody"

// ParameterDescriptor describes a single operation parameter.
type ParameterDescriptor struct {
	Name     string            `json:"name"`
	In       ParameterLocation `json:"in"`
	Required bool              `json:"required,omitempty"`
}

// ToolDescriptor represents a callable tool derived 1:1 from an OpenAPI operation.
// It is built once by the OpenAPI loader and never mutated afterwards.
type ToolDescriptor struct {
	// Name MUST be unique within the registry.
	Name string `json:"name"`

	// Description is passed through to MCP clients unchanged.
	Description string `json:"description,omitempty"`

	// Method is the upper-case HTTP verb (e.g. "GET", "POST").
	Method string `json:"method"`

	// PathTemplate is the operation path with "{name}" or ":name" placeholders.
	PathTemplate string `json:"pathTemplate"`

	// Parameters are kept in declaration order; binding walks them in this order.
	Parameters []ParameterDescriptor `json:"parameters,omitempty"`

	// InputSchema is the JSON Schema of the tool arguments, opaque to the core.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Clone returns a deep copy so holders of the copy cannot affect the original.
func (t ToolDescriptor) Clone() ToolDescriptor {
	c := t
	c.Parameters = slices.Clone(t.Parameters)
	if t.InputSchema != nil {
		c.InputSchema = slices.Clone(t.InputSchema)
	}
	return c
}

// ToolCallArguments is the flat argument mapping supplied with a tool call.
// The BodyArgument key, when present, holds the request body.
type ToolCallArguments map[string]any
