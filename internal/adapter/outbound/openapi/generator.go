package openapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/i2y/openapi-mcp/internal/domain"
	"github.com/i2y/openapi-mcp/internal/usecase"
)

// maxSchemaDepth bounds schema inlining for deeply nested or recursive components.
const maxSchemaDepth = 32

// maxToolNameLength is the MCP client limit on tool names.
const maxToolNameLength = 64

// methodOrder is the declaration order of operations inside an OpenAPI path item.
var methodOrder = []string{
	http.MethodGet,
	http.MethodPut,
	http.MethodPost,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodHead,
	http.MethodPatch,
	http.MethodTrace,
}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ToolGenerator implements the usecase.ToolGenerator interface for OpenAPI documents.
type ToolGenerator struct {
	logger *slog.Logger
}

var _ usecase.ToolGenerator = (*ToolGenerator)(nil)

// NewToolGenerator creates a new OpenAPI ToolGenerator.
func NewToolGenerator(logger *slog.Logger) *ToolGenerator {
	return &ToolGenerator{
		logger: logger.With("component", "openapi_generator"),
	}
}

// Generate converts every operation of an OpenAPI document into a ToolDescriptor.
// Paths are visited in lexical order and operations in declaration order, so the
// result is stable across runs.
func (g *ToolGenerator) Generate(schema domain.APISchema) ([]domain.ToolDescriptor, error) {
	log := g.logger.With(slog.String("source", schema.Source))
	log.Info("Generating tools from OpenAPI schema")

	doc, ok := schema.ParsedData.(*openapi3.T)
	if !ok || doc == nil {
		log.Error("Invalid or missing parsed OpenAPI document in APISchema")
		return nil, fmt.Errorf("invalid or missing parsed OpenAPI document in APISchema")
	}
	if doc.Paths == nil {
		log.Warn("OpenAPI document has no paths")
		return []domain.ToolDescriptor{}, nil
	}

	pathMap := doc.Paths.Map()
	paths := make([]string, 0, len(pathMap))
	for path := range pathMap {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	tools := []domain.ToolDescriptor{}
	seen := make(map[string]int)
	for _, path := range paths {
		item := pathMap[path]
		if item == nil {
			continue
		}
		for _, method := range methodOrder {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}

			name := uniqueName(toolName(method, path, op), seen)
			log := log.With(slog.String("path", path), slog.String("method", method), slog.String("tool_name", name))

			tool, err := g.buildTool(log, name, method, path, item.Parameters, op)
			if err != nil {
				log.Warn("Skipping operation", slog.Any("error", err))
				continue
			}
			tools = append(tools, tool)
			log.Debug("Generated tool")
		}
	}

	log.Info("Finished generating tools from OpenAPI schema", slog.Int("generated_count", len(tools)))
	return tools, nil
}

func (g *ToolGenerator) buildTool(log *slog.Logger, name, method, path string, shared openapi3.Parameters, op *openapi3.Operation) (domain.ToolDescriptor, error) {
	params := mergeParameters(shared, op.Parameters)

	descriptors := make([]domain.ParameterDescriptor, 0, len(params))
	properties := make(map[string]any, len(params)+1)
	var required []string

	for _, param := range params {
		if param.In == openapi3.ParameterInCookie {
			log.Debug("Cookie parameter is not bound at call time", slog.String("param_name", param.Name))
		}
		descriptors = append(descriptors, domain.ParameterDescriptor{
			Name:     param.Name,
			In:       domain.ParameterLocation(param.In),
			Required: param.Required || param.In == openapi3.ParameterInPath,
		})

		prop := g.parameterSchema(log, param)
		properties[param.Name] = prop
		if param.Required || param.In == openapi3.ParameterInPath {
			required = append(required, param.Name)
		}
	}

	if body, bodyRequired, ok := g.requestBodySchema(log, op.RequestBody); ok {
		if _, clash := properties[domain.BodyArgument]; clash {
			log.Warn("Parameter name collides with the request body argument", slog.String("param_name", domain.BodyArgument))
		}
		properties[domain.BodyArgument] = body
		if bodyRequired {
			required = append(required, domain.BodyArgument)
		}
	}

	inputSchema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if required = uniqueStrings(required); len(required) > 0 {
		inputSchema["required"] = required
	}
	raw, err := json.Marshal(inputSchema)
	if err != nil {
		return domain.ToolDescriptor{}, fmt.Errorf("error encoding input schema: %w", err)
	}

	return domain.ToolDescriptor{
		Name:         name,
		Description:  describe(method, path, op),
		Method:       method,
		PathTemplate: path,
		Parameters:   descriptors,
		InputSchema:  raw,
	}, nil
}

// mergeParameters applies operation-level parameters over path-level ones with the same
// name and location, keeping declaration order.
func mergeParameters(shared, own openapi3.Parameters) []*openapi3.Parameter {
	merged := make([]*openapi3.Parameter, 0, len(shared)+len(own))
	index := make(map[string]int)
	add := func(refs openapi3.Parameters) {
		for _, ref := range refs {
			if ref == nil || ref.Value == nil || ref.Value.Name == "" {
				continue
			}
			key := ref.Value.In + "/" + ref.Value.Name
			if i, ok := index[key]; ok {
				merged[i] = ref.Value
				continue
			}
			index[key] = len(merged)
			merged = append(merged, ref.Value)
		}
	}
	add(shared)
	add(own)
	return merged
}

func (g *ToolGenerator) parameterSchema(log *slog.Logger, param *openapi3.Parameter) map[string]any {
	ref := param.Schema
	if ref == nil {
		if media := preferredMedia(param.Content); media != nil {
			ref = media.Schema
		}
	}

	var prop map[string]any
	if ref == nil {
		log.Warn("Parameter has no schema", slog.String("param_name", param.Name), slog.String("param_in", param.In))
		prop = map[string]any{"type": "string"}
	} else {
		prop = g.convertSchemaRef(log, ref, 0, map[*openapi3.Schema]bool{})
	}
	if param.Description != "" {
		if _, ok := prop["description"]; !ok {
			prop["description"] = param.Description
		}
	}
	return prop
}

func (g *ToolGenerator) requestBodySchema(log *slog.Logger, ref *openapi3.RequestBodyRef) (map[string]any, bool, bool) {
	if ref == nil || ref.Value == nil || len(ref.Value.Content) == 0 {
		return nil, false, false
	}
	body := ref.Value

	media := preferredMedia(body.Content)
	var schema map[string]any
	if media == nil || media.Schema == nil {
		log.Warn("Request body has no usable schema, accepting any value")
		schema = map[string]any{}
	} else {
		schema = g.convertSchemaRef(log, media.Schema, 0, map[*openapi3.Schema]bool{})
	}
	if _, ok := schema["description"]; !ok {
		if body.Description != "" {
			schema["description"] = body.Description
		} else {
			schema["description"] = "The JSON request body."
		}
	}
	return schema, body.Required, true
}

// preferredMedia picks application/json, then any +json type, then the first type in lexical order.
func preferredMedia(content openapi3.Content) *openapi3.MediaType {
	if len(content) == 0 {
		return nil
	}
	if media := content.Get("application/json"); media != nil {
		return media
	}
	types := make([]string, 0, len(content))
	for contentType := range content {
		types = append(types, contentType)
	}
	slices.Sort(types)
	for _, contentType := range types {
		if strings.HasSuffix(contentType, "+json") {
			return content[contentType]
		}
	}
	return content[types[0]]
}

// convertSchemaRef inlines an OpenAPI schema as a JSON Schema map.
// References are followed; recursion and excessive depth collapse to an empty schema.
func (g *ToolGenerator) convertSchemaRef(log *slog.Logger, ref *openapi3.SchemaRef, depth int, visiting map[*openapi3.Schema]bool) map[string]any {
	if ref == nil || ref.Value == nil {
		return map[string]any{}
	}
	schema := ref.Value
	if depth > maxSchemaDepth {
		log.Debug("Schema nesting too deep, truncating", slog.String("ref", ref.Ref))
		return map[string]any{}
	}
	if visiting[schema] {
		log.Debug("Recursive schema reference, truncating", slog.String("ref", ref.Ref))
		out := map[string]any{}
		if ref.Ref != "" {
			out["description"] = "Recursive reference to " + ref.Ref
		}
		return out
	}
	visiting[schema] = true
	defer delete(visiting, schema)

	out := map[string]any{}
	if types := schema.Type.Slice(); len(types) == 1 {
		out["type"] = types[0]
	} else if len(types) > 1 {
		out["type"] = slices.Clone(types)
	}
	setIf(out, "title", schema.Title)
	setIf(out, "description", schema.Description)
	setIf(out, "format", schema.Format)
	setIf(out, "pattern", schema.Pattern)
	if len(schema.Enum) > 0 {
		out["enum"] = schema.Enum
	}
	if schema.Default != nil {
		out["default"] = schema.Default
	}
	if schema.Min != nil {
		out["minimum"] = *schema.Min
	}
	if schema.Max != nil {
		out["maximum"] = *schema.Max
	}
	if schema.MinLength > 0 {
		out["minLength"] = schema.MinLength
	}
	if schema.MaxLength != nil {
		out["maxLength"] = *schema.MaxLength
	}
	if schema.MinItems > 0 {
		out["minItems"] = schema.MinItems
	}
	if schema.MaxItems != nil {
		out["maxItems"] = *schema.MaxItems
	}

	if len(schema.Properties) > 0 {
		props := make(map[string]any, len(schema.Properties))
		for name, prop := range schema.Properties {
			props[name] = g.convertSchemaRef(log, prop, depth+1, visiting)
		}
		out["properties"] = props
	}
	if len(schema.Required) > 0 {
		out["required"] = slices.Clone(schema.Required)
	}
	if schema.AdditionalProperties.Schema != nil {
		out["additionalProperties"] = g.convertSchemaRef(log, schema.AdditionalProperties.Schema, depth+1, visiting)
	} else if schema.AdditionalProperties.Has != nil {
		out["additionalProperties"] = *schema.AdditionalProperties.Has
	}
	if schema.Items != nil {
		out["items"] = g.convertSchemaRef(log, schema.Items, depth+1, visiting)
	}
	for key, refs := range map[string]openapi3.SchemaRefs{
		"oneOf": schema.OneOf,
		"anyOf": schema.AnyOf,
		"allOf": schema.AllOf,
	} {
		if len(refs) == 0 {
			continue
		}
		list := make([]any, 0, len(refs))
		for _, r := range refs {
			list = append(list, g.convertSchemaRef(log, r, depth+1, visiting))
		}
		out[key] = list
	}
	return out
}

func setIf(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func describe(method, path string, op *openapi3.Operation) string {
	if op.Description != "" {
		return op.Description
	}
	if op.Summary != "" {
		return op.Summary
	}
	return fmt.Sprintf("Executes %s %s", method, path)
}

// toolName is the sanitized operationId, or method plus path segments when there is none.
func toolName(method, path string, op *openapi3.Operation) string {
	if name := sanitizeName(op.OperationID); name != "" {
		return name
	}

	parts := []string{strings.ToLower(method)}
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		switch {
		case segment == "":
		case strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}"):
			parts = append(parts, "by_"+sanitizeName(segment[1:len(segment)-1]))
		case strings.HasPrefix(segment, ":"):
			parts = append(parts, "by_"+sanitizeName(segment[1:]))
		default:
			parts = append(parts, sanitizeName(segment))
		}
	}
	if len(parts) == 1 {
		parts = append(parts, "root")
	}
	return truncateName(strings.Join(parts, "_"))
}

// sanitizeName replaces characters outside [A-Za-z0-9_-] with underscores.
func sanitizeName(name string) string {
	name = invalidNameChars.ReplaceAllString(name, "_")
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return truncateName(strings.Trim(name, "_"))
}

func truncateName(name string) string {
	if len(name) > maxToolNameLength {
		return name[:maxToolNameLength]
	}
	return name
}

// uniqueName suffixes repeated names with _2, _3, ...
func uniqueName(name string, seen map[string]int) string {
	seen[name]++
	if seen[name] == 1 {
		return name
	}
	for n := seen[name]; ; n++ {
		suffix := fmt.Sprintf("_%d", n)
		candidate := truncateName(name)
		if len(candidate)+len(suffix) > maxToolNameLength {
			candidate = candidate[:maxToolNameLength-len(suffix)]
		}
		candidate += suffix
		if _, taken := seen[candidate]; !taken {
			seen[candidate] = 1
			return candidate
		}
	}
}

// uniqueStrings removes duplicate strings from a slice.
func uniqueStrings(input []string) []string {
	seen := make(map[string]struct{}, len(input))
	j := 0
	for _, v := range input {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		input[j] = v
		j++
	}
	return input[:j]
}
