// Package binder maps tool call arguments onto a concrete HTTP request shape.
package binder

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mohae/deepcopy"
	"github.com/spf13/cast"

	"github.com/i2y/openapi-mcp/internal/domain"
)

const reasonRequiredPath = "required path parameter missing"

// Binder implements usecase.RequestBinder.
type Binder struct {
	logger *slog.Logger
}

// New creates a Binder.
func New(logger *slog.Logger) *Binder {
	return &Binder{logger: logger.With("component", "binder")}
}

// Bind walks the descriptor's parameters in declaration order and produces a fresh BoundRequest.
// Arguments without a matching descriptor are ignored.
func (b *Binder) Bind(tool domain.ToolDescriptor, args domain.ToolCallArguments) (*domain.BoundRequest, error) {
	log := b.logger.With(slog.String("tool_name", tool.Name))

	bound := &domain.BoundRequest{
		Method:  strings.ToUpper(tool.Method),
		Path:    tool.PathTemplate,
		Headers: make(map[string]string),
	}

	for _, param := range tool.Parameters {
		raw, present := args[param.Name]
		if raw == nil {
			present = false
		}

		var value string
		if present {
			v, err := stringValue(raw)
			if err != nil {
				log.Warn("Cannot convert argument to string", slog.String("param_name", param.Name), slog.Any("error", err))
				return nil, &domain.BindingError{Tool: tool.Name, Parameter: param.Name, Reason: "unsupported parameter value"}
			}
			value = v
		}

		switch param.In {
		case domain.ParameterInPath:
			if !present {
				if param.Required {
					log.Warn("Required path parameter missing", slog.String("param_name", param.Name))
					return nil, &domain.BindingError{Tool: tool.Name, Parameter: param.Name, Reason: reasonRequiredPath}
				}
				log.Debug("Optional path parameter missing, placeholder kept", slog.String("param_name", param.Name))
				continue
			}
			bound.Path = substitutePath(bound.Path, param.Name, value)
		case domain.ParameterInQuery:
			if present {
				bound.Query = append(bound.Query, domain.QueryParam{Name: param.Name, Value: value})
			}
		case domain.ParameterInHeader:
			if present {
				bound.Headers[param.Name] = value
			}
		default:
			log.Warn("Unrecognized parameter location, skipping", slog.String("param_name", param.Name), slog.String("param_in", string(param.In)))
		}
	}

	if body, ok := args[domain.BodyArgument]; ok {
		bound.Body = deepcopy.Copy(body)
		bound.HasBody = true
		if domain.IsReadMethod(bound.Method) {
			log.Debug("Body supplied for read method, it will not be transmitted", slog.String("method", bound.Method))
		}
	}

	log.Debug("Bound request", slog.String("method", bound.Method), slog.String("path", bound.Path), slog.Int("query_count", len(bound.Query)), slog.Int("header_count", len(bound.Headers)))
	return bound, nil
}

// substitutePath replaces every "{name}" and every ":name" placeholder with value.
// A colon placeholder only matches when it is not the prefix of a longer identifier.
func substitutePath(path, name, value string) string {
	path = strings.ReplaceAll(path, "{"+name+"}", value)

	placeholder := ":" + name
	var sb strings.Builder
	for {
		i := strings.Index(path, placeholder)
		if i < 0 {
			sb.WriteString(path)
			return sb.String()
		}
		end := i + len(placeholder)
		if end < len(path) && isIdentChar(path[end]) {
			sb.WriteString(path[:end])
			path = path[end:]
			continue
		}
		sb.WriteString(path[:i])
		sb.WriteString(value)
		path = path[end:]
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// stringValue renders an argument as it should appear on the wire.
// Objects and arrays are JSON-encoded.
func stringValue(v any) (string, error) {
	switch v.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode composite value: %w", err)
		}
		return string(data), nil
	}
	s, err := cast.ToStringE(v)
	if err == nil {
		return s, nil
	}
	data, jsonErr := json.Marshal(v)
	if jsonErr != nil {
		return "", err
	}
	return string(data), nil
}
