package domain

import "strings"

// QueryParam is a single bound query-string pair.
type QueryParam struct {
	Name  string
	Value string
}

// BoundRequest is the concrete HTTP request shape produced by binding a tool call.
// It is built fresh per call and shares no memory with the call arguments.
type BoundRequest struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   []QueryParam
	Body    any
	HasBody bool
}

// IsReadMethod reports whether method is a verb without side-effect intent.
// Request bodies are never transmitted for these verbs.
func IsReadMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "OPTIONS":
		return true
	default:
		return false
	}
}

// InvocationResult is the successful outcome of an upstream call.
// Body is a string for textual payloads or a structured value (json.RawMessage or any
// JSON-marshalable Go value).
type InvocationResult struct {
	StatusCode  int
	ContentType string
	Body        any
}
