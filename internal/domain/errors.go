package domain

import "fmt"

// ErrorKind classifies failures of the invocation pipeline.
type ErrorKind string

const (
	KindSpecLoad    ErrorKind = "SpecLoadError"
	KindUnknownTool ErrorKind = "UnknownToolError"
	KindBinding     ErrorKind = "BindingError"
	KindHTTP        ErrorKind = "HttpError"
)

// SpecLoadError is fatal at startup: the OpenAPI document could not be loaded or turned into tools.
type SpecLoadError struct {
	Source string
	Err    error
}

func (e *SpecLoadError) Error() string {
	return fmt.Sprintf("failed to load OpenAPI spec from %s: %v", e.Source, e.Err)
}

func (e *SpecLoadError) Unwrap() error { return e.Err }

func (e *SpecLoadError) Kind() ErrorKind { return KindSpecLoad }

// BindingError reports a parameter that could not be mapped onto the HTTP request.
type BindingError struct {
	Tool      string
	Parameter string
	Reason    string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Parameter)
}

func (e *BindingError) Kind() ErrorKind { return KindBinding }

// HTTPError is any transport failure or non-2xx answer from the wrapped API.
// StatusCode is zero for transport-level failures.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *HTTPError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request execution failed: %v", e.Err)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error { return e.Err }

func (e *HTTPError) Kind() ErrorKind { return KindHTTP }
