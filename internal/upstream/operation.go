package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Togather-Foundation/eventproxy/internal/upstream/ratelimit"
)

// Operation describes one logical call to the upstream API.
type Operation struct {
	Method string
	// Path is relative to the client's base URL, e.g. "event/get/evt-123".
	Path  string
	Query url.Values
	// Body is JSON-encoded once and replayed on every attempt.
	Body any
	// Class overrides the class derived from Method.
	Class ratelimit.Class
	// IdempotencyKey is sent on every attempt of a write. When empty and
	// the client generates keys, one is minted per call.
	IdempotencyKey string
}

// Get builds a read operation.
func Get(path string, query url.Values) Operation {
	return Operation{Method: http.MethodGet, Path: path, Query: query}
}

// Post builds a write operation with a JSON body.
func Post(path string, body any) Operation {
	return Operation{Method: http.MethodPost, Path: path, Body: body}
}

// Put builds a write operation with a JSON body.
func Put(path string, body any) Operation {
	return Operation{Method: http.MethodPut, Path: path, Body: body}
}

// Delete builds a write operation.
func Delete(path string) Operation {
	return Operation{Method: http.MethodDelete, Path: path}
}

func (op Operation) class() (ratelimit.Class, error) {
	methodClass, err := ratelimit.ClassForMethod(op.Method)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	if op.Class == "" {
		return methodClass, nil
	}
	if !op.Class.Valid() {
		return "", fmt.Errorf("%w: unknown operation class %q", ErrInvalidOperation, op.Class)
	}
	if op.Class != methodClass {
		return "", fmt.Errorf("%w: %s is a %s operation, not %s", ErrInvalidOperation, op.Method, methodClass, op.Class)
	}
	return op.Class, nil
}

func (op Operation) encodeBody() ([]byte, error) {
	if op.Body == nil {
		return nil, nil
	}
	if raw, ok := op.Body.(json.RawMessage); ok {
		return raw, nil
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(op.Body); err != nil {
		return nil, fmt.Errorf("%w: encode body: %v", ErrInvalidOperation, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (op Operation) target(base *url.URL) (string, error) {
	path := strings.TrimLeft(op.Path, "/")
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidOperation)
	}
	rel, err := url.Parse(path)
	if err != nil || rel.IsAbs() || rel.Host != "" || rel.RawQuery != "" {
		return "", fmt.Errorf("%w: path %q must be relative without a query", ErrInvalidOperation, op.Path)
	}

	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + "/" + rel.Path
	u.RawPath = strings.TrimRight(base.EscapedPath(), "/") + "/" + rel.EscapedPath()
	u.RawQuery = ""
	if len(op.Query) > 0 {
		u.RawQuery = op.Query.Encode()
	}
	return u.String(), nil
}
