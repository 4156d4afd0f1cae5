package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Class is the operation class a request is admitted under. Reads and writes
// have independent windows.
type Class string

const (
	Read  Class = "read"
	Write Class = "write"
)

const (
	// DefaultWindow is the trailing window both classes are measured over.
	DefaultWindow = 5 * time.Minute
	// DefaultReadCeiling is the number of reads admitted per window.
	DefaultReadCeiling = 500
	// DefaultWriteCeiling is the number of writes admitted per window.
	DefaultWriteCeiling = 100
)

// Classes lists every known class in a stable order.
var Classes = []Class{Read, Write}

func (c Class) Valid() bool {
	return c == Read || c == Write
}

func (c Class) String() string {
	return string(c)
}

// ParseClass validates a class name coming from configuration or user input.
func ParseClass(value string) (Class, error) {
	c := Class(strings.ToLower(strings.TrimSpace(value)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown operation class %q", value)
	}
	return c, nil
}

// ClassForMethod maps an HTTP method to its class: GET is a read, POST, PUT
// and DELETE are writes.
func ClassForMethod(method string) (Class, error) {
	switch strings.ToUpper(method) {
	case http.MethodGet:
		return Read, nil
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return Write, nil
	default:
		return "", fmt.Errorf("unsupported method %q", method)
	}
}

// Limit is the ceiling and window for one class.
type Limit struct {
	Ceiling int
	Window  time.Duration
}

// Limits holds the per-class limits a Limiter enforces.
type Limits struct {
	Read  Limit
	Write Limit
}

// DefaultLimits returns 500 reads and 100 writes per five minutes.
func DefaultLimits() Limits {
	return Limits{
		Read:  Limit{Ceiling: DefaultReadCeiling, Window: DefaultWindow},
		Write: Limit{Ceiling: DefaultWriteCeiling, Window: DefaultWindow},
	}
}

// For returns the limit for class and whether the class is known.
func (l Limits) For(class Class) (Limit, bool) {
	switch class {
	case Read:
		return l.Read, true
	case Write:
		return l.Write, true
	default:
		return Limit{}, false
	}
}

func (l Limits) validate() error {
	for _, class := range Classes {
		limit, _ := l.For(class)
		if limit.Ceiling <= 0 {
			return fmt.Errorf("%s ceiling must be positive, got %d", class, limit.Ceiling)
		}
		if limit.Window <= 0 {
			return fmt.Errorf("%s window must be positive, got %s", class, limit.Window)
		}
	}
	return nil
}

// Decision is the outcome of an admission check. A throttled decision
// carries the delay after which a slot frees up.
type Decision struct {
	Allowed bool
	Delay   time.Duration
}

func allowed() Decision {
	return Decision{Allowed: true}
}

func throttled(delay time.Duration) Decision {
	if delay < 0 {
		delay = 0
	}
	return Decision{Delay: delay}
}
