package luma

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError maps JSON field names to a human-readable problem.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// isoLayouts are the accepted ISO 8601 timestamp shapes, with or without an
// offset. Naive values are interpreted in the event's timezone upstream.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO 8601 date-time.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO 8601 timestamp %q", value)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})
	_ = v.RegisterValidation("iso8601", func(fl validator.FieldLevel) bool {
		_, err := ParseTimestamp(fl.Field().String())
		return err == nil
	})
	return v
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.add(fieldPath(fe), describe(fe))
	}
	return out
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return "must not be empty"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "iso8601":
		return "must be an ISO 8601 date-time"
	case "http_url":
		return "must be an http(s) URL"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// Validate checks field constraints and that end_at is not before start_at.
func (r EventCreateRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	verr := &ValidationError{}
	checkOrder(verr, r.StartAt, r.EndAt)
	return verr.orNil()
}

// Validate checks field constraints on the provided fields. An update that
// sets both start_at and end_at must keep them ordered.
func (r EventUpdateRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	verr := &ValidationError{}
	if r.Empty() {
		verr.add("body", "at least one field must be provided")
	}
	if r.StartAt != nil && r.EndAt != nil {
		checkOrder(verr, *r.StartAt, *r.EndAt)
	}
	return verr.orNil()
}

// Validate bounds the page window.
func (o ListOptions) Validate() error {
	return validateStruct(o)
}

func checkOrder(verr *ValidationError, start, end string) {
	if end == "" {
		return
	}
	s, err1 := ParseTimestamp(start)
	e, err2 := ParseTimestamp(end)
	if err1 != nil || err2 != nil {
		return
	}
	if e.Before(s) {
		verr.add("end_at", "must not be before start_at")
	}
}
