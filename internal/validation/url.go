package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLValidationError reports why a URL was rejected.
type URLValidationError struct {
	Field   string
	Message string
	URL     string
}

func (e URLValidationError) Error() string {
	return fmt.Sprintf("%s: %s (url: %s)", e.Field, e.Message, e.URL)
}

// ValidateURL checks that urlString is an absolute http(s) URL. An empty
// string passes; callers enforce presence separately.
func ValidateURL(urlString, fieldName string, requireHTTPS bool) error {
	if urlString == "" {
		return nil
	}

	parsed, err := url.Parse(urlString)
	if err != nil {
		return URLValidationError{Field: fieldName, Message: "invalid URL format", URL: urlString}
	}
	if parsed.Scheme == "" {
		return URLValidationError{Field: fieldName, Message: "URL must include a scheme (http:// or https://)", URL: urlString}
	}
	if parsed.Host == "" {
		return URLValidationError{Field: fieldName, Message: "URL must include a host", URL: urlString}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if requireHTTPS && scheme != "https" {
		return URLValidationError{Field: fieldName, Message: "URL must use HTTPS", URL: urlString}
	}
	if scheme != "http" && scheme != "https" {
		return URLValidationError{Field: fieldName, Message: "URL scheme must be http or https", URL: urlString}
	}
	return nil
}

// ValidateEndpoint validates the root of a remote API. A path prefix is
// allowed (for example /public/v1) but query strings and fragments are not,
// since operation paths and parameters are appended to it.
func ValidateEndpoint(urlString, fieldName string, requireHTTPS bool) error {
	if urlString == "" {
		return URLValidationError{Field: fieldName, Message: "URL is required", URL: urlString}
	}
	if err := ValidateURL(urlString, fieldName, requireHTTPS); err != nil {
		return err
	}

	parsed, _ := url.Parse(urlString)
	if parsed.RawQuery != "" {
		return URLValidationError{Field: fieldName, Message: "endpoint must not contain query parameters", URL: urlString}
	}
	if parsed.Fragment != "" {
		return URLValidationError{Field: fieldName, Message: "endpoint must not contain a fragment", URL: urlString}
	}
	if parsed.User != nil {
		return URLValidationError{Field: fieldName, Message: "endpoint must not embed credentials", URL: urlString}
	}
	return nil
}
