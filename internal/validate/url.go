package validate

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// URL validation errors
var (
	ErrEmpty            = errors.New("value is empty")
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrDisallowedScheme = errors.New("URL scheme not allowed")
	ErrURLTooLong       = errors.New("URL is too long")
)

// URLConstraints defines validation constraints for URLs.
type URLConstraints struct {
	AllowedSchemes []string
	MaxLength      int // 0 = no limit
}

// WebURLConstraints accepts public web links such as enemy portraits. The
// server never fetches these, so private hosts are not rejected.
var WebURLConstraints = URLConstraints{
	AllowedSchemes: []string{"https", "http"},
	MaxLength:      2048,
}

// URL validates a URL against the given constraints and returns it trimmed.
func URL(raw string, constraints URLConstraints) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}

	if constraints.MaxLength > 0 && len(raw) > constraints.MaxLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrURLTooLong, constraints.MaxLength)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if len(constraints.AllowedSchemes) > 0 && !slices.Contains(constraints.AllowedSchemes, parsed.Scheme) {
		return "", fmt.Errorf("%w: got %q, allowed: %v", ErrDisallowedScheme, parsed.Scheme, constraints.AllowedSchemes)
	}

	if parsed.Hostname() == "" {
		return "", fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}

	return raw, nil
}
