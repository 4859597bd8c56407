// Package endpoint builds and validates the URLs used to reach an actor
// backend: the SSE events endpoint and the health-check endpoint.
//
// All functions are pure. Base URLs are sanitized by stripping trailing
// slashes so equivalent spellings of the same backend collapse to one
// canonical form, which the keepalive package relies on for keying.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

// Paths appended to the sanitized base URL.
const (
	EventsPath = "/events/dex/pairs"
	HealthPath = "/health"
)

// SanitizeBaseURL strips trailing slashes from a base URL. It performs
// no other normalization; scheme and host casing are left to the caller.
func SanitizeBaseURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}

// ValidateBaseURL checks that a base URL is non-empty and parses as an
// absolute http or https URL.
func ValidateBaseURL(baseURL string) error {
	if strings.TrimSpace(baseURL) == "" {
		return fmt.Errorf("base URL must not be empty")
	}
	u, err := url.Parse(SanitizeBaseURL(baseURL))
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	return nil
}

// ValidateTarget checks that a page target is non-empty. Targets are
// otherwise opaque; they are percent-encoded losslessly by EventsURL.
func ValidateTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("target must not be empty")
	}
	return nil
}

// ValidateCredential checks that a credential is non-empty.
func ValidateCredential(credential string) error {
	if strings.TrimSpace(credential) == "" {
		return fmt.Errorf("credential must not be empty")
	}
	return nil
}

// EventsURL builds the SSE endpoint URL for a target page:
//
//	{sanitized base}/events/dex/pairs?page_url={encoded target}
//
// The target is percent-encoded so that it round-trips exactly through
// standard query decoding, including targets containing '&', '=', '['
// and ']'.
func EventsURL(baseURL, target string) string {
	return SanitizeBaseURL(baseURL) + EventsPath + "?page_url=" + url.QueryEscape(target)
}

// HealthURL builds the health-check endpoint URL for a backend.
func HealthURL(baseURL string) string {
	return SanitizeBaseURL(baseURL) + HealthPath
}
