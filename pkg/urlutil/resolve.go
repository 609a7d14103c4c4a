// Package urlutil normalizes URL references found in upstream manifests.
package urlutil

import (
	"net/url"
	"strings"
)

// Resolve interprets reference as a standard URL-reference against base
// and returns the absolute URL. When base is empty, reference must stand
// on its own; see Absolute.
func Resolve(reference string, base string) (string, bool) {
	if base == "" {
		return Absolute(reference)
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}

	ref, err := url.Parse(reference)
	if err != nil {
		return "", false
	}

	return b.ResolveReference(ref).String(), true
}

// Absolute interprets reference as an absolute or protocol-relative URL.
//
// References without a scheme get one inferred: port 443 means https,
// any other explicit port means http, no port defaults to https. This is
// a heuristic, not guaranteed-correct scheme detection.
func Absolute(reference string) (string, bool) {
	if strings.HasPrefix(reference, "http://") || strings.HasPrefix(reference, "https://") {
		u, err := url.Parse(reference)
		if err != nil || u.Hostname() == "" {
			return "", false
		}
		return u.String(), true
	}

	raw := reference
	if !strings.HasPrefix(raw, "//") {
		raw = "//" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}

	switch u.Port() {
	case "", "443":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}

	return u.String(), true
}
