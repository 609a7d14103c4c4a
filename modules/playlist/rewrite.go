package playlist

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"streamedge/pkg/urlutil"
)

// A manifest listing quality variants carries RESOLUTION= attributes;
// anything else is a media playlist listing segments.
func isMaster(manifest string) bool {
	return strings.Contains(manifest, "RESOLUTION=")
}

// absoluteURL matches an http(s) URL substring inside a tag line. It
// stops at quotes and commas so attribute syntax around the URL stays
// intact.
var absoluteURL = regexp.MustCompile(`https?://[^\s",]+`)

type rewriteOptions struct {
	// SegmentPath is the proxy path embedded into every rewritten URL.
	SegmentPath string
	Headers     map[string]string
	LoadBalance string
}

// rewrite walks a manifest line by line and substitutes every segment,
// key and alternate-media URL with a proxy URL. Lines that cannot be
// resolved pass through unchanged, and line count is preserved so the
// rewritten manifest stays playable. Output is deterministic for
// identical inputs.
func rewrite(manifest string, baseURL string, opts rewriteOptions) string {
	master := isMaster(manifest)

	lines := strings.Split(manifest, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			// blank lines are preserved verbatim

		case strings.HasPrefix(trimmed, "#EXT-X-KEY:"):
			lines[i] = rewriteTagURL(line, opts)

		case master && strings.HasPrefix(trimmed, "#EXT-X-MEDIA:"):
			lines[i] = rewriteTagURL(line, opts)

		case strings.HasPrefix(trimmed, "#"):
			// metadata and comments pass through

		default:
			if absolute, ok := urlutil.Resolve(trimmed, baseURL); ok {
				lines[i] = proxyURL(absolute, opts)
			}
		}
	}

	return strings.Join(lines, "\n")
}

// rewriteTagURL replaces the first URL substring of a tag line, leaving
// the attribute text around it untouched. Tag URLs are always absolute
// already, so no resolution is needed.
func rewriteTagURL(line string, opts rewriteOptions) string {
	loc := absoluteURL.FindStringIndex(line)
	if loc == nil {
		return line
	}

	return line[:loc[0]] + proxyURL(line[loc[0]:loc[1]], opts) + line[loc[1]:]
}

// proxyURL builds <segment-path>?u=<base64 url>&headers=<json>, plus
// the load-balance marker when one was requested.
func proxyURL(absolute string, opts rewriteOptions) string {
	headers := opts.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headersJSON, _ := json.Marshal(headers)

	var b strings.Builder
	b.WriteString(opts.SegmentPath)
	b.WriteString("?u=")
	b.WriteString(url.QueryEscape(base64.StdEncoding.EncodeToString([]byte(absolute))))
	b.WriteString("&headers=")
	b.WriteString(url.QueryEscape(string(headersJSON)))
	if opts.LoadBalance != "" {
		b.WriteString("&lb=")
		b.WriteString(url.QueryEscape(opts.LoadBalance))
	}

	return b.String()
}
