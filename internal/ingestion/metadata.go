package ingestion

import (
	"net/url"
	"strings"
)

// InferredMetadata holds the document name and doc type inferred from a
// documentation URL's structure. Explicit Source fields take precedence over
// inferred values — this is the best-effort fallback when the caller doesn't
// specify metadata.
type InferredMetadata struct {
	// DocName is the human-readable document name derived from the URL path.
	DocName string
	// DocType classifies the documentation kind (reference, tutorial, guide, api, changelog).
	DocType string
}

// docTypeSegments maps well-known URL path segments to a doc type label.
// The first matching segment wins, scanning the path left to right.
var docTypeSegments = map[string]string{
	"docs":            "reference",
	"documentation":   "reference",
	"reference":       "reference",
	"api":             "api",
	"apis":            "api",
	"tutorial":        "tutorial",
	"tutorials":       "tutorial",
	"getting-started": "tutorial",
	"quickstart":      "tutorial",
	"guide":           "guide",
	"guides":          "guide",
	"howto":           "guide",
	"how-to":          "guide",
	"changelog":       "changelog",
	"releases":        "changelog",
	"release-notes":   "changelog",
}

// InferMetadata inspects the documentation source URL and returns best-effort
// metadata. If the URL doesn't match any known pattern the returned fields
// contain sensible defaults (the last path segment as name, "reference" as type).
func InferMetadata(rawURL string) InferredMetadata {
	m := InferredMetadata{
		DocName: rawURL,
		DocType: "reference",
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return m
	}

	segments := trimSegments(strings.ToLower(parsed.Path))

	// The document name is the last path segment with any file extension
	// removed; fall back to the hostname for bare URLs.
	if len(segments) > 0 {
		name := segments[len(segments)-1]
		if dot := strings.LastIndex(name, "."); dot > 0 {
			name = name[:dot]
		}
		m.DocName = name
	} else if parsed.Hostname() != "" {
		m.DocName = parsed.Hostname()
	}

	for _, seg := range segments {
		if t, ok := docTypeSegments[seg]; ok {
			m.DocType = t
			break
		}
	}

	return m
}

// trimSegments splits a URL path into non-empty lowercase segments.
func trimSegments(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
