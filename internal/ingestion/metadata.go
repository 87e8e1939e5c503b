package ingestion

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// Collection names used in index metadata.
const (
	CollectionDiscourse = "discourse"
	CollectionCourse    = "course"
)

// SourceInfo holds the collection and topic inferred from a document's file
// name or URL. Explicit CLI flags take precedence over inferred values.
type SourceInfo struct {
	// Collection is "discourse" or "course".
	Collection string
	// Topic is the forum topic ID for posts, or the page name for course
	// material.
	Topic string
}

// postFile matches converted post files named {topic_id}_{post_id}.md.
var postFile = regexp.MustCompile(`^(\d+)_(\d+)$`)

// InferSource classifies a file path or URL. Unknown inputs are treated as
// course material named after their last path segment.
//
// Recognised patterns:
//
//	https://{forum}/t/{slug}/{topic_id}[/{post_number}]
//	{topic_id}_{post_id}.md
//	https://{site}/#/{page} (docsify course pages)
func InferSource(ref string) SourceInfo {
	info := SourceInfo{Collection: CollectionCourse}

	if u, err := url.Parse(ref); err == nil && u.Host != "" {
		segments := trimSegments(u.Path)
		if len(segments) >= 3 && segments[0] == "t" {
			info.Collection = CollectionDiscourse
			info.Topic = segments[2]
			return info
		}
		if frag := trimSegments(u.Fragment); len(frag) > 0 {
			info.Topic = frag[len(frag)-1]
			return info
		}
		if len(segments) > 0 {
			info.Topic = stem(segments[len(segments)-1])
		}
		return info
	}

	base := stem(filepath.Base(ref))
	if m := postFile.FindStringSubmatch(base); m != nil {
		info.Collection = CollectionDiscourse
		info.Topic = m[1]
		return info
	}
	if base != "." && base != string(filepath.Separator) {
		info.Topic = base
	}
	return info
}

// stem strips the extension from a file name.
func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// trimSegments splits a URL path into non-empty segments.
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
