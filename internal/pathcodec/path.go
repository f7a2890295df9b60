// Package pathcodec translates slash-delimited REST paths into the
// two-level physical layout pgfire stores data under: a root key (the
// first path segment) plus a canonical JSON path selector used to reach
// into that root key's subtree.
package pathcodec

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidPath is returned for malformed paths: empty segments, a
// leading/trailing slash, or control characters.
var ErrInvalidPath = errors.New("invalid path")

// Path is the parsed form of a request path. Whole is true when the
// original path was empty or absent ("the whole LDB").
type Path struct {
	Root      string
	Segments  []string
	Canonical string
	Whole     bool
}

// Parse splits path on '/' and builds the root key and canonical
// selector. An empty path means "whole document" and is not an error.
func Parse(path string) (Path, error) {
	if path == "" {
		return Path{Whole: true}, nil
	}

	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" {
			return Path{}, errors.Wrapf(ErrInvalidPath, "empty segment in %q", path)
		}
		if strings.ContainsAny(s, "\x00\n\r\t") {
			return Path{}, errors.Wrapf(ErrInvalidPath, "control character in segment %q", s)
		}
	}

	return Path{
		Root:      segments[0],
		Segments:  segments,
		Canonical: "{" + strings.Join(segments, ",") + "}",
	}, nil
}

// BuildSkeleton returns the minimal nested object placing leaf at
// segments. A single segment yields {segments[0]: leaf}; longer paths
// nest recursively.
func BuildSkeleton(segments []string, leaf any) any {
	if len(segments) == 0 {
		return leaf
	}
	return map[string]any{
		segments[0]: BuildSkeleton(segments[1:], leaf),
	}
}

// Join re-assembles segments into a slash-delimited string, the form
// subscribers compare change-record paths against.
func Join(segments []string) string {
	return strings.Join(segments, "/")
}
