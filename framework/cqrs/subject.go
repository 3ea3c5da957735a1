package cqrs

import "strings"

// SubjectContains reports whether candidate is parent itself or one of
// its descendants. "/task/t1" contains "/task/t1/comments/c1" but not
// "/task/t10".
func SubjectContains(parent, candidate string) bool {
	if candidate == parent {
		return true
	}
	prefix := strings.TrimSuffix(parent, "/") + "/"
	return strings.HasPrefix(candidate, prefix)
}

// SubjectSegments splits a subject into its non empty path segments.
func SubjectSegments(subject string) []string {
	var segs []string
	for _, s := range strings.Split(subject, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
