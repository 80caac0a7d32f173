package prompt

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff returns a unified diff of a and b, or "" when they are equal.
func UnifiedDiff(a, b string) string {
	return unified(a, b, "a", "b")
}

func unified(a, b, from, to string) string {
	if a == b {
		return ""
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: from,
		ToFile:   to,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return out
}

// Diff compares two stored versions of name. It returns "" when either is missing.
func (s *Store) Diff(name string, v1, v2 int) string {
	p1, ok1 := s.Get(name, v1)
	p2, ok2 := s.Get(name, v2)
	if !ok1 || !ok2 {
		return ""
	}
	return unified(p1.Body, p2.Body, fmt.Sprintf("%s@v%d", name, p1.Version), fmt.Sprintf("%s@v%d", name, p2.Version))
}
