// Package textutil holds the whitespace normalization every extraction path
// goes through before blank filtering.
package textutil

import "strings"

// Trim collapses internal whitespace runs to a single space and strips the
// ends. ok is false when nothing but whitespace remains.
func Trim(s string) (string, bool) {
	out := strings.Join(strings.Fields(s), " ")
	return out, out != ""
}

// TrimPtr is Trim for optional input; nil has no value.
func TrimPtr(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return Trim(*s)
}

// TrimAll trims every element. With removeEmpty, elements without a value are
// dropped; otherwise they are kept as "". The result is never nil.
func TrimAll(values []string, removeEmpty bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		t, ok := Trim(v)
		if !ok && removeEmpty {
			continue
		}
		out = append(out, t)
	}
	return out
}
