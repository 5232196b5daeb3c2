// Package diff detects and renders changes between a file and its rewrite.
package diff

import (
	"bytes"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultContext is the number of unchanged lines shown around a change.
const DefaultContext = 3

// DetectChange reports whether transformed differs from original.
func DetectChange(original, transformed []byte) bool {
	return !bytes.Equal(original, transformed)
}

// Render returns a unified diff labelled a/<path> and b/<path>. It is empty
// when nothing changed.
func Render(path string, original, transformed []byte, context int) (string, error) {
	if !DetectChange(original, transformed) {
		return "", nil
	}
	if context < 0 {
		context = DefaultContext
	}

	label := filepath.ToSlash(path)
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(original)),
		B:        difflib.SplitLines(string(transformed)),
		FromFile: "a/" + label,
		ToFile:   "b/" + label,
		Context:  context,
	})
}
