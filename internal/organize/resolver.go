package organize

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Capture-session date directory patterns. Strict regexes rather than free
// date parsing so an eight-digit frame counter cannot masquerade as a date.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])$`),
	regexp.MustCompile(`^\d{4}(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])$`),
	regexp.MustCompile(`^\d{4}_(0[1-9]|1[0-2])_(0[1-9]|[12]\d|3[01])$`),
}

func isSessionDate(component string) bool {
	for _, re := range datePatterns {
		if re.MatchString(component) {
			return true
		}
	}
	return false
}

// relativeAnchor finds the part of path that should be preserved under the
// destination: everything from the first capture-session date component
// onward. Without a date component it falls back to the path relative to
// scanRoot, and failing that to the bare file name.
func relativeAnchor(path, scanRoot string) string {
	clean := filepath.Clean(path)
	parts := strings.Split(clean, string(filepath.Separator))
	for i, part := range parts {
		if isSessionDate(part) {
			return filepath.Join(parts[i:]...)
		}
	}
	if rel, err := filepath.Rel(scanRoot, clean); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return filepath.Base(clean)
}

// ResolveDest maps a source file to its archive location. Accepted frames
// land under <dest>/<target>/..., rejected frames under
// <dest>/failed/<target>/..., both preserving the session-relative subtree.
func ResolveDest(path, target string, accepted bool, scanRoot, destRoot string) string {
	anchor := relativeAnchor(path, scanRoot)
	if accepted {
		return filepath.Join(destRoot, target, anchor)
	}
	return filepath.Join(destRoot, "failed", target, anchor)
}
