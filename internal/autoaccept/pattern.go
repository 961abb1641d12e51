package autoaccept

import "strings"

// matchesPattern implements the restricted-file glob semantics: a literal
// pattern must match exactly, while a pattern containing '*' is matched by
// a handful of fixed shapes rather than a full glob engine.
func matchesPattern(file, pattern string) bool {
	if !strings.Contains(pattern, "*") {
		return file == pattern
	}

	switch {
	case strings.HasPrefix(pattern, "**/") && strings.HasSuffix(pattern, "/*"):
		dir := pattern[3 : len(pattern)-2]
		return strings.Contains(file, "/"+dir+"/") ||
			strings.HasPrefix(file, dir+"/") ||
			strings.Contains(file, "/"+dir)

	case strings.HasPrefix(pattern, "**/"):
		return strings.Contains(file, pattern[3:])

	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) >= 2:
		middle := pattern[1 : len(pattern)-1]
		return strings.Contains(file, middle)

	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(file, pattern[1:])

	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(file, pattern[:len(pattern)-1])

	default:
		return file == pattern
	}
}

// extractFilePaths pulls path-looking tokens (containing '/' or '.') out of
// a shell command string. This mirrors a best-effort tokenizer, not a real
// shell argument parser.
func extractFilePaths(command string) []string {
	var paths []string
	for _, part := range strings.Fields(command) {
		if strings.Contains(part, "/") || strings.Contains(part, ".") {
			paths = appendUnique(paths, part)
		}
	}
	return paths
}
