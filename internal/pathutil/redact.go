// Package pathutil shortens filesystem paths for error messages that may
// leave the machine, such as MCP tool errors and HTTP responses.
package pathutil

import "path/filepath"

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/.bankrun/history.db" becomes ".../.bankrun/history.db".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}
