package audio

import (
	"os"
	"path/filepath"
)

// ResolveFile finds a recording on disk given the path a client sent.
// Priority: 1) absolute path as-is  2) tempDir/path  3) tempDir/basename(path)
// Returns "" when nothing exists.
func ResolveFile(tempDir, path string) string {
	if path == "" {
		return ""
	}

	// 1) Absolute path (the one returned by stop)
	if filepath.IsAbs(path) {
		if isFile(path) {
			return path
		}
	}

	if tempDir == "" {
		if isFile(path) {
			return path
		}
		return ""
	}

	// 2) Relative to the temp directory
	if !filepath.IsAbs(path) {
		full := filepath.Join(tempDir, path)
		if isFile(full) {
			return full
		}
	}

	// 3) Same file name under the temp directory, e.g. a path recorded on
	// another mount of the same directory.
	full := filepath.Join(tempDir, filepath.Base(path))
	if isFile(full) {
		return full
	}
	return ""
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
