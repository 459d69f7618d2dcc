package util

import "os/exec"

// ResolveTool returns the path to an external binary. If customPath is set,
// it validates the path is executable; otherwise the system PATH is searched
// for name. Returns an empty string when the tool is not found.
func ResolveTool(name, customPath string) string {
	if customPath != "" {
		if _, err := exec.LookPath(customPath); err == nil {
			return customPath
		}
		return ""
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}
