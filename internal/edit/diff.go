package edit

import (
	diff "github.com/shogoki/gotextdiff"
)

// PatchDiff renders a unified diff between two versions of a document.
// It returns "" when they are identical.
func PatchDiff(name, before, after string) string {
	if before == after {
		return ""
	}
	return string(diff.Diff(name, []byte(before), name, []byte(after)))
}
