//go:build windows

package ops

import "os"

// openNoFollow has no O_NOFOLLOW here; symlinks are rejected by ValidatePath.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}
