package validation

import (
	"fmt"
	"os"
	"strings"
)

// DirError describes why a directory cannot be used for output.
type DirError struct {
	Path    string
	Message string
}

func (e *DirError) Error() string {
	return e.Message
}

// CheckWritableDir creates dir if needed and proves a file can be written
// there. The probe file is removed again.
func CheckWritableDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return &DirError{Path: dir, Message: "directory path cannot be empty"}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return &DirError{Path: dir, Message: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return &DirError{Path: dir, Message: fmt.Sprintf("error checking %s: %v", dir, err)}
	}
	if !info.IsDir() {
		return &DirError{Path: dir, Message: fmt.Sprintf("path is not a directory: %s", dir)}
	}

	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return &DirError{Path: dir, Message: fmt.Sprintf("directory is not writable: %s", dir)}
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}
