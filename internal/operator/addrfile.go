package operator

import (
	"os"
	"strings"
)

// FileAddr persists the robot's network address in a small local file,
// the default PersistentAddr implementation for the operator binary.
type FileAddr struct {
	Path string
}

// Load returns the previously-saved address, or "" if none exists yet.
func (f FileAddr) Load() (string, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Save writes addr to Path, creating it if necessary.
func (f FileAddr) Save(addr string) error {
	return os.WriteFile(f.Path, []byte(addr), 0o644)
}
