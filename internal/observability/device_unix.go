//go:build !windows

package observability

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// deviceWritable reports whether path exists and this process may write to it.
func deviceWritable(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("device %s not present: %w", path, err)
	}

	if err := unix.Access(path, unix.W_OK); err != nil {
		return fmt.Errorf("device %s not writable: %w", path, err)
	}

	return nil
}
