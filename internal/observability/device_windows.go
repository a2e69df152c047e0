//go:build windows

package observability

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// deviceWritable reports whether path names an existing file or device.
// COM ports are checked through their attributes only.
func deviceWritable(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}

	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return fmt.Errorf("device %s not present: %w", path, err)
	}

	if attrs&windows.FILE_ATTRIBUTE_READONLY != 0 {
		return fmt.Errorf("device %s is read-only", path)
	}

	return nil
}
