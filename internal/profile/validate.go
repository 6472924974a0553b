package profile

import (
	"fmt"
	"regexp"
)

// Names start with a letter or digit so they never parse as a CLI flag.
var nameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// maxSocketPath is the sun_path limit on macOS; Linux allows 108.
const maxSocketPath = 104

// ValidateName checks that name is usable as a profile directory name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: use 1-64 lowercase letters, digits, '-' or '_', starting with a letter or digit", name)
	}
	return nil
}

// ValidateSocketPath checks that the daemon socket for name fits in a
// Unix socket address under the current base directory.
func ValidateSocketPath(name string) error {
	if p := SocketPath(name); len(p) > maxSocketPath {
		return fmt.Errorf("socket path %q is %d bytes, over the %d byte limit: shorten the profile name or set WLITE_HOME", p, len(p), maxSocketPath)
	}
	return nil
}
