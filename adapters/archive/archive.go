// Package archive keeps canonical audio for stored voice records. Names are
// flat and double as the record's audio reference.
package archive

import (
	"fmt"
	"path"
	"strings"
)

// validateName rejects names that would escape a flat namespace
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("archive name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || path.Clean(name) != name {
		return fmt.Errorf("invalid archive name %q", name)
	}
	return nil
}

// objectKey joins an optional prefix with name
func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// nameFromKey strips prefix from an object key. ok is false for keys that are
// not direct children of prefix.
func nameFromKey(prefix, key string) (string, bool) {
	if prefix != "" {
		p := strings.TrimSuffix(prefix, "/") + "/"
		if !strings.HasPrefix(key, p) {
			return "", false
		}
		key = strings.TrimPrefix(key, p)
	}
	if key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}
