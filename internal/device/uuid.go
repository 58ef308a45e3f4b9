package device

import (
	"fmt"

	"github.com/srg/pmdrelay/internal/bledb"
)

// NormalizeUUID is re-exported from bledb for convenience.
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(uuid)
		if normalized == "" {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}

// DisplayName returns the known name for a UUID, falling back to the UUID itself.
func DisplayName(uuid string) string {
	if name := bledb.LookupCharacteristic(uuid); name != "" {
		return name
	}
	if name := bledb.LookupService(uuid); name != "" {
		return name
	}
	return uuid
}
