package goble

import (
	"sort"

	"github.com/go-ble/ble"
	"github.com/srg/pmdrelay/internal/bledb"
	"github.com/srg/pmdrelay/internal/device"
)

// BLEService represents a discovered GATT service and its characteristics
type BLEService struct {
	uuid            string
	knownName       string
	Characteristics map[string]*BLECharacteristic
}

func (s *BLEService) UUID() string {
	return s.uuid
}

func (s *BLEService) KnownName() string {
	return s.knownName
}

func (s *BLEService) GetCharacteristics() []device.Characteristic {
	result := make([]device.Characteristic, 0, len(s.Characteristics))
	for _, char := range s.Characteristics {
		result = append(result, char)
	}
	// Sort by UUID for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].UUID() < result[j].UUID()
	})
	return result
}

// newService builds the service view of a discovered ble.Service, keyed by normalized UUIDs.
func newService(s *ble.Service, conn *BLEConnection) *BLEService {
	raw := s.UUID.String()
	svc := &BLEService{
		uuid:            device.NormalizeUUID(raw),
		knownName:       bledb.LookupService(raw),
		Characteristics: make(map[string]*BLECharacteristic, len(s.Characteristics)),
	}
	for _, c := range s.Characteristics {
		char := newCharacteristic(c, conn)
		svc.Characteristics[char.uuid] = char
	}
	return svc
}
