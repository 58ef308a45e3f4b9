package session

import (
	"errors"
	"fmt"

	"github.com/srg/pmdrelay/internal/bledb"
)

// ErrConnectionLost is returned by Run when the BLE link drops while streaming.
var ErrConnectionLost = errors.New("connection lost")

// ErrAlreadyRunning is returned when Run is called on a session that has already run.
var ErrAlreadyRunning = errors.New("session already running")

// TransportError is a failed connect, read, write, subscribe or unsubscribe at
// the BLE layer. It is always fatal to the session.
type TransportError struct {
	Op   string // connect, read, write, subscribe, unsubscribe, disconnect
	UUID string // characteristic UUID, empty for connect and disconnect
	Err  error
}

func (e *TransportError) Error() string {
	if e.UUID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	name := bledb.LookupCharacteristic(e.UUID)
	if name == "" {
		name = e.UUID
	}
	return fmt.Sprintf("%s %s: %v", e.Op, name, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
