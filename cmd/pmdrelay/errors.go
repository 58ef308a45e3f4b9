package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/pmdrelay/internal/device"
	"github.com/srg/pmdrelay/pkg/session"
)

// FormatUserError turns an error returned by a command into a one-line message
// for the terminal. Unknown errors are printed as they are.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var te *session.TransportError
	hasTransport := errors.As(err, &te)

	var nf *device.NotFoundError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, session.ErrConnectionLost):
		return "connection to the sensor was lost"
	case errors.As(err, &nf):
		return fmt.Sprintf("the sensor does not look like a Polar ECG sensor: %s", nf.Error())
	case hasTransport && te.Op == "connect" && errors.Is(err, device.ErrTimeout):
		return "timed out connecting to the sensor; make sure it is worn, awake and not paired with another app"
	case hasTransport && te.Op == "connect":
		return fmt.Sprintf("could not connect to the sensor: %v", te.Err)
	case hasTransport && errors.Is(err, device.ErrTimeout):
		return fmt.Sprintf("the sensor stopped responding (%s)", strings.TrimSuffix(te.Error(), ": "+te.Err.Error()))
	case hasTransport:
		return fmt.Sprintf("sensor communication failed: %s", te.Error())
	}
	return err.Error()
}
