// Package device defines the transport-neutral view of a BLE peripheral used
// by the streaming session: connect and disconnect, characteristic lookup,
// read and write with timeouts, and notification subscriptions.
//
// The go-ble subpackage provides the implementation; tests substitute fakes.
package device
