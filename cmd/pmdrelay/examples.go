package main

const (
	exampleDeviceAddress = "A0:9E:1A:12:34:56"
	deviceAddressNote    = "Device address format: the sensor's Bluetooth address (a CoreBluetooth UUID on macOS)"
)
