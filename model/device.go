package model

import (
	"fmt"
	"runtime"
)

// Device selects the compute affinity for model math.
//
// Serial runs matrix ops on the calling goroutine; Parallel fans rows out
// across GOMAXPROCS workers. This is the CPU-only analogue of device
// placement: a one-time mutation of the model per inference run.
type Device string

// Supported devices.
const (
	DeviceSerial   Device = "serial"
	DeviceParallel Device = "parallel"
)

// Detect returns the best available device: parallel when more than one
// scheduler thread is usable, serial otherwise.
func Detect() Device {
	if runtime.GOMAXPROCS(0) > 1 {
		return DeviceParallel
	}
	return DeviceSerial
}

// ResolveDevice validates an explicit device name, or auto-detects when the
// name is empty.
func ResolveDevice(name string) (Device, error) {
	switch Device(name) {
	case "":
		return Detect(), nil
	case DeviceSerial, DeviceParallel:
		return Device(name), nil
	default:
		return "", fmt.Errorf("model: unknown device %q (supported: %s, %s)", name, DeviceSerial, DeviceParallel)
	}
}
