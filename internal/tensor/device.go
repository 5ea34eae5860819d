package tensor

import (
	"fmt"
	"strings"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

var allDevices = []Device{CPU, CUDA, Vulkan, Metal, WebGPU}

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// ParseDevice parses a device name case-insensitively. The empty string is CPU.
func ParseDevice(s string) (Device, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return CPU, nil
	}
	for _, d := range allDevices {
		if strings.EqualFold(d.String(), name) {
			return d, nil
		}
	}
	return CPU, fmt.Errorf("unknown device %q", s)
}
