// Package devices defines the device families (DeviceType) tensors live on, and a Device, a device family
// with an optional index of the physical device.
//
// Devices are used by the process groups to route collectives to the backend (transport) responsible for
// a device family, and to "bind" a group to one physical device.
package devices

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DeviceType is an enum of device families. The string representation is lower-case ("cpu", "cuda", ...).
type DeviceType int

//go:generate go tool enumer -type=DeviceType -transform=lower -output=gen_devicetype_enumer.go devices.go

const (
	CPU DeviceType = iota
	CUDA
	HIP
	XLA
	XPU
	MPS
	Meta
	HPU
	MTIA
	PrivateUse1
)

// NoIndex is the value of Device.Index when the device has no explicit index.
const NoIndex = -1

// Device is a device family plus an optional index of the physical device.
//
// The zero value is "cpu:0". Use New to create a device without index.
type Device struct {
	Type  DeviceType
	Index int
}

// New returns a device of the given type without an explicit index.
func New(deviceType DeviceType) Device {
	return Device{Type: deviceType, Index: NoIndex}
}

// WithIndex returns a device of the given type and index.
func WithIndex(deviceType DeviceType, index int) Device {
	return Device{Type: deviceType, Index: index}
}

// HasIndex returns whether the device has an explicit index.
func (d Device) HasIndex() bool {
	return d.Index >= 0
}

// String implements fmt.Stringer: "cuda:1" or "cpu" if there is no index.
func (d Device) String() string {
	if !d.HasIndex() {
		return d.Type.String()
	}
	return fmt.Sprintf("%s:%d", d.Type, d.Index)
}

// Parse a device in the format "<type>[:<index>]", e.g.: "cpu", "cuda:1".
func Parse(s string) (Device, error) {
	typeName, indexStr, hasIndex := strings.Cut(strings.TrimSpace(s), ":")
	deviceType, err := DeviceTypeString(typeName)
	if err != nil {
		return Device{}, errors.Errorf("invalid device %q: unknown device type %q", s, typeName)
	}
	if !hasIndex {
		return New(deviceType), nil
	}
	index, err := strconv.Atoi(indexStr)
	if err != nil || index < 0 {
		return Device{}, errors.Errorf("invalid device %q: index must be a non-negative integer", s)
	}
	return WithIndex(deviceType, index), nil
}

// MustParse is like Parse, but panics on error.
func MustParse(s string) Device {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Same returns whether two optional devices are the same: both nil, or both set and equal.
func Same(a, b *Device) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Ptr returns a pointer to a copy of d, convenient to set optional device fields.
func Ptr(d Device) *Device {
	return &d
}
