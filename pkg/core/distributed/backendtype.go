package distributed

import (
	"strings"

	"github.com/gomlx/collectives/pkg/core/devices"
)

// BackendType enumerates the transport kinds a ProcessGroup knows about.
// Its string representation is lower-case ("gloo", "nccl", ...), which is also the backend name
// used in Options.
type BackendType int

//go:generate go tool enumer -type=BackendType -trimprefix=Backend -transform=lower -output=gen_backendtype_enumer.go backendtype.go

const (
	BackendUndefined BackendType = iota
	BackendGloo
	BackendNCCL
	BackendUCC
	BackendMPI

	// BackendCustom is used for every backend name not otherwise enumerated.
	BackendCustom
)

// BackendTypeFromName converts a backend name to its BackendType.
// The empty name is BackendUndefined, and unknown names are BackendCustom.
func BackendTypeFromName(name string) BackendType {
	name = strings.TrimSpace(name)
	if name == "" {
		return BackendUndefined
	}
	backendType, err := BackendTypeString(name)
	if err != nil {
		return BackendCustom
	}
	return backendType
}

// SupportsSequenceNumbers returns whether groups with this backend type agree on sequence numbers.
func (b BackendType) SupportsSequenceNumbers() bool {
	return b == BackendGloo || b == BackendNCCL || b == BackendUCC
}

// DefaultBarrierDevice returns the device of a barrier's marker tensor, when none is given explicitly:
// CUDA for NCCL and CPU for everything else.
func (b BackendType) DefaultBarrierDevice() devices.Device {
	if b == BackendNCCL {
		return devices.New(devices.CUDA)
	}
	return devices.New(devices.CPU)
}
