package distributed

import (
	"os"

	"k8s.io/klog/v2"
)

// DebugLevel controls the diagnostics a ProcessGroup emits. It is given at construction and never changes.
type DebugLevel int

//go:generate go tool enumer -type=DebugLevel -trimprefix=Debug -transform=upper -output=gen_debuglevel_enumer.go debuglevel.go

const (
	// DebugOff emits no extra diagnostics.
	DebugOff DebugLevel = iota

	// DebugInfo logs group lifecycle and checks sequence numbers on demand.
	DebugInfo

	// DebugDetail also logs every dispatched collective.
	DebugDetail
)

// DebugLevelEnv is the environment variable read by DebugLevelFromEnv: "OFF", "INFO" or "DETAIL".
const DebugLevelEnv = "DISTRIBUTED_DEBUG"

// DebugLevelFromEnv returns the DebugLevel configured in the environment variable DISTRIBUTED_DEBUG.
// It defaults to DebugOff if not set, or if set to an invalid value (a warning is logged).
func DebugLevelFromEnv() DebugLevel {
	value, found := os.LookupEnv(DebugLevelEnv)
	if !found || value == "" {
		return DebugOff
	}
	level, err := DebugLevelString(value)
	if err != nil {
		klog.Warningf("invalid value for $%s=%q, valid values are %v: using OFF", DebugLevelEnv, value, DebugLevelStrings())
		return DebugOff
	}
	return level
}
