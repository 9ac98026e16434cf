// Package config loads the configuration of a world of process groups from YAML files and the environment.
//
// A configuration file looks like:
//
//	backend: gloo
//	timeout: 30s
//	world_size: 4
//	group_name: trainers
//	run_id: job-1234
//	debug_level: INFO
//	devices:
//	  cpu: gloo
//	  cuda: nccl
//	store:
//	  type: redis
//	  addr: localhost:6379
//	  prefix: trainers/
//
// Environment variables (see ApplyEnv) take precedence over the file.
package config

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Environment variables that override the configuration. The debug level is read from
// distributed.DebugLevelEnv ("DISTRIBUTED_DEBUG").
const (
	BackendEnv   = "DISTRIBUTED_BACKEND"
	TimeoutEnv   = "DISTRIBUTED_TIMEOUT"
	WorldSizeEnv = "DISTRIBUTED_WORLD_SIZE"
	StoreAddrEnv = "DISTRIBUTED_STORE_ADDR"
	RunIDEnv     = "DISTRIBUTED_RUN_ID"
)

// Store types.
const (
	StoreHash  = "hash"
	StoreRedis = "redis"
)

// DefaultWorldSize is used when world_size is not given.
const DefaultWorldSize = 2

// Config of a world of process groups, one per rank, all with the same backends.
type Config struct {
	// Backend is the name of the groups' default backend, e.g. "gloo".
	Backend string `yaml:"backend"`

	// Timeout of the operations that don't set one. A string like "30s" or "5m".
	Timeout time.Duration `yaml:"timeout,omitempty"`

	WorldSize int    `yaml:"world_size"`
	GroupName string `yaml:"group_name,omitempty"`
	GroupDesc string `yaml:"group_desc,omitempty"`

	// BoundDevice, e.g. "cuda:0". It must have an index.
	BoundDevice string `yaml:"bound_device,omitempty"`

	// DebugLevel is one of "OFF", "INFO" or "DETAIL".
	DebugLevel string `yaml:"debug_level,omitempty"`

	// Devices maps device types to backend names. If empty, the device type natural to the default backend
	// is used: cuda for nccl, cpu otherwise.
	Devices map[string]string `yaml:"devices,omitempty"`

	// RunID namespaces the store keys of one job, so jobs sharing a store don't see each other's values.
	// If empty, the launcher generates a unique one.
	RunID string `yaml:"run_id,omitempty"`

	// MaxParallelism of each backend's transfers: 0 uses the world size.
	MaxParallelism int `yaml:"max_parallelism,omitempty"`

	Store StoreConfig `yaml:"store"`
}

// StoreConfig selects the key-value store shared by the ranks.
type StoreConfig struct {
	// Type is "hash" (in-process, the default) or "redis".
	Type string `yaml:"type,omitempty"`

	// Addr of the Redis server, "host:port".
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`

	// Prefix prepended to every key.
	Prefix string `yaml:"prefix,omitempty"`

	// Timeout of blocking Get calls. If 0, it uses store.DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Default returns the configuration of a world of DefaultWorldSize ranks using gloo on CPU and an in-process
// store.
func Default() *Config {
	return &Config{
		Backend:   distributed.BackendGloo.String(),
		WorldSize: DefaultWorldSize,
		Store:     StoreConfig{Type: StoreHash},
	}
}

// Load reads and parses the YAML configuration in path, applies the environment overrides and validates it.
// Environment variables and a leading "~" in path are expanded.
func Load(path string) (*Config, error) {
	path, err := fsutil.ExpandPath(path)
	if err != nil {
		return nil, errors.Wrapf(distributed.ErrConfiguration, "invalid configuration path: %v", err)
	}
	exists, err := fsutil.FileExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Wrapf(distributed.ErrConfiguration, "configuration %q not found", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration %q", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "configuration %q", path)
	}
	return cfg, nil
}

// Parse the YAML configuration on top of Default(), applies the environment overrides and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides the configuration with the environment variables that are set (and not empty).
func (c *Config) ApplyEnv() error {
	if value := os.Getenv(BackendEnv); value != "" {
		c.Backend = value
	}
	if value := os.Getenv(TimeoutEnv); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return errors.Wrapf(distributed.ErrConfiguration, "invalid $%s=%q: %v", TimeoutEnv, value, err)
		}
		c.Timeout = timeout
	}
	if value := os.Getenv(WorldSizeEnv); value != "" {
		size, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrapf(distributed.ErrConfiguration, "invalid $%s=%q: %v", WorldSizeEnv, value, err)
		}
		c.WorldSize = size
	}
	if value := os.Getenv(RunIDEnv); value != "" {
		c.RunID = value
	}
	if value := os.Getenv(distributed.DebugLevelEnv); value != "" {
		c.DebugLevel = value
	}
	if value := os.Getenv(StoreAddrEnv); value != "" {
		c.Store.Addr = value
		if c.Store.Type == "" || c.Store.Type == StoreHash {
			c.Store.Type = StoreRedis
		}
	}
	return nil
}

// Validate checks the configuration is consistent. Errors wrap distributed.ErrConfiguration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend) == "" {
		return errors.Wrap(distributed.ErrConfiguration, "backend is required")
	}
	if c.WorldSize <= 0 {
		return errors.Wrapf(distributed.ErrConfiguration, "world_size must be > 0, got %d", c.WorldSize)
	}
	if c.Timeout < 0 {
		return errors.Wrapf(distributed.ErrConfiguration, "timeout must be >= 0, got %s", c.Timeout)
	}
	if c.MaxParallelism < 0 {
		return errors.Wrapf(distributed.ErrConfiguration, "max_parallelism must be >= 0, got %d", c.MaxParallelism)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.Device(); err != nil {
		return err
	}
	deviceBackends, err := c.DeviceBackends()
	if err != nil {
		return err
	}
	defaultType := distributed.BackendTypeFromName(c.Backend)
	found := false
	for _, backendType := range deviceBackends {
		if backendType == defaultType {
			found = true
			break
		}
	}
	if !found {
		return errors.Wrapf(distributed.ErrConfiguration, "default backend %q is not used by any device type in %v",
			c.Backend, c.Devices)
	}
	switch c.Store.Type {
	case "", StoreHash:
	case StoreRedis:
		if c.Store.Addr == "" {
			return errors.Wrap(distributed.ErrConfiguration, "store.addr is required for a redis store")
		}
	default:
		return errors.Wrapf(distributed.ErrConfiguration, "invalid store.type %q, valid values are %q and %q",
			c.Store.Type, StoreHash, StoreRedis)
	}
	if c.Store.Timeout < 0 {
		return errors.Wrapf(distributed.ErrConfiguration, "store.timeout must be >= 0, got %s", c.Store.Timeout)
	}
	return nil
}

// Options returns the distributed.Options of the groups.
func (c *Config) Options() distributed.Options {
	return distributed.Options{Backend: c.Backend, Timeout: c.Timeout}
}

// Level returns the parsed debug level. An empty value is distributed.DebugOff.
func (c *Config) Level() (distributed.DebugLevel, error) {
	if c.DebugLevel == "" {
		return distributed.DebugOff, nil
	}
	level, err := distributed.DebugLevelString(strings.ToUpper(c.DebugLevel))
	if err != nil {
		return distributed.DebugOff, errors.Wrapf(distributed.ErrConfiguration, "invalid debug_level %q, valid values are %v",
			c.DebugLevel, distributed.DebugLevelStrings())
	}
	return level, nil
}

// Device returns the parsed bound device, or nil if there is none.
func (c *Config) Device() (*devices.Device, error) {
	if c.BoundDevice == "" {
		return nil, nil
	}
	device, err := devices.Parse(c.BoundDevice)
	if err != nil {
		return nil, errors.Wrapf(distributed.ErrConfiguration, "invalid bound_device: %v", err)
	}
	if !device.HasIndex() {
		return nil, errors.Wrapf(distributed.ErrConfiguration, "bound_device %q must have an index, e.g. %q",
			c.BoundDevice, device.String()+":0")
	}
	return &device, nil
}

// DeviceBinding associates a device type to the backend type serving it.
type DeviceBinding struct {
	DeviceType  devices.DeviceType
	BackendType distributed.BackendType
}

// DeviceBackends returns the backend type serving each configured device type.
func (c *Config) DeviceBackends() (map[devices.DeviceType]distributed.BackendType, error) {
	result := make(map[devices.DeviceType]distributed.BackendType)
	if len(c.Devices) == 0 {
		backendType := distributed.BackendTypeFromName(c.Backend)
		result[backendType.DefaultBarrierDevice().Type] = backendType
		return result, nil
	}
	for deviceName, backendName := range c.Devices {
		deviceType, err := devices.DeviceTypeString(strings.ToLower(strings.TrimSpace(deviceName)))
		if err != nil {
			return nil, errors.Wrapf(distributed.ErrConfiguration, "invalid device type %q in devices, valid values are %v",
				deviceName, devices.DeviceTypeStrings())
		}
		backendType := distributed.BackendTypeFromName(backendName)
		if backendType == distributed.BackendUndefined {
			return nil, errors.Wrapf(distributed.ErrConfiguration, "device type %q has no backend", deviceName)
		}
		result[deviceType] = backendType
	}
	return result, nil
}

// Bindings returns DeviceBackends as a list sorted by device type. It must only be called on a validated
// configuration.
func (c *Config) Bindings() []DeviceBinding {
	deviceBackends, err := c.DeviceBackends()
	if err != nil {
		klog.Errorf("invalid devices configuration: %+v", err)
		return nil
	}
	bindings := make([]DeviceBinding, 0, len(deviceBackends))
	for deviceType, backendType := range deviceBackends {
		bindings = append(bindings, DeviceBinding{DeviceType: deviceType, BackendType: backendType})
	}
	slices.SortFunc(bindings, func(a, b DeviceBinding) int { return int(a.DeviceType) - int(b.DeviceType) })
	return bindings
}

// String returns the configuration as YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(data)
}
