// Package launcher creates a world of in-process process groups, one per rank, from a config.Config.
//
// All ranks share one store (in-process or Redis) and one local.Fabric per backend type, so a World behaves
// like a multi-process job whose ranks happen to be goroutines. It is used by tests and benchmarks.
package launcher

import (
	"context"
	"fmt"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/distributed/backends/local"
	"github.com/gomlx/collectives/pkg/core/distributed/config"
	"github.com/gomlx/collectives/pkg/core/distributed/metrics"
	"github.com/gomlx/collectives/pkg/core/distributed/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// World of in-process ranks.
type World struct {
	config  *config.Config
	runID   string
	store   store.Store
	fabrics map[distributed.BackendType]*local.Fabric
	groups  []*distributed.ProcessGroup

	// closeStore is set if the store was created by the World.
	closeStore func() error
}

// Option of NewLocalWorld.
type Option func(*options)

type options struct {
	store     store.Store
	collector *metrics.Collector
	registry  func() *distributed.Registry
}

// WithStore uses the given store instead of creating the one configured. The World won't close it.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithCollector instruments every group with the collector: its completion hooks and its registry
// interceptor.
func WithCollector(collector *metrics.Collector) Option {
	return func(o *options) { o.collector = collector }
}

// WithRegistry sets the factory of the registry of each group. By default, each group gets its own
// distributed.NewRegistry().
func WithRegistry(newRegistry func() *distributed.Registry) Option {
	return func(o *options) { o.registry = newRegistry }
}

// NewLocalWorld creates cfg.WorldSize groups connected with local backends, one per distinct backend type
// in cfg.Devices. cfg must be valid (see config.Config.Validate).
//
// The keys of the groups live in the store under "<run id>/<group name>/", where the run id is cfg.RunID
// or, if empty, a new unique id.
//
// If the default backend supports sequence numbers, the ranks agree on one before returning.
// If cfg.BoundDevice is set to "<type>:<i>", rank r is bound to "<type>:<i+r>".
func NewLocalWorld(ctx context.Context, cfg *config.Config, opts ...Option) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{registry: distributed.NewRegistry}
	for _, opt := range opts {
		opt(o)
	}
	w := &World{
		config:  cfg,
		runID:   cfg.RunID,
		store:   o.store,
		fabrics: make(map[distributed.BackendType]*local.Fabric),
	}
	if err := w.build(ctx, o); err != nil {
		if shutdownErr := w.Shutdown(); shutdownErr != nil {
			klog.Warningf("failed to shut down partially created world: %+v", shutdownErr)
		}
		return nil, err
	}
	klog.V(1).Infof("local world %s of %d ranks created: backend %s, devices %v",
		w.runID, cfg.WorldSize, cfg.Backend, cfg.Bindings())
	return w, nil
}

// build creates the store, fabrics and groups of the world.
func (w *World) build(ctx context.Context, o *options) error {
	cfg := w.config
	level, _ := cfg.Level()
	boundDevice, _ := cfg.Device()
	bindings := cfg.Bindings()
	if w.store == nil {
		w.store, w.closeStore = newStore(cfg.Store)
	}
	if w.runID == "" {
		w.runID = uuid.NewString()
	}
	for _, binding := range bindings {
		if _, found := w.fabrics[binding.BackendType]; !found {
			w.fabrics[binding.BackendType] = local.NewFabric(cfg.WorldSize)
		}
	}

	groupPrefix := cfg.GroupName
	if groupPrefix == "" {
		groupPrefix = "default"
	}
	for rank := range cfg.WorldSize {
		groupStore := store.NewPrefixStore(w.runID+"/"+groupPrefix, w.store)
		groupConfig := distributed.GroupConfig{
			Store:      groupStore,
			Rank:       rank,
			Size:       cfg.WorldSize,
			Options:    cfg.Options(),
			Registry:   o.registry(),
			DebugLevel: level,
			GroupName:  cfg.GroupName,
			GroupDesc:  cfg.GroupDesc,
		}
		if boundDevice != nil {
			groupConfig.BoundDevice = devices.Ptr(devices.WithIndex(boundDevice.Type, boundDevice.Index+rank))
		}
		pg, err := distributed.NewProcessGroup(groupConfig)
		if err != nil {
			return errors.WithMessagef(err, "rank %d", rank)
		}
		w.groups = append(w.groups, pg)

		rankBackends := make(map[distributed.BackendType]*local.Backend)
		for _, binding := range bindings {
			backend, found := rankBackends[binding.BackendType]
			if !found {
				backend, err = local.New(w.fabrics[binding.BackendType], rank, groupStore, local.Config{
					Kind:           binding.BackendType,
					Timeout:        cfg.Timeout,
					MaxParallelism: cfg.MaxParallelism,
				})
				if err != nil {
					return errors.WithMessagef(err, "rank %d", rank)
				}
				rankBackends[binding.BackendType] = backend
			}
			if err := pg.SetBackend(binding.DeviceType, binding.BackendType, backend); err != nil {
				return err
			}
		}
		if o.collector != nil {
			if err := o.collector.Instrument(pg); err != nil {
				return err
			}
			pg.Registry().Intercept(o.collector.Interceptor())
		}
	}

	if distributed.BackendTypeFromName(cfg.Backend).SupportsSequenceNumbers() {
		err := w.Run(ctx, func(_ context.Context, pg *distributed.ProcessGroup) error {
			return pg.SetSequenceNumberForGroup()
		})
		if err != nil {
			return errors.WithMessage(err, "failed to agree on the sequence number")
		}
	}
	return nil
}

// newStore creates the store configured, and the function to close it, if any.
func newStore(cfg config.StoreConfig) (store.Store, func() error) {
	if cfg.Type == config.StoreRedis {
		var redisOpts []store.RedisOption
		if cfg.Prefix != "" {
			redisOpts = append(redisOpts, store.WithPrefix(cfg.Prefix))
		}
		if cfg.Timeout > 0 {
			redisOpts = append(redisOpts, store.WithTimeout(cfg.Timeout))
		}
		redisStore := store.NewRedisStore(cfg.Addr, cfg.Password, cfg.DB, redisOpts...)
		return redisStore, redisStore.Close
	}
	var s store.Store = store.NewHashStore(cfg.Timeout)
	if cfg.Prefix != "" {
		s = store.NewPrefixStore(cfg.Prefix, s)
	}
	return s, nil
}

// Config returns the configuration of the world.
func (w *World) Config() *config.Config { return w.config }

// RunID namespacing the world's keys in the store.
func (w *World) RunID() string { return w.runID }

// Size is the number of ranks.
func (w *World) Size() int { return len(w.groups) }

// Store shared by all ranks.
func (w *World) Store() store.Store { return w.store }

// Group returns the process group of rank.
func (w *World) Group(rank int) *distributed.ProcessGroup { return w.groups[rank] }

// Groups returns the process groups, indexed by rank.
func (w *World) Groups() []*distributed.ProcessGroup { return w.groups }

// Fabric returns the fabric connecting the backends of backendType, or nil if there is none.
func (w *World) Fabric(backendType distributed.BackendType) *local.Fabric { return w.fabrics[backendType] }

// Run calls fn concurrently for every rank, and waits for all of them.
// It returns the first error, and the context passed to fn is cancelled when any rank fails.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, pg *distributed.ProcessGroup) error) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, pg := range w.groups {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Errorf("rank %d panicked: %v", pg.Rank(), r)
				}
			}()
			if err := fn(gCtx, pg); err != nil {
				return errors.WithMessagef(err, "rank %d", pg.Rank())
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown shuts down every group, closes the fabrics and the store created by the World.
func (w *World) Shutdown() error {
	for _, pg := range w.groups {
		pg.Shutdown()
	}
	for _, fabric := range w.fabrics {
		fabric.Close()
	}
	if w.closeStore != nil {
		closeStore := w.closeStore
		w.closeStore = nil
		if err := closeStore(); err != nil {
			return errors.Wrap(err, "failed to close the store")
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (w *World) String() string {
	return fmt.Sprintf("World(run=%s, size=%d, backend=%s)", w.runID, w.Size(), w.config.Backend)
}
