package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/distributed/config"
	"github.com/gomlx/collectives/pkg/core/distributed/launcher"
	"github.com/gomlx/collectives/pkg/core/distributed/metrics"
	"github.com/gomlx/collectives/pkg/core/dtypes"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// flags of the root command.
type flags struct {
	configPath  string
	worldSize   int
	backend     string
	device      string
	timeout     time.Duration
	redisAddr   string
	runID       string
	op          string
	dtype       string
	elements    int
	iterations  int
	warmup      int
	metricsAddr string
	noProgress  bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "pgbench",
		Short: "Benchmarks collectives on a world of in-process ranks",
		Long: `pgbench creates a world of in-process process groups connected by local backends, and measures the
latency and throughput of one collective, as seen by rank 0.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "YAML configuration of the world. See package config for the format.")
	fs.IntVar(&f.worldSize, "world_size", config.DefaultWorldSize, "Number of ranks.")
	fs.StringVar(&f.backend, "backend", "gloo", "Default backend: gloo, nccl, ucc, mpi or a custom name.")
	fs.StringVar(&f.device, "device", "", "Device of the tensors, e.g. \"cpu\" or \"cuda:0\". "+
		"Defaults to the device natural to the backend.")
	fs.DurationVar(&f.timeout, "timeout", 0, "Timeout of each operation. 0 uses the default.")
	fs.StringVar(&f.redisAddr, "redis", "", "Address of a Redis server to use as store. "+
		"If empty, an in-process store is used.")
	fs.StringVar(&f.runID, "run_id", "", "Namespace of the benchmark's keys in the store. "+
		"If empty, a unique one is generated for each run.")
	fs.StringVar(&f.op, "op", "allreduce", fmt.Sprintf("Operation to benchmark, one of %v.", benchOpNames()))
	fs.StringVar(&f.dtype, "dtype", "float32", "DType of the tensors.")
	fs.IntVar(&f.elements, "elements", 1<<16, "Number of elements of each rank's tensor.")
	fs.IntVar(&f.iterations, "iterations", 100, "Number of measured iterations.")
	fs.IntVar(&f.warmup, "warmup", 5, "Number of iterations run before measuring.")
	fs.StringVar(&f.metricsAddr, "metrics_addr", "", "If set, serves Prometheus metrics on http://<addr>/metrics "+
		"while the benchmark runs.")
	fs.BoolVar(&f.noProgress, "no_progress", false, "Disables the progress bar.")
	return cmd
}

// worldConfig merges the configuration file, if any, with the flags that were explicitly set.
func worldConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		cfg, err = config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
	} else if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	fs := cmd.Flags()
	if fs.Changed("world_size") {
		cfg.WorldSize = f.worldSize
	}
	if fs.Changed("backend") {
		cfg.Backend = f.backend
	}
	if fs.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if fs.Changed("run_id") {
		cfg.RunID = f.runID
	}
	if f.redisAddr != "" {
		cfg.Store.Type = config.StoreRedis
		cfg.Store.Addr = f.redisAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// benchDevice returns the device given by the flag, or the device natural to the default backend.
func benchDevice(cfg *config.Config, flag string) (devices.Device, error) {
	if flag == "" {
		return distributed.BackendTypeFromName(cfg.Backend).DefaultBarrierDevice(), nil
	}
	return devices.Parse(flag)
}

func run(cmd *cobra.Command, f *flags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := worldConfig(cmd, f)
	if err != nil {
		return err
	}
	dtype, err := dtypes.FromName(f.dtype)
	if err != nil {
		return err
	}
	device, err := benchDevice(cfg, f.device)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	if f.metricsAddr != "" {
		_, stop, err := serveMetrics(f.metricsAddr, collector)
		if err != nil {
			return err
		}
		defer stop()
	}

	world, err := launcher.NewLocalWorld(ctx, cfg, launcher.WithCollector(collector))
	if err != nil {
		return errors.WithMessage(err, "failed to create the world")
	}
	defer func() {
		if err := world.Shutdown(); err != nil {
			klog.Errorf("failed to shut down the world: %+v", err)
		}
	}()
	klog.V(1).Infof("benchmarking %s on %s", f.op, world)

	var onIteration func()
	if !f.noProgress {
		bar := newProgressBar(cmd.ErrOrStderr(), f.op, f.iterations)
		defer func() { _ = bar.Finish() }()
		onIteration = func() { _ = bar.Add(1) }
	}
	result, err := runBench(ctx, world, benchConfig{
		Op:         f.op,
		DType:      dtype,
		Device:     device,
		Elements:   f.elements,
		Iterations: f.iterations,
		Warmup:     f.warmup,
	}, onIteration)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), resultsTable(result))
	return err
}

func newProgressBar(w io.Writer, op string, iterations int) *progressbar.ProgressBar {
	return progressbar.NewOptions(iterations,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(op),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("ops"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// serveMetrics serves the collector on http://<addr>/metrics. It returns the address listened to, and the function
// that stops the server.
func serveMetrics(addr string, collector *metrics.Collector) (net.Addr, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to listen on %q for metrics", addr)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Errorf("metrics server failed: %+v", err)
		}
	}()
	klog.Infof("serving metrics on http://%s/metrics", listener.Addr())
	return listener.Addr(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
