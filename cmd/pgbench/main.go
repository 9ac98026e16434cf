// pgbench runs a world of in-process ranks, connected by local backends, and benchmarks one collective.
//
// Examples:
//
//	pgbench --world_size=8 --op=allreduce --elements=1048576 --dtype=float32
//	pgbench --config=world.yaml --op=alltoall --metrics_addr=:9090
//
// The flags override the values of the configuration file, which override the defaults.
package main

import (
	goflag "flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	cmd := newRootCmd()
	cmd.PersistentFlags().AddGoFlagSet(goflag.CommandLine)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}
