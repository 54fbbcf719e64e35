package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/docker/go-units"
	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emberhq/ember/pkg/devices"
	"github.com/emberhq/ember/pkg/vm"
	"github.com/emberhq/ember/pkg/vmconfig"
	"github.com/emberhq/ember/pkg/vmm"
)

// hypervisorStub stands in for the execution core so the control loop
// can be exercised end to end without a KVM-capable host.
type hypervisorStub struct {
	log types.Logger
}

func (h hypervisorStub) Boot(kernel *vm.KernelConfig, config vmconfig.Config, em *vm.EventManager, filters vm.SeccompFilters) error {
	if h.log != nil {
		h.log.Info().Str("cmdline", kernel.Cmdline).Uint64("memMiB", config.MemSizeMiB).Uint64("vcpus", uint64(config.VCPUCount)).Msg("boot requested")
	}
	return nil
}

func main() {
	kernelPath := flag.String("kernel", "vmlinux", "Guest kernel image path")
	initrdPath := flag.String("initrd", "", "Guest initrd path (optional)")
	bootArgs := flag.String("boot-args", "", "Guest kernel command line (defaults to the built-in one)")
	vcpus := flag.Uint("vcpus", 2, "vCPU count")
	maxVCPUs := flag.Uint("max-vcpus", 2, "Maximum vCPU count")
	memory := flag.String("memory", "512M", "Guest memory size (human-readable, rounded to MiB)")
	memType := flag.String("mem-type", vmconfig.MemTypeShmem, "Guest memory backing type")
	memFilePath := flag.String("mem-file", "", "Backing file path (required for hugetlbfs)")
	serialPath := flag.String("serial", "", "Serial console path (defaults to the per-instance path)")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve Prometheus metrics on (disabled if empty)")

	flag.Parse()

	log := logging.New(logging.Zerolog, "ember", os.Stderr)

	memBytes, err := units.RAMInBytes(*memory)
	if err != nil {
		log.Error().Err(err).Msg("could not parse memory size")
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt)

	reg := prometheus.NewRegistry()
	metrics := vmm.NewMetrics(reg)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			err := http.ListenAndServe(*metricsAddr, mux)
			if err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	bridge := vmm.NewBridge()
	registry := devices.NewRegistry(log)
	service := vmm.NewService(log, bridge, registry, metrics)

	machine := vm.NewVM(log, hypervisorStub{log: log}, vm.SeccompFilters{})
	eventMgr := vm.NewEventManager(log)

	log.Info().Str("id", machine.ID()).Msg("created microVM instance")

	// Dispatcher loop: same thread that would advance the event loop.
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		for !eventMgr.ExitTriggered() {
			service.ProcessRequest(machine, eventMgr)
			time.Sleep(10 * time.Millisecond)
		}
	}()

	call := func(action vmm.Action) {
		response, err := bridge.Call(ctx, action)
		if err != nil {
			log.Error().Err(err).Str("action", action.Name()).Msg("could not submit action")
			panic(err)
		}
		if !response.Ok() {
			log.Error().Err(response.Err).Str("action", action.Name()).Msg("action failed")
			panic(response.Err)
		}
	}

	call(vmm.SetVMConfiguration{Config: vmconfig.Config{
		VCPUCount:    uint16(*vcpus),
		MaxVCPUCount: uint16(*maxVCPUs),
		MemSizeMiB:   uint64(memBytes) / units.MiB,
		MemType:      *memType,
		MemFilePath:  *memFilePath,
		SerialPath:   *serialPath,
	}})
	call(vmm.ConfigureBootSource{Config: vmm.BootSourceConfig{
		KernelPath: *kernelPath,
		InitrdPath: *initrdPath,
		BootArgs:   *bootArgs,
	}})
	call(vmm.StartMicroVM{})

	log.Info().Msg("microVM running, press CTRL-C to shut down")

	<-done
	log.Info().Msg("Exiting gracefully")

	call(vmm.ShutdownMicroVM{})
	<-loopDone
}
