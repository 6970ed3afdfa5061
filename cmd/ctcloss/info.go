package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/born-ml/ctcloss/ctc"
	"github.com/spf13/cobra"
	"golang.org/x/sys/cpu"
)

func newInfoCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show host features and available CTC backends",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "version:  %s (%s)\n", version, runtime.Version())
			fmt.Fprintf(w, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(w, "cpus:     %d (workers %d)\n", runtime.NumCPU(), o.workers)
			fmt.Fprintf(w, "features: %s\n", cpuFeatures())
			fmt.Fprintf(w, "kernels:  %s, %s, %s\n", ctc.KernelSequential, ctc.KernelParallel, ctc.KernelTiled)
			fmt.Fprintf(w, "webgpu:   %t\n", ctc.GPUAvailable())
		},
	}
}

func cpuFeatures() string {
	var features []string
	add := func(name string, ok bool) {
		if ok {
			features = append(features, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add("sse4.1", cpu.X86.HasSSE41)
		add("avx", cpu.X86.HasAVX)
		add("avx2", cpu.X86.HasAVX2)
		add("fma", cpu.X86.HasFMA)
		add("avx512f", cpu.X86.HasAVX512F)
	case "arm64":
		add("asimd", cpu.ARM64.HasASIMD)
		add("fphp", cpu.ARM64.HasFPHP)
		add("sve", cpu.ARM64.HasSVE)
	}
	if len(features) == 0 {
		return "none detected"
	}
	return strings.Join(features, " ")
}
