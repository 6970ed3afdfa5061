// Command ctcloss evaluates, checks and benchmarks the CTC loss on the CPU
// and WebGPU backends.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/born-ml/ctcloss/ctc"
	"github.com/born-ml/ctcloss/tensor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const version = "v0.1.0"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &options{}
	defer opts.close()

	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

// options holds the flags shared by every subcommand.
type options struct {
	blank       int
	seed        uint64
	device      string
	kernel      string
	workers     int
	logLevel    string
	metricsAddr string

	logger  *slog.Logger
	metrics *http.Server
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "ctcloss",
		Short:         "CTC loss and gradient on CPU and WebGPU",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.IntVar(&opts.blank, "blank", 0, "blank class index")
	flags.Uint64Var(&opts.seed, "seed", 42, "random seed for generated inputs")
	flags.StringVar(&opts.device, "device", "cpu", "device to run on (cpu, webgpu)")
	flags.StringVar(&opts.kernel, "kernel", "parallel", "CPU lattice kernel (sequential, parallel, tiled)")
	flags.IntVar(&opts.workers, "workers", runtime.NumCPU(), "worker goroutines for the parallel and tiled kernels")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	root.AddCommand(
		newVersionCmd(),
		newInfoCmd(opts),
		newDemoCmd(opts),
		newCheckCmd(opts),
		newBenchCmd(opts),
		newEncodeCmd(opts),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ctcloss %s\n", version)
		},
	}
}

func (o *options) setup(cmd *cobra.Command) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if o.metricsAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", o.metricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	o.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := o.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error("metrics server stopped", "error", err)
		}
	}()
	o.logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

func (o *options) close() {
	if o.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = o.metrics.Shutdown(ctx)
}

// config maps the shared flags onto a ctc.Config.
func (o *options) config() (ctc.Config, error) {
	kind, err := ctc.ParseKernelKind(o.kernel)
	if err != nil {
		return ctc.Config{}, err
	}
	return ctc.NewConfig(
		ctc.WithBlank(o.blank),
		ctc.WithKernel(kind),
		ctc.WithWorkers(o.workers),
	), nil
}

// dispatcher builds a dispatcher for the flags and a context naming the
// requested device. The caller must Close the dispatcher.
func (o *options) dispatcher(ctx context.Context, cfg ctc.Config) (*ctc.Dispatcher, context.Context, error) {
	dev, err := tensor.ParseDevice(o.device)
	if err != nil {
		return nil, nil, err
	}

	dopts := []ctc.DispatcherOption{ctc.WithConfig(cfg), ctc.WithLogger(o.logger)}
	if dev == tensor.WebGPU {
		dopts = append(dopts, ctc.WithGPU())
	}
	return ctc.NewDispatcher(dopts...), ctc.WithDevice(ctx, dev), nil
}
