package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func TestVersion(t *testing.T) {
	out, _, code := execute(t, "version")
	require.Equal(t, 0, code)
	assert.Equal(t, "ctcloss "+version+"\n", out)
}

func TestInfo(t *testing.T) {
	out, _, code := execute(t, "info", "--workers", "3")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "workers 3")
	assert.Contains(t, out, "sequential, parallel, tiled")
	assert.Contains(t, out, "webgpu:")
}

func TestDemo(t *testing.T) {
	out, _, code := execute(t, "demo",
		"--steps", "12", "--batch", "3", "--classes", "5", "--min-target", "1", "--max-target", "4")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "grad shape:   [12 3 5]")
	assert.Contains(t, out, "infeasible:   0")
}

func TestDemo_CustomBlankAndTiledKernel(t *testing.T) {
	out, _, code := execute(t, "demo", "--blank", "4", "--kernel", "tiled",
		"--steps", "8", "--batch", "2", "--classes", "5", "--min-target", "1", "--max-target", "3")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "grad shape:   [8 2 5]")
}

func TestDemo_WebGPUFallsBackWithWarning(t *testing.T) {
	out, errOut, code := execute(t, "demo", "--device", "webgpu",
		"--steps", "6", "--batch", "2", "--classes", "4", "--min-target", "1", "--max-target", "3")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "grad shape:")
	if !strings.Contains(out, "WebGPU") {
		assert.Contains(t, errOut, "falling back to CPU backend")
	}
}

func TestCheck(t *testing.T) {
	out, _, code := execute(t, "check", "--steps", "20", "--batch", "6", "--classes", "7",
		"--min-target", "2", "--max-target", "6", "--workers", "3")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "cpu/parallel")
	assert.Contains(t, out, "cpu/tiled")
	assert.NotContains(t, out, "false")
}

func TestBench_Quick(t *testing.T) {
	if testing.Short() {
		t.Skip("bench runs full-size batches")
	}
	out, _, code := execute(t, "bench", "--quick", "--number", "1")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "time and target length (MB/s)")
	assert.Contains(t, out, "cpu/sequential")
	assert.NotContains(t, out, "batch size")
}

func TestEncode(t *testing.T) {
	out, _, code := execute(t, "encode", "--alphabet", "abc", "abba", "c")
	require.Equal(t, 0, code)
	assert.Equal(t, "encoder: chars (4 classes)\n"+
		"targets: [2, 4]\n"+
		"  1 2 2 1\n"+
		"  3 0 0 0\n"+
		"lengths: 4 1\n", out)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown kernel", []string{"demo", "--kernel", "warp"}, `unknown kernel "warp"`},
		{"unknown device", []string{"demo", "--device", "tpu"}, "tpu"},
		{"bad log level", []string{"version", "--log-level", "loud"}, "invalid --log-level"},
		{"blank outside classes", []string{"demo", "--blank", "9", "--classes", "4"}, "blank 9 outside [0, 4)"},
		{"bad target range", []string{"check", "--min-target", "5", "--max-target", "5"}, "target lengths"},
		{"unknown symbol", []string{"encode", "--alphabet", "ab", "abc"}, "unknown symbol"},
		{"encode with nonzero blank", []string{"encode", "--blank", "1", "a"}, "reserve label 0"},
		{"bench number", []string{"bench", "--number", "0"}, "--number must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, code := execute(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, errOut, tt.want)
		})
	}
}
