//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/born-ml/ctcloss/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// gpuBuffer is a device buffer together with its bound size.
type gpuBuffer struct {
	*wgpu.Buffer
	size uint64
}

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Backend's shaders map.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[name]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()

	return shader
}

// pipeline returns a cached ComputePipeline for the shader, creating it on first use.
func (b *Backend) pipeline(name, code string) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	// Auto layout (nil): every binding must be statically used by the shader.
	pipeline := b.device.CreateComputePipelineSimple(nil, b.compileShader(name, code), "main")

	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()

	return pipeline
}

// padded rounds a buffer size up to a multiple of align, never below align.
// Zero-sized bindings are invalid, so an empty targets tensor still gets a word.
func padded(size, align uint64) uint64 {
	if size == 0 {
		return align
	}
	return (size + align - 1) &^ (align - 1)
}

// upload creates a storage buffer holding data.
func (b *Backend) upload(data []byte) gpuBuffer {
	size := padded(uint64(len(data)), 4)
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()

	return gpuBuffer{buffer, size}
}

// uniform creates a uniform buffer with 16-byte alignment.
func (b *Backend) uniform(data []byte) gpuBuffer {
	size := padded(uint64(len(data)), 16)
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()

	return gpuBuffer{buffer, size}
}

// storage creates a zero-initialized read-write storage buffer.
func (b *Backend) storage(size uint64) gpuBuffer {
	size = padded(size, 4)
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	return gpuBuffer{buffer, size}
}

// readBuffer reads size bytes back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
// Mapping waits for every previously submitted command.
func (b *Backend) readBuffer(src gpuBuffer, size uint64) ([]byte, error) {
	staged := padded(size, 4)
	stagingBuffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  staged,
	})
	defer stagingBuffer.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src.Buffer, 0, stagingBuffer, 0, staged)
	b.queue.Submit(encoder.Finish(nil))

	if err := stagingBuffer.MapAsync(b.device, wgpu.MapModeRead, 0, staged); err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, staged)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), staged)
	result := make([]byte, size)
	copy(result, mapped)
	stagingBuffer.Unmap()

	return result, nil
}

// bindGroup binds buffers to consecutive binding slots of group 0.
func (b *Backend) bindGroup(pipeline *wgpu.ComputePipeline, buffers ...gpuBuffer) *wgpu.BindGroup {
	entries := make([]wgpu.BindGroupEntry, len(buffers))
	for i, buf := range buffers {
		//nolint:gosec // G115: binding index is small
		entries[i] = wgpu.BufferBindingEntry(uint32(i), buf.Buffer, 0, buf.size)
	}
	return b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
}

// groups returns ceil(n / size) as a workgroup count.
func groups(n, size int) uint32 {
	//nolint:gosec // G115: workgroup count is non-negative
	return uint32((n + size - 1) / size)
}

// runElementwise executes a one-thread-per-element shader over same-shape
// float32 inputs. scalar is appended to the params when the shader takes one.
func (b *Backend) runElementwise(name, code string, scalar *float32, inputs ...*tensor.RawTensor) (*tensor.RawTensor, error) {
	first := inputs[0]
	for _, in := range inputs {
		if in.DType() != tensor.Float32 {
			return nil, fmt.Errorf("webgpu: only float32 is supported, got %s", in.DType())
		}
		if !in.Shape().Equal(first.Shape()) {
			return nil, fmt.Errorf("webgpu: shape mismatch: %v vs %v", first.Shape(), in.Shape())
		}
	}

	numElements := first.NumElements()
	//nolint:gosec // G115: Safe conversion, ByteSize() returns non-negative int
	resultSize := uint64(first.ByteSize())
	if numElements == 0 {
		return tensor.NewRaw(first.Shape(), tensor.Float32, tensor.WebGPU)
	}

	pipeline := b.pipeline(name, code)

	buffers := make([]gpuBuffer, 0, len(inputs)+2)
	for _, in := range inputs {
		buffers = append(buffers, b.upload(in.Data()))
	}
	result := b.storage(resultSize)
	buffers = append(buffers, result)

	params := make([]byte, 16)
	//nolint:gosec // G115: Safe conversion, NumElements() returns non-negative int
	binary.LittleEndian.PutUint32(params[0:4], uint32(numElements))
	if scalar != nil {
		binary.LittleEndian.PutUint32(params[4:8], math.Float32bits(*scalar))
	}
	buffers = append(buffers, b.uniform(params))
	defer func() {
		for _, buf := range buffers {
			buf.Release()
		}
	}()

	bindGroup := b.bindGroup(pipeline, buffers...)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(groups(numElements, workgroupSize), 1, 1)
	computePass.End()
	b.queue.Submit(encoder.Finish(nil))

	data, err := b.readBuffer(result, resultSize)
	if err != nil {
		return nil, err
	}

	out, err := tensor.NewRaw(first.Shape(), tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	copy(out.Data(), data)
	return out, nil
}

// runLogSoftmax normalizes the last dimension of a float32 tensor, one
// thread per row.
func (b *Backend) runLogSoftmax(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	if input.DType() != tensor.Float32 {
		return nil, fmt.Errorf("webgpu: only float32 is supported, got %s", input.DType())
	}
	shape := input.Shape()
	if len(shape) == 0 || input.NumElements() == 0 {
		return nil, fmt.Errorf("webgpu: logSoftmax needs a non-empty tensor, got %v", shape)
	}

	cols := shape[len(shape)-1]
	rows := input.NumElements() / cols
	//nolint:gosec // G115: Safe conversion, ByteSize() returns non-negative int
	resultSize := uint64(input.ByteSize())

	pipeline := b.pipeline("log_softmax", logSoftmaxShader)
	src := b.upload(input.Data())
	defer src.Release()
	result := b.storage(resultSize)
	defer result.Release()

	params := make([]byte, 16)
	//nolint:gosec // G115: Safe conversions, shape dimensions are non-negative
	binary.LittleEndian.PutUint32(params[0:4], uint32(rows))
	//nolint:gosec // G115: Safe conversions, shape dimensions are non-negative
	binary.LittleEndian.PutUint32(params[4:8], uint32(cols))
	uni := b.uniform(params)
	defer uni.Release()

	bindGroup := b.bindGroup(pipeline, src, result, uni)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(groups(rows, workgroupSize), 1, 1)
	computePass.End()
	b.queue.Submit(encoder.Finish(nil))

	data, err := b.readBuffer(result, resultSize)
	if err != nil {
		return nil, err
	}
	out, err := tensor.NewRaw(shape, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	copy(out.Data(), data)
	return out, nil
}
