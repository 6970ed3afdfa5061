//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/ctcloss/internal/ctc"
	"github.com/born-ml/ctcloss/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// gpuFloor mirrors FLOOR in the CTC shaders: values at or below it are log(0).
const gpuFloor = -1.0e29

// Accepts reports whether the batch fits the device's buffer binding limit.
func (b *Backend) Accepts(batch *ctc.Batch) error {
	lattice := uint64(batch.Size) * uint64(batch.MaxTime) * uint64(2*batch.MaxTarget+1) * 4
	if lattice > b.maxBinding {
		return fmt.Errorf("webgpu: lattice of %d bytes exceeds binding limit %d", lattice, b.maxBinding)
	}
	logProbs := uint64(batch.LogProbs.NumElements()) * 4
	if logProbs > b.maxBinding {
		return fmt.Errorf("webgpu: log_probs of %d bytes exceeds binding limit %d", logProbs, b.maxBinding)
	}
	return nil
}

// CTCLoss computes the per-example negative log-likelihood on the device.
func (b *Backend) CTCLoss(batch *ctc.Batch) *tensor.RawTensor {
	if err := b.Accepts(batch); err != nil {
		panic("webgpu: CTCLoss: " + err.Error())
	}
	run := b.newCTCRun(batch)
	defer run.release()

	run.forward()
	totals, err := run.readTotals()
	if err != nil {
		panic("webgpu: CTCLoss: " + err.Error())
	}

	loss := batch.NewLoss(tensor.WebGPU)
	for n, total := range totals {
		v := math.Inf(1)
		if batch.Feasible(n) && total > gpuFloor {
			v = -float64(total)
		}
		setFloat(loss, n, v)
	}
	return loss
}

// CTCLossBackward computes dLoss/dLogProbs on the device.
func (b *Backend) CTCLossBackward(batch *ctc.Batch, upstream *tensor.RawTensor) *tensor.RawTensor {
	if err := b.Accepts(batch); err != nil {
		panic("webgpu: CTCLossBackward: " + err.Error())
	}
	run := b.newCTCRun(batch)
	defer run.release()

	run.forward()
	run.backward()
	data, err := run.gradient(ctc.UpstreamValues(batch, upstream))
	if err != nil {
		panic("webgpu: CTCLossBackward: " + err.Error())
	}

	grad := batch.NewGrad(tensor.WebGPU)
	for i := range batch.LogProbs.NumElements() {
		setFloat(grad, i, float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))))
	}
	return grad
}

// ctcRun holds the device buffers of one CTC invocation.
type ctcRun struct {
	backend *Backend
	batch   *ctc.Batch

	logProbs gpuBuffer
	targets  gpuBuffer
	lengths  gpuBuffer
	alpha    gpuBuffer
	beta     gpuBuffer
	totals   gpuBuffer

	// steps[t] is the params uniform with params.t = t.
	steps []gpuBuffer

	held []gpuBuffer
	bgs  []*wgpu.BindGroup
}

func (b *Backend) newCTCRun(batch *ctc.Batch) *ctcRun {
	states := 2*batch.MaxTarget + 1
	lattice := uint64(batch.Size) * uint64(batch.MaxTime) * uint64(states) * 4

	r := &ctcRun{backend: b, batch: batch}
	r.logProbs = b.upload(packLogProbs(batch.LogProbs))
	r.targets = b.upload(packInt32(batch.TargetsInt32()))
	r.lengths = b.upload(packLengths(batch))
	r.alpha = b.storage(lattice)
	r.beta = b.storage(lattice)
	r.totals = b.storage(uint64(batch.Size) * 4)

	steps := max(batch.MaxTime, 1)
	r.steps = make([]gpuBuffer, steps)
	for t := range steps {
		r.steps[t] = b.uniform(packParams(batch, states, t))
	}
	r.held = append(r.held, r.logProbs, r.targets, r.lengths, r.alpha, r.beta, r.totals)
	r.held = append(r.held, r.steps...)
	return r
}

func (r *ctcRun) release() {
	for _, bg := range r.bgs {
		bg.Release()
	}
	for _, buf := range r.held {
		buf.Release()
	}
}

// sweep encodes one dispatch per timestep in order. Successive dispatches
// see each other's writes, which is the barrier between timesteps.
func (r *ctcRun) sweep(name, code string, lattice gpuBuffer, timesteps []int) {
	b := r.backend
	pipeline := b.pipeline(name, code)
	x := groups(2*r.batch.MaxTarget+1, latticeWorkgroup)
	//nolint:gosec // G115: batch size is non-negative
	y := uint32(r.batch.Size)

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	for _, t := range timesteps {
		bg := b.bindGroup(pipeline, r.logProbs, r.targets, r.lengths, lattice, r.steps[t])
		r.bgs = append(r.bgs, bg)
		computePass.SetBindGroup(0, bg, nil)
		computePass.DispatchWorkgroups(x, y, 1)
	}
	computePass.End()
	b.queue.Submit(encoder.Finish(nil))
}

func (r *ctcRun) forward() {
	steps := make([]int, r.batch.MaxTime)
	for t := range steps {
		steps[t] = t
	}
	r.sweep("ctc_alpha", ctcAlphaShader, r.alpha, steps)

	b := r.backend
	pipeline := b.pipeline("ctc_total", ctcTotalShader)
	bg := b.bindGroup(pipeline, r.alpha, r.lengths, r.totals, r.steps[0])
	r.bgs = append(r.bgs, bg)

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bg, nil)
	computePass.DispatchWorkgroups(groups(r.batch.Size, latticeWorkgroup), 1, 1)
	computePass.End()
	b.queue.Submit(encoder.Finish(nil))
}

func (r *ctcRun) backward() {
	steps := make([]int, r.batch.MaxTime)
	for i := range steps {
		steps[i] = r.batch.MaxTime - 1 - i
	}
	r.sweep("ctc_beta", ctcBetaShader, r.beta, steps)
}

func (r *ctcRun) readTotals() ([]float32, error) {
	data, err := r.backend.readBuffer(r.totals, uint64(r.batch.Size)*4)
	if err != nil {
		return nil, err
	}
	out := make([]float32, r.batch.Size)
	for n := range out {
		out[n] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*n:]))
	}
	return out, nil
}

func (r *ctcRun) gradient(upstream []float64) ([]byte, error) {
	b := r.backend
	size := uint64(r.batch.LogProbs.NumElements()) * 4

	up := make([]float32, len(upstream))
	for i, v := range upstream {
		up[i] = float32(v)
	}
	upBuf := b.upload(packFloat32(up))
	grad := b.storage(size)
	r.held = append(r.held, upBuf, grad)

	pipeline := b.pipeline("ctc_grad", ctcGradShader)
	bg := b.bindGroup(pipeline, r.logProbs, r.targets, r.lengths, r.alpha, r.beta, r.totals, upBuf, grad, r.steps[0])
	r.bgs = append(r.bgs, bg)

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bg, nil)
	//nolint:gosec // G115: batch and time dimensions are non-negative
	computePass.DispatchWorkgroups(groups(r.batch.NumClasses, latticeWorkgroup), uint32(r.batch.Size), uint32(r.batch.MaxTime))
	computePass.End()
	b.queue.Submit(encoder.Finish(nil))

	return b.readBuffer(grad, size)
}

// packLogProbs narrows log-probs to f32 and clamps log(0) to the shader's NEG.
func packLogProbs(raw *tensor.RawTensor) []byte {
	values := raw.Floats()
	out := make([]float32, len(values))
	for i, v := range values {
		if v < -1.0e30 {
			v = -1.0e30
		}
		out[i] = float32(v)
	}
	return packFloat32(out)
}

func packFloat32(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func packInt32(values []int32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		//nolint:gosec // G115: labels are validated non-negative
		binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
	}
	return out
}

func packLengths(batch *ctc.Batch) []byte {
	values := make([]int32, 3*batch.Size)
	for n := 0; n < batch.Size; n++ {
		//nolint:gosec // G115: lengths are bounded by validated tensor dims
		values[n] = int32(batch.InputLengths[n])
		//nolint:gosec // G115: lengths are bounded by validated tensor dims
		values[batch.Size+n] = int32(batch.TargetLengths[n])
		if batch.Feasible(n) {
			values[2*batch.Size+n] = 1
		}
	}
	return packInt32(values)
}

func packParams(batch *ctc.Batch, states, t int) []byte {
	fields := []int{batch.MaxTime, batch.Size, batch.NumClasses, batch.MaxTarget, states, batch.Blank, t, 0}
	out := make([]byte, 4*len(fields))
	for i, v := range fields {
		//nolint:gosec // G115: dimensions are non-negative
		binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
	}
	return out
}

func setFloat(raw *tensor.RawTensor, i int, v float64) {
	if raw.DType() == tensor.Float32 {
		raw.AsFloat32()[i] = float32(v)
		return
	}
	raw.AsFloat64()[i] = v
}
