package ctc

import (
	"github.com/born-ml/ctcloss/internal/tensor"
)

// Input groups the four tensors of one operator call.
type Input struct {
	LogProbs      *tensor.RawTensor // [T, B, C] float32/float64, log-softmax normalized
	Targets       *tensor.RawTensor // [B, S] int32/int64
	InputLengths  *tensor.RawTensor // [B] int32/int64
	TargetLengths *tensor.RawTensor // [B] int32/int64
}

// Validate checks an operator call and packs it into a Batch.
//
// Every fatal condition is reported here, before any lattice memory is
// allocated. Examples whose target cannot be aligned to their input are not
// an error; the Batch marks them infeasible and the kernels emit +Inf loss and
// a zero gradient for them.
func Validate(in Input, cfg Config) (*Batch, error) {
	if err := checkShapes(in); err != nil {
		return nil, err
	}

	lpShape := in.LogProbs.Shape()
	b := &Batch{
		MaxTime:    lpShape[0],
		Size:       lpShape[1],
		NumClasses: lpShape[2],
		MaxTarget:  in.Targets.Shape()[1],
		Blank:      cfg.Blank,
		LogProbs:   in.LogProbs,
	}

	if b.Blank < 0 || b.Blank >= b.NumClasses {
		return nil, lengthErr("blank", -1, "blank index %d outside [0, %d)", b.Blank, b.NumClasses)
	}

	states := 2*b.MaxTarget + 1
	perExample := int64(b.MaxTime) * int64(states)
	if cfg.MaxLatticeCells > 0 && perExample > int64(cfg.MaxLatticeCells) {
		return nil, limitErr("lattice of %d×%d cells exceeds per-example limit %d", b.MaxTime, states, cfg.MaxLatticeCells)
	}
	if total := perExample * int64(b.Size); cfg.MaxArenaCells > 0 && total > int64(cfg.MaxArenaCells) {
		return nil, limitErr("batch of %d lattices needs %d cells, limit %d", b.Size, total, cfg.MaxArenaCells)
	}

	var err error
	if b.InputLengths, err = boundedLengths("input_lengths", in.InputLengths, b.MaxTime); err != nil {
		return nil, err
	}
	if b.TargetLengths, err = boundedLengths("target_lengths", in.TargetLengths, b.MaxTarget); err != nil {
		return nil, err
	}
	if err := b.packTargets(in.Targets); err != nil {
		return nil, err
	}

	if b.DType() == tensor.Float32 {
		b.lp32 = in.LogProbs.AsFloat32()
	} else {
		b.lp64 = in.LogProbs.AsFloat64()
	}
	return b, nil
}

func checkShapes(in Input) error {
	named := []struct {
		name string
		raw  *tensor.RawTensor
		rank int
	}{
		{"log_probs", in.LogProbs, 3},
		{"targets", in.Targets, 2},
		{"input_lengths", in.InputLengths, 1},
		{"target_lengths", in.TargetLengths, 1},
	}

	for _, t := range named {
		if t.raw == nil {
			return shapeErr(t.name, "missing tensor")
		}
		if got := len(t.raw.Shape()); got != t.rank {
			return shapeErr(t.name, "expected rank %d, got shape %v", t.rank, t.raw.Shape())
		}
		if t.name == "log_probs" {
			if !t.raw.DType().IsFloat() {
				return shapeErr(t.name, "expected float32 or float64, got %s", t.raw.DType())
			}
		} else if !t.raw.DType().IsInt() {
			return shapeErr(t.name, "expected int32 or int64, got %s", t.raw.DType())
		}
	}

	batch := in.LogProbs.Shape()[1]
	for _, t := range named[1:] {
		if got := t.raw.Shape()[0]; got != batch {
			return shapeErr(t.name, "batch size %d does not match log_probs batch size %d", got, batch)
		}
	}
	if in.LogProbs.Shape()[2] == 0 {
		return shapeErr("log_probs", "class dimension is empty")
	}
	return nil
}

func boundedLengths(name string, raw *tensor.RawTensor, limit int) ([]int, error) {
	values := raw.Ints()
	out := make([]int, len(values))
	for i, v := range values {
		if v < 0 || v > int64(limit) {
			return nil, lengthErr(name, i, "length %d outside [0, %d]", v, limit)
		}
		out[i] = int(v)
	}
	return out, nil
}

func (b *Batch) packTargets(raw *tensor.RawTensor) error {
	values := raw.Ints()
	b.targets = make([]int32, len(values))
	b.minFrames = make([]int, b.Size)

	for n := 0; n < b.Size; n++ {
		row := values[n*b.MaxTarget : (n+1)*b.MaxTarget]
		length := b.TargetLengths[n]
		frames := length
		for k, v := range row[:length] {
			if v < 0 || v >= int64(b.NumClasses) {
				return lengthErr("targets", n, "label %d at position %d outside [0, %d)", v, k, b.NumClasses)
			}
			if v == int64(b.Blank) {
				return lengthErr("targets", n, "blank label %d at position %d", v, k)
			}
			if k > 0 && v == row[k-1] {
				frames++
			}
		}
		for k, v := range row {
			b.targets[n*b.MaxTarget+k] = int32(v)
		}
		b.minFrames[n] = frames
	}
	return nil
}
