//go:build windows

package webgpu

// workgroupSize is the number of threads per workgroup of the element-wise shaders.
const workgroupSize = 256

// latticeWorkgroup is the number of lattice states or classes one CTC
// workgroup covers along x.
const latticeWorkgroup = 64

// binaryShader returns an element-wise shader computing result = a <op> b.
func binaryShader(op string) string {
	return `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = a[idx] ` + op + ` b[idx];
    }
}
`
}

// scalarShader returns an element-wise shader computing result = x <op> scalar.
func scalarShader(op string) string {
	return `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
    scalar: f32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = x[idx] ` + op + ` params.scalar;
    }
}
`
}

// unaryShader returns an element-wise shader computing result = fn(x).
func unaryShader(fn string) string {
	return `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = ` + fn + `(x[idx]);
    }
}
`
}

// logSoftmaxShader normalizes each row of a [rows, cols] matrix in log space.
const logSoftmaxShader = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    rows: u32,
    cols: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.x;
    if (row >= params.rows) {
        return;
    }
    let base = row * params.cols;

    var m = x[base];
    for (var i = 1u; i < params.cols; i = i + 1u) {
        m = max(m, x[base + i]);
    }
    var sum = 0.0;
    for (var i = 0u; i < params.cols; i = i + 1u) {
        sum = sum + exp(x[base + i] - m);
    }
    let lse = m + log(sum);
    for (var i = 0u; i < params.cols; i = i + 1u) {
        result[base + i] = x[base + i] - lse;
    }
}
`

// ctcCommon is shared by the CTC shaders.
//
// WGSL does not guarantee IEEE infinities, so log(0) is represented by
// NEG and anything at or below FLOOR counts as log(0).
//
// lengths packs three [B] arrays: input lengths, target lengths and a
// feasibility flag. Lattices are laid out [B, T, L] with L = 2·S+1.
const ctcCommon = `
const NEG: f32 = -1.0e30;
const FLOOR: f32 = -1.0e29;

struct Params {
    max_time: u32,
    batch: u32,
    classes: u32,
    max_target: u32,
    states: u32,
    blank: u32,
    t: u32,
    pad: u32,
}

fn lae(a: f32, b: f32) -> f32 {
    let m = max(a, b);
    if (m <= FLOOR) {
        return NEG;
    }
    return m + log(exp(a - m) + exp(b - m));
}

fn frames(n: u32) -> u32 {
    return u32(lengths[n]);
}

fn lattice_states(n: u32) -> u32 {
    return 2u * u32(lengths[params.batch + n]) + 1u;
}

fn feasible(n: u32) -> bool {
    return lengths[2u * params.batch + n] != 0;
}

fn cell(n: u32, t: u32, s: u32) -> u32 {
    return (n * params.max_time + t) * params.states + s;
}
`

// ctcLabelFns need the targets and log_probs bindings.
const ctcLabelFns = `
fn label(n: u32, s: u32) -> u32 {
    if (s % 2u == 0u) {
        return params.blank;
    }
    return u32(targets[n * params.max_target + s / 2u]);
}

fn lp(t: u32, n: u32, c: u32) -> f32 {
    return log_probs[(t * params.batch + n) * params.classes + c];
}
`

// ctcAlphaShader advances the forward lattice by one timestep params.t.
// Grid: x over states, y over examples.
const ctcAlphaShader = `
@group(0) @binding(0) var<storage, read> log_probs: array<f32>;
@group(0) @binding(1) var<storage, read> targets: array<i32>;
@group(0) @binding(2) var<storage, read> lengths: array<i32>;
@group(0) @binding(3) var<storage, read_write> alpha: array<f32>;
@group(0) @binding(4) var<uniform> params: Params;
` + ctcCommon + ctcLabelFns + `
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let s = gid.x;
    let n = gid.y;
    let t = params.t;
    if (n >= params.batch || !feasible(n)) {
        return;
    }
    let states = lattice_states(n);
    if (s >= states || t >= frames(n)) {
        return;
    }

    let emit = lp(t, n, label(n, s));
    let here = cell(n, t, s);
    if (t == 0u) {
        if (s < 2u) {
            alpha[here] = emit;
        } else {
            alpha[here] = NEG;
        }
        return;
    }

    var acc = alpha[cell(n, t - 1u, s)];
    if (s >= 1u) {
        acc = lae(acc, alpha[cell(n, t - 1u, s - 1u)]);
    }
    if (s >= 2u && s % 2u == 1u && label(n, s) != label(n, s - 2u)) {
        acc = lae(acc, alpha[cell(n, t - 1u, s - 2u)]);
    }
    if (acc <= FLOOR) {
        alpha[here] = NEG;
    } else {
        alpha[here] = acc + emit;
    }
}
`

// ctcBetaShader moves the backward lattice one timestep params.t towards
// the start. Beta includes the emission at t.
const ctcBetaShader = `
@group(0) @binding(0) var<storage, read> log_probs: array<f32>;
@group(0) @binding(1) var<storage, read> targets: array<i32>;
@group(0) @binding(2) var<storage, read> lengths: array<i32>;
@group(0) @binding(3) var<storage, read_write> beta: array<f32>;
@group(0) @binding(4) var<uniform> params: Params;
` + ctcCommon + ctcLabelFns + `
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let s = gid.x;
    let n = gid.y;
    let t = params.t;
    if (n >= params.batch || !feasible(n)) {
        return;
    }
    let states = lattice_states(n);
    let last = frames(n) - 1u;
    if (s >= states || t > last) {
        return;
    }

    let emit = lp(t, n, label(n, s));
    let here = cell(n, t, s);
    if (t == last) {
        if (s + 2u >= states) {
            beta[here] = emit;
        } else {
            beta[here] = NEG;
        }
        return;
    }

    var acc = beta[cell(n, t + 1u, s)];
    if (s + 1u < states) {
        acc = lae(acc, beta[cell(n, t + 1u, s + 1u)]);
    }
    if (s + 2u < states && s % 2u == 1u && label(n, s + 2u) != label(n, s)) {
        acc = lae(acc, beta[cell(n, t + 1u, s + 2u)]);
    }
    if (acc <= FLOOR) {
        beta[here] = NEG;
    } else {
        beta[here] = acc + emit;
    }
}
`

// ctcTotalShader reads each example's log-likelihood off the last alpha row.
const ctcTotalShader = `
@group(0) @binding(0) var<storage, read> alpha: array<f32>;
@group(0) @binding(1) var<storage, read> lengths: array<i32>;
@group(0) @binding(2) var<storage, read_write> totals: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + ctcCommon + `
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let n = gid.x;
    if (n >= params.batch) {
        return;
    }
    if (!feasible(n)) {
        totals[n] = NEG;
        return;
    }
    let last = frames(n) - 1u;
    let states = lattice_states(n);
    var acc = alpha[cell(n, last, states - 1u)];
    if (states >= 2u) {
        acc = lae(acc, alpha[cell(n, last, states - 2u)]);
    }
    totals[n] = acc;
}
`

// ctcGradShader assembles dLoss/dLogProbs for one (class, example, timestep).
// Grid: x over classes, y over examples, z over timesteps.
const ctcGradShader = `
@group(0) @binding(0) var<storage, read> log_probs: array<f32>;
@group(0) @binding(1) var<storage, read> targets: array<i32>;
@group(0) @binding(2) var<storage, read> lengths: array<i32>;
@group(0) @binding(3) var<storage, read> alpha: array<f32>;
@group(0) @binding(4) var<storage, read> beta: array<f32>;
@group(0) @binding(5) var<storage, read> totals: array<f32>;
@group(0) @binding(6) var<storage, read> upstream: array<f32>;
@group(0) @binding(7) var<storage, read_write> grad: array<f32>;
@group(0) @binding(8) var<uniform> params: Params;
` + ctcCommon + ctcLabelFns + `
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let c = gid.x;
    let n = gid.y;
    let t = gid.z;
    if (c >= params.classes || n >= params.batch || t >= params.max_time) {
        return;
    }
    let idx = (t * params.batch + n) * params.classes + c;
    let total = totals[n];
    if (!feasible(n) || t >= frames(n) || total <= FLOOR) {
        grad[idx] = 0.0;
        return;
    }

    var lcab = NEG;
    let states = lattice_states(n);
    for (var s = 0u; s < states; s = s + 1u) {
        if (label(n, s) == c) {
            let here = cell(n, t, s);
            lcab = lae(lcab, alpha[here] + beta[here]);
        }
    }

    let p = lp(t, n, c);
    var occupation = 0.0;
    if (lcab > FLOOR) {
        occupation = exp(lcab - total - p);
    }
    grad[idx] = (exp(p) - occupation) * upstream[n];
}
`
