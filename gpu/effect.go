package gpu

import (
	"regexp"

	"github.com/go-gl/mathgl/mgl32"
)

// Param is a resolved effect parameter handle. NoParam marks a name the
// effect does not declare; writes to it are skipped.
type Param int

const NoParam Param = -1

func (p Param) Valid() bool { return p >= 0 }

type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueFloat
	ValueInt
	ValueBool
	ValueVec2
	ValueVec3
	ValueVec4
	ValueMat4
	ValueTexture
)

// Value is the CPU-side copy of a parameter, committed to the GPU when a pass
// is applied.
type Value struct {
	Kind ValueKind
	F    [16]float32
	I    int32
	Tex  Texture
}

func (v Value) Float() float32 { return v.F[0] }
func (v Value) Int() int32     { return v.I }
func (v Value) Bool() bool     { return v.I != 0 }

func (v Value) Vec2() mgl32.Vec2 { return mgl32.Vec2{v.F[0], v.F[1]} }
func (v Value) Vec3() mgl32.Vec3 { return mgl32.Vec3{v.F[0], v.F[1], v.F[2]} }
func (v Value) Vec4() mgl32.Vec4 { return mgl32.Vec4{v.F[0], v.F[1], v.F[2], v.F[3]} }
func (v Value) Mat4() mgl32.Mat4 { return mgl32.Mat4(v.F) }

// Pass is one program of an effect. Apply makes it current and commits the
// effect's parameter values.
type Pass interface {
	Name() string
	Apply()
}

// Effect is a set of named passes sharing one parameter table.
type Effect interface {
	Name() string

	// Param resolves a parameter name. Unknown names return NoParam.
	Param(name string) Param
	ParamNames() []string
	// Lookups counts Param calls since creation.
	Lookups() int

	Value(p Param) Value
	SetFloat(p Param, v float32)
	SetInt(p Param, v int32)
	SetBool(p Param, v bool)
	SetVec2(p Param, v mgl32.Vec2)
	SetVec3(p Param, v mgl32.Vec3)
	SetVec4(p Param, v mgl32.Vec4)
	SetMat4(p Param, v mgl32.Mat4)
	SetTexture(p Param, t Texture)

	// Pass returns nil when the effect has no pass with that name.
	Pass(name string) Pass
	Passes() []Pass
	Dispose()
}

// PassSource holds the GLSL of one pass. Kernel, when set, is the CPU
// rendition used by the software device for fullscreen draws.
type PassSource struct {
	Name     string
	Vertex   string
	Fragment string
	Kernel   Kernel
}

type EffectSource struct {
	Name   string
	Passes []PassSource
}

// ParamNames lists the uniforms declared across all passes, in first-seen order.
func (s EffectSource) ParamNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, p := range s.Passes {
		for _, src := range []string{p.Vertex, p.Fragment} {
			for _, n := range UniformNames(src) {
				if !seen[n] {
					seen[n] = true
					names = append(names, n)
				}
			}
		}
	}
	return names
}

var uniformRe = regexp.MustCompile(`uniform\s+(?:\w+\s+)+(\w+)\s*(?:\[\s*\w*\s*\])?\s*;`)

// UniformNames extracts the uniform declarations of a GLSL source.
func UniformNames(src string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range uniformRe.FindAllStringSubmatch(src, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// ParamTable is the parameter store shared by the device implementations.
// Embed it to satisfy the parameter half of Effect.
type ParamTable struct {
	names   []string
	index   map[string]Param
	values  []Value
	lookups int
}

func NewParamTable(names []string) *ParamTable {
	t := &ParamTable{
		names:  append([]string(nil), names...),
		index:  make(map[string]Param, len(names)),
		values: make([]Value, len(names)),
	}
	for i, n := range names {
		t.index[n] = Param(i)
	}
	return t
}

func (t *ParamTable) Param(name string) Param {
	t.lookups++
	if p, ok := t.index[name]; ok {
		return p
	}
	return NoParam
}

func (t *ParamTable) ParamNames() []string { return append([]string(nil), t.names...) }

func (t *ParamTable) Lookups() int { return t.lookups }

// Len is the number of declared parameters.
func (t *ParamTable) Len() int { return len(t.names) }

func (t *ParamTable) Value(p Param) Value {
	if !p.Valid() || int(p) >= len(t.values) {
		return Value{}
	}
	return t.values[p]
}

// ValueOf reads a parameter by name without counting a lookup.
func (t *ParamTable) ValueOf(name string) (Value, bool) {
	p, ok := t.index[name]
	if !ok {
		return Value{}, false
	}
	return t.values[p], true
}

func (t *ParamTable) set(p Param, v Value) {
	if !p.Valid() || int(p) >= len(t.values) {
		return
	}
	t.values[p] = v
}

func (t *ParamTable) SetFloat(p Param, v float32) {
	val := Value{Kind: ValueFloat}
	val.F[0] = v
	t.set(p, val)
}

func (t *ParamTable) SetInt(p Param, v int32) {
	t.set(p, Value{Kind: ValueInt, I: v})
}

func (t *ParamTable) SetBool(p Param, v bool) {
	val := Value{Kind: ValueBool}
	if v {
		val.I = 1
	}
	t.set(p, val)
}

func (t *ParamTable) SetVec2(p Param, v mgl32.Vec2) {
	val := Value{Kind: ValueVec2}
	copy(val.F[:], v[:])
	t.set(p, val)
}

func (t *ParamTable) SetVec3(p Param, v mgl32.Vec3) {
	val := Value{Kind: ValueVec3}
	copy(val.F[:], v[:])
	t.set(p, val)
}

func (t *ParamTable) SetVec4(p Param, v mgl32.Vec4) {
	val := Value{Kind: ValueVec4}
	copy(val.F[:], v[:])
	t.set(p, val)
}

func (t *ParamTable) SetMat4(p Param, v mgl32.Mat4) {
	t.set(p, Value{Kind: ValueMat4, F: v})
}

// SetTexture binds a texture; nil unbinds it.
func (t *ParamTable) SetTexture(p Param, tex Texture) {
	if tex == nil {
		t.set(p, Value{})
		return
	}
	t.set(p, Value{Kind: ValueTexture, Tex: tex})
}

// Textures returns the textures currently bound to parameters.
func (t *ParamTable) Textures() []Texture {
	var out []Texture
	for _, v := range t.values {
		if v.Kind == ValueTexture && v.Tex != nil {
			out = append(out, v.Tex)
		}
	}
	return out
}
