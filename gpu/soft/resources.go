package soft

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/gpu"
)

var nextID atomic.Uint64

// Texture is a float pixel buffer. Row 0 is the top of the image.
type Texture struct {
	id       uint64
	name     string
	width    int
	height   int
	format   gpu.SurfaceFormat
	pix      []mgl32.Vec4
	dev      *Device
	disposed bool
}

func newTexture(d *Device, name string, w, h int, f gpu.SurfaceFormat) Texture {
	t := Texture{
		id:     nextID.Add(1),
		name:   name,
		width:  w,
		height: h,
		format: f,
		pix:    make([]mgl32.Vec4, w*h),
		dev:    d,
	}
	for i := range t.pix {
		t.pix[i] = t.store(mgl32.Vec4{0, 0, 0, 1})
	}
	return t
}

func (t *Texture) Name() string              { return t.name }
func (t *Texture) Width() int                { return t.width }
func (t *Texture) Height() int               { return t.height }
func (t *Texture) Format() gpu.SurfaceFormat { return t.format }
func (t *Texture) Disposed() bool            { return t.disposed }

func (t *Texture) Dispose() {
	t.dev.release(&t.disposed)
}

func (t *Texture) Size() (int, int) { return t.width, t.height }

// Sample is a nearest-neighbour, clamp-to-edge lookup.
func (t *Texture) Sample(uv mgl32.Vec2) mgl32.Vec4 {
	x := int(math.Floor(float64(uv[0] * float32(t.width))))
	y := int(math.Floor(float64((1 - uv[1]) * float32(t.height))))
	x = min(max(x, 0), t.width-1)
	y = min(max(y, 0), t.height-1)
	return t.pix[y*t.width+x]
}

// store converts a shader output to what the surface format can hold.
func (t *Texture) store(v mgl32.Vec4) mgl32.Vec4 {
	switch t.format {
	case gpu.SurfaceColor:
		v = gpu.Saturate(v)
		for i := range v {
			v[i] = float32(math.Round(float64(v[i])*255) / 255)
		}
		return v
	case gpu.SurfaceSingle:
		return mgl32.Vec4{v[0], 0, 0, 1}
	}
	return v
}

type Target struct {
	Texture
	desc gpu.TargetDesc
}

func (t *Target) Desc() gpu.TargetDesc { return t.desc }

type Mesh struct {
	name     string
	vertices int
	indices  int
	dev      *Device
	disposed bool
}

func (m *Mesh) Name() string     { return m.name }
func (m *Mesh) VertexCount() int { return m.vertices }
func (m *Mesh) IndexCount() int  { return m.indices }
func (m *Mesh) Dispose()         { m.dev.release(&m.disposed) }

type Effect struct {
	*gpu.ParamTable
	name     string
	passes   []*Pass
	dev      *Device
	disposed bool
}

func (e *Effect) Name() string { return e.name }

func (e *Effect) Pass(name string) gpu.Pass {
	for _, p := range e.passes {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (e *Effect) Passes() []gpu.Pass {
	out := make([]gpu.Pass, len(e.passes))
	for i, p := range e.passes {
		out[i] = p
	}
	return out
}

func (e *Effect) Dispose()       { e.dev.release(&e.disposed) }
func (e *Effect) Disposed() bool { return e.disposed }

type Pass struct {
	name   string
	effect *Effect
	kernel gpu.Kernel
}

func (p *Pass) Name() string { return p.name }
func (p *Pass) Apply()       { p.effect.dev.apply(p) }

func pixelsOf(t gpu.Texture) *Texture {
	switch v := t.(type) {
	case *Texture:
		return v
	case *Target:
		return &v.Texture
	}
	return nil
}

type kernelContext struct {
	table *gpu.ParamTable
	texel mgl32.Vec2
}

func (c kernelContext) value(name string) gpu.Value {
	v, _ := c.table.ValueOf(name)
	return v
}

func (c kernelContext) Float(name string) float32    { return c.value(name).Float() }
func (c kernelContext) Int(name string) int32        { return c.value(name).Int() }
func (c kernelContext) Bool(name string) bool        { return c.value(name).Bool() }
func (c kernelContext) Vec2(name string) mgl32.Vec2  { return c.value(name).Vec2() }
func (c kernelContext) Vec3(name string) mgl32.Vec3  { return c.value(name).Vec3() }
func (c kernelContext) Vec4(name string) mgl32.Vec4  { return c.value(name).Vec4() }
func (c kernelContext) TexelSize() mgl32.Vec2        { return c.texel }

func (c kernelContext) Texture(name string) gpu.Sampler {
	v := c.value(name)
	if v.Kind != gpu.ValueTexture {
		return nil
	}
	if px := pixelsOf(v.Tex); px != nil {
		return px
	}
	return nil
}
