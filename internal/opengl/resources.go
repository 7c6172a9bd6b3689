package opengl

import (
	gl "github.com/go-gl/gl/v4.1-core/gl"

	"render-pipeline/core"
	"render-pipeline/gpu"
)

type Texture struct {
	id     uint32
	name   string
	width  int
	height int
	format gpu.SurfaceFormat
}

func (t *Texture) Name() string              { return t.name }
func (t *Texture) Width() int                { return t.width }
func (t *Texture) Height() int               { return t.height }
func (t *Texture) Format() gpu.SurfaceFormat { return t.format }

// ID is the GL texture name, 0 after Dispose.
func (t *Texture) ID() uint32 { return t.id }

func (t *Texture) Dispose() {
	if t.id != 0 {
		gl.DeleteTextures(1, &t.id)
		t.id = 0
	}
}

// Target is a texture with its own framebuffer and optional depth buffer.
type Target struct {
	Texture
	fbo   uint32
	depth uint32
	desc  gpu.TargetDesc
}

func (t *Target) Desc() gpu.TargetDesc { return t.desc }

func (t *Target) Dispose() {
	if t.fbo != 0 {
		gl.DeleteFramebuffers(1, &t.fbo)
		t.fbo = 0
	}
	if t.depth != 0 {
		gl.DeleteRenderbuffers(1, &t.depth)
		t.depth = 0
	}
	t.Texture.Dispose()
}

type Mesh struct {
	name     string
	vao      uint32
	vbo      uint32
	ebo      uint32
	vertices int
	indices  int
}

func (m *Mesh) Name() string     { return m.name }
func (m *Mesh) VertexCount() int { return m.vertices }
func (m *Mesh) IndexCount() int  { return m.indices }

func (m *Mesh) Dispose() {
	if m.vao == 0 {
		return
	}
	gl.DeleteVertexArrays(1, &m.vao)
	gl.DeleteBuffers(1, &m.vbo)
	if m.ebo != 0 {
		gl.DeleteBuffers(1, &m.ebo)
	}
	m.vao, m.vbo, m.ebo = 0, 0, 0
}

// Effect holds one linked program per pass over a shared parameter table.
type Effect struct {
	*gpu.ParamTable
	name   string
	dev    *Device
	passes []*Pass
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

func (e *Effect) Dispose() {
	for _, p := range e.passes {
		if p.program != 0 {
			gl.DeleteProgram(p.program)
			p.program = 0
		}
	}
}

type Pass struct {
	name    string
	effect  *Effect
	program uint32
	// locations[i] is the uniform location of parameter i, -1 when the
	// program does not use it.
	locations []int32
}

func (p *Pass) Name() string { return p.name }

// Apply makes the program current and uploads every parameter it uses.
// Textures take consecutive units in parameter order.
func (p *Pass) Apply() {
	gl.UseProgram(p.program)
	unit := int32(0)
	for i, loc := range p.locations {
		if loc < 0 {
			continue
		}
		v := p.effect.Value(gpu.Param(i))
		switch v.Kind {
		case gpu.ValueFloat:
			gl.Uniform1f(loc, v.F[0])
		case gpu.ValueInt, gpu.ValueBool:
			gl.Uniform1i(loc, v.I)
		case gpu.ValueVec2:
			gl.Uniform2f(loc, v.F[0], v.F[1])
		case gpu.ValueVec3:
			gl.Uniform3f(loc, v.F[0], v.F[1], v.F[2])
		case gpu.ValueVec4:
			gl.Uniform4f(loc, v.F[0], v.F[1], v.F[2], v.F[3])
		case gpu.ValueMat4:
			gl.UniformMatrix4fv(loc, 1, false, &v.F[0])
		case gpu.ValueTexture:
			gl.ActiveTexture(uint32(gl.TEXTURE0 + unit))
			gl.BindTexture(gl.TEXTURE_2D, textureID(v.Tex))
			gl.Uniform1i(loc, unit)
			unit++
		}
	}
	gl.ActiveTexture(gl.TEXTURE0)
}

func textureID(t gpu.Texture) uint32 {
	switch v := t.(type) {
	case *Texture:
		return v.id
	case *Target:
		return v.id
	}
	core.Logger().Warn("texture from another device ignored", "texture", t.Name())
	return 0
}
