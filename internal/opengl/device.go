// Package opengl implements gpu.Device on an OpenGL 4.1 core context.
//
// Every method must be called on the goroutine that owns the context.
package opengl

import (
	"fmt"
	"image"
	"strings"
	"unsafe"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"render-pipeline/core"
	"render-pipeline/gpu"
)

type Device struct {
	width  int
	height int

	bound    []*Target
	mrtFBO   uint32
	emptyVAO uint32
	blit     *Effect
}

var _ gpu.Device = (*Device)(nil)

const blitFrag = `#version 410 core
in  vec2 fragUV;
out vec4 outColor;
uniform sampler2D SourceTexture;
void main() {
    outColor = texture(SourceTexture, fragUV);
}
`

const fullscreenVert = `#version 410 core
out vec2 fragUV;
void main() {
    const vec2 pos[3] = vec2[3](
        vec2(-1.0, -1.0),
        vec2( 3.0, -1.0),
        vec2(-1.0,  3.0)
    );
    gl_Position = vec4(pos[gl_VertexID], 0.0, 1.0);
    fragUV      = pos[gl_VertexID] * 0.5 + 0.5;
}
`

// New initialises the GL function pointers for the current context.
func New(width, height int) (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	core.Logger().Info("OpenGL initialized",
		"version", gl.GoStr(gl.GetString(gl.VERSION)),
		"renderer", gl.GoStr(gl.GetString(gl.RENDERER)))

	d := &Device{width: width, height: height}
	gl.GenVertexArrays(1, &d.emptyVAO)
	gl.GenFramebuffers(1, &d.mrtFBO)

	blit, err := d.CreateEffect(gpu.EffectSource{
		Name:   "Blit",
		Passes: []gpu.PassSource{{Name: "Blit", Vertex: fullscreenVert, Fragment: blitFrag}},
	})
	if err != nil {
		return nil, err
	}
	d.blit = blit.(*Effect)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.BACK)
	gl.FrontFace(gl.CCW)
	gl.Viewport(0, 0, int32(width), int32(height))
	return d, nil
}

// Resize follows the framebuffer size of the window.
func (d *Device) Resize(width, height int) {
	d.width, d.height = width, height
	if len(d.bound) == 0 {
		gl.Viewport(0, 0, int32(width), int32(height))
	}
}

func (d *Device) Viewport() core.Viewport {
	return core.Viewport{Width: d.width, Height: d.height}
}

func (d *Device) CreateEffect(src gpu.EffectSource) (gpu.Effect, error) {
	if len(src.Passes) == 0 {
		return nil, fmt.Errorf("effect %q has no passes", src.Name)
	}
	e := &Effect{ParamTable: gpu.NewParamTable(src.ParamNames()), name: src.Name, dev: d}
	for _, ps := range src.Passes {
		prog, err := newProgram(ps.Vertex, ps.Fragment)
		if err != nil {
			e.Dispose()
			return nil, fmt.Errorf("%s/%s: %w", src.Name, ps.Name, err)
		}
		p := &Pass{name: ps.Name, effect: e, program: prog, locations: make([]int32, e.Len())}
		for i, n := range e.ParamNames() {
			p.locations[i] = gl.GetUniformLocation(prog, gl.Str(n+"\x00"))
		}
		e.passes = append(e.passes, p)
	}
	return e, nil
}

func (d *Device) CreateTexture(name string, img image.Image) (gpu.Texture, error) {
	if img == nil {
		return nil, fmt.Errorf("texture %q: nil image", name)
	}
	rgba := gpu.ToRGBA(img)
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("texture %q has no pixel data", name)
	}

	t := &Texture{name: name, width: w, height: h, format: gpu.SurfaceColor}
	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(w), int32(h), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&rgba.Pix[0]))
	gl.GenerateMipmap(gl.TEXTURE_2D)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return t, nil
}

var formats = map[gpu.SurfaceFormat]struct {
	internal int32
	format   uint32
	xtype    uint32
}{
	gpu.SurfaceColor:  {gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE},
	gpu.SurfaceSingle: {gl.R32F, gl.RED, gl.FLOAT},
	gpu.SurfaceHDR:    {gl.RGBA16F, gl.RGBA, gl.HALF_FLOAT},
}

func (d *Device) CreateRenderTarget(desc gpu.TargetDesc) (gpu.RenderTarget, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("render target %q: invalid size %dx%d", desc.Name, desc.Width, desc.Height)
	}
	f, ok := formats[desc.Format]
	if !ok {
		return nil, fmt.Errorf("render target %q: unsupported format %s", desc.Name, desc.Format)
	}
	w, h := int32(desc.Width), int32(desc.Height)

	t := &Target{
		Texture: Texture{name: desc.Name, width: desc.Width, height: desc.Height, format: desc.Format},
		desc:    desc,
	}
	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, f.internal, w, h, 0, f.format, f.xtype, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.id, 0)
	if desc.Depth == gpu.Depth24 {
		gl.GenRenderbuffers(1, &t.depth)
		gl.BindRenderbuffer(gl.RENDERBUFFER, t.depth)
		gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, w, h)
		gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, t.depth)
		gl.BindRenderbuffer(gl.RENDERBUFFER, 0)
	}
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		t.Dispose()
		return nil, fmt.Errorf("render target %q: framebuffer incomplete (0x%X)", desc.Name, status)
	}
	return t, nil
}

func (d *Device) CreateMesh(name string, vertices []core.Vertex, indices []uint32) (gpu.Mesh, error) {
	if len(vertices) == 0 {
		return nil, fmt.Errorf("mesh %q: no vertices", name)
	}
	stride := int32(unsafe.Sizeof(core.Vertex{}))
	m := &Mesh{name: name, vertices: len(vertices), indices: len(indices)}

	gl.GenVertexArrays(1, &m.vao)
	gl.GenBuffers(1, &m.vbo)
	gl.BindVertexArray(m.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*int(stride), gl.Ptr(vertices), gl.STATIC_DRAW)

	var v core.Vertex
	attribs := []struct {
		size int32
		off  uintptr
	}{
		{3, unsafe.Offsetof(v.Position)},
		{3, unsafe.Offsetof(v.Normal)},
		{2, unsafe.Offsetof(v.UV)},
		{4, unsafe.Offsetof(v.Color)},
	}
	for i, a := range attribs {
		gl.EnableVertexAttribArray(uint32(i))
		gl.VertexAttribPointer(uint32(i), a.size, gl.FLOAT, false, stride, gl.PtrOffset(int(a.off)))
	}

	if len(indices) > 0 {
		gl.GenBuffers(1, &m.ebo)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(indices)*4, gl.Ptr(indices), gl.STATIC_DRAW)
	}
	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return m, nil
}

func (d *Device) SetRenderTargets(targets ...gpu.RenderTarget) {
	d.bound = d.bound[:0]
	for _, t := range targets {
		if gt, ok := t.(*Target); ok {
			d.bound = append(d.bound, gt)
		}
	}

	switch len(d.bound) {
	case 0:
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		gl.Viewport(0, 0, int32(d.width), int32(d.height))
		return
	case 1:
		gl.BindFramebuffer(gl.FRAMEBUFFER, d.bound[0].fbo)
	default:
		// multiple render targets share one framebuffer, depth from the first
		gl.BindFramebuffer(gl.FRAMEBUFFER, d.mrtFBO)
		buffers := make([]uint32, 0, len(d.bound))
		for i, t := range d.bound {
			att := uint32(gl.COLOR_ATTACHMENT0 + i)
			gl.FramebufferTexture2D(gl.FRAMEBUFFER, att, gl.TEXTURE_2D, t.id, 0)
			buffers = append(buffers, att)
		}
		gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, d.bound[0].depth)
		gl.DrawBuffers(int32(len(buffers)), &buffers[0])
	}
	first := d.bound[0]
	gl.Viewport(0, 0, int32(first.width), int32(first.height))
}

func (d *Device) Clear(flags gpu.ClearFlags, c core.Color) {
	var bits uint32
	if flags&gpu.ClearColor != 0 {
		gl.ClearColor(c.R, c.G, c.B, c.A)
		bits |= gl.COLOR_BUFFER_BIT
	}
	if flags&gpu.ClearDepth != 0 {
		// the depth mask gates depth clears
		gl.DepthMask(true)
		bits |= gl.DEPTH_BUFFER_BIT
	}
	gl.Clear(bits)
}

func (d *Device) SetBlendState(s gpu.BlendState) {
	switch s {
	case gpu.BlendAdditive:
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.ONE, gl.ONE)
	case gpu.BlendAlpha:
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	default:
		gl.Disable(gl.BLEND)
	}
}

func (d *Device) SetDepthState(s gpu.DepthState) {
	switch s {
	case gpu.DepthRead:
		gl.Enable(gl.DEPTH_TEST)
		gl.DepthFunc(gl.LEQUAL)
		gl.DepthMask(false)
	case gpu.DepthOff:
		gl.Disable(gl.DEPTH_TEST)
		gl.DepthMask(false)
	default:
		gl.Enable(gl.DEPTH_TEST)
		gl.DepthFunc(gl.LESS)
		gl.DepthMask(true)
	}
}

func (d *Device) SetRasterizerState(c gpu.CullMode) {
	switch c {
	case gpu.CullFront:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.FRONT)
	case gpu.CullNone:
		gl.Disable(gl.CULL_FACE)
	default:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	}
}

func (d *Device) Draw(m gpu.Mesh) {
	gm, ok := m.(*Mesh)
	if !ok || gm.vao == 0 {
		return
	}
	gl.BindVertexArray(gm.vao)
	if gm.indices > 0 {
		gl.DrawElements(gl.TRIANGLES, int32(gm.indices), gl.UNSIGNED_INT, nil)
	} else {
		gl.DrawArrays(gl.TRIANGLES, 0, int32(gm.vertices))
	}
	gl.BindVertexArray(0)
}

// DrawFullscreen draws the vertex-less fullscreen triangle.
func (d *Device) DrawFullscreen() {
	gl.BindVertexArray(d.emptyVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
}

func (d *Device) Blit(src gpu.Texture) {
	p := d.blit.Param("SourceTexture")
	d.blit.SetTexture(p, src)
	d.blit.passes[0].Apply()
	d.DrawFullscreen()
	d.blit.SetTexture(p, nil)
}

// Dispose releases the device's own objects. Resources handed out by the
// device are disposed by their owners.
func (d *Device) Dispose() {
	if d.blit != nil {
		d.blit.Dispose()
		d.blit = nil
	}
	if d.emptyVAO != 0 {
		gl.DeleteVertexArrays(1, &d.emptyVAO)
		d.emptyVAO = 0
	}
	if d.mrtFBO != 0 {
		gl.DeleteFramebuffers(1, &d.mrtFBO)
		d.mrtFBO = 0
	}
}

func newProgram(vertSrc, fragSrc string) (uint32, error) {
	vert, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex: %w", err)
	}
	frag, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vert)
		return 0, fmt.Errorf("fragment: %w", err)
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vert)
	gl.AttachShader(prog, frag)
	gl.LinkProgram(prog)
	gl.DeleteShader(vert)
	gl.DeleteShader(frag)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(log))
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("link failed: %v", log)
	}
	return prog, nil
}

func compileShader(src string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile failed: %v", log)
	}
	return shader, nil
}
