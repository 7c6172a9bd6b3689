// Package soft is a headless gpu.Device. Fullscreen passes run their CPU
// kernels on float pixel buffers; every command is recorded so callers can
// inspect the exact sequence a renderer submitted. Mesh draws are recorded
// but not rasterized.
package soft

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/core"
	"render-pipeline/gpu"
)

type Device struct {
	width  int
	height int
	back   *Target

	bound []*Target
	pass  *Pass
	blend gpu.BlendState
	depth gpu.DepthState
	cull  gpu.CullMode

	commands []Command
	feedback []string

	created        int
	released       int
	doubleReleases int
}

// New creates a device whose back buffer is width×height.
func New(width, height int) *Device {
	d := &Device{}
	d.Resize(width, height)
	return d
}

// Resize replaces the back buffer, as a window resize would.
func (d *Device) Resize(width, height int) {
	d.width, d.height = width, height
	d.back = &Target{
		Texture: newTexture(d, "BackBuffer", width, height, gpu.SurfaceColor),
		desc:    gpu.TargetDesc{Name: "BackBuffer", Width: width, Height: height, Format: gpu.SurfaceColor, Depth: gpu.Depth24},
	}
}

func (d *Device) Viewport() core.Viewport {
	return core.Viewport{Width: d.width, Height: d.height}
}

// BackBuffer is the display target bound when no render target is set.
func (d *Device) BackBuffer() *Target { return d.back }

func (d *Device) CreateEffect(src gpu.EffectSource) (gpu.Effect, error) {
	if len(src.Passes) == 0 {
		return nil, fmt.Errorf("effect %q has no passes", src.Name)
	}
	e := &Effect{
		ParamTable: gpu.NewParamTable(src.ParamNames()),
		name:       src.Name,
		dev:        d,
	}
	for _, ps := range src.Passes {
		e.passes = append(e.passes, &Pass{name: ps.Name, effect: e, kernel: ps.Kernel})
	}
	d.created++
	return e, nil
}

func (d *Device) CreateTexture(name string, img image.Image) (gpu.Texture, error) {
	if img == nil {
		return nil, fmt.Errorf("texture %q: nil image", name)
	}
	rgba := gpu.ToRGBA(img)
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("texture %q: empty image", name)
	}
	t := newTexture(d, name, w, h, gpu.SurfaceColor)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := rgba.RGBAAt(x, y)
			t.pix[y*w+x] = mgl32.Vec4{
				float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, float32(c.A) / 255,
			}
		}
	}
	d.created++
	return &t, nil
}

func (d *Device) CreateRenderTarget(desc gpu.TargetDesc) (gpu.RenderTarget, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("render target %q: invalid size %dx%d", desc.Name, desc.Width, desc.Height)
	}
	d.created++
	return &Target{Texture: newTexture(d, desc.Name, desc.Width, desc.Height, desc.Format), desc: desc}, nil
}

func (d *Device) CreateMesh(name string, vertices []core.Vertex, indices []uint32) (gpu.Mesh, error) {
	if len(vertices) == 0 {
		return nil, fmt.Errorf("mesh %q: no vertices", name)
	}
	d.created++
	return &Mesh{name: name, vertices: len(vertices), indices: len(indices), dev: d}, nil
}

func (d *Device) SetRenderTargets(targets ...gpu.RenderTarget) {
	d.bound = d.bound[:0]
	for _, t := range targets {
		if st, ok := t.(*Target); ok {
			d.bound = append(d.bound, st)
		}
	}
	d.record(Command{Kind: CmdSetTargets})
}

func (d *Device) Clear(flags gpu.ClearFlags, c core.Color) {
	if flags&gpu.ClearColor != 0 {
		for _, t := range d.targets() {
			for i := range t.pix {
				t.pix[i] = t.store(c.Vec4())
			}
		}
	}
	d.record(Command{Kind: CmdClear, ClearFlags: flags, Color: c})
}

func (d *Device) SetBlendState(s gpu.BlendState)  { d.blend = s }
func (d *Device) SetDepthState(s gpu.DepthState)  { d.depth = s }
func (d *Device) SetRasterizerState(c gpu.CullMode) { d.cull = c }

func (d *Device) Draw(m gpu.Mesh) {
	cmd := d.drawCommand(CmdDraw)
	if m != nil {
		cmd.Mesh = m.Name()
	}
	d.checkFeedback(cmd)
	d.record(cmd)
}

func (d *Device) DrawFullscreen() {
	cmd := d.drawCommand(CmdDrawFullscreen)
	d.checkFeedback(cmd)
	d.record(cmd)

	if d.pass == nil || d.pass.kernel == nil {
		return
	}
	dst := d.targets()[0]
	ctx := kernelContext{table: d.pass.effect.ParamTable, texel: mgl32.Vec2{1 / float32(dst.width), 1 / float32(dst.height)}}
	out := make([]mgl32.Vec4, len(dst.pix))
	for y := 0; y < dst.height; y++ {
		for x := 0; x < dst.width; x++ {
			uv := mgl32.Vec2{(float32(x) + 0.5) / float32(dst.width), 1 - (float32(y)+0.5)/float32(dst.height)}
			out[y*dst.width+x] = d.pass.kernel(ctx, uv)
		}
	}
	for i, src := range out {
		dst.pix[i] = dst.store(blend(d.blend, src, dst.pix[i]))
	}
}

func (d *Device) Blit(src gpu.Texture) {
	cmd := Command{Kind: CmdBlit, Targets: d.surfaces(), Reads: []Surface{surfaceOf(src)}}
	d.checkFeedback(cmd)
	d.record(cmd)

	in := pixelsOf(src)
	if in == nil {
		return
	}
	dst := d.targets()[0]
	for y := 0; y < dst.height; y++ {
		sy := y * in.height / dst.height
		for x := 0; x < dst.width; x++ {
			sx := x * in.width / dst.width
			dst.pix[y*dst.width+x] = dst.store(in.pix[sy*in.width+sx])
		}
	}
}

// Commands returns everything submitted since creation or the last Reset.
func (d *Device) Commands() []Command { return d.commands }

// Reset drops the recorded commands and feedback reports.
func (d *Device) Reset() {
	d.commands = nil
	d.feedback = nil
}

// Feedback lists draws that sampled a texture bound for writing.
func (d *Device) Feedback() []string { return d.feedback }

// Live is the number of created resources not yet disposed.
func (d *Device) Live() int { return d.created - d.released }

// DoubleReleases counts Dispose calls on already disposed resources.
func (d *Device) DoubleReleases() int { return d.doubleReleases }

// Pixel reads one pixel of t, or of the back buffer when t is nil.
// Row 0 is the top of the image.
func (d *Device) Pixel(t gpu.Texture, x, y int) mgl32.Vec4 {
	px := d.pixels(t)
	return px.pix[y*px.width+x]
}

// Fill overwrites every pixel of t, bypassing the command stream.
func (d *Device) Fill(t gpu.Texture, f func(x, y int) mgl32.Vec4) {
	px := d.pixels(t)
	for y := 0; y < px.height; y++ {
		for x := 0; x < px.width; x++ {
			px.pix[y*px.width+x] = px.store(f(x, y))
		}
	}
}

// Snapshot reads t (or the back buffer) back as an 8-bit image.
func (d *Device) Snapshot(t gpu.Texture) *image.RGBA {
	px := d.pixels(t)
	img := image.NewRGBA(image.Rect(0, 0, px.width, px.height))
	for y := 0; y < px.height; y++ {
		for x := 0; x < px.width; x++ {
			v := gpu.Saturate(px.pix[y*px.width+x])
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(math.Round(float64(v[0]) * 255)),
				G: uint8(math.Round(float64(v[1]) * 255)),
				B: uint8(math.Round(float64(v[2]) * 255)),
				A: uint8(math.Round(float64(v[3]) * 255)),
			})
		}
	}
	return img
}

func (d *Device) pixels(t gpu.Texture) *Texture {
	if t == nil {
		return &d.back.Texture
	}
	px := pixelsOf(t)
	if px == nil {
		panic(fmt.Sprintf("soft: texture %q was not created by this device", t.Name()))
	}
	return px
}

func (d *Device) apply(p *Pass) {
	d.pass = p
	d.record(Command{Kind: CmdApply, Effect: p.effect.name, Pass: p.name})
}

func (d *Device) targets() []*Target {
	if len(d.bound) == 0 {
		return []*Target{d.back}
	}
	return d.bound
}

func (d *Device) surfaces() []Surface {
	var out []Surface
	for _, t := range d.targets() {
		out = append(out, surfaceOf(t))
	}
	return out
}

func (d *Device) drawCommand(kind CommandKind) Command {
	cmd := Command{
		Kind:    kind,
		Targets: d.surfaces(),
		Blend:   d.blend,
		Depth:   d.depth,
		Cull:    d.cull,
	}
	if d.pass == nil {
		return cmd
	}
	cmd.Effect = d.pass.effect.name
	cmd.Pass = d.pass.name
	cmd.Params = make(map[string]gpu.Value)
	for _, name := range d.pass.effect.ParamNames() {
		if v, _ := d.pass.effect.ValueOf(name); v.Kind != gpu.ValueNone {
			cmd.Params[name] = v
		}
	}
	for _, tex := range d.pass.effect.Textures() {
		cmd.Reads = append(cmd.Reads, surfaceOf(tex))
	}
	return cmd
}

func (d *Device) checkFeedback(cmd Command) {
	for _, r := range cmd.Reads {
		for _, t := range d.targets() {
			if r.id == t.id {
				d.feedback = append(d.feedback, fmt.Sprintf("%s %s/%s samples bound target %q", cmd.Kind, cmd.Effect, cmd.Pass, r.Name))
			}
		}
	}
}

func (d *Device) record(cmd Command) {
	d.commands = append(d.commands, cmd)
}

func (d *Device) release(disposed *bool) {
	if *disposed {
		d.doubleReleases++
		return
	}
	*disposed = true
	d.released++
}

func blend(s gpu.BlendState, src, dst mgl32.Vec4) mgl32.Vec4 {
	switch s {
	case gpu.BlendAdditive:
		return dst.Add(src)
	case gpu.BlendAlpha:
		a := src[3]
		return src.Mul(a).Add(dst.Mul(1 - a))
	}
	return src
}
