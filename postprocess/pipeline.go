// Package postprocess runs an ordered chain of image-space passes over the
// rendered scene.
//
// Each enabled pass reads the current image and writes a new one; the
// pipeline alternates between two buffers so no pass reads the buffer it
// writes. Disabled passes keep their position and are skipped.
package postprocess

import (
	"fmt"
	"slices"

	"render-pipeline/core"
	"render-pipeline/gpu"
	"render-pipeline/scene"
)

// Input is the frame state available to passes.
type Input struct {
	Camera   *scene.Camera
	Settings scene.RenderSettings
	// Depth is the scene depth buffer, nil when the renderer has none.
	Depth gpu.Texture
}

// Pass transforms src into dst.
type Pass interface {
	Name() string
	Enabled() bool
	SetEnabled(on bool)
	// Load creates the pass's GPU resources. It is called once before the
	// first Apply.
	Load(dev gpu.Device) error
	Apply(dev gpu.Device, in *Input, src gpu.Texture, dst gpu.RenderTarget)
	Dispose()
}

type Pipeline struct {
	dev    gpu.Device
	format gpu.SurfaceFormat
	passes []Pass

	buffers [2]gpu.RenderTarget
	loaded  map[Pass]bool
}

// NewPipeline creates an empty chain whose intermediate buffers use format.
func NewPipeline(dev gpu.Device, format gpu.SurfaceFormat) *Pipeline {
	return &Pipeline{dev: dev, format: format, loaded: make(map[Pass]bool)}
}

// Add appends passes to the end of the chain.
func (p *Pipeline) Add(passes ...Pass) {
	p.passes = append(p.passes, passes...)
}

// Insert places pass at index, shifting later passes back.
func (p *Pipeline) Insert(index int, pass Pass) {
	index = max(0, min(index, len(p.passes)))
	p.passes = slices.Insert(p.passes, index, pass)
}

// Move changes the position of the named pass.
func (p *Pipeline) Move(name string, index int) error {
	i := p.index(name)
	if i < 0 {
		return fmt.Errorf("postprocess: no pass %q", name)
	}
	pass := p.passes[i]
	p.passes = slices.Delete(p.passes, i, i+1)
	p.Insert(index, pass)
	return nil
}

// Remove takes the named pass out of the chain and disposes it.
func (p *Pipeline) Remove(name string) bool {
	i := p.index(name)
	if i < 0 {
		return false
	}
	pass := p.passes[i]
	p.passes = slices.Delete(p.passes, i, i+1)
	delete(p.loaded, pass)
	pass.Dispose()
	return true
}

func (p *Pipeline) index(name string) int {
	return slices.IndexFunc(p.passes, func(ps Pass) bool { return ps.Name() == name })
}

// Pass returns the named pass or nil.
func (p *Pipeline) Pass(name string) Pass {
	if i := p.index(name); i >= 0 {
		return p.passes[i]
	}
	return nil
}

// Passes lists the chain in order.
func (p *Pipeline) Passes() []Pass { return slices.Clone(p.passes) }

// SetEnabled toggles the named pass without moving it.
func (p *Pipeline) SetEnabled(name string, on bool) bool {
	pass := p.Pass(name)
	if pass == nil {
		return false
	}
	pass.SetEnabled(on)
	return true
}

// Process runs the enabled passes over src and returns the final image.
// With nothing enabled src itself is returned.
func (p *Pipeline) Process(in *Input, src gpu.Texture) (gpu.Texture, error) {
	if in == nil {
		in = &Input{}
	}
	cur := src
	next := 0
	for _, pass := range p.passes {
		if !pass.Enabled() {
			continue
		}
		if !p.loaded[pass] {
			if err := pass.Load(p.dev); err != nil {
				return nil, fmt.Errorf("postprocess %s: %w", pass.Name(), err)
			}
			p.loaded[pass] = true
		}
		dst, err := p.buffer(next, src.Width(), src.Height())
		if err != nil {
			return nil, err
		}
		pass.Apply(p.dev, in, cur, dst)
		cur = dst
		next = 1 - next
	}
	return cur, nil
}

// Present processes src and copies the result to the display.
func (p *Pipeline) Present(in *Input, src gpu.Texture) error {
	out, err := p.Process(in, src)
	if err != nil {
		return err
	}
	p.dev.SetRenderTargets()
	p.dev.SetBlendState(gpu.BlendOpaque)
	p.dev.SetDepthState(gpu.DepthOff)
	p.dev.Blit(out)
	p.dev.SetDepthState(gpu.DepthDefault)
	return nil
}

// buffer returns ping-pong buffer i sized width×height, recreating it after
// a size change.
func (p *Pipeline) buffer(i, width, height int) (gpu.RenderTarget, error) {
	if b := p.buffers[i]; b != nil {
		if b.Width() == width && b.Height() == height {
			return b, nil
		}
		b.Dispose()
		p.buffers[i] = nil
	}
	rt, err := p.dev.CreateRenderTarget(gpu.TargetDesc{
		Name:   fmt.Sprintf("PostProcess%d", i),
		Width:  width,
		Height: height,
		Format: p.format,
	})
	if err != nil {
		return nil, fmt.Errorf("postprocess buffer: %w", err)
	}
	core.Logger().Debug("post-process buffer created", "index", i, "width", width, "height", height)
	p.buffers[i] = rt
	return rt, nil
}

// Dispose releases the buffers and every pass. Calling it again does nothing.
func (p *Pipeline) Dispose() {
	for i, b := range p.buffers {
		if b != nil {
			b.Dispose()
			p.buffers[i] = nil
		}
	}
	for _, pass := range p.passes {
		pass.Dispose()
	}
	p.passes = nil
	clear(p.loaded)
}
