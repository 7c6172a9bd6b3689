package renderer

import (
	"fmt"

	"render-pipeline/core"
	"render-pipeline/gpu"
	"render-pipeline/scene"
	"render-pipeline/shading"
)

// renderShadows runs exactly one depth pass per shadow-casting light, before
// any camera pass can sample the maps.
func (r *ForwardRenderer) renderShadows(f *scene.Frame) error {
	cam := f.PrimaryCamera()
	for _, l := range f.Lights {
		if l == nil || !l.CastsShadow() {
			continue
		}
		g := l.Shadow
		if g.Size <= 0 {
			g.Size = r.opts.ShadowMapSize
		}
		if err := g.Allocate(r.dev, l.Name); err != nil {
			return fmt.Errorf("light %q: %w", l.Name, err)
		}
		g.Update(l, cam)
		r.renderShadowMap(f, g)
		r.stats.ShadowPasses++
	}
	return nil
}

func (r *ForwardRenderer) renderShadowMap(f *scene.Frame, g *scene.ShadowGenerator) {
	b := r.shadow
	r.dev.SetRenderTargets(g.Map())
	r.dev.Clear(gpu.ClearAll, core.ColorWhite)
	r.dev.SetBlendState(gpu.BlendOpaque)
	r.dev.SetDepthState(gpu.DepthDefault)
	r.dev.SetRasterizerState(gpu.CullBack)

	b.SetMat4(shading.LightView, g.View())
	b.SetMat4(shading.LightProjection, g.Projection())
	for _, rd := range f.RenderList {
		if rd == nil || !rd.CastShadow || rd.Mesh == nil || rd.Material == nil {
			continue
		}
		mesh, err := r.meshes.get(rd.Mesh)
		if err != nil {
			r.skip(rd, err.Error())
			continue
		}
		b.SetMat4(shading.World, rd.World)
		b.Apply(shading.ShadowPass)
		r.draw(mesh)
	}
}
