// Package renderer turns a scene.Frame into device draw calls.
//
// ForwardRenderer shades every renderable with an ambient pass followed by
// one additive pass per affecting light. LightPrePassRenderer accumulates
// lighting into a screen-space light map first and shades each renderable
// once, sampling that map.
package renderer

import (
	"errors"
	"fmt"

	"render-pipeline/content"
	"render-pipeline/core"
	"render-pipeline/gpu"
	"render-pipeline/scene"
	"render-pipeline/shading"
)

var (
	ErrNotInitialized = errors.New("renderer: not initialized")
	ErrDisposed       = errors.New("renderer: disposed")
	ErrNoCamera       = errors.New("renderer: frame has no camera")
)

// Renderer is implemented by ForwardRenderer and LightPrePassRenderer.
type Renderer interface {
	Initialize(src content.Source) error
	Render(f *scene.Frame) error
	// Output is the scene buffer cameras without a target render into, or
	// nil when they draw to the display.
	Output() gpu.RenderTarget
	Stats() Stats
	Dispose()
}

// ForwardRenderer is the baseline renderer. Per frame it runs one shadow
// pass per shadow-casting light, then for each camera an ambient pass over
// the render list and an additive light pass per renderable and light.
type ForwardRenderer struct {
	dev     gpu.Device
	opts    Options
	factory shading.Factory

	technique shading.Technique
	library   *shading.Library
	shadow    *shading.Binding
	meshes    *meshCache

	scene    gpu.RenderTarget
	viewport core.Viewport

	stats  Stats
	warned map[*scene.Renderable]bool

	initialized bool
	disposed    bool
}

func NewForwardRenderer(dev gpu.Device, opts Options) *ForwardRenderer {
	return &ForwardRenderer{
		dev:       dev,
		opts:      opts,
		technique: shading.Forward,
		meshes:    newMeshCache(dev),
		warned:    make(map[*scene.Renderable]bool),
	}
}

// SetShaderFactory replaces how material shaders are built. It must be
// called before Initialize.
func (r *ForwardRenderer) SetShaderFactory(f shading.Factory) { r.factory = f }

func (r *ForwardRenderer) Initialize(src content.Source) error {
	if r.disposed {
		return ErrDisposed
	}
	if r.initialized {
		return nil
	}
	eff, err := src.LoadEffect("Shadow/Depth")
	if err != nil {
		return fmt.Errorf("forward renderer: %w", err)
	}
	r.shadow = shading.NewBinding(eff, shading.World, shading.LightView, shading.LightProjection)
	r.library = shading.NewLibrary(r.technique, src, r.factory)
	r.initialized = true
	core.Logger().Info("renderer initialized", "technique", r.technique)
	return nil
}

func (r *ForwardRenderer) Output() gpu.RenderTarget { return r.scene }
func (r *ForwardRenderer) Stats() Stats             { return r.stats }

// Library exposes the loaded material shaders.
func (r *ForwardRenderer) Library() *shading.Library { return r.library }

func (r *ForwardRenderer) Render(f *scene.Frame) error {
	if err := r.begin(f); err != nil {
		return err
	}
	if err := r.renderShadows(f); err != nil {
		return err
	}
	for i, cam := range f.Cameras {
		if cam == nil {
			continue
		}
		r.renderSceneForCamera(f, cam, i)
	}
	return nil
}

// begin validates the frame and rebuilds size-dependent targets.
func (r *ForwardRenderer) begin(f *scene.Frame) error {
	switch {
	case r.disposed:
		return ErrDisposed
	case !r.initialized:
		return ErrNotInitialized
	case f == nil || f.PrimaryCamera() == nil:
		return ErrNoCamera
	}
	r.stats = Stats{}
	return r.rebuildTargets()
}

func (r *ForwardRenderer) rebuildTargets() error {
	vp := r.dev.Viewport()
	if !r.opts.Offscreen || (vp == r.viewport && r.scene != nil) {
		return nil
	}
	if vp.Empty() {
		return fmt.Errorf("renderer: empty viewport %dx%d", vp.Width, vp.Height)
	}
	if r.scene != nil {
		r.scene.Dispose()
		r.scene = nil
	}
	rt, err := r.dev.CreateRenderTarget(gpu.TargetDesc{
		Name:   "SceneColor",
		Width:  vp.Width,
		Height: vp.Height,
		Format: r.opts.SceneFormat,
		Depth:  gpu.Depth24,
	})
	if err != nil {
		return fmt.Errorf("scene buffer: %w", err)
	}
	r.scene = rt
	r.viewport = vp
	core.Logger().Debug("scene buffer created", "width", vp.Width, "height", vp.Height)
	return nil
}

// cameraViewport is the size of the target cam draws into.
func (r *ForwardRenderer) cameraViewport(cam *scene.Camera) core.Viewport {
	switch {
	case cam.RenderTarget != nil:
		return core.Viewport{Width: cam.RenderTarget.Width(), Height: cam.RenderTarget.Height()}
	case r.scene != nil:
		return r.viewport
	}
	return r.dev.Viewport()
}

// bindCameraTarget binds where cam draws and returns its size. Cameras
// without a target use the scene buffer, or the display without one.
func (r *ForwardRenderer) bindCameraTarget(cam *scene.Camera) core.Viewport {
	switch {
	case cam.RenderTarget != nil:
		r.dev.SetRenderTargets(cam.RenderTarget)
	case r.scene != nil:
		r.dev.SetRenderTargets(r.scene)
	default:
		r.dev.SetRenderTargets()
	}
	return r.cameraViewport(cam)
}

type drawItem struct {
	r      *scene.Renderable
	shader shading.Shader
	mesh   gpu.Mesh
}

// collect resolves shaders and meshes for the visible renderables of cam in
// draw order. Renderables that cannot be drawn are skipped with a warning.
func (r *ForwardRenderer) collect(f *scene.Frame, cam *scene.Camera) []drawItem {
	var frustum scene.Frustum
	if r.opts.FrustumCulling {
		frustum = cam.Frustum()
	}
	var items []drawItem
	for _, rd := range scene.SortRenderList(f.RenderList, cam.Position) {
		if rd == nil {
			continue
		}
		if rd.Material == nil || rd.Mesh == nil {
			r.skip(rd, "renderable has no material or mesh")
			continue
		}
		if r.opts.FrustumCulling {
			box := rd.Bounds()
			if !box.IntersectsFrustum(&frustum) {
				r.stats.Culled++
				continue
			}
		}
		sh, err := r.library.ShaderFor(rd.Material)
		if err != nil {
			r.skip(rd, err.Error())
			continue
		}
		mesh, err := r.meshes.get(rd.Mesh)
		if err != nil {
			r.skip(rd, err.Error())
			continue
		}
		items = append(items, drawItem{rd, sh, mesh})
	}
	return items
}

func (r *ForwardRenderer) skip(rd *scene.Renderable, reason string) {
	r.stats.Skipped++
	if r.warned[rd] {
		return
	}
	r.warned[rd] = true
	core.Logger().Warn("renderable skipped", "name", rd.Name, "reason", reason)
}

func (r *ForwardRenderer) draw(m gpu.Mesh) {
	r.dev.Draw(m)
	r.stats.DrawCalls++
}

// renderSceneForCamera draws the skybox, the ambient pass and, for lit
// shaders, the light passes. The primary camera clears its target; later
// cameras sharing that target only clear depth.
func (r *ForwardRenderer) renderSceneForCamera(f *scene.Frame, cam *scene.Camera, index int) {
	vp := r.bindCameraTarget(cam)
	cam.UpdateAspectRatio(float32(vp.Width), float32(vp.Height))
	if index == 0 || cam.RenderTarget != nil {
		r.dev.Clear(gpu.ClearAll, cam.ClearColor)
	} else {
		r.dev.Clear(gpu.ClearDepth, cam.ClearColor)
	}

	ctx := &shading.Context{Settings: f.Settings, Camera: cam, Viewport: vp}
	r.drawSkybox(f, ctx)

	items := r.collect(f, cam)
	prepared := make(map[shading.Shader]bool)
	for _, it := range items {
		if !prepared[it.shader] {
			prepared[it.shader] = true
			it.shader.PrePass(ctx)
		}
	}

	r.dev.SetDepthState(gpu.DepthDefault)
	r.dev.SetRasterizerState(gpu.CullBack)
	for _, it := range items {
		if it.r.Queue == scene.QueueTransparent {
			r.dev.SetBlendState(gpu.BlendAlpha)
		} else {
			r.dev.SetBlendState(gpu.BlendOpaque)
		}
		it.shader.Pass(ctx, it.r)
		r.draw(it.mesh)
		r.stats.Objects++
		r.stats.Vertices += len(it.r.Mesh.Vertices)
		r.stats.Triangles += it.r.Mesh.TriangleCount()
	}

	r.dev.SetBlendState(gpu.BlendAdditive)
	r.dev.SetDepthState(gpu.DepthRead)
	for _, it := range items {
		if !it.shader.Lit() {
			continue
		}
		box := it.r.Bounds()
		for _, l := range f.Lights {
			if l == nil || (r.opts.LightCulling && !l.Affects(box)) {
				continue
			}
			it.shader.LightPass(ctx, it.r, l)
			r.draw(it.mesh)
			r.stats.LightDraws++
		}
	}

	r.dev.SetBlendState(gpu.BlendOpaque)
	r.dev.SetDepthState(gpu.DepthDefault)
}

// drawSkybox draws the frame's sky behind everything else.
func (r *ForwardRenderer) drawSkybox(f *scene.Frame, ctx *shading.Context) {
	sky := f.Skybox
	if sky == nil || sky.Material == nil || sky.Mesh == nil {
		return
	}
	sh, err := r.library.ShaderFor(sky.Material)
	if err != nil {
		r.skip(sky, err.Error())
		return
	}
	mesh, err := r.meshes.get(sky.Mesh)
	if err != nil {
		r.skip(sky, err.Error())
		return
	}
	r.dev.SetBlendState(gpu.BlendOpaque)
	r.dev.SetDepthState(gpu.DepthRead)
	// the camera sits inside the box
	r.dev.SetRasterizerState(gpu.CullFront)
	sh.PrePass(ctx)
	sh.Pass(ctx, sky)
	r.draw(mesh)
	r.dev.SetRasterizerState(gpu.CullBack)
	r.dev.SetDepthState(gpu.DepthDefault)
}

// Dispose releases shaders, meshes and targets. Calling it again does nothing.
func (r *ForwardRenderer) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	if r.library != nil {
		r.library.Dispose()
	}
	r.shadow.Dispose()
	r.meshes.dispose()
	if r.scene != nil {
		r.scene.Dispose()
		r.scene = nil
	}
	core.Logger().Info("renderer disposed", "technique", r.technique)
}
