package renderer

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/content"
	"render-pipeline/core"
	"render-pipeline/gpu"
	"render-pipeline/scene"
	"render-pipeline/shading"
)

// Names of the light-pre-pass buffers.
const (
	NormalBufferName = "PreLight:Normal"
	DepthBufferName  = "PreLight:Depth"
	LightBufferName  = "PreLight:Light"
)

// LightPrePassRenderer replaces the forward light loop with a light map.
// For each camera it renders view-space normals and depth, accumulates every
// light into the light map with additive light volumes, then runs the
// forward ambient pass with materials sampling the map.
type LightPrePassRenderer struct {
	*ForwardRenderer

	depthNormal *shading.Binding
	lightMap    *shading.Binding
	// sphere is the unit light volume shared by all lights.
	sphere gpu.Mesh

	// sets holds one group of buffers per camera target. cur is the group
	// of the camera being drawn.
	sets []*preLightTargets
	cur  *preLightTargets

	disposed bool
}

// preLightTargets are the normal, depth and light buffers for the cameras
// drawing into owner, nil for the scene buffer or the display.
type preLightTargets struct {
	owner  gpu.RenderTarget
	vp     core.Viewport
	normal gpu.RenderTarget
	depth  gpu.RenderTarget
	light  gpu.RenderTarget
	used   bool
}

func (t *preLightTargets) dispose() {
	for _, rt := range []gpu.RenderTarget{t.normal, t.depth, t.light} {
		if rt != nil {
			rt.Dispose()
		}
	}
	t.normal, t.depth, t.light = nil, nil, nil
}

func NewLightPrePassRenderer(dev gpu.Device, opts Options) *LightPrePassRenderer {
	fr := NewForwardRenderer(dev, opts)
	fr.technique = shading.Deferred
	return &LightPrePassRenderer{ForwardRenderer: fr}
}

func (r *LightPrePassRenderer) Initialize(src content.Source) error {
	if r.disposed {
		return ErrDisposed
	}
	if r.sphere != nil {
		return nil
	}
	if err := r.ForwardRenderer.Initialize(src); err != nil {
		return err
	}

	r.depthNormal.Dispose()
	r.lightMap.Dispose()
	eff, err := src.LoadEffect("PreLighting/DepthNormal")
	if err != nil {
		return fmt.Errorf("light pre-pass: %w", err)
	}
	r.depthNormal = shading.NewBinding(eff, shading.World, shading.View, shading.Projection)

	eff, err = src.LoadEffect("PreLighting/LightMap")
	if err != nil {
		return fmt.Errorf("light pre-pass: %w", err)
	}
	r.lightMap = shading.NewBinding(eff,
		shading.NormalTexture, shading.DepthTexture, shading.InvViewProjection, shading.View,
		shading.Viewport, shading.WorldViewProjection, shading.LightColor, shading.LightPosition,
		shading.LightDirection, shading.LightType, shading.LightAttenuation, shading.LightRange,
		shading.LightIntensity, shading.ShadowEnabled, shading.ShadowStrength, shading.ShadowBias,
		shading.ShadowMap, shading.LightView, shading.LightProjection,
	)

	sphere := scene.CreateSphere(1, r.opts.LightVolumeSegments, r.opts.LightVolumeRings)
	r.sphere, err = r.dev.CreateMesh("LightVolume", sphere.Vertices, sphere.Indices)
	if err != nil {
		return fmt.Errorf("light volume: %w", err)
	}
	return nil
}

// Render runs the shadow passes, then for each camera the depth/normal pass,
// the light accumulation pass and the shading pass.
func (r *LightPrePassRenderer) Render(f *scene.Frame) error {
	if r.disposed {
		return ErrDisposed
	}
	if r.sphere == nil {
		return ErrNotInitialized
	}
	if err := r.begin(f); err != nil {
		return err
	}
	if err := r.renderShadows(f); err != nil {
		return err
	}
	for _, set := range r.sets {
		set.used = false
	}
	for i, cam := range f.Cameras {
		if cam == nil {
			continue
		}
		if err := r.PreLightingPass(f, cam); err != nil {
			return err
		}
		r.PrepareEffects(f)
		r.renderSceneForCamera(f, cam, i)
	}
	r.pruneTargets()
	return nil
}

// targetsFor returns the buffers of owner sized vp, creating them on first
// use.
func (r *LightPrePassRenderer) targetsFor(owner gpu.RenderTarget, vp core.Viewport) (*preLightTargets, error) {
	for _, set := range r.sets {
		if set.owner == owner && set.vp == vp {
			set.used = true
			return set, nil
		}
	}
	if vp.Empty() {
		return nil, fmt.Errorf("light pre-pass: empty viewport %dx%d", vp.Width, vp.Height)
	}

	var err error
	create := func(name string, format gpu.SurfaceFormat) gpu.RenderTarget {
		if err != nil {
			return nil
		}
		var rt gpu.RenderTarget
		rt, err = r.dev.CreateRenderTarget(gpu.TargetDesc{
			Name: name, Width: vp.Width, Height: vp.Height, Format: format, Depth: gpu.Depth24,
		})
		return rt
	}
	set := &preLightTargets{owner: owner, vp: vp, used: true}
	set.normal = create(NormalBufferName, gpu.SurfaceColor)
	set.depth = create(DepthBufferName, gpu.SurfaceSingle)
	set.light = create(LightBufferName, gpu.SurfaceColor)
	if err != nil {
		set.dispose()
		return nil, fmt.Errorf("light pre-pass buffers: %w", err)
	}
	r.sets = append(r.sets, set)
	core.Logger().Debug("light pre-pass buffers created", "width", vp.Width, "height", vp.Height)
	return set, nil
}

// pruneTargets releases the buffers no camera used this frame, such as the
// ones sized for the viewport before a resize.
func (r *LightPrePassRenderer) pruneTargets() {
	kept := r.sets[:0]
	for _, set := range r.sets {
		if set.used {
			kept = append(kept, set)
			continue
		}
		set.dispose()
		core.Logger().Debug("light pre-pass buffers released", "width", set.vp.Width, "height", set.vp.Height)
	}
	clear(r.sets[len(kept):])
	r.sets = kept
}

// PreLightingPass fills the normal and depth buffers from cam, then
// accumulates every eligible light into the light map. The buffers match the
// size of the target cam draws into.
func (r *LightPrePassRenderer) PreLightingPass(f *scene.Frame, cam *scene.Camera) error {
	set, err := r.targetsFor(cam.RenderTarget, r.cameraViewport(cam))
	if err != nil {
		return err
	}
	r.cur = set
	cam.UpdateAspectRatio(float32(set.vp.Width), float32(set.vp.Height))
	view, proj := cam.View(), cam.Projection()
	viewProj := cam.ViewProjection()

	r.dev.SetRenderTargets(set.normal, set.depth)
	r.dev.Clear(gpu.ClearAll, core.ColorWhite)
	r.dev.SetBlendState(gpu.BlendOpaque)
	r.dev.SetDepthState(gpu.DepthDefault)
	r.dev.SetRasterizerState(gpu.CullBack)

	dn := r.depthNormal
	dn.SetMat4(shading.View, view)
	dn.SetMat4(shading.Projection, proj)
	for _, rd := range f.RenderList {
		if rd == nil || rd.Mesh == nil || rd.Material == nil || rd.Queue != scene.QueueOpaque {
			continue
		}
		mesh, err := r.meshes.get(rd.Mesh)
		if err != nil {
			r.skip(rd, err.Error())
			continue
		}
		dn.SetMat4(shading.World, rd.World)
		dn.Apply(shading.DepthNormalPass)
		r.draw(mesh)
	}

	r.dev.SetRenderTargets(set.light)
	r.dev.Clear(gpu.ClearColor, core.ColorBlack)
	r.dev.SetBlendState(gpu.BlendAdditive)
	r.dev.SetDepthState(gpu.DepthOff)

	lm := r.lightMap
	lm.SetTexture(shading.NormalTexture, set.normal)
	lm.SetTexture(shading.DepthTexture, set.depth)
	lm.SetMat4(shading.InvViewProjection, viewProj.Inv())
	lm.SetMat4(shading.View, view)
	lm.SetVec2(shading.Viewport, set.vp.Size())

	for _, l := range f.Lights {
		if l == nil || l.Mode == scene.LightModeRealTime {
			continue
		}
		r.bindLight(l)
		if l.Type == scene.LightDirectional {
			r.dev.SetRasterizerState(gpu.CullBack)
			lm.Apply(shading.DirectionalPass)
			r.dev.DrawFullscreen()
			r.stats.DrawCalls++
			r.stats.LightDraws++
			continue
		}

		r.dev.SetRasterizerState(VolumeCulling(cam.Position, l))
		world := mgl32.Translate3D(l.Position[0], l.Position[1], l.Position[2]).
			Mul4(mgl32.Scale3D(l.Range, l.Range, l.Range))
		lm.SetMat4(shading.WorldViewProjection, viewProj.Mul4(world))
		lm.Apply(shading.LightPass)
		r.draw(r.sphere)
		r.stats.LightDraws++
	}

	r.dev.SetRasterizerState(gpu.CullBack)
	r.dev.SetBlendState(gpu.BlendOpaque)
	r.dev.SetDepthState(gpu.DepthDefault)
	// release the inputs so they can be bound for writing again
	lm.SetTexture(shading.NormalTexture, nil)
	lm.SetTexture(shading.DepthTexture, nil)
	lm.SetTexture(shading.ShadowMap, nil)
	return nil
}

func (r *LightPrePassRenderer) bindLight(l *scene.Light) {
	lm := r.lightMap
	lm.SetVec3(shading.LightColor, l.Color.Vec3())
	lm.SetVec3(shading.LightPosition, l.Position)
	lm.SetVec3(shading.LightDirection, l.Direction)
	lm.SetInt(shading.LightType, int32(l.Type))
	lm.SetFloat(shading.LightAttenuation, l.FallOff)
	lm.SetFloat(shading.LightRange, l.Range)
	lm.SetFloat(shading.LightIntensity, l.Intensity)

	shadowed := l.CastsShadow() && l.Shadow.Map() != nil
	lm.SetBool(shading.ShadowEnabled, shadowed)
	if !shadowed {
		lm.SetTexture(shading.ShadowMap, nil)
		return
	}
	lm.SetTexture(shading.ShadowMap, l.Shadow.Map())
	lm.SetFloat(shading.ShadowStrength, l.Shadow.Strength)
	lm.SetFloat(shading.ShadowBias, l.Shadow.Bias)
	lm.SetMat4(shading.LightView, l.Shadow.View())
	lm.SetMat4(shading.LightProjection, l.Shadow.Projection())
}

// VolumeCulling picks the culling for a light volume seen from eye. Inside
// the volume the front faces are behind the near plane, so the back faces
// are drawn instead. A camera exactly on the boundary counts as outside.
func VolumeCulling(eye mgl32.Vec3, l *scene.Light) gpu.CullMode {
	if eye.Sub(l.Position).Len() < l.Range {
		return gpu.CullFront
	}
	return gpu.CullBack
}

// PrepareEffects hands the light map of the last PreLightingPass to every
// frame material whose shader reads one.
func (r *LightPrePassRenderer) PrepareEffects(f *scene.Frame) {
	if r.cur == nil {
		return
	}
	for _, m := range f.FrameMaterials() {
		sh, err := r.library.ShaderFor(m)
		if err != nil {
			continue
		}
		b := sh.Binding()
		if !b.Has(shading.LightMap) {
			continue
		}
		b.SetTexture(shading.LightMap, r.cur.light)
		b.SetVec2(shading.Viewport, r.cur.vp.Size())
	}
}

// LightBuffer is the accumulated light map of the last camera rendered.
func (r *LightPrePassRenderer) LightBuffer() gpu.RenderTarget {
	if r.cur == nil {
		return nil
	}
	return r.cur.light
}

// DepthBuffer holds the NDC depth of the opaque renderables as seen by the
// last camera drawing into Output.
func (r *LightPrePassRenderer) DepthBuffer() gpu.RenderTarget {
	for _, set := range r.sets {
		if set.owner == nil {
			return set.depth
		}
	}
	return nil
}

func (r *LightPrePassRenderer) disposeTargets() {
	for _, set := range r.sets {
		set.dispose()
	}
	r.sets, r.cur = nil, nil
}

// Dispose releases the pre-pass resources and everything the forward
// renderer owns. Calling it again does nothing.
func (r *LightPrePassRenderer) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	r.depthNormal.Dispose()
	r.lightMap.Dispose()
	if r.sphere != nil {
		r.sphere.Dispose()
		r.sphere = nil
	}
	r.disposeTargets()
	r.ForwardRenderer.Dispose()
}
