// Package shading binds materials to shader programs.
//
// Each material is drawn through a Shader, which owns one effect and the
// parameter handles resolved from it. Renderers drive a Shader with three
// calls per frame: PrePass once per camera, Pass once per renderable, and
// LightPass once per renderable and affecting light in the forward technique.
package shading

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/content"
	"render-pipeline/core"
	"render-pipeline/scene"
)

// Technique is the lighting strategy a renderer uses.
type Technique int

const (
	Forward Technique = iota
	// Deferred materials read pre-accumulated lighting from a light map.
	Deferred
)

func (t Technique) String() string {
	if t == Deferred {
		return "Deferred"
	}
	return "Forward"
}

// Variant is one member of the closed set of material shaders.
type Variant int

const (
	StandardForward Variant = iota
	WaterForward
	SkyboxForward
	StandardDeferred
	WaterDeferred
	SkyboxDeferred
)

// VariantFor picks the shader variant for a material kind under a technique.
func VariantFor(kind scene.ShaderKind, t Technique) Variant {
	v := StandardForward
	switch kind {
	case scene.ShaderWater:
		v = WaterForward
	case scene.ShaderSkybox:
		v = SkyboxForward
	}
	if t == Deferred {
		v += StandardDeferred
	}
	return v
}

func (v Variant) Technique() Technique {
	if v >= StandardDeferred {
		return Deferred
	}
	return Forward
}

func (v Variant) Kind() scene.ShaderKind {
	switch v % StandardDeferred {
	case WaterForward:
		return scene.ShaderWater
	case SkyboxForward:
		return scene.ShaderSkybox
	}
	return scene.ShaderStandard
}

// EffectName is the effect asset the variant loads, e.g. "Deferred/StandardWater".
func (v Variant) EffectName() string {
	return v.Technique().String() + "/" + v.Kind().String()
}

func (v Variant) String() string { return v.EffectName() }

// names lists every parameter the variant binds.
func (v Variant) names() []string {
	switch v {
	case StandardForward:
		return concat(cameraNames, fogNames, objectNames, specularNames, lightNames, shadowNames)
	case WaterForward:
		return concat(cameraNames, fogNames, objectNames, specularNames, lightNames, shadowNames, waterNames)
	case StandardDeferred:
		return concat(cameraNames, fogNames, objectNames, specularNames, lightMapNames)
	case WaterDeferred:
		return concat(cameraNames, fogNames, objectNames, specularNames, lightMapNames, waterNames)
	case SkyboxForward, SkyboxDeferred:
		return concat(cameraNames, fogNames, []string{World}, skyNames)
	}
	return nil
}

// Context is the per-call frame state handed to shaders.
type Context struct {
	Settings scene.RenderSettings
	Camera   *scene.Camera
	Viewport core.Viewport
}

// Shader is the protocol renderers drive a material through.
type Shader interface {
	Variant() Variant
	Material() *scene.Material
	// Binding is nil until LoadEffect succeeds.
	Binding() *Binding

	// LoadEffect loads the program and resolves its parameters. It is
	// called once; missing parameters disable the matching feature.
	LoadEffect(src content.Source) error
	// PrePass binds per-camera state, once per camera per frame.
	PrePass(ctx *Context)
	// Pass binds per-object state and applies the base pass.
	Pass(ctx *Context, r *scene.Renderable)
	// Lit reports whether LightPass draws anything for this shader.
	Lit() bool
	// LightPass binds one light and applies the additive light pass.
	LightPass(ctx *Context, r *scene.Renderable, l *scene.Light)
	Dispose()
}

// MaterialShader implements Shader for every Variant.
type MaterialShader struct {
	variant  Variant
	material *scene.Material
	binding  *Binding
}

func NewMaterialShader(v Variant, m *scene.Material) *MaterialShader {
	return &MaterialShader{variant: v, material: m}
}

func (s *MaterialShader) Variant() Variant          { return s.variant }
func (s *MaterialShader) Material() *scene.Material { return s.material }
func (s *MaterialShader) Binding() *Binding         { return s.binding }

func (s *MaterialShader) LoadEffect(src content.Source) error {
	if s.binding != nil {
		return nil
	}
	eff, err := src.LoadEffect(s.variant.EffectName())
	if err != nil {
		return fmt.Errorf("material %q: %w", s.material.Name, err)
	}
	s.binding = NewBinding(eff, s.variant.names()...)
	if !s.binding.HasPass(s.basePass()) {
		core.Logger().Warn("effect has no base pass", "effect", eff.Name(), "pass", s.basePass())
	}
	return nil
}

func (s *MaterialShader) basePass() string {
	if s.variant.Kind() == scene.ShaderSkybox {
		return SkyboxPass
	}
	return AmbientPass
}

func (s *MaterialShader) PrePass(ctx *Context) {
	b := s.binding
	if b == nil {
		return
	}
	b.BindCamera(ctx)
	switch s.variant {
	case WaterForward, WaterDeferred:
		b.SetFloat(Time, ctx.Settings.Time)
	case SkyboxForward, SkyboxDeferred:
		m := s.material
		b.SetColor(ZenithColor, m.ZenithColor)
		b.SetColor(HorizonColor, m.HorizonColor)
		b.SetColor(GroundColor, m.GroundColor)
	}
}

func (s *MaterialShader) Pass(ctx *Context, r *scene.Renderable) {
	b := s.binding
	if b == nil {
		return
	}
	switch s.variant {
	case SkyboxForward, SkyboxDeferred:
		// centred on the eye so the sky never gets closer
		eye := ctx.Camera.Position
		b.SetMat4(World, mgl32.Translate3D(eye[0], eye[1], eye[2]).Mul4(r.World))
		b.Apply(SkyboxPass)
		return
	}

	b.BindObject(r)
	switch s.variant {
	case WaterForward:
		b.SetFloat(WaterSpeed, s.material.WaterSpeed)
	case WaterDeferred:
		b.SetFloat(WaterSpeed, s.material.WaterSpeed)
		b.BindSpecular(s.material)
	case StandardDeferred:
		b.BindSpecular(s.material)
	}
	b.Apply(AmbientPass)
}

func (s *MaterialShader) Lit() bool {
	return s.variant.Technique() == Forward && s.binding.HasPass(LightPass)
}

func (s *MaterialShader) LightPass(ctx *Context, r *scene.Renderable, l *scene.Light) {
	if !s.Lit() {
		return
	}
	b := s.binding
	b.BindSpecular(s.material)
	b.BindLight(r, l)
	b.Apply(LightPass)
}

func (s *MaterialShader) Dispose() {
	s.binding.Dispose()
}

// Factory builds the shader for a material. Tests replace it to observe the
// calls a renderer makes.
type Factory func(v Variant, m *scene.Material) Shader

func DefaultFactory(v Variant, m *scene.Material) Shader {
	return NewMaterialShader(v, m)
}

// Library creates and caches one loaded shader per material.
type Library struct {
	technique Technique
	src       content.Source
	factory   Factory
	shaders   map[*scene.Material]Shader
	failed    map[*scene.Material]error
	order     []Shader
}

func NewLibrary(t Technique, src content.Source, factory Factory) *Library {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Library{
		technique: t,
		src:       src,
		factory:   factory,
		shaders:   make(map[*scene.Material]Shader),
		failed:    make(map[*scene.Material]error),
	}
}

func (l *Library) Technique() Technique { return l.technique }

// ShaderFor returns the material's shader, loading it on first use. A load
// failure is remembered and returned again without retrying.
func (l *Library) ShaderFor(m *scene.Material) (Shader, error) {
	if s, ok := l.shaders[m]; ok {
		return s, nil
	}
	if err, ok := l.failed[m]; ok {
		return nil, err
	}
	s := l.factory(VariantFor(m.Kind, l.technique), m)
	if err := s.LoadEffect(l.src); err != nil {
		l.failed[m] = err
		return nil, err
	}
	l.shaders[m] = s
	l.order = append(l.order, s)
	core.Logger().Debug("shader loaded", "material", m.Name, "variant", s.Variant())
	return s, nil
}

// Shaders lists the loaded shaders in load order.
func (l *Library) Shaders() []Shader { return l.order }

func (l *Library) Dispose() {
	for _, s := range l.order {
		s.Dispose()
	}
	l.order = nil
	clear(l.shaders)
	clear(l.failed)
}
