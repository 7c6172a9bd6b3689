package shading

import (
	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/core"
	"render-pipeline/gpu"
	"render-pipeline/scene"
)

// Binding wraps one loaded effect and the parameter handles resolved from it.
// Handles are looked up once in NewBinding and never again; names the effect
// does not declare resolve to gpu.NoParam and their setters do nothing.
type Binding struct {
	effect gpu.Effect
	params map[string]gpu.Param
	passes map[string]gpu.Pass
}

// NewBinding resolves names against effect. The binding takes ownership of
// the effect.
func NewBinding(effect gpu.Effect, names ...string) *Binding {
	b := &Binding{
		effect: effect,
		params: make(map[string]gpu.Param, len(names)),
		passes: make(map[string]gpu.Pass),
	}
	for _, n := range names {
		if _, ok := b.params[n]; ok {
			continue
		}
		b.params[n] = effect.Param(n)
	}
	for _, p := range effect.Passes() {
		b.passes[p.Name()] = p
	}
	return b
}

func (b *Binding) Effect() gpu.Effect { return b.effect }

// Has reports whether the effect declares name.
func (b *Binding) Has(name string) bool {
	return b.Param(name).Valid()
}

func (b *Binding) Param(name string) gpu.Param {
	if b == nil || b.effect == nil {
		return gpu.NoParam
	}
	if p, ok := b.params[name]; ok {
		return p
	}
	return gpu.NoParam
}

// Apply makes the named pass current and reports whether it exists.
func (b *Binding) Apply(pass string) bool {
	if b == nil {
		return false
	}
	p, ok := b.passes[pass]
	if !ok {
		return false
	}
	p.Apply()
	return true
}

func (b *Binding) HasPass(pass string) bool {
	if b == nil {
		return false
	}
	_, ok := b.passes[pass]
	return ok
}

func (b *Binding) SetFloat(name string, v float32) {
	if p := b.Param(name); p.Valid() {
		b.effect.SetFloat(p, v)
	}
}

func (b *Binding) SetInt(name string, v int32) {
	if p := b.Param(name); p.Valid() {
		b.effect.SetInt(p, v)
	}
}

func (b *Binding) SetBool(name string, v bool) {
	if p := b.Param(name); p.Valid() {
		b.effect.SetBool(p, v)
	}
}

func (b *Binding) SetVec2(name string, v mgl32.Vec2) {
	if p := b.Param(name); p.Valid() {
		b.effect.SetVec2(p, v)
	}
}

func (b *Binding) SetVec3(name string, v mgl32.Vec3) {
	if p := b.Param(name); p.Valid() {
		b.effect.SetVec3(p, v)
	}
}

func (b *Binding) SetVec4(name string, v mgl32.Vec4) {
	if p := b.Param(name); p.Valid() {
		b.effect.SetVec4(p, v)
	}
}

func (b *Binding) SetMat4(name string, v mgl32.Mat4) {
	if p := b.Param(name); p.Valid() {
		b.effect.SetMat4(p, v)
	}
}

func (b *Binding) SetColor(name string, c core.Color) { b.SetVec4(name, c.Vec4()) }

// SetTexture binds tex, or unbinds when tex is nil.
func (b *Binding) SetTexture(name string, tex gpu.Texture) {
	if p := b.Param(name); p.Valid() {
		b.effect.SetTexture(p, tex)
	}
}

// BindCamera sets the per-camera state shared by every object drawn with
// this binding.
func (b *Binding) BindCamera(ctx *Context) {
	cam := ctx.Camera
	b.SetMat4(View, cam.View())
	b.SetMat4(Projection, cam.Projection())
	b.SetVec3(EyePosition, cam.Position)
	b.SetVec3(AmbientColor, ctx.Settings.AmbientColor.Vec3())
	b.SetVec3(FogColor, ctx.Settings.FogColor.Vec3())
	b.SetVec4(FogData, ctx.Settings.FogData())
}

// BindObject sets the per-object state of a renderable.
func (b *Binding) BindObject(r *scene.Renderable) {
	m := r.Material
	b.SetMat4(World, r.World)
	b.SetVec2(TextureTiling, m.Tiling)
	b.SetColor(DiffuseColor, m.DiffuseColor)
	b.SetTexture(MainTexture, m.MainTexture)
	b.SetBool(MainTextureEnabled, m.MainTexture != nil)
}

func (b *Binding) BindSpecular(m *scene.Material) {
	b.SetVec3(SpecularLightColor, m.SpecularColor.Vec3())
	b.SetFloat(SpecularPower, m.Shininess)
	b.SetFloat(SpecularIntensity, m.SpecularIntensity)
	b.SetTexture(SpecularTexture, m.SpecularTexture)
	b.SetBool(SpecularTextureEnabled, m.SpecularTexture != nil)
}

// BindLight sets one light's contribution. Shadows are sampled only when the
// light has a shadow map and the renderable receives shadows.
func (b *Binding) BindLight(r *scene.Renderable, l *scene.Light) {
	b.SetVec3(LightColor, l.Color.Vec3())
	b.SetVec3(LightDirection, l.Direction)
	b.SetVec3(LightPosition, l.Position)
	b.SetFloat(LightSpotAngle, l.SpotAngle)
	b.SetFloat(LightIntensity, l.Intensity)
	b.SetFloat(LightRange, l.Range)
	b.SetFloat(LightFallOff, l.FallOff)
	b.SetInt(LightType, int32(l.Type))

	shadowed := l.CastsShadow() && l.Shadow.Map() != nil && r.ReceiveShadow
	b.SetBool(ShadowEnabled, shadowed)
	if !shadowed {
		b.SetTexture(ShadowMap, nil)
		return
	}
	g := l.Shadow
	b.SetFloat(ShadowStrength, g.Strength)
	b.SetFloat(ShadowBias, g.Bias)
	b.SetTexture(ShadowMap, g.Map())
	b.SetMat4(LightView, g.View())
	b.SetMat4(LightProjection, g.Projection())
}

// Dispose releases the effect. Safe to call more than once.
func (b *Binding) Dispose() {
	if b == nil || b.effect == nil {
		return
	}
	b.effect.Dispose()
	b.effect = nil
	b.passes = nil
}
