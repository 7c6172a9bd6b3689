package postprocess

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/core"
	"render-pipeline/gpu"
	"render-pipeline/scene"
)

// GrayScale desaturates the image by Amount (1 = fully gray).
type GrayScale struct {
	*effectPass
	Amount float32
}

func NewGrayScale() *GrayScale {
	return &GrayScale{
		effectPass: newEffectPass("GrayScale", stage{"GrayScalePass", grayScaleFrag, grayScaleKernel}),
		Amount:     1,
	}
}

const grayScaleFrag = `
uniform float Amount;

void main() {
    vec4  c    = texture(SourceTexture, fragUV);
    float luma = dot(c.rgb, vec3(0.2126, 0.7152, 0.0722));
    outColor   = vec4(mix(c.rgb, vec3(luma), Amount), c.a);
}
`

func grayScaleKernel(ctx gpu.KernelContext, uv mgl32.Vec2) mgl32.Vec4 {
	c := sample(ctx, SourceTexture, uv)
	l := luminance(c.Vec3())
	return mixVec3(c.Vec3(), mgl32.Vec3{l, l, l}, ctx.Float("Amount")).Vec4(c[3])
}

func (p *GrayScale) Apply(dev gpu.Device, in *Input, src gpu.Texture, dst gpu.RenderTarget) {
	p.binding.SetFloat("Amount", p.Amount)
	p.draw(dev, "GrayScalePass", src, dst)
}

// Vignette fades the image toward Color away from the centre. Radius is
// where the fade ends, measured in uv units from the centre.
type Vignette struct {
	*effectPass
	Color    core.Color
	Radius   float32
	Softness float32
}

func NewVignette() *Vignette {
	return &Vignette{
		effectPass: newEffectPass("Vignette", stage{"VignettePass", vignetteFrag, vignetteKernel}),
		Color:      core.ColorBlack,
		Radius:     0.75,
		Softness:   0.45,
	}
}

const vignetteFrag = `
uniform vec4  VignetteColor;
uniform float Radius;
uniform float Softness;

void main() {
    vec4  c = texture(SourceTexture, fragUV);
    float d = distance(fragUV, vec2(0.5));
    float v = 1.0 - smoothstep(Radius - Softness, Radius, d);
    outColor = vec4(mix(VignetteColor.rgb, c.rgb, v), c.a);
}
`

func vignetteKernel(ctx gpu.KernelContext, uv mgl32.Vec2) mgl32.Vec4 {
	c := sample(ctx, SourceTexture, uv)
	radius, soft := ctx.Float("Radius"), ctx.Float("Softness")
	d := uv.Sub(mgl32.Vec2{0.5, 0.5}).Len()
	v := 1 - smoothstep(radius-soft, radius, d)
	return mixVec3(ctx.Vec4("VignetteColor").Vec3(), c.Vec3(), v).Vec4(c[3])
}

func (p *Vignette) Apply(dev gpu.Device, in *Input, src gpu.Texture, dst gpu.RenderTarget) {
	b := p.binding
	b.SetColor("VignetteColor", p.Color)
	b.SetFloat("Radius", p.Radius)
	b.SetFloat("Softness", max(p.Softness, 1e-4))
	p.draw(dev, "VignettePass", src, dst)
}

// Refraction distorts the image with the red and green channels of a normal
// texture tiled across the screen. Without a texture it copies.
type Refraction struct {
	*effectPass
	Texture  gpu.Texture
	Tiling   mgl32.Vec2
	Strength float32
}

func NewRefraction(tex gpu.Texture) *Refraction {
	return &Refraction{
		effectPass: newEffectPass("Refraction", stage{"RefractionPass", refractionFrag, refractionKernel}),
		Texture:    tex,
		Tiling:     mgl32.Vec2{0.5, 0.5},
		Strength:   0.02,
	}
}

const refractionFrag = `
uniform sampler2D RefractionTexture;
uniform vec2      TextureTiling;
uniform float     Strength;

void main() {
    vec2 n   = texture(RefractionTexture, fragUV * TextureTiling).rg * 2.0 - 1.0;
    outColor = texture(SourceTexture, fragUV + n * Strength);
}
`

func refractionKernel(ctx gpu.KernelContext, uv mgl32.Vec2) mgl32.Vec4 {
	tiling := ctx.Vec2("TextureTiling")
	tuv := mgl32.Vec2{uv[0] * tiling[0], uv[1] * tiling[1]}
	// repeat wrap
	tuv = mgl32.Vec2{tuv[0] - float32(math.Floor(float64(tuv[0]))), tuv[1] - float32(math.Floor(float64(tuv[1])))}
	n := sample(ctx, "RefractionTexture", tuv)
	off := mgl32.Vec2{n[0]*2 - 1, n[1]*2 - 1}.Mul(ctx.Float("Strength"))
	return sample(ctx, SourceTexture, uv.Add(off))
}

func (p *Refraction) Apply(dev gpu.Device, in *Input, src gpu.Texture, dst gpu.RenderTarget) {
	if p.Texture == nil {
		copyTo(dev, src, dst)
		return
	}
	b := p.binding
	b.SetTexture("RefractionTexture", p.Texture)
	b.SetVec2("TextureTiling", p.Tiling)
	b.SetFloat("Strength", p.Strength)
	p.draw(dev, "RefractionPass", src, dst)
	b.SetTexture("RefractionTexture", nil)
}

// GlobalFog blends distant pixels toward Color using the scene depth
// buffer. Without depth, or with FogNone, it copies.
type GlobalFog struct {
	*effectPass
	Mode    scene.FogMode
	Color   core.Color
	Density float32
	Start   float32
	End     float32
}

func NewGlobalFog(mode scene.FogMode, density float32) *GlobalFog {
	return &GlobalFog{
		effectPass: newEffectPass("GlobalFog", stage{"FogPass", fogFrag, fogKernel}),
		Mode:       mode,
		Color:      core.Color{R: 0.62, G: 0.76, B: 0.90, A: 1},
		Density:    density,
		Start:      10,
		End:        100,
	}
}

const fogFrag = `
uniform sampler2D DepthTexture;
uniform vec3      FogColor;
uniform vec4      FogData;
uniform vec2      ClipPlanes;

float linearDepth(float ndc) {
    float n = ClipPlanes.x;
    float f = ClipPlanes.y;
    return 2.0 * n * f / (f + n - ndc * (f - n));
}

float fogFactor(float dist) {
    int mode = int(FogData.w);
    if (mode == 1) return clamp((dist - FogData.x) / max(FogData.y - FogData.x, 0.0001), 0.0, 1.0);
    if (mode == 2) return 1.0 - exp(-FogData.z * dist);
    if (mode == 3) return 1.0 - exp(-pow(FogData.z * dist, 2.0));
    return 0.0;
}

void main() {
    vec4  c    = texture(SourceTexture, fragUV);
    float dist = linearDepth(texture(DepthTexture, fragUV).r);
    outColor   = vec4(mix(c.rgb, FogColor, fogFactor(dist)), c.a);
}
`

// FogFactor is the fraction of fog at dist for data (start, end, density, mode).
func FogFactor(data mgl32.Vec4, dist float32) float32 {
	switch scene.FogMode(data[3]) {
	case scene.FogLinear:
		return mgl32.Clamp((dist-data[0])/max(data[1]-data[0], 1e-4), 0, 1)
	case scene.FogExp:
		return 1 - float32(math.Exp(float64(-data[2]*dist)))
	case scene.FogExp2:
		d := float64(data[2] * dist)
		return 1 - float32(math.Exp(-d*d))
	}
	return 0
}

func fogKernel(ctx gpu.KernelContext, uv mgl32.Vec2) mgl32.Vec4 {
	c := sample(ctx, SourceTexture, uv)
	clip := ctx.Vec2("ClipPlanes")
	n, f := clip[0], clip[1]
	ndc := sample(ctx, "DepthTexture", uv)[0]
	dist := 2 * n * f / (f + n - ndc*(f-n))
	k := FogFactor(ctx.Vec4("FogData"), dist)
	return mixVec3(c.Vec3(), ctx.Vec3("FogColor"), k).Vec4(c[3])
}

func (p *GlobalFog) Apply(dev gpu.Device, in *Input, src gpu.Texture, dst gpu.RenderTarget) {
	if p.Mode == scene.FogNone || in.Depth == nil || in.Camera == nil {
		copyTo(dev, src, dst)
		return
	}
	b := p.binding
	b.SetTexture("DepthTexture", in.Depth)
	b.SetVec3("FogColor", p.Color.Vec3())
	b.SetVec4("FogData", mgl32.Vec4{p.Start, p.End, p.Density, float32(p.Mode)})
	b.SetVec2("ClipPlanes", mgl32.Vec2{in.Camera.NearPlane, in.Camera.FarPlane})
	p.draw(dev, "FogPass", src, dst)
	b.SetTexture("DepthTexture", nil)
}
