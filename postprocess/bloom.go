package postprocess

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/core"
	"render-pipeline/gpu"
)

// Bloom extracts pixels brighter than Threshold, blurs them at half
// resolution and adds them back scaled by Strength.
type Bloom struct {
	*effectPass
	Threshold float32
	Strength  float32
	// Passes is the number of horizontal+vertical blur iterations.
	Passes int

	ping, pong gpu.RenderTarget
}

func NewBloom() *Bloom {
	return &Bloom{
		effectPass: newEffectPass("Bloom",
			stage{"BrightPass", brightFrag, brightKernel},
			stage{"BlurPass", blurFrag, blurKernel},
			stage{"CompositePass", compositeFrag, compositeKernel},
		),
		Threshold: 1.0,
		Strength:  0.6,
		Passes:    4,
	}
}

const brightFrag = `
uniform float Threshold;

void main() {
    vec3  c    = texture(SourceTexture, fragUV).rgb;
    float luma = dot(c, vec3(0.2126, 0.7152, 0.0722));
    outColor   = vec4(c * step(Threshold, luma), 1.0);
}
`

const blurFrag = `
uniform vec2 TexelDir;

void main() {
    vec3 r = texture(SourceTexture, fragUV - 2.0 * TexelDir).rgb * 0.0625;
    r     += texture(SourceTexture, fragUV - 1.0 * TexelDir).rgb * 0.25;
    r     += texture(SourceTexture, fragUV).rgb                  * 0.375;
    r     += texture(SourceTexture, fragUV + 1.0 * TexelDir).rgb * 0.25;
    r     += texture(SourceTexture, fragUV + 2.0 * TexelDir).rgb * 0.0625;
    outColor = vec4(r, 1.0);
}
`

const compositeFrag = `
uniform sampler2D BloomTexture;
uniform float     Strength;

void main() {
    vec4 c   = texture(SourceTexture, fragUV);
    vec3 b   = texture(BloomTexture, fragUV).rgb;
    outColor = vec4(c.rgb + b * Strength, c.a);
}
`

var blurWeights = [5]float32{0.0625, 0.25, 0.375, 0.25, 0.0625}

func brightKernel(ctx gpu.KernelContext, uv mgl32.Vec2) mgl32.Vec4 {
	c := sample(ctx, SourceTexture, uv).Vec3()
	if luminance(c) < ctx.Float("Threshold") {
		return mgl32.Vec4{0, 0, 0, 1}
	}
	return c.Vec4(1)
}

func blurKernel(ctx gpu.KernelContext, uv mgl32.Vec2) mgl32.Vec4 {
	dir := ctx.Vec2("TexelDir")
	var r mgl32.Vec3
	for i, w := range blurWeights {
		off := dir.Mul(float32(i - 2))
		r = r.Add(sample(ctx, SourceTexture, uv.Add(off)).Vec3().Mul(w))
	}
	return r.Vec4(1)
}

func compositeKernel(ctx gpu.KernelContext, uv mgl32.Vec2) mgl32.Vec4 {
	c := sample(ctx, SourceTexture, uv)
	b := sample(ctx, "BloomTexture", uv).Vec3()
	return c.Vec3().Add(b.Mul(ctx.Float("Strength"))).Vec4(c[3])
}

func (p *Bloom) Apply(dev gpu.Device, in *Input, src gpu.Texture, dst gpu.RenderTarget) {
	w, h := max(src.Width()/2, 1), max(src.Height()/2, 1)
	if err := p.targets(dev, w, h, src.Format()); err != nil {
		core.Logger().Warn("bloom disabled for frame", "err", err)
		copyTo(dev, src, dst)
		return
	}
	b := p.binding

	b.SetFloat("Threshold", p.Threshold)
	p.draw(dev, "BrightPass", src, p.ping)

	texel := mgl32.Vec2{1 / float32(w), 1 / float32(h)}
	for range max(p.Passes, 1) {
		b.SetVec2("TexelDir", mgl32.Vec2{texel[0], 0})
		p.draw(dev, "BlurPass", p.ping, p.pong)
		b.SetVec2("TexelDir", mgl32.Vec2{0, texel[1]})
		p.draw(dev, "BlurPass", p.pong, p.ping)
	}

	b.SetTexture("BloomTexture", p.ping)
	b.SetFloat("Strength", p.Strength)
	p.draw(dev, "CompositePass", src, dst)
	b.SetTexture("BloomTexture", nil)
}

// targets (re)creates the half resolution blur buffers.
func (p *Bloom) targets(dev gpu.Device, w, h int, format gpu.SurfaceFormat) error {
	if p.ping != nil && p.ping.Width() == w && p.ping.Height() == h {
		return nil
	}
	p.disposeTargets()
	for i, rt := range []*gpu.RenderTarget{&p.ping, &p.pong} {
		t, err := dev.CreateRenderTarget(gpu.TargetDesc{
			Name:   fmt.Sprintf("Bloom%d", i),
			Width:  w,
			Height: h,
			Format: format,
		})
		if err != nil {
			p.disposeTargets()
			return err
		}
		*rt = t
	}
	return nil
}

func (p *Bloom) disposeTargets() {
	for _, rt := range []*gpu.RenderTarget{&p.ping, &p.pong} {
		if *rt != nil {
			(*rt).Dispose()
			*rt = nil
		}
	}
}

func (p *Bloom) Dispose() {
	p.disposeTargets()
	p.effectPass.Dispose()
}

// ToneMap maps HDR color to display range with exponential exposure and
// gamma correction.
type ToneMap struct {
	*effectPass
	Exposure float32
	Gamma    float32
}

func NewToneMap() *ToneMap {
	return &ToneMap{
		effectPass: newEffectPass("ToneMap", stage{"ToneMapPass", toneMapFrag, toneMapKernel}),
		Exposure:   1.0,
		Gamma:      2.2,
	}
}

const toneMapFrag = `
uniform float Exposure;
uniform float Gamma;

void main() {
    vec4 hdr    = texture(SourceTexture, fragUV);
    vec3 mapped = vec3(1.0) - exp(-hdr.rgb * Exposure);
    outColor    = vec4(pow(mapped, vec3(1.0 / Gamma)), hdr.a);
}
`

// ToneMapColor is the CPU form of the tone curve.
func ToneMapColor(hdr mgl32.Vec3, exposure, gamma float32) mgl32.Vec3 {
	var out mgl32.Vec3
	for i, v := range hdr {
		mapped := 1 - math.Exp(float64(-v*exposure))
		out[i] = float32(math.Pow(mapped, 1/float64(gamma)))
	}
	return out
}

func toneMapKernel(ctx gpu.KernelContext, uv mgl32.Vec2) mgl32.Vec4 {
	c := sample(ctx, SourceTexture, uv)
	return ToneMapColor(c.Vec3(), ctx.Float("Exposure"), ctx.Float("Gamma")).Vec4(c[3])
}

func (p *ToneMap) Apply(dev gpu.Device, in *Input, src gpu.Texture, dst gpu.RenderTarget) {
	p.binding.SetFloat("Exposure", p.Exposure)
	p.binding.SetFloat("Gamma", max(p.Gamma, 0.01))
	p.draw(dev, "ToneMapPass", src, dst)
}
