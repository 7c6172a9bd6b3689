package postprocess

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/gpu"
	"render-pipeline/shading"
)

// Parameter names used by the pass programs.
const (
	SourceTexture = "SourceTexture"
	texelSize     = "TexelSize"
)

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

const fragHeader = `#version 410 core
in  vec2 fragUV;
out vec4 outColor;
uniform sampler2D SourceTexture;
`

// stage is one fullscreen program of a pass.
type stage struct {
	name     string
	fragment string
	kernel   gpu.Kernel
}

// effectPass is the shared base of the built-in passes.
type effectPass struct {
	name    string
	enabled bool
	stages  []stage
	binding *shading.Binding
}

func newEffectPass(name string, stages ...stage) *effectPass {
	return &effectPass{name: name, enabled: true, stages: stages}
}

func (p *effectPass) Name() string       { return p.name }
func (p *effectPass) Enabled() bool      { return p.enabled }
func (p *effectPass) SetEnabled(on bool) { p.enabled = on }

func (p *effectPass) Load(dev gpu.Device) error {
	if p.binding != nil {
		return nil
	}
	src := gpu.EffectSource{Name: "PostProcess/" + p.name}
	for _, s := range p.stages {
		src.Passes = append(src.Passes, gpu.PassSource{
			Name:     s.name,
			Vertex:   fullscreenVert,
			Fragment: fragHeader + s.fragment,
			Kernel:   s.kernel,
		})
	}
	eff, err := dev.CreateEffect(src)
	if err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	p.binding = shading.NewBinding(eff, src.ParamNames()...)
	return nil
}

// draw runs one stage from src into dst.
func (p *effectPass) draw(dev gpu.Device, stage string, src gpu.Texture, dst gpu.RenderTarget) {
	b := p.binding
	dev.SetRenderTargets(dst)
	dev.SetBlendState(gpu.BlendOpaque)
	dev.SetDepthState(gpu.DepthOff)
	b.SetTexture(SourceTexture, src)
	b.SetVec2(texelSize, mgl32.Vec2{1 / float32(src.Width()), 1 / float32(src.Height())})
	b.Apply(stage)
	dev.DrawFullscreen()
	b.SetTexture(SourceTexture, nil)
}

func (p *effectPass) Dispose() {
	p.binding.Dispose()
	p.binding = nil
}

// copyTo forwards src unchanged.
func copyTo(dev gpu.Device, src gpu.Texture, dst gpu.RenderTarget) {
	dev.SetRenderTargets(dst)
	dev.SetBlendState(gpu.BlendOpaque)
	dev.SetDepthState(gpu.DepthOff)
	dev.Blit(src)
}

// Kernel helpers.

func sample(ctx gpu.KernelContext, name string, uv mgl32.Vec2) mgl32.Vec4 {
	s := ctx.Texture(name)
	if s == nil {
		return mgl32.Vec4{}
	}
	return s.Sample(uv)
}

var lumaWeights = mgl32.Vec3{0.2126, 0.7152, 0.0722}

func luminance(c mgl32.Vec3) float32 { return c.Dot(lumaWeights) }

func mix(a, b, t float32) float32 { return a + (b-a)*t }

func mixVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return mgl32.Vec3{mix(a[0], b[0], t), mix(a[1], b[1], t), mix(a[2], b[2], t)}
}

func smoothstep(e0, e1, x float32) float32 {
	t := mgl32.Clamp((x-e0)/(e1-e0), 0, 1)
	return t * t * (3 - 2*t)
}
