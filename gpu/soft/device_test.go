package soft

import (
	"image"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"render-pipeline/core"
	"render-pipeline/gpu"
)

const invertFrag = `
uniform sampler2D Source;
uniform float Amount;
`

func invertKernel(ctx gpu.KernelContext, uv mgl32.Vec2) mgl32.Vec4 {
	c := ctx.Texture("Source").Sample(uv)
	a := ctx.Float("Amount")
	return mgl32.Vec4{1 - c[0]*a, 1 - c[1]*a, 1 - c[2]*a, 1}
}

func newInvert(t *testing.T, d *Device) gpu.Effect {
	t.Helper()
	e, err := d.CreateEffect(gpu.EffectSource{
		Name:   "Invert",
		Passes: []gpu.PassSource{{Name: "P0", Fragment: invertFrag, Kernel: invertKernel}},
	})
	require.NoError(t, err)
	return e
}

func TestFullscreenKernel(t *testing.T) {
	d := New(4, 2)
	src, err := d.CreateRenderTarget(gpu.TargetDesc{Name: "Src", Width: 4, Height: 2})
	require.NoError(t, err)
	dst, err := d.CreateRenderTarget(gpu.TargetDesc{Name: "Dst", Width: 4, Height: 2})
	require.NoError(t, err)

	d.Fill(src, func(x, y int) mgl32.Vec4 {
		if x == 0 && y == 0 {
			return mgl32.Vec4{1, 1, 1, 1}
		}
		return mgl32.Vec4{0, 0, 0, 1}
	})

	e := newInvert(t, d)
	e.SetTexture(e.Param("Source"), src)
	e.SetFloat(e.Param("Amount"), 1)

	d.SetRenderTargets(dst)
	e.Pass("P0").Apply()
	d.DrawFullscreen()

	assert.Equal(t, mgl32.Vec4{0, 0, 0, 1}, d.Pixel(dst, 0, 0))
	assert.Equal(t, mgl32.Vec4{1, 1, 1, 1}, d.Pixel(dst, 3, 1))
	assert.Empty(t, d.Feedback())

	last := d.Commands()[len(d.Commands())-1]
	assert.Equal(t, CmdDrawFullscreen, last.Kind)
	assert.True(t, last.WritesTo("Dst"))
	assert.True(t, last.ReadsFrom("Src"))
	v, ok := last.Param("Amount")
	require.True(t, ok)
	assert.Equal(t, float32(1), v.Float())
}

func TestFeedbackLoopIsReported(t *testing.T) {
	d := New(2, 2)
	rt, err := d.CreateRenderTarget(gpu.TargetDesc{Name: "Loop", Width: 2, Height: 2})
	require.NoError(t, err)

	e := newInvert(t, d)
	e.SetTexture(e.Param("Source"), rt)
	d.SetRenderTargets(rt)
	e.Pass("P0").Apply()
	d.DrawFullscreen()

	assert.Len(t, d.Feedback(), 1)
}

func TestBlitCopiesExactly(t *testing.T) {
	d := New(3, 3)
	hdr, err := d.CreateRenderTarget(gpu.TargetDesc{Name: "Scene", Width: 3, Height: 3, Format: gpu.SurfaceColor})
	require.NoError(t, err)
	d.Fill(hdr, func(x, y int) mgl32.Vec4 {
		return mgl32.Vec4{float32(x) / 2, float32(y) / 2, 0.2, 1}
	})

	d.SetRenderTargets()
	d.Blit(hdr)

	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			assert.Equal(t, d.Pixel(hdr, x, y), d.Pixel(nil, x, y))
		}
	}
}

func TestClearAndBlendStates(t *testing.T) {
	d := New(1, 1)
	rt, err := d.CreateRenderTarget(gpu.TargetDesc{Name: "Light", Width: 1, Height: 1, Format: gpu.SurfaceHDR})
	require.NoError(t, err)
	add, err := d.CreateEffect(gpu.EffectSource{
		Name: "Add",
		Passes: []gpu.PassSource{{Name: "P0", Kernel: func(gpu.KernelContext, mgl32.Vec2) mgl32.Vec4 {
			return mgl32.Vec4{0.25, 0, 0, 0}
		}}},
	})
	require.NoError(t, err)

	d.SetRenderTargets(rt)
	d.Clear(gpu.ClearAll, core.ColorBlack)
	d.SetBlendState(gpu.BlendAdditive)
	add.Pass("P0").Apply()
	d.DrawFullscreen()
	d.DrawFullscreen()

	assert.InDelta(t, 0.5, d.Pixel(rt, 0, 0)[0], 1e-6)
}

func TestSingleChannelTarget(t *testing.T) {
	d := New(1, 1)
	rt, err := d.CreateRenderTarget(gpu.TargetDesc{Name: "Depth", Width: 1, Height: 1, Format: gpu.SurfaceSingle})
	require.NoError(t, err)
	d.SetRenderTargets(rt)
	d.Clear(gpu.ClearColor, core.Color{R: 0.7, G: 0.3, B: 0.1, A: 0.5})
	assert.Equal(t, mgl32.Vec4{0.7, 0, 0, 1}, d.Pixel(rt, 0, 0))
}

func TestDisposeTracking(t *testing.T) {
	d := New(2, 2)
	e := newInvert(t, d)
	m, err := d.CreateMesh("Tri", []core.Vertex{{}, {}, {}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Live())

	e.Dispose()
	m.Dispose()
	m.Dispose()
	assert.Equal(t, 0, d.Live())
	assert.Equal(t, 1, d.DoubleReleases())
}

func TestCreateTextureAndSnapshot(t *testing.T) {
	d := New(2, 1)
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{B: 255, A: 255})

	tex, err := d.CreateTexture("Checker", img)
	require.NoError(t, err)
	assert.Equal(t, 2, tex.Width())

	d.SetRenderTargets()
	d.Blit(tex)
	snap := d.Snapshot(nil)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, snap.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, snap.RGBAAt(1, 0))

	_, err = d.CreateTexture("Nil", nil)
	assert.Error(t, err)
}

func TestMissingPassIsNil(t *testing.T) {
	d := New(1, 1)
	e := newInvert(t, d)
	assert.Nil(t, e.Pass("LightPass"))
	assert.Len(t, e.Passes(), 1)
}
