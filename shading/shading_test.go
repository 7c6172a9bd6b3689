package shading

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"render-pipeline/content"
	"render-pipeline/core"
	"render-pipeline/gpu"
	"render-pipeline/gpu/soft"
	"render-pipeline/scene"
)

func newContext() *Context {
	cam := scene.NewCamera(60, 1, 0.1, 100)
	cam.SetPosition(mgl32.Vec3{0, 2, 8})
	return &Context{Settings: scene.DefaultRenderSettings(), Camera: cam, Viewport: core.Viewport{Width: 8, Height: 8}}
}

func lastDraw(t *testing.T, dev *soft.Device) soft.Command {
	t.Helper()
	cmds := dev.Commands()
	for i := len(cmds) - 1; i >= 0; i-- {
		if cmds[i].Kind == soft.CmdDraw {
			return cmds[i]
		}
	}
	require.Fail(t, "no draw recorded")
	return soft.Command{}
}

func TestVariantFor(t *testing.T) {
	tests := []struct {
		kind   scene.ShaderKind
		tech   Technique
		want   Variant
		effect string
	}{
		{scene.ShaderStandard, Forward, StandardForward, "Forward/Standard"},
		{scene.ShaderWater, Forward, WaterForward, "Forward/StandardWater"},
		{scene.ShaderSkybox, Forward, SkyboxForward, "Forward/Skybox"},
		{scene.ShaderStandard, Deferred, StandardDeferred, "Deferred/Standard"},
		{scene.ShaderWater, Deferred, WaterDeferred, "Deferred/StandardWater"},
		{scene.ShaderSkybox, Deferred, SkyboxDeferred, "Deferred/Skybox"},
	}
	for _, tt := range tests {
		v := VariantFor(tt.kind, tt.tech)
		assert.Equal(t, tt.want, v)
		assert.Equal(t, tt.effect, v.EffectName())
		assert.Equal(t, tt.kind, v.Kind())
		assert.Equal(t, tt.tech, v.Technique())
	}
}

func TestBindingMissingNames(t *testing.T) {
	dev := soft.New(4, 4)
	eff, err := dev.CreateEffect(gpu.EffectSource{
		Name:   "Test/Flat",
		Passes: []gpu.PassSource{{Name: AmbientPass, Fragment: "uniform vec4 DiffuseColor;"}},
	})
	require.NoError(t, err)

	b := NewBinding(eff, DiffuseColor, SpecularTexture, DiffuseColor)
	assert.Equal(t, 2, eff.Lookups(), "duplicates resolve once")
	assert.True(t, b.Has(DiffuseColor))
	assert.False(t, b.Has(SpecularTexture))
	assert.False(t, b.Has(World), "names never requested are not resolved")

	b.SetTexture(SpecularTexture, nil)
	b.SetColor(DiffuseColor, core.ColorRed)
	b.SetMat4(World, mgl32.Ident4())
	assert.Equal(t, 2, eff.Lookups(), "setters never query the effect")
	assert.Equal(t, core.ColorRed.Vec4(), eff.Value(b.Param(DiffuseColor)).Vec4())

	assert.True(t, b.Apply(AmbientPass))
	assert.False(t, b.Apply(LightPass))

	b.Dispose()
	b.Dispose()
	b.SetColor(DiffuseColor, core.ColorBlue)
	assert.False(t, b.Apply(AmbientPass))
	assert.Equal(t, 0, dev.DoubleReleases())
	assert.Equal(t, 0, dev.Live())
}

func TestStandardForwardPhases(t *testing.T) {
	dev := soft.New(8, 8)
	src := content.NewManager(dev, nil)
	ctx := newContext()

	mat := scene.NewMaterial("red", core.ColorRed)
	r := scene.NewRenderable("cube", scene.CreateCube(1), mat)
	r.World = mgl32.Translate3D(1, 2, 3)
	mesh, err := dev.CreateMesh("cube", r.Mesh.Vertices, r.Mesh.Indices)
	require.NoError(t, err)

	s := NewMaterialShader(StandardForward, mat)
	require.NoError(t, s.LoadEffect(src))
	assert.True(t, s.Lit())

	s.PrePass(ctx)
	s.Pass(ctx, r)
	dev.Draw(mesh)
	draw := lastDraw(t, dev)
	assert.Equal(t, AmbientPass, draw.Pass)
	world, ok := draw.Param(World)
	require.True(t, ok)
	assert.Equal(t, r.World, world.Mat4())
	eye, _ := draw.Param(EyePosition)
	assert.Equal(t, ctx.Camera.Position, eye.Vec3())
	enabled, _ := draw.Param(MainTextureEnabled)
	assert.False(t, enabled.Bool())

	sun := scene.NewDirectionalLight("sun", mgl32.Vec3{0, -1, 0}, core.ColorWhite, 0.8)
	s.LightPass(ctx, r, sun)
	dev.Draw(mesh)
	draw = lastDraw(t, dev)
	assert.Equal(t, LightPass, draw.Pass)
	intensity, _ := draw.Param(LightIntensity)
	assert.InDelta(t, 0.8, intensity.Float(), 1e-6)
	shadowed, _ := draw.Param(ShadowEnabled)
	assert.False(t, shadowed.Bool())
	assert.False(t, draw.ReadsFrom("ShadowMap:sun"))
}

func TestLightPassSamplesShadowMap(t *testing.T) {
	dev := soft.New(8, 8)
	src := content.NewManager(dev, nil)
	ctx := newContext()

	mat := scene.NewMaterial("grey", core.ColorWhite)
	r := scene.NewRenderable("floor", scene.CreatePlane(10, 10, 1), mat)
	sun := scene.NewDirectionalLight("sun", mgl32.Vec3{0, -1, 0}, core.ColorWhite, 1)
	sun.Shadow = newTestShadow(t, dev, sun)

	s := NewMaterialShader(StandardForward, mat)
	require.NoError(t, s.LoadEffect(src))
	s.PrePass(ctx)
	s.LightPass(ctx, r, sun)
	dev.Draw(nil)
	draw := lastDraw(t, dev)
	assert.True(t, draw.ReadsFrom("ShadowMap:sun"))

	r.ReceiveShadow = false
	s.LightPass(ctx, r, sun)
	dev.Draw(nil)
	assert.False(t, lastDraw(t, dev).ReadsFrom("ShadowMap:sun"))
}

func newTestShadow(t *testing.T, dev gpu.Device, l *scene.Light) *scene.ShadowGenerator {
	t.Helper()
	g := scene.NewShadowGenerator(16)
	require.NoError(t, g.Allocate(dev, l.Name))
	g.Update(l, nil)
	return g
}

func TestDeferredShaders(t *testing.T) {
	dev := soft.New(8, 8)
	src := content.NewManager(dev, nil)
	ctx := newContext()

	water := scene.NewWaterMaterial("lake", core.ColorBlue, 0.25)
	r := scene.NewRenderable("lake", scene.CreatePlane(10, 10, 1), water)

	s := NewMaterialShader(WaterDeferred, water)
	require.NoError(t, s.LoadEffect(src))
	assert.False(t, s.Lit(), "deferred shaders are never lit per light")
	assert.True(t, s.Binding().Has(LightMap))
	assert.True(t, s.Binding().Has(Viewport))

	ctx.Settings.Time = 3
	s.PrePass(ctx)
	s.Pass(ctx, r)
	s.LightPass(ctx, r, scene.NewPointLight("p", mgl32.Vec3{}, core.ColorWhite, 1, 5))
	dev.Draw(nil)

	draw := lastDraw(t, dev)
	assert.Equal(t, AmbientPass, draw.Pass)
	speed, _ := draw.Param(WaterSpeed)
	assert.InDelta(t, 0.25, speed.Float(), 1e-6)
	tm, _ := draw.Param(Time)
	assert.InDelta(t, 3, tm.Float(), 1e-6)
	power, ok := draw.Param(SpecularPower)
	require.True(t, ok, "deferred water binds specular in Pass")
	assert.InDelta(t, water.Shininess, power.Float(), 1e-6)
}

func TestSkyboxFollowsEye(t *testing.T) {
	dev := soft.New(8, 8)
	src := content.NewManager(dev, nil)
	ctx := newContext()

	sky := scene.NewSkyboxMaterial("sky")
	r := scene.NewRenderable("sky", scene.CreateCube(2), sky)
	for _, v := range []Variant{SkyboxForward, SkyboxDeferred} {
		s := NewMaterialShader(v, sky)
		require.NoError(t, s.LoadEffect(src))
		assert.False(t, s.Lit())

		s.PrePass(ctx)
		s.Pass(ctx, r)
		dev.Draw(nil)
		draw := lastDraw(t, dev)
		assert.Equal(t, SkyboxPass, draw.Pass)
		world, _ := draw.Param(World)
		assert.Equal(t, ctx.Camera.Position, world.Mat4().Col(3).Vec3())
		zenith, _ := draw.Param(ZenithColor)
		assert.Equal(t, sky.ZenithColor.Vec4(), zenith.Vec4())
	}
}

func TestLibraryLoadsOnce(t *testing.T) {
	dev := soft.New(8, 8)
	lib := NewLibrary(Forward, content.NewManager(dev, nil), nil)

	mat := scene.NewMaterial("m", core.ColorWhite)
	a, err := lib.ShaderFor(mat)
	require.NoError(t, err)
	lookups := a.Binding().Effect().Lookups()

	b, err := lib.ShaderFor(mat)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, lookups, a.Binding().Effect().Lookups())
	assert.Len(t, lib.Shaders(), 1)

	lib.Dispose()
	lib.Dispose()
	assert.Equal(t, 0, dev.Live())
	assert.Equal(t, 0, dev.DoubleReleases())
}

type failingSource struct{ calls int }

func (f *failingSource) LoadEffect(string) (gpu.Effect, error) {
	f.calls++
	return nil, content.ErrNotFound
}

func (f *failingSource) LoadTexture(string) (gpu.Texture, error) { return nil, content.ErrNotFound }

func TestLibraryRemembersFailure(t *testing.T) {
	src := &failingSource{}
	lib := NewLibrary(Deferred, src, nil)
	mat := scene.NewMaterial("m", core.ColorWhite)

	_, err := lib.ShaderFor(mat)
	assert.ErrorIs(t, err, content.ErrNotFound)
	_, err = lib.ShaderFor(mat)
	assert.ErrorIs(t, err, content.ErrNotFound)
	assert.Equal(t, 1, src.calls)
}
