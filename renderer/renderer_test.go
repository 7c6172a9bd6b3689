package renderer

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
	"render-pipeline/shading"
)

// countingSource records every effect it hands out.
type countingSource struct {
	*content.Manager
	effects []gpu.Effect
	loads   int
}

func (s *countingSource) LoadEffect(name string) (gpu.Effect, error) {
	s.loads++
	e, err := s.Manager.LoadEffect(name)
	if err == nil {
		s.effects = append(s.effects, e)
	}
	return e, err
}

func (s *countingSource) lookups() int {
	n := 0
	for _, e := range s.effects {
		n += e.Lookups()
	}
	return n
}

func newSource(dev gpu.Device) *countingSource {
	return &countingSource{Manager: content.NewManager(dev, nil)}
}

func newCamera() *scene.Camera {
	cam := scene.NewCamera(60, 1, 0.1, 100)
	cam.SetPosition(mgl32.Vec3{0, 2, 8})
	cam.LookAt(mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	return cam
}

func newFrame(items ...*scene.Renderable) *scene.Frame {
	return &scene.Frame{
		RenderList: items,
		Cameras:    []*scene.Camera{newCamera()},
		Settings:   scene.DefaultRenderSettings(),
	}
}

func draws(dev *soft.Device) []soft.Command {
	var out []soft.Command
	for _, c := range dev.Commands() {
		if c.IsDraw() {
			out = append(out, c)
		}
	}
	return out
}

func TestRenderLifecycleErrors(t *testing.T) {
	dev := soft.New(32, 32)
	r := NewForwardRenderer(dev, DefaultOptions())
	assert.ErrorIs(t, r.Render(newFrame()), ErrNotInitialized)

	require.NoError(t, r.Initialize(newSource(dev)))
	assert.ErrorIs(t, r.Render(&scene.Frame{}), ErrNoCamera)
	assert.ErrorIs(t, r.Render(nil), ErrNoCamera)

	r.Dispose()
	r.Dispose()
	assert.ErrorIs(t, r.Render(newFrame()), ErrDisposed)
	assert.ErrorIs(t, r.Initialize(newSource(dev)), ErrDisposed)
	assert.Equal(t, 0, dev.DoubleReleases())
	assert.Equal(t, 0, dev.Live())
}

func TestNullMaterialSkipped(t *testing.T) {
	for _, tc := range []struct {
		name string
		new  func(gpu.Device) Renderer
	}{
		{"forward", func(d gpu.Device) Renderer { return NewForwardRenderer(d, DefaultOptions()) }},
		{"lightprepass", func(d gpu.Device) Renderer { return NewLightPrePassRenderer(d, DefaultOptions()) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev := soft.New(32, 32)
			r := tc.new(dev)
			require.NoError(t, r.Initialize(newSource(dev)))
			defer r.Dispose()

			good := scene.NewRenderable("good", scene.CreateCube(1), scene.NewMaterial("grey", core.ColorWhite))
			bare := scene.NewRenderable("bare", scene.CreateSphere(1, 8, 6), nil)
			noMesh := scene.NewRenderable("nomesh", nil, scene.NewMaterial("m", core.ColorWhite))
			f := newFrame(bare, good, nil, noMesh)
			f.Lights = []*scene.Light{scene.NewDirectionalLight("sun", mgl32.Vec3{0, -1, -1}, core.ColorWhite, 1)}

			require.NoError(t, r.Render(f))
			require.NoError(t, r.Render(f))
			for _, c := range draws(dev) {
				assert.NotEqual(t, "Sphere", c.Mesh)
			}
			assert.Equal(t, 1, r.Stats().Objects)
			assert.Equal(t, 2, r.Stats().Skipped)
		})
	}
}

func TestShadowPassOncePerLight(t *testing.T) {
	dev := soft.New(32, 32)
	opts := DefaultOptions()
	opts.ShadowMapSize = 256
	r := NewForwardRenderer(dev, opts)
	require.NoError(t, r.Initialize(newSource(dev)))
	defer r.Dispose()

	floor := scene.NewRenderable("floor", scene.CreatePlane(20, 20, 1), scene.NewMaterial("floor", core.ColorWhite))
	box := scene.NewRenderable("box", scene.CreateCube(1), scene.NewMaterial("box", core.ColorRed))
	box.World = mgl32.Translate3D(0, 0.5, 0)
	floor.CastShadow = false

	sun := scene.NewDirectionalLight("sun", mgl32.Vec3{-1, -2, -1}, core.ColorWhite, 1)
	sun.Shadow = scene.NewShadowGenerator(0)
	spot := scene.NewSpotLight("spot", mgl32.Vec3{0, 6, 0}, mgl32.Vec3{0, -1, 0}, core.ColorWhite, 1, 20, 40)
	spot.Shadow = scene.NewShadowGenerator(128)
	fill := scene.NewPointLight("fill", mgl32.Vec3{2, 2, 2}, core.ColorWhite, 0.5, 10)
	defer sun.Shadow.Dispose()
	defer spot.Shadow.Dispose()

	f := newFrame(floor, box)
	f.Lights = []*scene.Light{sun, spot, fill}

	for frame := 0; frame < 3; frame++ {
		dev.Reset()
		require.NoError(t, r.Render(f))
		assert.Equal(t, 2, r.Stats().ShadowPasses)
		assert.Empty(t, dev.Feedback())

		cmds := draws(dev)
		for _, l := range []*scene.Light{sun, spot} {
			mapName := "ShadowMap:" + l.Name
			var writes []int
			firstRead := -1
			for i, c := range cmds {
				if c.WritesTo(mapName) {
					writes = append(writes, i)
				}
				if firstRead < 0 && c.ReadsFrom(mapName) {
					firstRead = i
				}
			}
			require.Len(t, writes, 1, "one caster, one shadow draw for %s", l.Name)
			require.GreaterOrEqual(t, firstRead, 0, "%s shadow map is sampled", l.Name)
			assert.Less(t, writes[0], firstRead)
		}
	}
	assert.Equal(t, 256, sun.Shadow.Map().Width(), "unset size takes the option")
	assert.Equal(t, 128, spot.Shadow.Map().Width())
}

func TestVolumeCulling(t *testing.T) {
	light := scene.NewPointLight("p", mgl32.Vec3{0, 0, 0}, core.ColorWhite, 1, 5)
	assert.Equal(t, gpu.CullFront, VolumeCulling(mgl32.Vec3{0, 0, 4.99}, light))
	assert.Equal(t, gpu.CullBack, VolumeCulling(mgl32.Vec3{0, 0, 5}, light))
	assert.Equal(t, gpu.CullBack, VolumeCulling(mgl32.Vec3{0, 0, 5.01}, light))
}

func TestLightVolumeCullingInFrame(t *testing.T) {
	tests := []struct {
		name string
		eye  mgl32.Vec3
		want gpu.CullMode
	}{
		{"inside", mgl32.Vec3{0, 0, 3}, gpu.CullFront},
		{"boundary", mgl32.Vec3{0, 0, 5}, gpu.CullBack},
		{"outside", mgl32.Vec3{0, 0, 9}, gpu.CullBack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := soft.New(32, 32)
			r := NewLightPrePassRenderer(dev, DefaultOptions())
			require.NoError(t, r.Initialize(newSource(dev)))
			defer r.Dispose()

			f := newFrame(scene.NewRenderable("box", scene.CreateCube(1), scene.NewMaterial("box", core.ColorWhite)))
			f.Cameras[0].SetPosition(tt.eye)
			f.Lights = []*scene.Light{scene.NewPointLight("p", mgl32.Vec3{}, core.ColorWhite, 1, 5)}
			require.NoError(t, r.Render(f))

			var volumes []soft.Command
			for _, c := range draws(dev) {
				if c.Mesh == "LightVolume" {
					volumes = append(volumes, c)
				}
			}
			require.Len(t, volumes, 1)
			assert.Equal(t, tt.want, volumes[0].Cull)
			assert.Equal(t, gpu.BlendAdditive, volumes[0].Blend)
			assert.Equal(t, gpu.DepthOff, volumes[0].Depth)
		})
	}
}

func TestUniformsResolvedOnce(t *testing.T) {
	for _, tc := range []struct {
		name string
		new  func(gpu.Device) Renderer
	}{
		{"forward", func(d gpu.Device) Renderer { return NewForwardRenderer(d, DefaultOptions()) }},
		{"lightprepass", func(d gpu.Device) Renderer { return NewLightPrePassRenderer(d, DefaultOptions()) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev := soft.New(32, 32)
			src := newSource(dev)
			r := tc.new(dev)
			require.NoError(t, r.Initialize(src))
			defer r.Dispose()

			sun := scene.NewDirectionalLight("sun", mgl32.Vec3{0, -1, 0}, core.ColorWhite, 1)
			sun.Shadow = scene.NewShadowGenerator(64)
			defer sun.Shadow.Dispose()
			f := newFrame(
				scene.NewRenderable("a", scene.CreateCube(1), scene.NewMaterial("a", core.ColorWhite)),
				scene.NewRenderable("b", scene.CreateCube(1), scene.NewWaterMaterial("b", core.ColorBlue, 0.1)),
			)
			f.Lights = []*scene.Light{sun, scene.NewPointLight("p", mgl32.Vec3{1, 1, 1}, core.ColorWhite, 1, 4)}
			f.Skybox = scene.NewRenderable("sky", scene.CreateCube(2), scene.NewSkyboxMaterial("sky"))

			require.NoError(t, r.Render(f))
			lookups, loads := src.lookups(), src.loads
			require.Positive(t, lookups)

			for i := 0; i < 10; i++ {
				f.Settings.Time += 0.1
				require.NoError(t, r.Render(f))
			}
			assert.Equal(t, lookups, src.lookups())
			assert.Equal(t, loads, src.loads)
		})
	}
}

func TestResizeRebuildsBuffers(t *testing.T) {
	for _, tc := range []struct {
		name    string
		new     func(gpu.Device) Renderer
		buffers []string
	}{
		{"forward", func(d gpu.Device) Renderer { return NewForwardRenderer(d, DefaultOptions()) },
			[]string{"SceneColor"}},
		{"lightprepass", func(d gpu.Device) Renderer { return NewLightPrePassRenderer(d, DefaultOptions()) },
			[]string{"SceneColor", NormalBufferName, DepthBufferName, LightBufferName}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev := soft.New(800, 600)
			r := tc.new(dev)
			require.NoError(t, r.Initialize(newSource(dev)))
			defer r.Dispose()

			f := newFrame(scene.NewRenderable("box", scene.CreateCube(1), scene.NewMaterial("box", core.ColorWhite)))
			f.Lights = []*scene.Light{scene.NewPointLight("p", mgl32.Vec3{0, 1, 1}, core.ColorWhite, 1, 6)}
			require.NoError(t, r.Render(f))
			first := r.Output()

			dev.Resize(1920, 1080)
			dev.Reset()
			require.NoError(t, r.Render(f))

			assert.Equal(t, 1920, r.Output().Width())
			assert.Equal(t, 1080, r.Output().Height())
			assert.True(t, first.(*soft.Target).Disposed())

			isBuffer := func(name string) bool {
				for _, b := range tc.buffers {
					if b == name {
						return true
					}
				}
				return false
			}
			checked := 0
			for _, c := range draws(dev) {
				for _, s := range append(append([]soft.Surface(nil), c.Targets...), c.Reads...) {
					if !isBuffer(s.Name) {
						continue
					}
					checked++
					assert.False(t, s.Disposed, "%s %s", c.Kind, s.Name)
					assert.Equal(t, 1920, s.Width, "%s %s", c.Kind, s.Name)
					assert.Equal(t, 1080, s.Height, "%s %s", c.Kind, s.Name)
				}
			}
			assert.Positive(t, checked)
		})
	}
}

// recordingShader logs the protocol calls a renderer makes.
type recordingShader struct {
	shading.Shader
	log *[]string
}

func (s *recordingShader) PrePass(ctx *shading.Context) {
	*s.log = append(*s.log, "PrePass")
	s.Shader.PrePass(ctx)
}

func (s *recordingShader) Pass(ctx *shading.Context, r *scene.Renderable) {
	*s.log = append(*s.log, "Pass")
	s.Shader.Pass(ctx, r)
}

func (s *recordingShader) LightPass(ctx *shading.Context, r *scene.Renderable, l *scene.Light) {
	*s.log = append(*s.log, "LightPass")
	s.Shader.LightPass(ctx, r, l)
}

func recordingFactory(log *[]string) shading.Factory {
	return func(v shading.Variant, m *scene.Material) shading.Shader {
		return &recordingShader{Shader: shading.NewMaterialShader(v, m), log: log}
	}
}

func TestForwardProtocolOrder(t *testing.T) {
	dev := soft.New(32, 32)
	var log []string
	r := NewForwardRenderer(dev, DefaultOptions())
	r.SetShaderFactory(recordingFactory(&log))
	require.NoError(t, r.Initialize(newSource(dev)))
	defer r.Dispose()

	f := newFrame(scene.NewRenderable("flat", scene.CreateCube(1), scene.NewMaterial("flat", core.ColorGreen)))
	f.Lights = []*scene.Light{scene.NewDirectionalLight("sun", mgl32.Vec3{0, -1, 0}, core.ColorWhite, 1)}
	require.NoError(t, r.Render(f))

	assert.Equal(t, []string{"PrePass", "Pass", "LightPass"}, log)

	ds := draws(dev)
	require.Len(t, ds, 2)
	assert.Equal(t, shading.AmbientPass, ds[0].Pass)
	assert.Equal(t, gpu.BlendOpaque, ds[0].Blend)
	assert.Equal(t, shading.LightPass, ds[1].Pass)
	assert.Equal(t, gpu.BlendAdditive, ds[1].Blend)
	assert.Equal(t, gpu.DepthRead, ds[1].Depth)
}

func TestLightPrePassSkipsLightPasses(t *testing.T) {
	dev := soft.New(32, 32)
	var log []string
	r := NewLightPrePassRenderer(dev, DefaultOptions())
	r.SetShaderFactory(recordingFactory(&log))
	require.NoError(t, r.Initialize(newSource(dev)))
	defer r.Dispose()

	baked := scene.NewPointLight("baked", mgl32.Vec3{0, 1, 1}, core.ColorWhite, 1, 6)
	live := scene.NewPointLight("live", mgl32.Vec3{1, 1, 0}, core.ColorWhite, 1, 6)
	live.Mode = scene.LightModeRealTime
	sun := scene.NewDirectionalLight("sun", mgl32.Vec3{0, -1, 0}, core.ColorWhite, 1)

	mat := scene.NewMaterial("flat", core.ColorGreen)
	f := newFrame(scene.NewRenderable("flat", scene.CreateCube(1), mat))
	f.Lights = []*scene.Light{baked, live, sun}
	require.NoError(t, r.Render(f))

	assert.Equal(t, []string{"PrePass", "Pass"}, log)
	assert.Empty(t, dev.Feedback())

	var volumes, fullscreen int
	var combine *soft.Command
	ds := draws(dev)
	for i, c := range ds {
		switch {
		case c.Mesh == "LightVolume":
			volumes++
			assert.True(t, c.WritesTo(LightBufferName))
			assert.True(t, c.ReadsFrom(NormalBufferName))
			assert.True(t, c.ReadsFrom(DepthBufferName))
		case c.Kind == soft.CmdDrawFullscreen:
			fullscreen++
			assert.Equal(t, shading.DirectionalPass, c.Pass)
		case c.Pass == shading.DepthNormalPass:
			assert.True(t, c.WritesTo(NormalBufferName))
			assert.True(t, c.WritesTo(DepthBufferName))
		case c.Pass == shading.AmbientPass:
			combine = &ds[i]
		}
	}
	assert.Equal(t, 1, volumes, "real-time lights are not accumulated")
	assert.Equal(t, 1, fullscreen)
	require.NotNil(t, combine)
	assert.True(t, combine.ReadsFrom(LightBufferName))
	vp, ok := combine.Param(shading.Viewport)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec2{32, 32}, vp.Vec2())
	assert.Equal(t, LightBufferName, r.LightBuffer().Name())
}

func TestCameraTargets(t *testing.T) {
	dev := soft.New(32, 32)
	opts := DefaultOptions()
	opts.Offscreen = false
	r := NewForwardRenderer(dev, opts)
	require.NoError(t, r.Initialize(newSource(dev)))
	defer r.Dispose()
	assert.Nil(t, r.Output())

	mirror, err := dev.CreateRenderTarget(gpu.TargetDesc{Name: "Mirror", Width: 16, Height: 8, Format: gpu.SurfaceColor, Depth: gpu.Depth24})
	require.NoError(t, err)
	defer mirror.Dispose()

	f := newFrame(scene.NewRenderable("box", scene.CreateCube(1), scene.NewMaterial("box", core.ColorWhite)))
	second := newCamera()
	second.RenderTarget = mirror
	f.Cameras = append(f.Cameras, second)
	require.NoError(t, r.Render(f))

	var toBack, toMirror int
	for _, c := range draws(dev) {
		if c.WritesTo("BackBuffer") {
			toBack++
		}
		if c.WritesTo("Mirror") {
			toMirror++
		}
	}
	assert.Equal(t, 1, toBack)
	assert.Equal(t, 1, toMirror)
	assert.InDelta(t, 2, second.AspectRatio, 1e-6)
}

func TestLightPrePassCameraTargets(t *testing.T) {
	dev := soft.New(32, 32)
	r := NewLightPrePassRenderer(dev, DefaultOptions())
	require.NoError(t, r.Initialize(newSource(dev)))
	defer r.Dispose()

	mirror, err := dev.CreateRenderTarget(gpu.TargetDesc{Name: "Mirror", Width: 16, Height: 8, Format: gpu.SurfaceColor, Depth: gpu.Depth24})
	require.NoError(t, err)
	defer mirror.Dispose()

	f := newFrame(scene.NewRenderable("box", scene.CreateCube(1), scene.NewMaterial("box", core.ColorWhite)))
	f.Lights = []*scene.Light{scene.NewPointLight("p", mgl32.Vec3{0, 1, 1}, core.ColorWhite, 1, 6)}
	second := newCamera()
	second.RenderTarget = mirror
	f.Cameras = append(f.Cameras, second)

	for frame := 0; frame < 2; frame++ {
		dev.Reset()
		require.NoError(t, r.Render(f))

		var depthNormal *soft.Command
		combines := 0
		ds := draws(dev)
		for i, c := range ds {
			switch c.Pass {
			case shading.DepthNormalPass:
				depthNormal = &ds[i]
			case shading.AmbientPass:
				require.NotNil(t, depthNormal)
				combines++
				want := mgl32.Vec2{32, 32}
				if c.WritesTo("Mirror") {
					want = mgl32.Vec2{16, 8}
				}
				vp, ok := c.Param(shading.Viewport)
				require.True(t, ok)
				assert.Equal(t, want, vp.Vec2())
				for _, s := range c.Reads {
					if s.Name == LightBufferName {
						assert.Equal(t, int(want[0]), s.Width)
						assert.Equal(t, int(want[1]), s.Height)
					}
				}

				// the light map was rendered with the projection the
				// combine pass uses
				got, ok := c.Param(shading.Projection)
				require.True(t, ok)
				prepass, ok := depthNormal.Param(shading.Projection)
				require.True(t, ok)
				assert.InDelta(t, got.Mat4()[0], prepass.Mat4()[0], 1e-6)
				assert.Equal(t, int(want[0]), depthNormal.Targets[0].Width)
			}
		}
		assert.Equal(t, 2, combines)
		assert.Empty(t, dev.Feedback())
	}

	assert.Equal(t, 32, r.DepthBuffer().Width())
	assert.Equal(t, 16, r.LightBuffer().Width(), "the mirror camera renders last")
}

func TestDisposeReleasesRenderResources(t *testing.T) {
	for _, tc := range []struct {
		name string
		new  func(gpu.Device) Renderer
	}{
		{"forward", func(d gpu.Device) Renderer { return NewForwardRenderer(d, DefaultOptions()) }},
		{"lightprepass", func(d gpu.Device) Renderer { return NewLightPrePassRenderer(d, DefaultOptions()) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev := soft.New(32, 32)
			r := tc.new(dev)
			require.NoError(t, r.Initialize(newSource(dev)))

			f := newFrame(
				scene.NewRenderable("box", scene.CreateCube(1), scene.NewMaterial("box", core.ColorWhite)),
				scene.NewRenderable("ball", scene.CreateSphere(0.5, 8, 6), scene.NewMaterial("ball", core.ColorRed)),
			)
			f.Lights = []*scene.Light{scene.NewPointLight("p", mgl32.Vec3{0, 1, 1}, core.ColorWhite, 1, 6)}
			require.NoError(t, r.Render(f))
			dev.Resize(48, 24)
			require.NoError(t, r.Render(f))
			require.Positive(t, dev.Live())

			r.Dispose()
			r.Dispose()
			assert.Equal(t, 0, dev.Live())
			assert.Equal(t, 0, dev.DoubleReleases())
		})
	}
}
