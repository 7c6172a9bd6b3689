package main

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"render-pipeline/content"
	"render-pipeline/gpu"
	"render-pipeline/gpu/soft"
	"render-pipeline/postprocess"
	"render-pipeline/renderer"
	"render-pipeline/scene"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "forward", cfg.Renderer.Technique)
	assert.Equal(t, 1280, cfg.Window.Width)
	assert.NoError(t, cfg.Validate())
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := LoadConfig("demo.toml")
	require.NoError(t, err)
	assert.Equal(t, "lightprepass", cfg.Renderer.Technique)
	require.Len(t, cfg.PostProcess, 6)
	assert.Equal(t, "GlobalFog", cfg.PostProcess[0].Name)
	assert.False(t, cfg.PostProcess[4].Enabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
[window]
width = 320
height = 200

[renderer]
technique = "forward"
hdr = false

[[postprocess]]
name = "Vignette"
enabled = true
color = [1.0, 0.0, 0.0, 1.0]
radius = 0.5

[[postprocess]]
name = "GrayScale"
enabled = false
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Window.Width)
	assert.Equal(t, gpu.SurfaceColor, cfg.Options().SceneFormat)

	dev := soft.New(320, 200)
	p, err := cfg.Pipeline(dev, content.NewManager(dev, nil))
	require.NoError(t, err)
	defer p.Dispose()

	passes := p.Passes()
	require.Len(t, passes, 2)
	v, ok := passes[0].(*postprocess.Vignette)
	require.True(t, ok)
	assert.Equal(t, float32(1), v.Color.R)
	assert.Equal(t, float32(0.5), v.Radius)
	assert.False(t, passes[1].Enabled())
}

func TestRefractionTextureFromConfig(t *testing.T) {
	cfg, err := LoadConfig("demo.toml")
	require.NoError(t, err)

	dev := soft.New(32, 32)
	src := content.NewManager(dev, nil)
	defer src.Dispose()
	p, err := cfg.Pipeline(dev, src)
	require.NoError(t, err)
	defer p.Dispose()

	r, ok := p.Pass("Refraction").(*postprocess.Refraction)
	require.True(t, ok)
	require.NotNil(t, r.Texture)
	assert.Equal(t, 64, r.Texture.Width())
	assert.Equal(t, mgl32.Vec2{2, 2}, r.Tiling)
	assert.InDelta(t, 0.015, r.Strength, 1e-6)

	cfg.PostProcess = []PassConfig{{Name: "Refraction", Enabled: true, Texture: "textures/missing.png"}}
	_, err = cfg.Pipeline(dev, src)
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"technique", "[renderer]\ntechnique = \"deferred\"\n"},
		{"pass", "[[postprocess]]\nname = \"Sepia\"\n"},
		{"fog", "[scene]\nfog_mode = \"thick\"\n"},
		{"size", "[window]\nwidth = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestNewRendererTechnique(t *testing.T) {
	cfg := DefaultConfig()
	dev := soft.New(64, 64)
	_, ok := cfg.NewRenderer(dev).(*renderer.ForwardRenderer)
	assert.True(t, ok)

	cfg.Renderer.Technique = "LightPrePass"
	_, ok = cfg.NewRenderer(dev).(*renderer.LightPrePassRenderer)
	assert.True(t, ok)
}

func TestGlobalFogFollowsSceneConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scene.FogMode = "linear"
	cfg.PostProcess = []PassConfig{{Name: "GlobalFog", Enabled: true}}
	dev := soft.New(8, 8)
	p, err := cfg.Pipeline(dev, content.NewManager(dev, nil))
	require.NoError(t, err)
	fog := p.Pass("GlobalFog").(*postprocess.GlobalFog)
	assert.Equal(t, scene.FogLinear, fog.Mode)
}

func TestDayNight(t *testing.T) {
	dn := NewDayNight(0, 120)
	assert.Equal(t, "12:00 PM", dn.Clock())

	var s scene.RenderSettings
	s.FogMode = scene.FogExp2
	sun := scene.NewDirectionalLight("sun", mgl32.Vec3{0, -1, 0}, palettes[0].sunColor, 1)
	sky := scene.NewSkyboxMaterial("sky")
	dn.Apply(&s, sun, sky)
	assert.Equal(t, palettes[0].zenith, sky.ZenithColor)
	assert.Equal(t, palettes[0].ambient, s.AmbientColor)
	assert.InDelta(t, -1, sun.Direction.Normalize()[1], 0.1)

	dn.Update(60)
	assert.InDelta(t, 0.5, dn.Time, 1e-5)
	assert.Equal(t, "12:00 AM", dn.Clock())
	dn.Update(90)
	assert.InDelta(t, 0.25, dn.Time, 1e-5)
}

func TestHeadlessWritesPNG(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window.Width, cfg.Window.Height = 64, 48
	cfg.Renderer.ShadowMapSize = 64
	cfg.Renderer.Technique = "lightprepass"
	cfg.PostProcess = append(cfg.PostProcess, PassConfig{Name: "Vignette", Enabled: true})
	cfg.Snapshot = SnapshotConfig{Frames: 2, Output: filepath.Join(t.TempDir(), "frame.png"), Scale: 0.5}

	require.NoError(t, runHeadless(cfg))

	file, err := os.Open(cfg.Snapshot.Output)
	require.NoError(t, err)
	defer file.Close()
	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), img.Bounds())
}
