package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"

	"render-pipeline/content"
	"render-pipeline/core"
	"render-pipeline/gpu"
	"render-pipeline/postprocess"
	"render-pipeline/renderer"
	"render-pipeline/scene"
)

// Config is the demo's TOML configuration.
type Config struct {
	Window      WindowConfig   `toml:"window"`
	Renderer    RendererConfig `toml:"renderer"`
	Scene       SceneConfig    `toml:"scene"`
	// PostProcess lists the chain in order.
	PostProcess []PassConfig   `toml:"postprocess"`
	Snapshot    SnapshotConfig `toml:"snapshot"`
}

type WindowConfig struct {
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	Title      string `toml:"title"`
	VSync      bool   `toml:"vsync"`
	Fullscreen bool   `toml:"fullscreen"`
}

type RendererConfig struct {
	// Technique is "forward" or "lightprepass".
	Technique      string `toml:"technique"`
	ShadowMapSize  int    `toml:"shadow_map_size"`
	FrustumCulling bool   `toml:"frustum_culling"`
	LightCulling   bool   `toml:"light_culling"`
	HDR            bool   `toml:"hdr"`
}

type SceneConfig struct {
	// Model is an optional glTF or OBJ file added to the scene.
	Model      string  `toml:"model"`
	DayLength  float32 `toml:"day_length"`
	StartTime  float32 `toml:"start_time"`
	FogMode    string  `toml:"fog_mode"`
	FogDensity float32 `toml:"fog_density"`
}

// PassConfig names a post-process pass. Parameters left at zero keep the
// pass defaults.
type PassConfig struct {
	Name     string     `toml:"name"`
	Enabled  bool       `toml:"enabled"`
	Amount   float32    `toml:"amount"`
	Color    [4]float32 `toml:"color"`
	Radius   float32    `toml:"radius"`
	Strength float32    `toml:"strength"`
	Exposure float32    `toml:"exposure"`
	// Texture is a content path, such as the refraction normal map.
	Texture  string     `toml:"texture"`
	Tiling   [2]float32 `toml:"tiling"`
}

type SnapshotConfig struct {
	Frames int    `toml:"frames"`
	Output string `toml:"output"`
	// Scale resizes the written PNG, 1 keeps the render size.
	Scale float32 `toml:"scale"`
}

func DefaultConfig() Config {
	wc := core.DefaultWindowConfig()
	return Config{
		Window: WindowConfig{Width: wc.Width, Height: wc.Height, Title: wc.Title, VSync: wc.VSync},
		Renderer: RendererConfig{
			Technique:      "forward",
			ShadowMapSize:  2048,
			FrustumCulling: true,
			LightCulling:   true,
			HDR:            true,
		},
		Scene: SceneConfig{DayLength: 120, FogMode: "exp2", FogDensity: 0.011},
		PostProcess: []PassConfig{
			{Name: "Bloom", Enabled: true},
			{Name: "ToneMap", Enabled: true},
		},
		Snapshot: SnapshotConfig{Frames: 1, Output: "frame.png", Scale: 1},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	// a chain in the file replaces the default one instead of merging into it
	chain := cfg.PostProcess
	cfg.PostProcess = nil
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.PostProcess == nil {
		cfg.PostProcess = chain
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Renderer.Technique) {
	case "forward", "lightprepass":
	default:
		return fmt.Errorf("unknown technique %q", c.Renderer.Technique)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("invalid window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if _, err := parseFogMode(c.Scene.FogMode); err != nil {
		return err
	}
	for _, p := range c.PostProcess {
		if _, err := newPass(p); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Options() renderer.Options {
	opts := renderer.DefaultOptions()
	opts.ShadowMapSize = c.Renderer.ShadowMapSize
	opts.FrustumCulling = c.Renderer.FrustumCulling
	opts.LightCulling = c.Renderer.LightCulling
	if !c.Renderer.HDR {
		opts.SceneFormat = gpu.SurfaceColor
	}
	return opts
}

// NewRenderer creates the configured technique.
func (c Config) NewRenderer(dev gpu.Device) renderer.Renderer {
	if strings.EqualFold(c.Renderer.Technique, "lightprepass") {
		return renderer.NewLightPrePassRenderer(dev, c.Options())
	}
	return renderer.NewForwardRenderer(dev, c.Options())
}

// Pipeline builds the post-process chain in configured order. Pass textures
// are loaded from src.
func (c Config) Pipeline(dev gpu.Device, src content.Source) (*postprocess.Pipeline, error) {
	format := gpu.SurfaceColor
	if c.Renderer.HDR {
		format = gpu.SurfaceHDR
	}
	p := postprocess.NewPipeline(dev, format)
	for _, pc := range c.PostProcess {
		pass, err := newPass(pc)
		if err != nil {
			return nil, err
		}
		switch pass := pass.(type) {
		case *postprocess.GlobalFog:
			pass.Mode, _ = parseFogMode(c.Scene.FogMode)
			pass.Density = c.Scene.FogDensity
		case *postprocess.Refraction:
			if pc.Texture == "" {
				break
			}
			if pass.Texture, err = src.LoadTexture(pc.Texture); err != nil {
				return nil, fmt.Errorf("refraction texture: %w", err)
			}
		}
		pass.SetEnabled(pc.Enabled)
		p.Add(pass)
	}
	return p, nil
}

func newPass(pc PassConfig) (postprocess.Pass, error) {
	switch strings.ToLower(pc.Name) {
	case "grayscale":
		g := postprocess.NewGrayScale()
		if pc.Amount > 0 {
			g.Amount = pc.Amount
		}
		return g, nil
	case "vignette":
		v := postprocess.NewVignette()
		if pc.Color != ([4]float32{}) {
			v.Color = core.Color{R: pc.Color[0], G: pc.Color[1], B: pc.Color[2], A: pc.Color[3]}
		}
		if pc.Radius > 0 {
			v.Radius = pc.Radius
		}
		return v, nil
	case "globalfog":
		return postprocess.NewGlobalFog(scene.FogExp2, 0.02), nil
	case "refraction":
		r := postprocess.NewRefraction(nil)
		if pc.Strength > 0 {
			r.Strength = pc.Strength
		}
		if pc.Tiling != ([2]float32{}) {
			r.Tiling = mgl32.Vec2(pc.Tiling)
		}
		return r, nil
	case "bloom":
		b := postprocess.NewBloom()
		if pc.Strength > 0 {
			b.Strength = pc.Strength
		}
		return b, nil
	case "tonemap":
		t := postprocess.NewToneMap()
		if pc.Exposure > 0 {
			t.Exposure = pc.Exposure
		}
		return t, nil
	}
	return nil, fmt.Errorf("unknown post-process pass %q", pc.Name)
}

func parseFogMode(s string) (scene.FogMode, error) {
	for _, m := range []scene.FogMode{scene.FogNone, scene.FogLinear, scene.FogExp, scene.FogExp2} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	if s == "" {
		return scene.FogNone, nil
	}
	return scene.FogNone, fmt.Errorf("unknown fog mode %q", s)
}
