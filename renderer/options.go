package renderer

import "render-pipeline/gpu"

// Options configure a renderer. Start from DefaultOptions.
type Options struct {
	// ShadowMapSize is used for shadow generators that leave Size at zero.
	ShadowMapSize int
	// FrustumCulling skips renderables outside the camera frustum.
	FrustumCulling bool
	// LightCulling skips forward light passes for lights whose range does
	// not reach the renderable's bounds.
	LightCulling bool
	// SceneFormat is the pixel format of the offscreen scene buffer.
	SceneFormat gpu.SurfaceFormat
	// Offscreen renders cameras without a target into the scene buffer so
	// post-processing can read it. When false they draw to the display.
	Offscreen bool

	// Tessellation of the shared light volume sphere.
	LightVolumeSegments int
	LightVolumeRings    int
}

func DefaultOptions() Options {
	return Options{
		ShadowMapSize:       2048,
		FrustumCulling:      true,
		LightCulling:        true,
		SceneFormat:         gpu.SurfaceHDR,
		Offscreen:           true,
		LightVolumeSegments: 16,
		LightVolumeRings:    12,
	}
}

// Stats counts the work of the last frame.
type Stats struct {
	Objects      int // renderables drawn in ambient passes
	Vertices     int
	Triangles    int
	Culled       int
	Skipped      int // renderables without material, mesh or shader
	LightDraws   int // forward light passes or light volumes
	ShadowPasses int
	DrawCalls    int
}
