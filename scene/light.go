package scene

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/core"
	"render-pipeline/gpu"
)

type LightType int

const (
	LightDirectional LightType = iota
	LightPoint
	LightSpot
)

func (t LightType) String() string {
	switch t {
	case LightDirectional:
		return "Directional"
	case LightPoint:
		return "Point"
	case LightSpot:
		return "Spot"
	}
	return "Unknown"
}

// LightRenderMode decides whether the light-pre-pass renderer accumulates a
// light into its light buffer. RealTime lights are exempt.
type LightRenderMode int

const (
	LightModeDefault LightRenderMode = iota
	LightModeRealTime
)

// Light is owned by the scene; renderers only iterate lights.
type Light struct {
	Name      string
	Type      LightType
	Color     core.Color
	Intensity float32
	Range     float32
	FallOff   float32 // attenuation exponent
	SpotAngle float32 // degrees
	Position  mgl32.Vec3
	Direction mgl32.Vec3
	Mode      LightRenderMode

	// Shadow is nil for lights that never cast shadows.
	Shadow *ShadowGenerator
}

func NewDirectionalLight(name string, direction mgl32.Vec3, color core.Color, intensity float32) *Light {
	return &Light{
		Name:      name,
		Type:      LightDirectional,
		Color:     color,
		Intensity: intensity,
		Range:     float32(math.Inf(1)),
		FallOff:   1,
		Direction: direction.Normalize(),
	}
}

func NewPointLight(name string, position mgl32.Vec3, color core.Color, intensity, rng float32) *Light {
	return &Light{
		Name:      name,
		Type:      LightPoint,
		Color:     color,
		Intensity: intensity,
		Range:     rng,
		FallOff:   2,
		Position:  position,
		Direction: mgl32.Vec3{0, -1, 0},
	}
}

func NewSpotLight(name string, position, direction mgl32.Vec3, color core.Color, intensity, rng, angle float32) *Light {
	return &Light{
		Name:      name,
		Type:      LightSpot,
		Color:     color,
		Intensity: intensity,
		Range:     rng,
		FallOff:   2,
		SpotAngle: angle,
		Position:  position,
		Direction: direction.Normalize(),
	}
}

// CastsShadow reports whether a shadow pass must run for the light.
func (l *Light) CastsShadow() bool {
	return l.Shadow != nil && l.Shadow.Enabled
}

// Affects reports whether the light can reach a world-space box.
func (l *Light) Affects(box AABB) bool {
	if l.Type == LightDirectional {
		return true
	}
	return box.IntersectsSphere(l.Position, l.Range)
}

// ShadowGenerator owns a light's shadow map and light-space matrices.
type ShadowGenerator struct {
	Enabled  bool
	Size     int
	Bias     float32
	Strength float32
	// OrthoSize is the half extent of a directional light's shadow volume.
	OrthoSize float32

	view       mgl32.Mat4
	projection mgl32.Mat4
	target     gpu.RenderTarget
}

func NewShadowGenerator(size int) *ShadowGenerator {
	return &ShadowGenerator{
		Enabled:    true,
		Size:       size,
		Bias:       0.005,
		Strength:   0.5,
		OrthoSize:  30,
		view:       mgl32.Ident4(),
		projection: mgl32.Ident4(),
	}
}

// Allocate creates the shadow map, or recreates it after Size changed.
func (g *ShadowGenerator) Allocate(dev gpu.Device, owner string) error {
	if g.target != nil && g.target.Width() == g.Size {
		return nil
	}
	g.Dispose()
	rt, err := dev.CreateRenderTarget(gpu.TargetDesc{
		Name:   "ShadowMap:" + owner,
		Width:  g.Size,
		Height: g.Size,
		Format: gpu.SurfaceSingle,
		Depth:  gpu.Depth24,
	})
	if err != nil {
		return fmt.Errorf("shadow map for %q: %w", owner, err)
	}
	g.target = rt
	return nil
}

// Update recomputes the light-space matrices. Directional lights fit an
// orthographic volume around the camera; spot and point lights project a
// perspective frustum down their direction.
func (g *ShadowGenerator) Update(l *Light, cam *Camera) {
	dir := l.Direction
	if dir.Len() < 0.001 {
		dir = mgl32.Vec3{0, -1, 0}
	}
	dir = dir.Normalize()

	up := mgl32.Vec3{0, 1, 0}
	if math.Abs(float64(dir.Dot(up))) > 0.999 {
		up = mgl32.Vec3{0, 0, 1}
	}

	switch l.Type {
	case LightDirectional:
		ortho := g.OrthoSize
		center := mgl32.Vec3{}
		if cam != nil {
			center = cam.Position
		}
		eye := center.Sub(dir.Mul(ortho))
		g.view = mgl32.LookAtV(eye, center, up)
		g.projection = mgl32.Ortho(-ortho, ortho, -ortho, ortho, -ortho, ortho*3)
	default:
		fov := float32(90)
		if l.Type == LightSpot && l.SpotAngle > 0 {
			fov = min(l.SpotAngle*2, 170)
		}
		g.view = mgl32.LookAtV(l.Position, l.Position.Add(dir), up)
		g.projection = mgl32.Perspective(mgl32.DegToRad(fov), 1, 0.1, max(l.Range, 0.2))
	}
}

func (g *ShadowGenerator) View() mgl32.Mat4       { return g.view }
func (g *ShadowGenerator) Projection() mgl32.Mat4 { return g.projection }

func (g *ShadowGenerator) ViewProjection() mgl32.Mat4 {
	return g.projection.Mul4(g.view)
}

// Map is the shadow depth buffer, nil before Allocate.
func (g *ShadowGenerator) Map() gpu.RenderTarget { return g.target }

func (g *ShadowGenerator) Dispose() {
	if g.target != nil {
		g.target.Dispose()
		g.target = nil
	}
}
