package scene

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/core"
)

// Queue groups renderables into ordered buckets.
type Queue int

const (
	QueueOpaque Queue = iota
	QueueTransparent
)

// Renderable is a non-owning reference to something drawable for one frame.
type Renderable struct {
	Name          string
	Mesh          *Mesh
	Material      *Material
	World         mgl32.Mat4
	CastShadow    bool
	ReceiveShadow bool

	Queue Queue
	// SortKey orders opaque renderables, lowest first.
	SortKey int
}

func NewRenderable(name string, mesh *Mesh, mat *Material) *Renderable {
	return &Renderable{
		Name:          name,
		Mesh:          mesh,
		Material:      mat,
		World:         mgl32.Ident4(),
		CastShadow:    true,
		ReceiveShadow: true,
	}
}

// Bounds is the world-space AABB, or an empty box without geometry.
func (r *Renderable) Bounds() AABB {
	if r.Mesh == nil {
		return AABB{}
	}
	return ComputeAABB(r.Mesh, r.World)
}

// SortRenderList returns the list ordered for drawing: opaque renderables by
// SortKey, then transparent ones back to front from eye. The sort is stable,
// so equal keys keep insertion order. The input is not modified.
func SortRenderList(list []*Renderable, eye mgl32.Vec3) []*Renderable {
	out := append([]*Renderable(nil), list...)
	dist := make(map[*Renderable]float32, len(out))
	for _, r := range out {
		if r != nil && r.Queue == QueueTransparent {
			dist[r] = r.World.Col(3).Vec3().Sub(eye).LenSqr()
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a == nil || b == nil {
			return a != nil
		}
		if a.Queue != b.Queue {
			return a.Queue < b.Queue
		}
		if a.Queue == QueueTransparent {
			return dist[a] > dist[b]
		}
		return a.SortKey < b.SortKey
	})
	return out
}

type FogMode int

const (
	FogNone FogMode = iota
	FogLinear
	FogExp
	FogExp2
)

func (m FogMode) String() string {
	switch m {
	case FogNone:
		return "None"
	case FogLinear:
		return "Linear"
	case FogExp:
		return "Exp"
	case FogExp2:
		return "Exp2"
	}
	return "Unknown"
}

// RenderSettings are the frame-wide shading inputs.
type RenderSettings struct {
	AmbientColor core.Color
	FogColor     core.Color
	FogMode      FogMode
	FogDensity   float32
	FogStart     float32
	FogEnd       float32
	// Time in seconds, drives animated materials.
	Time float32
}

func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		AmbientColor: core.Color{R: 0.2, G: 0.2, B: 0.2, A: 1.0},
		FogColor:     core.Color{R: 0.62, G: 0.76, B: 0.90, A: 1.0},
		FogDensity:   0.01,
		FogStart:     10,
		FogEnd:       100,
	}
}

// FogData packs (start, end, density, mode) the way the shaders read it.
func (s RenderSettings) FogData() mgl32.Vec4 {
	return mgl32.Vec4{s.FogStart, s.FogEnd, s.FogDensity, float32(s.FogMode)}
}

// Frame is everything one Render call draws. Lists are read-only while the
// frame renders.
type Frame struct {
	RenderList []*Renderable
	Lights     []*Light
	// Cameras[0] is the primary camera.
	Cameras []*Camera
	// Materials receive the light buffer in the light-pre-pass technique.
	// When empty, the materials of RenderList are used.
	Materials []*Material
	Skybox    *Renderable
	Settings  RenderSettings
}

func (f *Frame) PrimaryCamera() *Camera {
	if len(f.Cameras) == 0 {
		return nil
	}
	return f.Cameras[0]
}

// FrameMaterials returns Materials, or the distinct materials of the render
// list in first-use order.
func (f *Frame) FrameMaterials() []*Material {
	if len(f.Materials) > 0 {
		return f.Materials
	}
	var out []*Material
	seen := make(map[*Material]bool)
	for _, r := range f.RenderList {
		if r == nil || r.Material == nil || seen[r.Material] {
			continue
		}
		seen[r.Material] = true
		out = append(out, r.Material)
	}
	return out
}
