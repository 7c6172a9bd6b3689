package scene

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/core"
)

var defaultVertexColor = core.Color{R: 0.8, G: 0.8, B: 0.8, A: 1.0}

// CreateSphere generates a UV-sphere mesh with counter-clockwise front faces
func CreateSphere(radius float32, segments, rings int) *Mesh {
	if segments < 3 {
		segments = 3
	}
	if rings < 2 {
		rings = 2
	}

	var vertices []core.Vertex
	var indices []uint32

	for ring := 0; ring <= rings; ring++ {
		phi := float64(ring) * stdmath.Pi / float64(rings)
		sinPhi := float32(stdmath.Sin(phi))
		cosPhi := float32(stdmath.Cos(phi))

		for seg := 0; seg <= segments; seg++ {
			theta := float64(seg) * 2.0 * stdmath.Pi / float64(segments)
			sinTheta := float32(stdmath.Sin(theta))
			cosTheta := float32(stdmath.Cos(theta))

			normal := mgl32.Vec3{sinPhi * cosTheta, cosPhi, sinPhi * sinTheta}
			vertices = append(vertices, core.Vertex{
				Position: normal.Mul(radius),
				Normal:   normal,
				UV:       mgl32.Vec2{float32(seg) / float32(segments), float32(ring) / float32(rings)},
				Color:    defaultVertexColor,
			})
		}
	}

	for ring := 0; ring < rings; ring++ {
		for seg := 0; seg < segments; seg++ {
			current := uint32(ring*(segments+1) + seg)
			next := current + uint32(segments+1)

			indices = append(indices, current, current+1, next)
			indices = append(indices, current+1, next+1, next)
		}
	}

	return NewMesh("Sphere", vertices, indices)
}

// CreatePlane generates a flat plane mesh facing +Y
func CreatePlane(width, depth float32, subdivisions int) *Mesh {
	if subdivisions < 1 {
		subdivisions = 1
	}

	var vertices []core.Vertex
	var indices []uint32

	halfW := width / 2.0
	halfD := depth / 2.0

	for z := 0; z <= subdivisions; z++ {
		for x := 0; x <= subdivisions; x++ {
			u := float32(x) / float32(subdivisions)
			v := float32(z) / float32(subdivisions)

			vertices = append(vertices, core.Vertex{
				Position: mgl32.Vec3{-halfW + u*width, 0, -halfD + v*depth},
				Normal:   mgl32.Vec3{0, 1, 0},
				UV:       mgl32.Vec2{u, v},
				Color:    defaultVertexColor,
			})
		}
	}

	for z := 0; z < subdivisions; z++ {
		for x := 0; x < subdivisions; x++ {
			topLeft := uint32(z*(subdivisions+1) + x)
			topRight := topLeft + 1
			bottomLeft := topLeft + uint32(subdivisions+1)
			bottomRight := bottomLeft + 1

			indices = append(indices, topLeft, bottomLeft, topRight)
			indices = append(indices, topRight, bottomLeft, bottomRight)
		}
	}

	return NewMesh("Plane", vertices, indices)
}

// CreateCube generates an axis-aligned cube with per-face normals.
func CreateCube(size float32) *Mesh {
	s := size / 2
	faces := []struct {
		normal mgl32.Vec3
		u, v   mgl32.Vec3
	}{
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
	}

	var vertices []core.Vertex
	var indices []uint32
	corners := [4]mgl32.Vec2{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, f := range faces {
		base := uint32(len(vertices))
		for _, c := range corners {
			pos := f.normal.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1])).Mul(s)
			vertices = append(vertices, core.Vertex{
				Position: pos,
				Normal:   f.normal,
				UV:       mgl32.Vec2{(c[0] + 1) / 2, (c[1] + 1) / 2},
				Color:    core.ColorWhite,
			})
		}
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}

	return NewMesh("Cube", vertices, indices)
}
