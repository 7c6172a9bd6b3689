package scene

import (
	"render-pipeline/core"
)

// Mesh holds CPU-side vertex/index data.
// GPU upload is managed by the renderer, keyed by the *Mesh pointer.
type Mesh struct {
	Name     string
	Vertices []core.Vertex
	Indices  []uint32

	// Cached local-space AABB (computed by NewMesh).
	LocalAABB    AABB
	HasLocalAABB bool
}

// NewMesh builds a Mesh and pre-computes its local-space AABB.
func NewMesh(name string, vertices []core.Vertex, indices []uint32) *Mesh {
	m := &Mesh{
		Name:     name,
		Vertices: vertices,
		Indices:  indices,
	}
	if len(vertices) > 0 {
		m.LocalAABB = computeLocalAABB(vertices)
		m.HasLocalAABB = true
	}
	return m
}

func (m *Mesh) TriangleCount() int {
	if len(m.Indices) > 0 {
		return len(m.Indices) / 3
	}
	return len(m.Vertices) / 3
}

// computeLocalAABB returns the tight AABB of the given vertex positions.
func computeLocalAABB(vertices []core.Vertex) AABB {
	box := AABB{Min: vertices[0].Position, Max: vertices[0].Position}
	for _, v := range vertices[1:] {
		box = box.Extend(v.Position)
	}
	return box
}
