package renderer

import (
	"fmt"

	"render-pipeline/gpu"
	"render-pipeline/scene"
)

// meshCache uploads scene meshes on first use and keeps them until dispose.
type meshCache struct {
	dev    gpu.Device
	meshes map[*scene.Mesh]gpu.Mesh
}

func newMeshCache(dev gpu.Device) *meshCache {
	return &meshCache{dev: dev, meshes: make(map[*scene.Mesh]gpu.Mesh)}
}

func (c *meshCache) get(m *scene.Mesh) (gpu.Mesh, error) {
	if gm, ok := c.meshes[m]; ok {
		return gm, nil
	}
	gm, err := c.dev.CreateMesh(m.Name, m.Vertices, m.Indices)
	if err != nil {
		return nil, fmt.Errorf("upload mesh %q: %w", m.Name, err)
	}
	c.meshes[m] = gm
	return gm, nil
}

func (c *meshCache) dispose() {
	for m, gm := range c.meshes {
		gm.Dispose()
		delete(c.meshes, m)
	}
}
