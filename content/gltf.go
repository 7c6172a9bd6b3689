package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"render-pipeline/core"
	"render-pipeline/gpu"
	"render-pipeline/scene"
)

// Model is the flattened content of a .glb or .gltf file: one renderable per
// mesh primitive instance, with world matrices baked from the node hierarchy.
type Model struct {
	Meshes      []*scene.Mesh
	Materials   []*scene.Material
	Renderables []*scene.Renderable
}

// LoadModel reads a glTF file from disk, or a Wavefront file when the
// extension is .obj. Base color textures are uploaded through the manager and
// stay owned by it. Metallic-roughness is mapped onto the specular model.
func (m *Manager) LoadModel(file string) (*Model, error) {
	if strings.EqualFold(filepath.Ext(file), ".obj") {
		return m.LoadOBJ(file)
	}
	doc, err := gltf.Open(file)
	if err != nil {
		return nil, fmt.Errorf("gltf open %q: %w", file, err)
	}
	log := core.Logger()
	dir := filepath.Dir(file)
	model := &Model{}

	texCache := make([]gpu.Texture, len(doc.Textures))
	for i, gt := range doc.Textures {
		if gt.Source == nil || *gt.Source >= len(doc.Images) {
			continue
		}
		img := doc.Images[*gt.Source]
		name := img.Name
		if name == "" {
			name = fmt.Sprintf("%s#image%d", file, *gt.Source)
		}

		var raw []byte
		switch {
		case img.BufferView != nil:
			raw, err = modeler.ReadBufferView(doc, doc.BufferViews[*img.BufferView])
		case img.URI != "" && !img.IsEmbeddedResource():
			raw, err = os.ReadFile(filepath.Join(dir, img.URI))
		default:
			continue
		}
		if err != nil {
			log.Warn("gltf image skipped", "file", file, "image", *gt.Source, "err", err)
			continue
		}
		tex, err := m.TextureFromBytes(name, raw)
		if err != nil {
			log.Warn("gltf image skipped", "file", file, "image", *gt.Source, "err", err)
			continue
		}
		texCache[i] = tex
	}

	matCache := make([]*scene.Material, len(doc.Materials))
	for i, gm := range doc.Materials {
		mat := scene.NewMaterial(gm.Name, core.ColorWhite)
		if pbr := gm.PBRMetallicRoughness; pbr != nil {
			cf := pbr.BaseColorFactorOrDefault()
			mat.DiffuseColor = core.Color{R: float32(cf[0]), G: float32(cf[1]), B: float32(cf[2]), A: float32(cf[3])}
			if pbr.BaseColorTexture != nil {
				idx := pbr.BaseColorTexture.Index
				if idx < len(texCache) && texCache[idx] != nil {
					mat.MainTexture = texCache[idx]
				}
			}
			roughness := float32(pbr.RoughnessFactorOrDefault())
			metallic := float32(pbr.MetallicFactorOrDefault())
			mat.Shininess = (1-roughness)*(1-roughness)*128 + 1
			s := metallic * 0.7
			mat.SpecularColor = core.Color{R: s, G: s, B: s, A: 1}
		}
		if gm.AlphaMode == gltf.AlphaBlend {
			mat.DiffuseColor.A = min(mat.DiffuseColor.A, 0.999)
		}
		matCache[i] = mat
		model.Materials = append(model.Materials, mat)
	}

	type prim struct {
		mesh *scene.Mesh
		mat  *scene.Material
	}
	meshPrims := make([][]prim, len(doc.Meshes))
	for mi, gm := range doc.Meshes {
		for pi, p := range gm.Primitives {
			mesh, err := loadPrimitive(doc, gm.Name, pi, p)
			if err != nil {
				log.Warn("gltf primitive skipped", "file", file, "mesh", mi, "primitive", pi, "err", err)
				continue
			}
			var mat *scene.Material
			if p.Material != nil && *p.Material < len(matCache) {
				mat = matCache[*p.Material]
			}
			if mat == nil {
				mat = scene.NewMaterial(mesh.Name, core.ColorWhite)
				model.Materials = append(model.Materials, mat)
			}
			model.Meshes = append(model.Meshes, mesh)
			meshPrims[mi] = append(meshPrims[mi], prim{mesh, mat})
		}
	}

	var visit func(idx int, parent mgl32.Mat4, depth int)
	visit = func(idx int, parent mgl32.Mat4, depth int) {
		if idx < 0 || idx >= len(doc.Nodes) || depth > len(doc.Nodes) {
			return
		}
		gn := doc.Nodes[idx]
		world := parent.Mul4(nodeMatrix(gn))
		name := gn.Name
		if name == "" {
			name = fmt.Sprintf("node_%d", idx)
		}
		if gn.Mesh != nil && *gn.Mesh < len(meshPrims) {
			prims := meshPrims[*gn.Mesh]
			for pi, p := range prims {
				rname := name
				if len(prims) > 1 {
					rname = fmt.Sprintf("%s_prim%d", name, pi)
				}
				r := scene.NewRenderable(rname, p.mesh, p.mat)
				r.World = world
				if p.mat.DiffuseColor.A < 1 {
					r.Queue = scene.QueueTransparent
				}
				model.Renderables = append(model.Renderables, r)
			}
		}
		for _, c := range gn.Children {
			visit(c, world, depth+1)
		}
	}
	for _, root := range rootNodes(doc) {
		visit(root, mgl32.Ident4(), 0)
	}
	return model, nil
}

func rootNodes(doc *gltf.Document) []int {
	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
		return doc.Scenes[*doc.Scene].Nodes
	}
	hasParent := make([]bool, len(doc.Nodes))
	for _, gn := range doc.Nodes {
		for _, c := range gn.Children {
			if c < len(hasParent) {
				hasParent[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !hasParent[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func nodeMatrix(gn *gltf.Node) mgl32.Mat4 {
	t := gn.TranslationOrDefault()
	s := gn.ScaleOrDefault()
	r := gn.RotationOrDefault() // x, y, z, w
	q := mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}}
	return mgl32.Translate3D(float32(t[0]), float32(t[1]), float32(t[2])).
		Mul4(q.Normalize().Mat4()).
		Mul4(mgl32.Scale3D(float32(s[0]), float32(s[1]), float32(s[2])))
}

func loadPrimitive(doc *gltf.Document, meshName string, primIdx int, p *gltf.Primitive) (*scene.Mesh, error) {
	name := fmt.Sprintf("%s_p%d", meshName, primIdx)
	if meshName == "" {
		name = fmt.Sprintf("prim_%d", primIdx)
	}

	posIdx, ok := p.Attributes["POSITION"]
	if !ok {
		return nil, fmt.Errorf("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	var normals [][3]float32
	var uvs [][2]float32
	if idx, ok := p.Attributes["NORMAL"]; ok {
		normals, _ = modeler.ReadNormal(doc, doc.Accessors[idx], nil)
	}
	if idx, ok := p.Attributes["TEXCOORD_0"]; ok {
		uvs, _ = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil)
	}

	verts := make([]core.Vertex, len(positions))
	for i, pos := range positions {
		v := core.Vertex{
			Position: mgl32.Vec3(pos),
			Normal:   mgl32.Vec3{0, 1, 0},
			Color:    core.ColorWhite,
		}
		if i < len(normals) {
			v.Normal = mgl32.Vec3(normals[i])
		}
		if i < len(uvs) {
			v.UV = mgl32.Vec2(uvs[i])
		}
		verts[i] = v
	}

	var indices []uint32
	if p.Indices != nil {
		indices, err = modeler.ReadIndices(doc, doc.Accessors[*p.Indices], nil)
		if err != nil {
			return nil, fmt.Errorf("indices: %w", err)
		}
	} else {
		indices = make([]uint32, len(verts))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	return scene.NewMesh(name, verts, indices), nil
}
