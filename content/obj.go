package content

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/core"
	"render-pipeline/scene"
)

// objFace is one triangle of vertex references, 0-based, -1 when absent.
type objFace struct {
	v, vt, vn [3]int
}

type objGroup struct {
	name     string
	material string
	faces    []objFace
}

// LoadOBJ reads a Wavefront .obj file with its "mtllib" materials. Every
// object or group becomes one renderable at the origin.
func (m *Manager) LoadOBJ(file string) (*Model, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open obj %q: %w", file, err)
	}
	defer f.Close()
	return m.readOBJ(f, filepath.Dir(file), file)
}

func (m *Manager) readOBJ(r io.Reader, dir, file string) (*Model, error) {
	var (
		positions []mgl32.Vec3
		normals   []mgl32.Vec3
		uvs       []mgl32.Vec2
		groups    []objGroup
	)
	materials := map[string]*scene.Material{}
	cur := &objGroup{name: "default"}

	floats := func(fields []string, n int) []float32 {
		out := make([]float32, n)
		for i := range n {
			v, _ := strconv.ParseFloat(fields[i], 32)
			out[i] = float32(v)
		}
		return out
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) >= 4 {
				p := floats(fields[1:], 3)
				positions = append(positions, mgl32.Vec3{p[0], p[1], p[2]})
			}
		case "vn":
			if len(fields) >= 4 {
				n := floats(fields[1:], 3)
				normals = append(normals, mgl32.Vec3{n[0], n[1], n[2]})
			}
		case "vt":
			if len(fields) >= 3 {
				t := floats(fields[1:], 2)
				uvs = append(uvs, mgl32.Vec2{t[0], t[1]})
			}
		case "o", "g":
			if len(cur.faces) > 0 {
				groups = append(groups, *cur)
			}
			name := "default"
			if len(fields) > 1 {
				name = fields[1]
			}
			cur = &objGroup{name: name, material: cur.material}
		case "usemtl":
			if len(fields) > 1 {
				cur.material = fields[1]
			}
		case "mtllib":
			if len(fields) > 1 {
				loaded, err := m.loadMTL(filepath.Join(dir, fields[1]), dir)
				if err != nil {
					core.Logger().Warn("mtllib skipped", "file", file, "err", err)
				}
				for k, v := range loaded {
					materials[k] = v
				}
			}
		case "f":
			if len(fields) < 4 {
				continue
			}
			verts := make([][3]int, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				verts = append(verts, parseFaceVertex(tok, len(positions), len(uvs), len(normals)))
			}
			// fan triangulation
			for i := 1; i+1 < len(verts); i++ {
				a, b, c := verts[0], verts[i], verts[i+1]
				cur.faces = append(cur.faces, objFace{
					v:  [3]int{a[0], b[0], c[0]},
					vt: [3]int{a[1], b[1], c[1]},
					vn: [3]int{a[2], b[2], c[2]},
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan obj %q: %w", file, err)
	}
	if len(cur.faces) > 0 {
		groups = append(groups, *cur)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no geometry found in %q", file)
	}

	model := &Model{}
	for _, name := range slices.Sorted(maps.Keys(materials)) {
		model.Materials = append(model.Materials, materials[name])
	}
	for _, g := range groups {
		mesh := buildOBJMesh(g, positions, normals, uvs)
		mat, ok := materials[g.material]
		if !ok {
			mat = scene.NewMaterial(g.name, core.ColorWhite)
			model.Materials = append(model.Materials, mat)
		}
		r := scene.NewRenderable(g.name, mesh, mat)
		if mat.DiffuseColor.A < 1 {
			r.Queue = scene.QueueTransparent
		}
		model.Meshes = append(model.Meshes, mesh)
		model.Renderables = append(model.Renderables, r)
	}
	return model, nil
}

// parseFaceVertex reads "v", "v/vt", "v//vn" or "v/vt/vn". Negative OBJ
// indices count back from the end of each pool.
func parseFaceVertex(tok string, nv, nvt, nvn int) [3]int {
	out := [3]int{-1, -1, -1}
	pools := [3]int{nv, nvt, nvn}
	for i, s := range strings.SplitN(tok, "/", 3) {
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		switch {
		case err != nil || n == 0:
		case n > 0:
			out[i] = n - 1
		default:
			out[i] = pools[i] + n
		}
	}
	return out
}

// buildOBJMesh deduplicates vertices shared by faces. Normals are generated
// when the file has none.
func buildOBJMesh(g objGroup, positions, normals []mgl32.Vec3, uvs []mgl32.Vec2) *scene.Mesh {
	type key struct{ v, vt, vn int }
	lookup := map[key]uint32{}
	var vertices []core.Vertex
	var indices []uint32

	at := func(pool []mgl32.Vec3, i int, def mgl32.Vec3) mgl32.Vec3 {
		if i >= 0 && i < len(pool) {
			return pool[i]
		}
		return def
	}

	for _, face := range g.faces {
		for c := range 3 {
			k := key{face.v[c], face.vt[c], face.vn[c]}
			idx, ok := lookup[k]
			if !ok {
				var uv mgl32.Vec2
				if k.vt >= 0 && k.vt < len(uvs) {
					uv = uvs[k.vt]
				}
				idx = uint32(len(vertices))
				vertices = append(vertices, core.Vertex{
					Position: at(positions, k.v, mgl32.Vec3{}),
					Normal:   at(normals, k.vn, mgl32.Vec3{0, 1, 0}),
					UV:       uv,
					Color:    core.ColorWhite,
				})
				lookup[k] = idx
			}
			indices = append(indices, idx)
		}
	}
	if len(normals) == 0 {
		generateNormals(vertices, indices)
	}
	return scene.NewMesh(g.name, vertices, indices)
}

// generateNormals writes area-weighted vertex normals.
func generateNormals(vertices []core.Vertex, indices []uint32) {
	accum := make([]mgl32.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		p0 := vertices[i0].Position
		n := vertices[i1].Position.Sub(p0).Cross(vertices[i2].Position.Sub(p0))
		accum[i0] = accum[i0].Add(n)
		accum[i1] = accum[i1].Add(n)
		accum[i2] = accum[i2].Add(n)
	}
	for i := range vertices {
		if accum[i].Len() > 0 {
			vertices[i].Normal = accum[i].Normalize()
		}
	}
}

func (m *Manager) loadMTL(path, dir string) (map[string]*scene.Material, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mats := map[string]*scene.Material{}
	var cur *scene.Material
	color := func(fields []string) core.Color {
		var c [3]float64
		for i := range c {
			c[i], _ = strconv.ParseFloat(fields[i], 32)
		}
		return core.Color{R: float32(c[0]), G: float32(c[1]), B: float32(c[2]), A: 1}
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if fields[0] == "newmtl" {
			cur = scene.NewMaterial(fields[1], core.ColorWhite)
			mats[fields[1]] = cur
			continue
		}
		if cur == nil {
			continue
		}
		switch fields[0] {
		case "Kd":
			if len(fields) >= 4 {
				a := cur.DiffuseColor.A
				cur.DiffuseColor = color(fields[1:])
				cur.DiffuseColor.A = a
			}
		case "Ks":
			if len(fields) >= 4 {
				cur.SpecularColor = color(fields[1:])
			}
		case "Ns":
			ns, _ := strconv.ParseFloat(fields[1], 32)
			cur.Shininess = float32(max(1, ns))
		case "d":
			d, _ := strconv.ParseFloat(fields[1], 32)
			cur.DiffuseColor.A = min(float32(d), 1)
		case "map_Kd":
			texPath := filepath.Join(dir, fields[len(fields)-1])
			data, err := os.ReadFile(texPath)
			if err == nil {
				cur.MainTexture, err = m.TextureFromBytes(texPath, data)
			}
			if err != nil {
				core.Logger().Warn("map_Kd skipped", "file", path, "texture", texPath, "err", err)
			}
		}
	}
	return mats, scanner.Err()
}
