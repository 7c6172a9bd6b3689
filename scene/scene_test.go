package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"render-pipeline/core"
	"render-pipeline/gpu/soft"
)

func at(name string, q Queue, key int, pos mgl32.Vec3) *Renderable {
	r := NewRenderable(name, CreateCube(1), NewMaterial(name, core.ColorWhite))
	r.Queue = q
	r.SortKey = key
	r.World = mgl32.Translate3D(pos[0], pos[1], pos[2])
	return r
}

func names(list []*Renderable) []string {
	var out []string
	for _, r := range list {
		out = append(out, r.Name)
	}
	return out
}

func TestSortRenderList(t *testing.T) {
	eye := mgl32.Vec3{0, 0, 0}
	list := []*Renderable{
		at("glass-near", QueueTransparent, 0, mgl32.Vec3{0, 0, -2}),
		at("wall", QueueOpaque, 5, mgl32.Vec3{0, 0, -10}),
		at("glass-far", QueueTransparent, 0, mgl32.Vec3{0, 0, -20}),
		at("floor", QueueOpaque, 1, mgl32.Vec3{0, -1, 0}),
		at("crate", QueueOpaque, 5, mgl32.Vec3{1, 0, 0}),
	}

	sorted := SortRenderList(list, eye)
	assert.Equal(t, []string{"floor", "wall", "crate", "glass-far", "glass-near"}, names(sorted))
	assert.Equal(t, "glass-near", list[0].Name, "input order is preserved")
}

func TestSortRenderListNilLast(t *testing.T) {
	list := []*Renderable{nil, at("a", QueueOpaque, 0, mgl32.Vec3{})}
	sorted := SortRenderList(list, mgl32.Vec3{})
	require.Len(t, sorted, 2)
	assert.Equal(t, "a", sorted[0].Name)
	assert.Nil(t, sorted[1])
}

func TestFogData(t *testing.T) {
	s := DefaultRenderSettings()
	s.FogMode = FogExp2
	s.FogDensity = 0.05
	s.FogStart = 2
	s.FogEnd = 40
	assert.Equal(t, mgl32.Vec4{2, 40, 0.05, 3}, s.FogData())
}

func TestFrustumCulling(t *testing.T) {
	cam := NewCamera(60, 1, 0.1, 100)
	cam.SetPosition(mgl32.Vec3{0, 0, 5})
	cam.LookAt(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	f := cam.Frustum()

	inside := at("inside", QueueOpaque, 0, mgl32.Vec3{0, 0, 0})
	behind := at("behind", QueueOpaque, 0, mgl32.Vec3{0, 0, 20})
	far := at("far", QueueOpaque, 0, mgl32.Vec3{0, 0, -200})

	box := inside.Bounds()
	assert.True(t, box.IntersectsFrustum(&f))
	box = behind.Bounds()
	assert.False(t, box.IntersectsFrustum(&f))
	box = far.Bounds()
	assert.False(t, box.IntersectsFrustum(&f))
}

func TestComputeAABB(t *testing.T) {
	m := CreateCube(2)
	box := ComputeAABB(m, mgl32.Translate3D(10, 0, 0))
	assert.InDelta(t, 9, box.Min[0], 1e-5)
	assert.InDelta(t, 11, box.Max[0], 1e-5)
	assert.Equal(t, mgl32.Vec3{10, 0, 0}, box.Center())
}

func TestLightAffects(t *testing.T) {
	box := AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}

	sun := NewDirectionalLight("sun", mgl32.Vec3{0, -1, 0}, core.ColorWhite, 1)
	assert.True(t, sun.Affects(box))

	near := NewPointLight("near", mgl32.Vec3{3, 0, 0}, core.ColorWhite, 1, 2.5)
	far := NewPointLight("far", mgl32.Vec3{10, 0, 0}, core.ColorWhite, 1, 2.5)
	assert.True(t, near.Affects(box))
	assert.False(t, far.Affects(box))
}

func TestShadowGenerator(t *testing.T) {
	dev := soft.New(64, 64)
	light := NewSpotLight("spot", mgl32.Vec3{0, 5, 0}, mgl32.Vec3{0, -1, 0}, core.ColorWhite, 1, 20, 30)
	assert.False(t, light.CastsShadow())

	light.Shadow = NewShadowGenerator(256)
	assert.True(t, light.CastsShadow())
	assert.Nil(t, light.Shadow.Map())

	require.NoError(t, light.Shadow.Allocate(dev, light.Name))
	first := light.Shadow.Map()
	require.NotNil(t, first)
	assert.Equal(t, 256, first.Width())
	assert.Equal(t, "ShadowMap:spot", first.Name())

	require.NoError(t, light.Shadow.Allocate(dev, light.Name))
	assert.Same(t, first, light.Shadow.Map(), "same size keeps the map")

	light.Shadow.Update(light, nil)
	// the point straight below the light projects to the centre of the map
	clip := light.Shadow.ViewProjection().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 0, clip[0]/clip[3], 1e-4)
	assert.InDelta(t, 0, clip[1]/clip[3], 1e-4)

	light.Shadow.Size = 128
	require.NoError(t, light.Shadow.Allocate(dev, light.Name))
	assert.Equal(t, 128, light.Shadow.Map().Width())
	assert.True(t, first.(*soft.Target).Disposed())

	light.Shadow.Dispose()
	light.Shadow.Dispose()
	assert.Equal(t, 0, dev.Live())
	assert.Equal(t, 0, dev.DoubleReleases())
}

func TestDirectionalShadowFollowsCamera(t *testing.T) {
	sun := NewDirectionalLight("sun", mgl32.Vec3{0, -1, 0}, core.ColorWhite, 1)
	sun.Shadow = NewShadowGenerator(512)
	cam := NewCamera(60, 1, 0.1, 100)
	cam.SetPosition(mgl32.Vec3{4, 0, 0})

	sun.Shadow.Update(sun, cam)
	clip := sun.Shadow.ViewProjection().Mul4x1(mgl32.Vec4{4, 0, 0, 1})
	assert.InDelta(t, 0, clip[0], 1e-4)
	assert.InDelta(t, 0, clip[1], 1e-4)
}

func TestFrameMaterialsFallback(t *testing.T) {
	shared := NewMaterial("shared", core.ColorWhite)
	a := NewRenderable("a", CreateCube(1), shared)
	b := NewRenderable("b", CreateCube(1), shared)
	c := NewRenderable("c", CreateCube(1), nil)
	f := &Frame{RenderList: []*Renderable{a, nil, b, c}}

	assert.Equal(t, []*Material{shared}, f.FrameMaterials())
	assert.Nil(t, f.PrimaryCamera())

	explicit := NewMaterial("explicit", core.ColorRed)
	f.Materials = []*Material{explicit}
	assert.Equal(t, []*Material{explicit}, f.FrameMaterials())
}

func TestOrbitCamera(t *testing.T) {
	cam := NewOrbitCamera(mgl32.Vec3{0, 1, 0}, 10, 60, 1)
	cam.Pitch = 0
	cam.UpdatePosition()
	assert.InDelta(t, 10, cam.Position[2], 1e-4)
	assert.InDelta(t, 1, cam.Position[1], 1e-4)

	cam.Orbit(0, 5)
	assert.InDelta(t, 1.5, cam.Pitch, 1e-6, "pitch is clamped")

	cam.Zoom(-20)
	assert.InDelta(t, 0.1, cam.Distance, 1e-6)
	assert.InDelta(t, 0.1, cam.Position.Sub(cam.Target).Len(), 1e-4)
}

func TestClosedPrimitivesWindOutward(t *testing.T) {
	for _, m := range []*Mesh{CreateCube(2), CreateSphere(1, 16, 12), CreateSphere(3, 3, 2)} {
		t.Run(m.Name, func(t *testing.T) {
			checked := 0
			for i := 0; i+2 < len(m.Indices); i += 3 {
				a := m.Vertices[m.Indices[i]].Position
				b := m.Vertices[m.Indices[i+1]].Position
				c := m.Vertices[m.Indices[i+2]].Position
				n := b.Sub(a).Cross(c.Sub(a))
				if n.Len() < 1e-6 {
					continue // collapsed at a pole
				}
				centroid := a.Add(b).Add(c).Mul(1.0 / 3)
				assert.Positive(t, n.Dot(centroid), "triangle %d", i/3)
				checked++
			}
			assert.Positive(t, checked)
		})
	}
}

func TestPlaneFacesUp(t *testing.T) {
	m := CreatePlane(4, 4, 2)
	for i := 0; i+2 < len(m.Indices); i += 3 {
		a := m.Vertices[m.Indices[i]].Position
		b := m.Vertices[m.Indices[i+1]].Position
		c := m.Vertices[m.Indices[i+2]].Position
		assert.Positive(t, b.Sub(a).Cross(c.Sub(a))[1], "triangle %d", i/3)
	}
}
