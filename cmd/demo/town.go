package main

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/content"
	"render-pipeline/core"
	"render-pipeline/scene"
)

// Town is the demo scene: a small square with four buildings, a fountain,
// lamp posts and a day/night sky.
type Town struct {
	Frame  *scene.Frame
	Camera *scene.OrbitCamera
	Sun    *scene.Light
	Sky    *scene.Material
}

func buildTown(cfg Config, aspect float32) (*Town, error) {
	settings := scene.DefaultRenderSettings()
	mode, err := parseFogMode(cfg.Scene.FogMode)
	if err != nil {
		return nil, err
	}
	settings.FogMode = mode
	settings.FogDensity = cfg.Scene.FogDensity

	cam := scene.NewOrbitCamera(mgl32.Vec3{0, 1.7, 0}, 12, 60, aspect)
	cam.Name = "Main"
	cam.SetClipPlanes(0.1, 500)
	cam.Pitch = 0
	cam.UpdatePosition()

	t := &Town{
		Frame:  &scene.Frame{Cameras: []*scene.Camera{&cam.Camera}, Settings: settings},
		Camera: cam,
		Sky:    scene.NewSkyboxMaterial("Sky"),
	}
	f := t.Frame

	add := func(name string, mesh *scene.Mesh, mat *scene.Material, world mgl32.Mat4) *scene.Renderable {
		r := scene.NewRenderable(name, mesh, mat)
		r.World = world
		f.RenderList = append(f.RenderList, r)
		return r
	}
	box := func(name string, pos, size mgl32.Vec3, mat *scene.Material) {
		world := mgl32.Translate3D(pos[0], pos[1], pos[2]).Mul4(mgl32.Scale3D(size[0], size[1], size[2]))
		add(name, scene.CreateCube(1), mat, world)
	}

	ground := scene.NewMaterial("Ground", core.Color{R: 0.62, G: 0.58, B: 0.52, A: 1})
	ground.Shininess = 4
	ground.SpecularColor = core.Color{R: 0.05, G: 0.05, B: 0.05, A: 1}
	stone := scene.NewMaterial("Stone", core.Color{R: 0.58, G: 0.55, B: 0.50, A: 1})
	stone.Shininess = 8
	brick := scene.NewMaterial("Brick", core.Color{R: 0.70, G: 0.43, B: 0.30, A: 1})
	plaster := scene.NewMaterial("Plaster", core.Color{R: 0.90, G: 0.87, B: 0.78, A: 1})
	roof := scene.NewMaterial("Roof", core.Color{R: 0.32, G: 0.30, B: 0.28, A: 1})
	lamp := scene.NewMaterial("LampGlow", core.Color{R: 3.0, G: 2.0, B: 0.6, A: 1})
	water := scene.NewWaterMaterial("Water", core.Color{R: 0.28, G: 0.52, B: 0.72, A: 0.85}, 0.05)

	add("Ground", scene.CreatePlane(80, 80, 1), ground, mgl32.Ident4()).CastShadow = false

	box("Bldg_NW", mgl32.Vec3{-15, 4.5, -15}, mgl32.Vec3{9, 9, 9}, stone)
	box("Bldg_NW_roof", mgl32.Vec3{-15, 9.5, -15}, mgl32.Vec3{10, 1, 10}, roof)
	box("Bldg_NE", mgl32.Vec3{16, 3.5, -15}, mgl32.Vec3{12, 7, 10}, brick)
	box("Bldg_NE_roof", mgl32.Vec3{16, 7.5, -15}, mgl32.Vec3{13, 1, 11}, roof)
	box("Bldg_SW", mgl32.Vec3{-15, 3, 16}, mgl32.Vec3{8, 6, 8}, plaster)
	box("Bldg_SW_roof", mgl32.Vec3{-15, 6.5, 16}, mgl32.Vec3{9, 1, 9}, roof)
	box("Bldg_SE", mgl32.Vec3{16, 2.5, 16}, mgl32.Vec3{14, 5, 8}, stone)
	box("Bldg_SE_roof", mgl32.Vec3{16, 5.5, 16}, mgl32.Vec3{15, 1, 9}, roof)

	box("Fountain_Base", mgl32.Vec3{0, 0.25, 0}, mgl32.Vec3{6, 0.5, 6}, stone)
	box("Fountain_Pillar", mgl32.Vec3{0, 1.25, 0}, mgl32.Vec3{0.6, 2.5, 0.6}, stone)
	pool := add("Fountain_Water", scene.CreatePlane(5.4, 5.4, 8), water, mgl32.Translate3D(0, 0.52, 0))
	pool.Queue = scene.QueueTransparent
	pool.CastShadow = false

	for i, pos := range []mgl32.Vec3{{-7, 0, -7}, {7, 0, -7}, {-7, 0, 7}, {7, 0, 7}} {
		box(fmt.Sprintf("LampPole%d", i), pos.Add(mgl32.Vec3{0, 1.75, 0}), mgl32.Vec3{0.15, 3.5, 0.15}, roof)
		glow := add(fmt.Sprintf("LampCap%d", i), scene.CreateSphere(0.25, 12, 8), lamp,
			mgl32.Translate3D(pos[0], 3.7, pos[2]))
		glow.CastShadow = false
		l := scene.NewPointLight(fmt.Sprintf("Lamp%d", i), pos.Add(mgl32.Vec3{0, 3.5, 0}),
			core.Color{R: 1.0, G: 0.75, B: 0.4, A: 1}, 1.5, 9)
		f.Lights = append(f.Lights, l)
	}

	t.Sun = scene.NewDirectionalLight("Sun", mgl32.Vec3{-0.4, -1, -0.3}, core.ColorWhite, 1.2)
	t.Sun.Shadow = scene.NewShadowGenerator(0)
	f.Lights = append(f.Lights, t.Sun)

	sky := scene.NewRenderable("Sky", scene.CreateCube(1), t.Sky)
	sky.CastShadow = false
	f.Skybox = sky

	return t, nil
}

// addModel appends the renderables of a glTF or OBJ file.
func (t *Town) addModel(m *content.Manager, file string) error {
	model, err := m.LoadModel(file)
	if err != nil {
		return err
	}
	t.Frame.RenderList = append(t.Frame.RenderList, model.Renderables...)
	core.Logger().Info("model loaded", "file", file, "renderables", len(model.Renderables))
	return nil
}
