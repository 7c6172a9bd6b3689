package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/core"
	"render-pipeline/gpu"
)

// ShaderKind selects the family of shading program a material is drawn with.
type ShaderKind int

const (
	ShaderStandard ShaderKind = iota
	ShaderWater
	ShaderSkybox
)

func (k ShaderKind) String() string {
	switch k {
	case ShaderStandard:
		return "Standard"
	case ShaderWater:
		return "StandardWater"
	case ShaderSkybox:
		return "Skybox"
	}
	return "Unknown"
}

// Material describes surface appearance. Textures are optional; a nil texture
// disables the matching feature in the shader.
type Material struct {
	Name string
	Kind ShaderKind

	DiffuseColor core.Color
	MainTexture  gpu.Texture
	Tiling       mgl32.Vec2

	SpecularColor     core.Color
	Shininess         float32
	SpecularIntensity float32
	SpecularTexture   gpu.Texture

	// Water: scroll speed of the main texture.
	WaterSpeed float32

	// Skybox gradient stops.
	ZenithColor  core.Color
	HorizonColor core.Color
	GroundColor  core.Color
}

// NewMaterial creates a standard material with the given diffuse color.
func NewMaterial(name string, diffuse core.Color) *Material {
	return &Material{
		Name:              name,
		Kind:              ShaderStandard,
		DiffuseColor:      diffuse,
		Tiling:            mgl32.Vec2{1, 1},
		SpecularColor:     core.Color{R: 0.6, G: 0.6, B: 0.6, A: 1},
		Shininess:         32,
		SpecularIntensity: 1,
	}
}

// NewWaterMaterial creates an animated water surface.
func NewWaterMaterial(name string, diffuse core.Color, speed float32) *Material {
	m := NewMaterial(name, diffuse)
	m.Kind = ShaderWater
	m.WaterSpeed = speed
	m.Shininess = 128
	return m
}

// NewSkyboxMaterial creates a procedural gradient sky.
func NewSkyboxMaterial(name string) *Material {
	return &Material{
		Name:         name,
		Kind:         ShaderSkybox,
		DiffuseColor: core.ColorWhite,
		Tiling:       mgl32.Vec2{1, 1},
		ZenithColor:  core.Color{R: 0.18, G: 0.36, B: 0.72, A: 1},
		HorizonColor: core.Color{R: 0.62, G: 0.76, B: 0.90, A: 1},
		GroundColor:  core.Color{R: 0.30, G: 0.28, B: 0.25, A: 1},
	}
}
