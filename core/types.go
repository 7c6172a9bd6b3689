package core

import "github.com/go-gl/mathgl/mgl32"

type Color struct {
	R, G, B, A float32
}

var (
	ColorWhite       = Color{1, 1, 1, 1}
	ColorBlack       = Color{0, 0, 0, 1}
	ColorTransparent = Color{0, 0, 0, 0}
	ColorRed         = Color{1, 0, 0, 1}
	ColorGreen       = Color{0, 1, 0, 1}
	ColorBlue        = Color{0, 0, 1, 1}
)

// Vec3 drops alpha.
func (c Color) Vec3() mgl32.Vec3 {
	return mgl32.Vec3{c.R, c.G, c.B}
}

func (c Color) Vec4() mgl32.Vec4 {
	return mgl32.Vec4{c.R, c.G, c.B, c.A}
}

// ColorFromVec4 is the inverse of Color.Vec4.
func ColorFromVec4(v mgl32.Vec4) Color {
	return Color{v[0], v[1], v[2], v[3]}
}

// Vertex is the interleaved layout uploaded to the GPU.
// Attribute locations: 0 position, 1 normal, 2 uv, 3 color.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	Color    Color
}

// Viewport is a pixel-sized drawing area.
type Viewport struct {
	Width  int
	Height int
}

func (v Viewport) Empty() bool {
	return v.Width <= 0 || v.Height <= 0
}

// Size returns the viewport dimensions as floats, the form shaders expect.
func (v Viewport) Size() mgl32.Vec2 {
	return mgl32.Vec2{float32(v.Width), float32(v.Height)}
}

func (v Viewport) AspectRatio() float32 {
	if v.Height == 0 {
		return 1
	}
	return float32(v.Width) / float32(v.Height)
}
