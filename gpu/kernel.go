package gpu

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"
)

// Kernel computes one output pixel of a fullscreen pass. uv is in [0,1] with
// the origin at the bottom-left, matching the GLSL fullscreen triangle.
type Kernel func(ctx KernelContext, uv mgl32.Vec2) mgl32.Vec4

// KernelContext exposes the applied pass parameters to a Kernel by uniform name.
// Missing parameters read as zero.
type KernelContext interface {
	Float(name string) float32
	Int(name string) int32
	Bool(name string) bool
	Vec2(name string) mgl32.Vec2
	Vec3(name string) mgl32.Vec3
	Vec4(name string) mgl32.Vec4
	// Texture returns nil when nothing is bound to name.
	Texture(name string) Sampler
	// TexelSize is 1/size of the bound output target.
	TexelSize() mgl32.Vec2
}

type Sampler interface {
	Sample(uv mgl32.Vec2) mgl32.Vec4
	Size() (width, height int)
}

// ToRGBA converts any image to tightly packed RGBA8.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Scale resizes img with bilinear filtering.
func Scale(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Saturate clamps every component to [0,1].
func Saturate(v mgl32.Vec4) mgl32.Vec4 {
	for i := range v {
		v[i] = mgl32.Clamp(v[i], 0, 1)
	}
	return v
}
