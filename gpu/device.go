// Package gpu is the device abstraction the pipeline draws through.
//
// A Device creates effects, textures, render targets and meshes, and executes
// draw calls against the currently bound render targets. Two implementations
// exist: internal/opengl for real output, and gpu/soft which executes
// fullscreen passes on the CPU and records every command for inspection.
package gpu

import (
	"errors"
	"image"

	"render-pipeline/core"
)

var ErrDisposed = errors.New("gpu: resource disposed")

// SurfaceFormat is the pixel format of a texture or render target.
type SurfaceFormat int

const (
	SurfaceColor  SurfaceFormat = iota // RGBA8
	SurfaceSingle                      // R32F
	SurfaceHDR                         // RGBA16F
)

func (f SurfaceFormat) String() string {
	switch f {
	case SurfaceColor:
		return "Color"
	case SurfaceSingle:
		return "Single"
	case SurfaceHDR:
		return "HDR"
	}
	return "Unknown"
}

// DepthFormat is the depth attachment declared for a render target.
type DepthFormat int

const (
	DepthNone DepthFormat = iota
	Depth24
)

// TargetDesc describes an offscreen render target.
type TargetDesc struct {
	Name   string
	Width  int
	Height int
	Format SurfaceFormat
	Depth  DepthFormat
}

type Texture interface {
	Name() string
	Width() int
	Height() int
	Format() SurfaceFormat
	Dispose()
}

// RenderTarget is a texture that can be bound for writing.
type RenderTarget interface {
	Texture
	Desc() TargetDesc
}

type Mesh interface {
	Name() string
	VertexCount() int
	IndexCount() int
	Dispose()
}

type BlendState int

const (
	BlendOpaque BlendState = iota
	BlendAdditive
	BlendAlpha
)

type DepthState int

const (
	DepthDefault DepthState = iota // test less, write
	DepthRead                      // test less-equal, no write
	DepthOff                       // no test, no write
)

// CullMode selects which triangle faces are discarded.
type CullMode int

const (
	CullBack  CullMode = iota // counter-clockwise front faces kept
	CullFront                 // inverted: inside faces of closed volumes kept
	CullNone
)

func (c CullMode) String() string {
	switch c {
	case CullBack:
		return "CullBack"
	case CullFront:
		return "CullFront"
	case CullNone:
		return "CullNone"
	}
	return "Unknown"
}

type ClearFlags int

const (
	ClearColor ClearFlags = 1 << iota
	ClearDepth

	ClearAll = ClearColor | ClearDepth
)

// Device executes commands in submission order on the calling goroutine.
type Device interface {
	// Viewport is the current size of the display target.
	Viewport() core.Viewport

	CreateEffect(src EffectSource) (Effect, error)
	CreateTexture(name string, img image.Image) (Texture, error)
	CreateRenderTarget(desc TargetDesc) (RenderTarget, error)
	CreateMesh(name string, vertices []core.Vertex, indices []uint32) (Mesh, error)

	// SetRenderTargets binds targets for writing. No targets binds the
	// display back buffer.
	SetRenderTargets(targets ...RenderTarget)
	Clear(flags ClearFlags, color core.Color)
	SetBlendState(s BlendState)
	SetDepthState(s DepthState)
	SetRasterizerState(c CullMode)

	// Draw renders a mesh with the most recently applied effect pass.
	Draw(m Mesh)
	// DrawFullscreen covers the bound targets with one triangle using the most
	// recently applied effect pass.
	DrawFullscreen()
	// Blit copies src into the bound target, scaling to fit.
	Blit(src Texture)
}
