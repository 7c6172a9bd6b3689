package soft

import (
	"render-pipeline/core"
	"render-pipeline/gpu"
)

type CommandKind int

const (
	CmdSetTargets CommandKind = iota
	CmdClear
	CmdApply
	CmdDraw
	CmdDrawFullscreen
	CmdBlit
)

func (k CommandKind) String() string {
	switch k {
	case CmdSetTargets:
		return "SetTargets"
	case CmdClear:
		return "Clear"
	case CmdApply:
		return "Apply"
	case CmdDraw:
		return "Draw"
	case CmdDrawFullscreen:
		return "DrawFullscreen"
	case CmdBlit:
		return "Blit"
	}
	return "Unknown"
}

// Surface identifies a texture as it was when a command was submitted.
type Surface struct {
	id       uint64
	Name     string
	Width    int
	Height   int
	Format   gpu.SurfaceFormat
	Disposed bool
}

func surfaceOf(t gpu.Texture) Surface {
	s := Surface{Name: t.Name(), Width: t.Width(), Height: t.Height(), Format: t.Format()}
	if px := pixelsOf(t); px != nil {
		s.id = px.id
		s.Disposed = px.disposed
	}
	return s
}

// Command is one recorded device call.
type Command struct {
	Kind    CommandKind
	Targets []Surface
	Reads   []Surface

	Effect string
	Pass   string
	Mesh   string
	Params map[string]gpu.Value

	Blend gpu.BlendState
	Depth gpu.DepthState
	Cull  gpu.CullMode

	ClearFlags gpu.ClearFlags
	Color      core.Color
}

// IsDraw reports whether the command rasterized anything.
func (c Command) IsDraw() bool {
	return c.Kind == CmdDraw || c.Kind == CmdDrawFullscreen || c.Kind == CmdBlit
}

// Param returns the value a draw saw for a parameter.
func (c Command) Param(name string) (gpu.Value, bool) {
	v, ok := c.Params[name]
	return v, ok
}

// WritesTo reports whether name is among the bound targets.
func (c Command) WritesTo(name string) bool {
	for _, t := range c.Targets {
		if t.Name == name {
			return true
		}
	}
	return false
}

// ReadsFrom reports whether name was sampled.
func (c Command) ReadsFrom(name string) bool {
	for _, r := range c.Reads {
		if r.Name == name {
			return true
		}
	}
	return false
}
