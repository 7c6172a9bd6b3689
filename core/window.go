package core

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	// GLFW and the GL context must stay on the main thread.
	runtime.LockOSThread()
}

// Window is the default display target: a GLFW window owning an OpenGL 4.1
// core context.
type Window struct {
	Handle *glfw.Window
	Width  int
	Height int
	Title  string

	resized bool
}

type WindowConfig struct {
	Width      int
	Height     int
	Title      string
	Resizable  bool
	VSync      bool
	Fullscreen bool
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Width:     1280,
		Height:    720,
		Title:     "Render Pipeline",
		Resizable: true,
		VSync:     true,
	}
}

func NewWindow(config WindowConfig) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, boolToInt(config.Resizable))

	var monitor *glfw.Monitor
	if config.Fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}

	handle, err := glfw.CreateWindow(config.Width, config.Height, config.Title, monitor, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	handle.MakeContextCurrent()
	if config.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	w := &Window{Handle: handle, Title: config.Title}
	w.Width, w.Height = handle.GetFramebufferSize()

	handle.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.Width = width
		w.Height = height
		w.resized = true
	})

	return w, nil
}

func (w *Window) ShouldClose() bool {
	return w.Handle.ShouldClose()
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

func (w *Window) SwapBuffers() {
	w.Handle.SwapBuffers()
}

// Viewport returns the framebuffer size in pixels.
func (w *Window) Viewport() Viewport {
	return Viewport{Width: w.Width, Height: w.Height}
}

// TakeResize reports whether the framebuffer changed size since the last call.
func (w *Window) TakeResize() bool {
	r := w.resized
	w.resized = false
	return r
}

func (w *Window) Time() float64 {
	return glfw.GetTime()
}

func (w *Window) IsKeyPressed(key int) bool {
	return w.Handle.GetKey(glfw.Key(key)) == glfw.Press
}

// SetKeyCallback calls cb with the key code for every key press.
func (w *Window) SetKeyCallback(cb func(key int)) {
	w.Handle.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action == glfw.Press {
			cb(int(key))
		}
	})
}

func (w *Window) SetTitle(title string) {
	w.Handle.SetTitle(title)
	w.Title = title
}

func (w *Window) Close() {
	w.Handle.SetShouldClose(true)
}

func (w *Window) Destroy() {
	w.Handle.Destroy()
	glfw.Terminate()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const (
	Key1      = int(glfw.Key1)
	Key2      = int(glfw.Key2)
	Key3      = int(glfw.Key3)
	Key4      = int(glfw.Key4)
	Key5      = int(glfw.Key5)
	Key6      = int(glfw.Key6)
	Key7      = int(glfw.Key7)
	Key8      = int(glfw.Key8)
	Key9      = int(glfw.Key9)
	KeyEscape = int(glfw.KeyEscape)
	KeyLeft   = int(glfw.KeyLeft)
	KeyRight  = int(glfw.KeyRight)
	KeyUp     = int(glfw.KeyUp)
	KeyDown   = int(glfw.KeyDown)
	KeyEqual  = int(glfw.KeyEqual)
	KeyMinus  = int(glfw.KeyMinus)
)
