// Command demo renders a small town with the forward or light-pre-pass
// renderer, either in a window or headless to a PNG file.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"time"

	"render-pipeline/content"
	"render-pipeline/core"
	"render-pipeline/gpu"
	"render-pipeline/gpu/soft"
	"render-pipeline/internal/opengl"
	"render-pipeline/postprocess"
	"render-pipeline/renderer"
	"render-pipeline/scene"
)

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	headless := flag.Bool("headless", false, "render with the software device and write a PNG")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	core.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(1)
	}

	if *headless {
		err = runHeadless(cfg)
	} else {
		err = runWindowed(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(1)
	}
}

// app is everything a run owns besides the device.
type app struct {
	cfg      Config
	town     *Town
	content  *content.Manager
	renderer renderer.Renderer
	post     *postprocess.Pipeline
	dayNight *DayNight
}

func newApp(cfg Config, dev gpu.Device) (*app, error) {
	vp := dev.Viewport()
	town, err := buildTown(cfg, vp.AspectRatio())
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		town:     town,
		content:  content.NewManager(dev, nil),
		renderer: cfg.NewRenderer(dev),
		dayNight: NewDayNight(cfg.Scene.StartTime, cfg.Scene.DayLength),
	}
	if cfg.Scene.Model != "" {
		if err := town.addModel(a.content, cfg.Scene.Model); err != nil {
			a.dispose()
			return nil, err
		}
	}
	if err := a.renderer.Initialize(a.content); err != nil {
		a.dispose()
		return nil, err
	}
	if a.post, err = cfg.Pipeline(dev, a.content); err != nil {
		a.dispose()
		return nil, err
	}
	return a, nil
}

// frame advances time by dt and renders one image to the display.
func (a *app) frame(dt float32) error {
	f := a.town.Frame
	f.Settings.Time += dt
	a.dayNight.Update(dt)
	a.dayNight.Apply(&f.Settings, a.town.Sun, a.town.Sky)

	if err := a.renderer.Render(f); err != nil {
		return err
	}
	out := a.renderer.Output()
	if out == nil {
		return nil
	}
	in := &postprocess.Input{Camera: &a.town.Camera.Camera, Settings: f.Settings}
	if lpp, ok := a.renderer.(*renderer.LightPrePassRenderer); ok {
		in.Depth = lpp.DepthBuffer()
	}
	return a.post.Present(in, out)
}

func (a *app) dispose() {
	if a.post != nil {
		a.post.Dispose()
	}
	a.renderer.Dispose()
	a.content.Dispose()
}

func runWindowed(cfg Config) error {
	wc := core.DefaultWindowConfig()
	wc.Width, wc.Height = cfg.Window.Width, cfg.Window.Height
	wc.Title = cfg.Window.Title
	wc.VSync = cfg.Window.VSync
	wc.Fullscreen = cfg.Window.Fullscreen

	window, err := core.NewWindow(wc)
	if err != nil {
		return err
	}
	defer window.Destroy()

	dev, err := opengl.New(window.Width, window.Height)
	if err != nil {
		return err
	}
	defer dev.Dispose()

	a, err := newApp(cfg, dev)
	if err != nil {
		return err
	}
	defer a.dispose()

	// number keys toggle post-process passes in chain order
	window.SetKeyCallback(func(key int) {
		if key == core.KeyEscape {
			window.Close()
			return
		}
		i := key - core.Key1
		passes := a.post.Passes()
		if i >= 0 && i < len(passes) {
			passes[i].SetEnabled(!passes[i].Enabled())
			core.Logger().Info("post-process toggled", "pass", passes[i].Name(), "enabled", passes[i].Enabled())
		}
	})

	last := window.Time()
	lastTitle := time.Now()
	for !window.ShouldClose() {
		now := window.Time()
		dt := float32(now - last)
		last = now

		if window.TakeResize() {
			dev.Resize(window.Width, window.Height)
			a.town.Camera.UpdateAspectRatio(float32(window.Width), float32(window.Height))
		}
		steer(window, a.town.Camera, dt)
		if err := a.frame(dt); err != nil {
			return err
		}
		window.SwapBuffers()
		window.PollEvents()

		if time.Since(lastTitle) > time.Second {
			lastTitle = time.Now()
			s := a.renderer.Stats()
			window.SetTitle(fmt.Sprintf("%s | %s | %d objects, %d lights, %d draws",
				cfg.Window.Title, a.dayNight.Clock(), s.Objects, s.LightDraws, s.DrawCalls))
		}
	}
	return nil
}

// steer orbits the camera with the arrow keys and zooms with +/-.
func steer(w *core.Window, cam *scene.OrbitCamera, dt float32) {
	const turn, zoom = 1.2, 8
	var yaw, pitch, dist float32
	if w.IsKeyPressed(core.KeyLeft) {
		yaw -= turn * dt
	}
	if w.IsKeyPressed(core.KeyRight) {
		yaw += turn * dt
	}
	if w.IsKeyPressed(core.KeyUp) {
		pitch += turn * dt
	}
	if w.IsKeyPressed(core.KeyDown) {
		pitch -= turn * dt
	}
	if w.IsKeyPressed(core.KeyEqual) {
		dist -= zoom * dt
	}
	if w.IsKeyPressed(core.KeyMinus) {
		dist += zoom * dt
	}
	if yaw != 0 || pitch != 0 {
		cam.Orbit(yaw, pitch)
	}
	if dist != 0 {
		cam.Zoom(dist)
	}
}

func runHeadless(cfg Config) error {
	dev := soft.New(cfg.Window.Width, cfg.Window.Height)
	a, err := newApp(cfg, dev)
	if err != nil {
		return err
	}
	defer a.dispose()

	for range max(cfg.Snapshot.Frames, 1) {
		if err := a.frame(1.0 / 60); err != nil {
			return err
		}
	}
	s := a.renderer.Stats()
	core.Logger().Info("headless frame rendered",
		"objects", s.Objects, "culled", s.Culled, "lights", s.LightDraws, "draws", s.DrawCalls)

	return writePNG(cfg.Snapshot, dev.Snapshot(nil))
}

func writePNG(sc SnapshotConfig, img *image.RGBA) error {
	if sc.Scale > 0 && sc.Scale != 1 {
		b := img.Bounds()
		w := max(int(float32(b.Dx())*sc.Scale), 1)
		h := max(int(float32(b.Dy())*sc.Scale), 1)
		img = gpu.Scale(img, w, h)
	}
	file, err := os.Create(sc.Output)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	core.Logger().Info("snapshot written", "file", sc.Output)
	return file.Close()
}
