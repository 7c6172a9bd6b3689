// Package content loads effects, textures and models for the pipeline.
//
// Effects are described by TOML manifests that list one GLSL program per
// pass. The stock manifests and textures are embedded; a Manager can also
// read them from any fs.FS, which is how tests and tools override individual
// shaders.
package content

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"render-pipeline/core"
	"render-pipeline/gpu"
)

//go:embed shaders textures
var embedded embed.FS

// ErrNotFound is returned when an effect or texture does not exist.
var ErrNotFound = errors.New("content: not found")

// Source is what renderers and shaders load their resources from.
type Source interface {
	// LoadEffect compiles a fresh effect. The caller owns the result.
	LoadEffect(name string) (gpu.Effect, error)
	// LoadTexture returns a cached texture owned by the Source.
	LoadTexture(name string) (gpu.Texture, error)
}

type manifest struct {
	Name   string `toml:"name"`
	Passes []struct {
		Name     string `toml:"name"`
		Vertex   string `toml:"vertex"`
		Fragment string `toml:"fragment"`
	} `toml:"pass"`
}

// Manager is the default Source. It is safe for use from one render
// goroutine plus loaders on others.
type Manager struct {
	dev  gpu.Device
	fsys fs.FS

	mu       sync.Mutex
	textures map[string]gpu.Texture
	// Kernels attach CPU renditions to passes, keyed "Effect/Pass".
	kernels map[string]gpu.Kernel
}

// NewManager reads from fsys, or from the embedded shaders and textures when
// fsys is nil.
func NewManager(dev gpu.Device, fsys fs.FS) *Manager {
	if fsys == nil {
		fsys = embedded
	}
	return &Manager{
		dev:      dev,
		fsys:     fsys,
		textures: make(map[string]gpu.Texture),
		kernels:  make(map[string]gpu.Kernel),
	}
}

// SetKernel registers the CPU kernel of one pass for software devices.
// Software devices only run kernels for fullscreen draws, so this is the hook
// for custom fullscreen effects loaded from manifests; mesh passes such as
// the material shaders never use one.
func (m *Manager) SetKernel(effect, pass string, k gpu.Kernel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kernels[effect+"/"+pass] = k
}

// ManifestPath maps an effect name like "Forward/Standard" to its manifest.
func ManifestPath(name string) string {
	return path.Join("shaders", strings.ToLower(name)+".toml")
}

// EffectSource reads an effect manifest and the GLSL it references.
func (m *Manager) EffectSource(name string) (gpu.EffectSource, error) {
	file := ManifestPath(name)
	data, err := fs.ReadFile(m.fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return gpu.EffectSource{}, fmt.Errorf("effect %q: %w", name, ErrNotFound)
		}
		return gpu.EffectSource{}, fmt.Errorf("effect %q: %w", name, err)
	}

	var mf manifest
	if err := toml.Unmarshal(data, &mf); err != nil {
		return gpu.EffectSource{}, fmt.Errorf("parse %s: %w", file, err)
	}
	if len(mf.Passes) == 0 {
		return gpu.EffectSource{}, fmt.Errorf("effect %q declares no passes", name)
	}
	if mf.Name == "" {
		mf.Name = name
	}

	dir := path.Dir(file)
	src := gpu.EffectSource{Name: mf.Name}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range mf.Passes {
		vs, err := fs.ReadFile(m.fsys, path.Join(dir, p.Vertex))
		if err != nil {
			return gpu.EffectSource{}, fmt.Errorf("effect %q pass %q vertex: %w", name, p.Name, err)
		}
		fsrc, err := fs.ReadFile(m.fsys, path.Join(dir, p.Fragment))
		if err != nil {
			return gpu.EffectSource{}, fmt.Errorf("effect %q pass %q fragment: %w", name, p.Name, err)
		}
		src.Passes = append(src.Passes, gpu.PassSource{
			Name:     p.Name,
			Vertex:   string(vs),
			Fragment: string(fsrc),
			Kernel:   m.kernels[mf.Name+"/"+p.Name],
		})
	}
	return src, nil
}

func (m *Manager) LoadEffect(name string) (gpu.Effect, error) {
	src, err := m.EffectSource(name)
	if err != nil {
		return nil, err
	}
	eff, err := m.dev.CreateEffect(src)
	if err != nil {
		return nil, fmt.Errorf("create effect %q: %w", name, err)
	}
	core.Logger().Debug("effect loaded", "name", name, "passes", len(src.Passes))
	return eff, nil
}

// LoadTexture decodes a PNG or JPEG from the manager's file system. Repeated
// loads of the same name share one texture.
func (m *Manager) LoadTexture(name string) (gpu.Texture, error) {
	m.mu.Lock()
	if tex, ok := m.textures[name]; ok {
		m.mu.Unlock()
		return tex, nil
	}
	m.mu.Unlock()

	data, err := fs.ReadFile(m.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("texture %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("texture %q: %w", name, err)
	}
	return m.TextureFromBytes(name, data)
}

// TextureFromBytes decodes and uploads encoded image data under name.
func (m *Manager) TextureFromBytes(name string, data []byte) (gpu.Texture, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode texture %q: %w", name, err)
	}
	return m.AddTexture(name, img)
}

// AddTexture uploads img and caches it under name. An existing entry wins.
func (m *Manager) AddTexture(name string, img image.Image) (gpu.Texture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tex, ok := m.textures[name]; ok {
		return tex, nil
	}
	tex, err := m.dev.CreateTexture(name, img)
	if err != nil {
		return nil, fmt.Errorf("upload texture %q: %w", name, err)
	}
	m.textures[name] = tex
	return tex, nil
}

// Dispose releases every cached texture.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, tex := range m.textures {
		tex.Dispose()
		delete(m.textures, name)
	}
}
