package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/core"
	"render-pipeline/gpu"
)

// Camera is a perspective view into the frame. Use the setters so the cached
// matrices stay in sync.
type Camera struct {
	Name        string
	Position    mgl32.Vec3
	Target      mgl32.Vec3
	Up          mgl32.Vec3
	FOV         float32 // vertical, degrees
	AspectRatio float32
	NearPlane   float32
	FarPlane    float32

	// RenderTarget receives the camera's image; nil draws to the display.
	RenderTarget gpu.RenderTarget
	ClearColor   core.Color

	// Cached matrices
	viewMatrix       mgl32.Mat4
	projectionMatrix mgl32.Mat4
	viewProjMatrix   mgl32.Mat4
	dirty            bool
}

func NewCamera(fov, aspectRatio, nearPlane, farPlane float32) *Camera {
	return &Camera{
		Target:      mgl32.Vec3{0, 0, -1},
		Up:          mgl32.Vec3{0, 1, 0},
		FOV:         fov,
		AspectRatio: aspectRatio,
		NearPlane:   nearPlane,
		FarPlane:    farPlane,
		ClearColor:  core.Color{R: 0.5, G: 0.7, B: 1.0, A: 1.0},
		dirty:       true,
	}
}

func (c *Camera) UpdateAspectRatio(width, height float32) {
	if height > 0 {
		c.AspectRatio = width / height
		c.dirty = true
	}
}

func (c *Camera) SetPosition(pos mgl32.Vec3) {
	c.Position = pos
	c.dirty = true
}

func (c *Camera) LookAt(target, up mgl32.Vec3) {
	c.Target = target
	c.Up = up
	c.dirty = true
}

func (c *Camera) SetClipPlanes(near, far float32) {
	c.NearPlane, c.FarPlane = near, far
	c.dirty = true
}

func (c *Camera) View() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.viewMatrix
}

func (c *Camera) Projection() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.projectionMatrix
}

func (c *Camera) ViewProjection() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.viewProjMatrix
}

func (c *Camera) Forward() mgl32.Vec3 {
	return c.Target.Sub(c.Position).Normalize()
}

// Frustum returns the world-space view frustum.
func (c *Camera) Frustum() Frustum {
	return FrustumFromVP(c.ViewProjection())
}

func (c *Camera) updateMatrices() {
	c.viewMatrix = mgl32.LookAtV(c.Position, c.Target, c.Up)
	c.projectionMatrix = mgl32.Perspective(mgl32.DegToRad(c.FOV), c.AspectRatio, c.NearPlane, c.FarPlane)
	c.viewProjMatrix = c.projectionMatrix.Mul4(c.viewMatrix)
	c.dirty = false
}

// OrbitCamera is a specialized camera for orbiting around a target
type OrbitCamera struct {
	Camera
	Distance float32
	Yaw      float32
	Pitch    float32
}

func NewOrbitCamera(target mgl32.Vec3, distance, fov, aspectRatio float32) *OrbitCamera {
	c := &OrbitCamera{
		Camera:   *NewCamera(fov, aspectRatio, 0.1, 1000.0),
		Distance: distance,
		Pitch:    0.3,
	}
	c.Target = target
	c.UpdatePosition()
	return c
}

func (c *OrbitCamera) UpdatePosition() {
	c.Pitch = mgl32.Clamp(c.Pitch, -1.5, 1.5)

	cosPitch := float32(math.Cos(float64(c.Pitch)))
	sinPitch := float32(math.Sin(float64(c.Pitch)))
	cosYaw := float32(math.Cos(float64(c.Yaw)))
	sinYaw := float32(math.Sin(float64(c.Yaw)))

	offset := mgl32.Vec3{
		c.Distance * cosPitch * sinYaw,
		c.Distance * sinPitch,
		c.Distance * cosPitch * cosYaw,
	}
	c.SetPosition(c.Target.Add(offset))
	c.LookAt(c.Target, mgl32.Vec3{0, 1, 0})
}

func (c *OrbitCamera) Orbit(deltaYaw, deltaPitch float32) {
	c.Yaw += deltaYaw
	c.Pitch += deltaPitch
	c.UpdatePosition()
}

func (c *OrbitCamera) Zoom(delta float32) {
	c.Distance = max(c.Distance+delta, 0.1)
	c.UpdatePosition()
}
