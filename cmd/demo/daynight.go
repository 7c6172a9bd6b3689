package main

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"render-pipeline/core"
	"render-pipeline/scene"
)

// dayPalette holds the sky and light values for one key time of day.
type dayPalette struct {
	t            float32 // normalised time 0..1
	zenith       core.Color
	horizon      core.Color
	ground       core.Color
	fogColor     core.Color
	fogDensity   float32
	sunColor     core.Color
	sunIntensity float32
	ambient      core.Color
}

// palettes are ordered by t and wrap (0 == 1).
var palettes = []dayPalette{
	{ // noon
		t:            0.00,
		zenith:       core.Color{R: 0.20, G: 0.42, B: 0.90, A: 1},
		horizon:      core.Color{R: 0.58, G: 0.75, B: 0.95, A: 1},
		ground:       core.Color{R: 0.12, G: 0.10, B: 0.08, A: 1},
		fogColor:     core.Color{R: 0.62, G: 0.78, B: 0.95, A: 1},
		fogDensity:   0.011,
		sunColor:     core.Color{R: 1.00, G: 0.98, B: 0.92, A: 1},
		sunIntensity: 1.20,
		ambient:      core.Color{R: 0.16, G: 0.18, B: 0.26, A: 1},
	},
	{ // golden hour
		t:            0.22,
		zenith:       core.Color{R: 0.14, G: 0.20, B: 0.60, A: 1},
		horizon:      core.Color{R: 0.90, G: 0.52, B: 0.18, A: 1},
		ground:       core.Color{R: 0.08, G: 0.07, B: 0.06, A: 1},
		fogColor:     core.Color{R: 0.85, G: 0.55, B: 0.25, A: 1},
		fogDensity:   0.018,
		sunColor:     core.Color{R: 1.00, G: 0.65, B: 0.25, A: 1},
		sunIntensity: 0.90,
		ambient:      core.Color{R: 0.10, G: 0.12, B: 0.20, A: 1},
	},
	{ // dusk
		t:            0.30,
		zenith:       core.Color{R: 0.08, G: 0.10, B: 0.28, A: 1},
		horizon:      core.Color{R: 0.50, G: 0.22, B: 0.28, A: 1},
		ground:       core.Color{R: 0.04, G: 0.03, B: 0.04, A: 1},
		fogColor:     core.Color{R: 0.35, G: 0.18, B: 0.22, A: 1},
		fogDensity:   0.020,
		sunColor:     core.Color{R: 0.70, G: 0.40, B: 0.55, A: 1},
		sunIntensity: 0.25,
		ambient:      core.Color{R: 0.06, G: 0.07, B: 0.14, A: 1},
	},
	{ // midnight, moonlight
		t:            0.50,
		zenith:       core.Color{R: 0.02, G: 0.03, B: 0.10, A: 1},
		horizon:      core.Color{R: 0.04, G: 0.04, B: 0.08, A: 1},
		ground:       core.Color{R: 0.01, G: 0.01, B: 0.02, A: 1},
		fogColor:     core.Color{R: 0.03, G: 0.03, B: 0.06, A: 1},
		fogDensity:   0.010,
		sunColor:     core.Color{R: 0.40, G: 0.45, B: 0.65, A: 1},
		sunIntensity: 0.12,
		ambient:      core.Color{R: 0.03, G: 0.04, B: 0.09, A: 1},
	},
	{ // dawn
		t:            0.78,
		zenith:       core.Color{R: 0.12, G: 0.18, B: 0.55, A: 1},
		horizon:      core.Color{R: 0.88, G: 0.45, B: 0.22, A: 1},
		ground:       core.Color{R: 0.08, G: 0.06, B: 0.05, A: 1},
		fogColor:     core.Color{R: 0.75, G: 0.40, B: 0.20, A: 1},
		fogDensity:   0.015,
		sunColor:     core.Color{R: 1.00, G: 0.60, B: 0.28, A: 1},
		sunIntensity: 0.70,
		ambient:      core.Color{R: 0.09, G: 0.10, B: 0.17, A: 1},
	},
}

// DayNight animates the sun, sky gradient and fog of a frame.
type DayNight struct {
	Time   float32 // 0..1: 0 noon, 0.5 midnight
	Length float32 // seconds per full cycle
	Active bool
}

func NewDayNight(start, length float32) *DayNight {
	if length <= 0 {
		length = 120
	}
	return &DayNight{Time: start, Length: length, Active: true}
}

func (dn *DayNight) Update(dt float32) {
	if !dn.Active {
		return
	}
	dn.Time += dt / dn.Length
	dn.Time -= float32(math.Floor(float64(dn.Time)))
}

func lerpColor(a, b core.Color, t float32) core.Color {
	return core.Color{
		R: a.R + (b.R-a.R)*t,
		G: a.G + (b.G-a.G)*t,
		B: a.B + (b.B-a.B)*t,
		A: 1,
	}
}

// samplePalette interpolates the two keys around t.
func samplePalette(t float32) dayPalette {
	n := len(palettes)
	a, b := palettes[n-1], palettes[0]
	span := 1 - a.t + b.t
	local := t - a.t
	if local < 0 {
		local += 1
	}
	for i := 0; i < n-1; i++ {
		if t >= palettes[i].t && t < palettes[i+1].t {
			a, b = palettes[i], palettes[i+1]
			span = b.t - a.t
			local = t - a.t
			break
		}
	}
	k := local / span

	return dayPalette{
		t:            t,
		zenith:       lerpColor(a.zenith, b.zenith, k),
		horizon:      lerpColor(a.horizon, b.horizon, k),
		ground:       lerpColor(a.ground, b.ground, k),
		fogColor:     lerpColor(a.fogColor, b.fogColor, k),
		fogDensity:   a.fogDensity + (b.fogDensity-a.fogDensity)*k,
		sunColor:     lerpColor(a.sunColor, b.sunColor, k),
		sunIntensity: a.sunIntensity + (b.sunIntensity-a.sunIntensity)*k,
		ambient:      lerpColor(a.ambient, b.ambient, k),
	}
}

// Apply writes the current time of day into the frame settings, the sun and
// the sky material. sun and sky may be nil.
func (dn *DayNight) Apply(s *scene.RenderSettings, sun *scene.Light, sky *scene.Material) {
	p := samplePalette(dn.Time)

	angle := float64(dn.Time * 2 * math.Pi)
	dir := mgl32.Vec3{
		float32(math.Sin(angle)),
		-float32(math.Cos(angle)), // -1 is overhead at noon
		0.35,
	}.Normalize()

	if sun != nil {
		sun.Direction = dir
		sun.Color = p.sunColor
		sun.Intensity = p.sunIntensity
	}
	if sky != nil {
		sky.ZenithColor = p.zenith
		sky.HorizonColor = p.horizon
		sky.GroundColor = p.ground
	}
	s.AmbientColor = p.ambient
	s.FogColor = p.fogColor
	if s.FogMode != scene.FogNone {
		s.FogDensity = p.fogDensity
	}
}

// Clock formats the time of day as a 12-hour clock reading.
func (dn *DayNight) Clock() string {
	// Time 0 is noon
	hours := float32(math.Mod(float64(dn.Time*24+12), 24))
	h := int(hours)
	m := int((hours - float32(h)) * 60)
	period := "AM"
	display := h
	switch {
	case h == 0:
		display = 12
	case h == 12:
		period = "PM"
	case h > 12:
		display = h - 12
		period = "PM"
	}
	return fmt.Sprintf("%02d:%02d %s", display, m, period)
}
