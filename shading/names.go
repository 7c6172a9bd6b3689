package shading

// Uniform names shared by the shader programs and the bindings that feed them.
const (
	View        = "View"
	Projection  = "Projection"
	EyePosition = "EyePosition"

	AmbientColor  = "AmbientColor"
	World         = "World"
	TextureTiling = "TextureTiling"
	DiffuseColor  = "DiffuseColor"
	MainTexture   = "MainTexture"

	SpecularLightColor     = "SpecularLightColor"
	SpecularPower          = "SpecularPower"
	SpecularIntensity      = "SpecularIntensity"
	SpecularTextureEnabled = "SpecularTextureEnabled"
	SpecularTexture        = "SpecularTexture"

	LightColor     = "LightColor"
	LightDirection = "LightDirection"
	LightPosition  = "LightPosition"
	LightSpotAngle = "LightSpotAngle"
	LightIntensity = "LightIntensity"
	LightRange     = "LightRange"
	LightFallOff   = "LightFallOff"
	LightType      = "LightType"

	ShadowStrength  = "ShadowStrength"
	ShadowBias      = "ShadowBias"
	ShadowMap       = "ShadowMap"
	ShadowEnabled   = "ShadowEnabled"
	LightView       = "LightView"
	LightProjection = "LightProjection"

	FogColor = "FogColor"
	FogData  = "FogData"

	NormalTexture       = "NormalTexture"
	DepthTexture        = "DepthTexture"
	InvViewProjection   = "InvViewProjection"
	Viewport            = "Viewport"
	WorldViewProjection = "WorldViewProjection"
	LightAttenuation    = "LightAttenuation"
	LightMap            = "LightMap"

	MainTextureEnabled = "MainTextureEnabled"
	Time               = "Time"
	WaterSpeed         = "WaterSpeed"
	ZenithColor        = "ZenithColor"
	HorizonColor       = "HorizonColor"
	GroundColor        = "GroundColor"
)

// Effect pass names.
const (
	AmbientPass     = "AmbientPass"
	LightPass       = "LightPass"
	SkyboxPass      = "SkyboxPass"
	DepthNormalPass = "DepthNormalPass"
	DirectionalPass = "DirectionalPass"
	ShadowPass      = "ShadowPass"
)

var (
	cameraNames   = []string{View, Projection, EyePosition, AmbientColor}
	objectNames   = []string{World, TextureTiling, DiffuseColor, MainTexture, MainTextureEnabled}
	specularNames = []string{SpecularLightColor, SpecularPower, SpecularIntensity, SpecularTextureEnabled, SpecularTexture}
	shadowNames   = []string{ShadowEnabled, ShadowStrength, ShadowBias, ShadowMap, LightView, LightProjection}
	fogNames      = []string{FogColor, FogData}
	waterNames    = []string{Time, WaterSpeed}
	skyNames      = []string{ZenithColor, HorizonColor, GroundColor}
	lightMapNames = []string{LightMap, Viewport}

	lightNames = []string{
		LightColor, LightDirection, LightPosition, LightSpotAngle,
		LightIntensity, LightRange, LightFallOff, LightType,
	}
)

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
