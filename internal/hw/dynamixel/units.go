package dynamixel

import "math"

// X-series register units.
const (
	TicksPerRevolution = 4096
	CenterPosition     = 2048
	VelocityUnitRPM    = 0.229   // Present/Goal_Velocity LSB
	CurrentUnitAmpere  = 0.00269 // Present/Goal_Current LSB
)

const radPerSecPerRPM = 2 * math.Pi / 60

// TicksToRadians converts encoder ticks to radians, zero at the center position.
func TicksToRadians(ticks int32) float64 {
	return float64(ticks-CenterPosition) * (2 * math.Pi / TicksPerRevolution)
}

// RadiansToTicks converts radians to encoder ticks.
func RadiansToTicks(rad float64) int32 {
	return int32(math.Round(rad*(TicksPerRevolution/(2*math.Pi)))) + CenterPosition
}

// VelocityToRadPerSec converts a raw velocity register value to rad/s.
func VelocityToRadPerSec(raw int32) float64 {
	return float64(raw) * VelocityUnitRPM * radPerSecPerRPM
}

// RadPerSecToVelocity converts rad/s to a raw velocity register value.
func RadPerSecToVelocity(v float64) int32 {
	return int32(math.Round(v / (VelocityUnitRPM * radPerSecPerRPM)))
}

// CurrentToAmpere converts a raw current register value to amperes.
func CurrentToAmpere(raw int32) float64 {
	return float64(raw) * CurrentUnitAmpere
}

// AmpereToCurrent converts amperes to a raw current register value.
func AmpereToCurrent(a float64) int32 {
	return int32(math.Round(a / CurrentUnitAmpere))
}
