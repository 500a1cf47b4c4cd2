package motion

import "math"

const radToDeg = 180.0 / math.Pi

// Estimate derives apparent tilt from a (smoothed) accelerometer vector
// by projecting gravity. Under high dynamic acceleration the result is
// not ground-truth orientation and callers must treat it as a derived
// display signal only.
func Estimate(accel Vector3) Orientation {
	if accel.X == 0 && accel.Y == 0 && accel.Z == 0 {
		return Orientation{}
	}
	return Orientation{
		Pitch: math.Atan2(accel.Y, accel.Z) * radToDeg,
		Roll:  math.Atan2(-accel.X, math.Sqrt(accel.Y*accel.Y+accel.Z*accel.Z)) * radToDeg,
	}
}
