package detector

// ApplyOverride layers the absolute-orientation fallback rules over a
// base result, using the same smoothed z-axis the orientation estimate
// uses. These catch a vehicle lying on its side or upside down, which a
// derivative-based score misses once the vehicle is at rest. The
// overrides are floors: they only ever raise the outcome.
func ApplyOverride(profile VehicleProfile, accelZ float64, base Result) Result {
	switch profile {
	case Scooter:
		if accelZ < -0.5 {
			return Result{IsAccident: true, DangerPct: 100}
		}
		if abs(accelZ) < 0.4 {
			return Result{IsAccident: true, DangerPct: max(base.DangerPct, 80)}
		}
	case Car:
		if abs(accelZ) < 0.3 {
			return Result{IsAccident: true, DangerPct: max(base.DangerPct, 90)}
		}
	}
	return base
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
