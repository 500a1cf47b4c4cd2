package detector

import (
	"sync"
	"time"

	"github.com/yesser147/SafeRide/internal/motion"
)

const (
	DefaultHistorySize = 20
	DefaultTrigger     = 75.0

	// Scoring needs at least one derivative, so one sample is never enough.
	minSamples = 2
)

type VehicleProfile string

const (
	Scooter VehicleProfile = "scooter"
	Car     VehicleProfile = "car"
)

func ParseProfile(s string) (VehicleProfile, bool) {
	switch VehicleProfile(s) {
	case Scooter, Car:
		return VehicleProfile(s), true
	default:
		return "", false
	}
}

// Result is the outcome of scoring one reading against the history
// window. Consumed immediately by the caller, never stored.
type Result struct {
	IsAccident bool    `json:"is_accident"`
	DangerPct  float64 `json:"danger_pct"`
}

type sample struct {
	accel motion.Vector3
	gyro  motion.Vector3
	at    time.Time
}

// limits holds the per-profile scoring ceilings. A component at or
// beyond its limit contributes its full weight to the danger score.
type limits struct {
	jerkGPerSec   float64
	gyroDegPerSec float64
	deviationG    float64
}

var profileLimits = map[VehicleProfile]limits{
	Scooter: {jerkGPerSec: 20, gyroDegPerSec: 240, deviationG: 2.5},
	Car:     {jerkGPerSec: 30, gyroDegPerSec: 320, deviationG: 3.5},
}

// Detector keeps a bounded window of recent readings and scores the
// window as a whole, so short spikes and sustained anomalies both
// register. Safe for concurrent use, though the pipeline serializes
// calls per stream anyway.
type Detector struct {
	mu      sync.Mutex
	history []sample
	cap     int
	profile VehicleProfile
	trigger float64
}

func New(profile VehicleProfile, historySize int, trigger float64) *Detector {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if trigger <= 0 || trigger > 100 {
		trigger = DefaultTrigger
	}
	if _, ok := profileLimits[profile]; !ok {
		profile = Scooter
	}
	return &Detector{
		history: make([]sample, 0, historySize),
		cap:     historySize,
		profile: profile,
		trigger: trigger,
	}
}

// AddReading appends to the history window, evicting the oldest sample
// at capacity.
func (d *Detector) AddReading(accel, gyro motion.Vector3, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = append(d.history, sample{accel: accel, gyro: gyro, at: at})
	if len(d.history) > d.cap {
		d.history = d.history[1:]
	}
}

// DetectWithHistory scores the current window. The score blends peak
// jerk, peak angular rate and peak gravity deviation, each clamped at
// the profile limit:
//
//	danger = 100 * (0.45*jerk + 0.30*gyro + 0.25*deviation)
//
// Deterministic for identical history contents and profile.
func (d *Detector) DetectWithHistory() Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.history) < minSamples {
		return Result{}
	}

	lim := profileLimits[d.profile]

	var peakJerk, peakGyro, peakDev float64
	for i, s := range d.history {
		if g := s.gyro.Magnitude(); g > peakGyro {
			peakGyro = g
		}
		// Deviation from the 1g resting magnitude.
		if dev := abs(s.accel.Magnitude() - 1); dev > peakDev {
			peakDev = dev
		}
		if i == 0 {
			continue
		}
		prev := d.history[i-1]
		dt := s.at.Sub(prev.at).Seconds()
		if dt <= 0 {
			continue
		}
		if j := s.accel.Sub(prev.accel).Magnitude() / dt; j > peakJerk {
			peakJerk = j
		}
	}

	score := 100 * (0.45*ratio(peakJerk, lim.jerkGPerSec) +
		0.30*ratio(peakGyro, lim.gyroDegPerSec) +
		0.25*ratio(peakDev, lim.deviationG))

	return Result{
		IsAccident: score >= d.trigger,
		DangerPct:  score,
	}
}

// SetVehicleType switches the scoring limits without discarding the
// accumulated history.
func (d *Detector) SetVehicleType(profile VehicleProfile) {
	if _, ok := profileLimits[profile]; !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profile = profile
}

func (d *Detector) Profile() VehicleProfile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.profile
}

// Reset clears the history window so a resolved accident cannot
// immediately re-trigger on stale high-score samples.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = d.history[:0]
}

func (d *Detector) HistoryLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history)
}

func ratio(v, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	r := v / limit
	if r > 1 {
		return 1
	}
	return r
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
