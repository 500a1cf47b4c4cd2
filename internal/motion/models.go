package motion

import (
	"math"
	"time"
)

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Reading is one unit-converted sensor sample: accel in g, gyro in deg/s.
type Reading struct {
	Accel     Vector3   `json:"accel"`
	Gyro      Vector3   `json:"gyro"`
	Location  Location  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

type Orientation struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}
