package accident

import (
	"time"

	"github.com/yesser147/SafeRide/internal/motion"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Snapshot is what the pipeline captures at the moment a trigger
// fires: where the vehicle was and what the sensors saw.
type Snapshot struct {
	StreamID  string          `json:"stream_id"`
	DangerPct float64         `json:"danger_pct"`
	Location  motion.Location `json:"location"`
	Accel     motion.Vector3  `json:"accel"`
	Gyro      motion.Vector3  `json:"gyro"`
	Contacts  []string        `json:"contacts"`
}

type Event struct {
	ID         string          `json:"id"`
	StreamID   string          `json:"stream_id"`
	DangerPct  float64         `json:"danger_pct"`
	Location   motion.Location `json:"location"`
	Accel      motion.Vector3  `json:"accel"`
	Gyro       motion.Vector3  `json:"gyro"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}
