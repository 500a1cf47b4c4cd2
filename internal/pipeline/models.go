package pipeline

import (
	"time"

	"github.com/yesser147/SafeRide/internal/detector"
	"github.com/yesser147/SafeRide/internal/motion"
)

type RegisterRequest struct {
	VehicleType string   `json:"vehicle_type"`
	Contacts    []string `json:"contacts"`
}

// Stream is the persisted registration of one monitored vehicle.
type Stream struct {
	ID          string                  `json:"id"`
	VehicleType detector.VehicleProfile `json:"vehicle_type"`
	Contacts    []string                `json:"contacts"`
	Status      string                  `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
}

// State is the read-only display snapshot of a stream; it is derived
// output, not authoritative detection state.
type State struct {
	StreamID         string                  `json:"stream_id"`
	VehicleType      detector.VehicleProfile `json:"vehicle_type"`
	Orientation      motion.Orientation      `json:"orientation"`
	DangerPct        float64                 `json:"danger_pct"`
	Connected        bool                    `json:"connected"`
	ActiveAccidentID string                  `json:"active_accident_id,omitempty"`
	LastReading      *motion.Reading         `json:"last_reading,omitempty"`
}
