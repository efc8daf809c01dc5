package storage

import "time"

// Flight is one recorded connect episode.
type Flight struct {
	ID          string
	StartedAt   time.Time
	Descriptor  string
	SystemID    uint8
	ComponentID uint8
}

// Record is one stored telemetry snapshot row.
type Record struct {
	Timestamp        time.Time
	Latitude         float64
	Longitude        float64
	Altitude         float64
	Heading          float64
	Groundspeed      float64
	BatteryVoltage   float64
	BatteryRemaining float64
	Mode             string
	Armed            bool
	SystemStatus     string
}
