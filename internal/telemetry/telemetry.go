package telemetry

import "time"

// BatteryUnknown is the sentinel for an unreported battery percentage.
const BatteryUnknown = -1

// Snapshot is the latest known vehicle state. It is mutated only by the
// Decoder during a poll step and read by any caller between polls.
type Snapshot struct {
	Latitude         float64   `json:"latitude"`         // degrees, signed
	Longitude        float64   `json:"longitude"`        // degrees, signed
	Altitude         float64   `json:"altitude"`         // meters
	Heading          float64   `json:"heading"`          // degrees, 0-360
	Groundspeed      float64   `json:"groundspeed"`      // m/s
	BatteryVoltage   float64   `json:"batteryVoltage"`   // volts
	BatteryRemaining float64   `json:"batteryRemaining"` // percent, BatteryUnknown if unreported
	Mode             string    `json:"mode"`
	Armed            bool      `json:"armed"`
	SystemStatus     string    `json:"systemStatus"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewSnapshot returns a snapshot with the unknown sentinels set.
func NewSnapshot() Snapshot {
	return Snapshot{
		Mode:             "UNKNOWN",
		SystemStatus:     "UNKNOWN",
		BatteryRemaining: BatteryUnknown,
	}
}
