package telemetry

import (
	"time"

	"github.com/uavlink/gcs/internal/mav"
)

// Decoder maps decoded inbound frames onto snapshot fields. It performs no
// I/O and touches only the fields it recognizes; unknown frame kinds are
// ignored so new message types never break an older station.
type Decoder struct {
	modes mav.ModeTable
	now   func() time.Time
}

// NewDecoder creates a decoder resolving mode names through the given table.
func NewDecoder(modes mav.ModeTable) *Decoder {
	return &Decoder{modes: modes, now: time.Now}
}

// WithNow overrides the decoder clock. Used by tests.
func (d *Decoder) WithNow(now func() time.Time) *Decoder {
	d.now = now
	return d
}

// Apply updates snap from one inbound message.
func (d *Decoder) Apply(snap *Snapshot, msg mav.Message) {
	switch f := msg.Frame.(type) {
	case mav.Heartbeat:
		snap.Armed = f.Armed()
		snap.SystemStatus = mav.SystemStatusName(f.SystemStatus)
		snap.UpdatedAt = d.now()

		if name, ok := d.modes.Name(f.CustomMode); ok {
			snap.Mode = name
		} else {
			snap.Mode = "UNKNOWN"
		}

	case mav.GlobalPositionInt:
		snap.Latitude = float64(f.Lat) / 1e7
		snap.Longitude = float64(f.Lon) / 1e7
		snap.Altitude = float64(f.Alt) / 1000.0
		snap.Heading = float64(f.Hdg) / 100.0

	case mav.VfrHud:
		snap.Groundspeed = float64(f.Groundspeed)

	case mav.SysStatus:
		snap.BatteryVoltage = float64(f.VoltageBattery) / 1000.0
		snap.BatteryRemaining = float64(f.BatteryRemaining)
	}
}
