package mav

// ModeTable resolves between flight-mode names and the numeric custom mode
// carried in HEARTBEAT. The mapping is vehicle-type specific, so callers
// inject the table for their airframe.
type ModeTable interface {
	// Name returns the mode name for a custom mode number.
	Name(custom uint32) (string, bool)

	// Code returns the custom mode number for a mode name.
	Code(name string) (uint32, bool)
}

// StaticModeTable is a fixed name-to-code mapping.
type StaticModeTable map[string]uint32

func (t StaticModeTable) Name(custom uint32) (string, bool) {
	for name, code := range t {
		if code == custom {
			return name, true
		}
	}
	return "", false
}

func (t StaticModeTable) Code(name string) (uint32, bool) {
	code, ok := t[name]
	return code, ok
}

// ArduCopterModes is the ArduPilot copter mode table.
var ArduCopterModes = StaticModeTable{
	"STABILIZE":    0,
	"ACRO":         1,
	"ALT_HOLD":     2,
	"AUTO":         3,
	"GUIDED":       4,
	"LOITER":       5,
	"RTL":          6,
	"CIRCLE":       7,
	"LAND":         9,
	"DRIFT":        11,
	"SPORT":        13,
	"FLIP":         14,
	"AUTOTUNE":     15,
	"POSHOLD":      16,
	"BRAKE":        17,
	"THROW":        18,
	"GUIDED_NOGPS": 20,
	"SMART_RTL":    21,
}

// ArduRoverModes is the ArduPilot rover mode table.
var ArduRoverModes = StaticModeTable{
	"MANUAL":    0,
	"ACRO":      1,
	"STEERING":  3,
	"HOLD":      4,
	"LOITER":    5,
	"AUTO":      10,
	"RTL":       11,
	"SMART_RTL": 12,
	"GUIDED":    15,
}
