// Package mav defines the typed MAVLink frames exchanged with the vehicle
// and the boundary to the external wire codec. Serialization of the binary
// v2 layout is never done here; the codec implementation is injected by the
// caller.
package mav

import "fmt"

// Type identifies the kind of a decoded frame.
type Type int

const (
	TypeUnknown Type = iota
	TypeHeartbeat
	TypeGlobalPositionInt
	TypeVfrHud
	TypeSysStatus
	TypeMissionClearAll
	TypeMissionCount
	TypeMissionRequest
	TypeMissionItem
	TypeMissionAck
	TypeCommandLong
	TypeSetMode
	TypeParamRequestList
	TypeParamValue
	TypeParamSet
)

func (t Type) String() string {
	switch t {
	case TypeHeartbeat:
		return "HEARTBEAT"
	case TypeGlobalPositionInt:
		return "GLOBAL_POSITION_INT"
	case TypeVfrHud:
		return "VFR_HUD"
	case TypeSysStatus:
		return "SYS_STATUS"
	case TypeMissionClearAll:
		return "MISSION_CLEAR_ALL"
	case TypeMissionCount:
		return "MISSION_COUNT"
	case TypeMissionRequest:
		return "MISSION_REQUEST"
	case TypeMissionItem:
		return "MISSION_ITEM"
	case TypeMissionAck:
		return "MISSION_ACK"
	case TypeCommandLong:
		return "COMMAND_LONG"
	case TypeSetMode:
		return "SET_MODE"
	case TypeParamRequestList:
		return "PARAM_REQUEST_LIST"
	case TypeParamValue:
		return "PARAM_VALUE"
	case TypeParamSet:
		return "PARAM_SET"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// Frame is one decoded protocol message payload.
type Frame interface {
	Type() Type
}

// Identity is the system/component identifier pair of a protocol endpoint.
type Identity struct {
	SystemID    uint8
	ComponentID uint8
}

func (id Identity) String() string {
	return fmt.Sprintf("%d/%d", id.SystemID, id.ComponentID)
}

// GroundStation is the default identity this station sends under.
// Component 190 is MAV_COMP_ID_MISSIONPLANNER.
var GroundStation = Identity{SystemID: 255, ComponentID: 190}

// Message pairs a frame with the identity of its sender. For inbound
// messages the transport fills Sender from the wire header; for outbound
// messages the link layer stamps the station identity.
type Message struct {
	Sender Identity
	Frame  Frame
}

// Type returns the frame type, or TypeUnknown for a message without payload.
func (m Message) Type() Type {
	if m.Frame == nil {
		return TypeUnknown
	}
	return m.Frame.Type()
}

// Mode flags carried in HEARTBEAT base_mode.
const (
	ModeFlagCustomModeEnabled uint8 = 1 << 0
	ModeFlagSafetyArmed       uint8 = 1 << 7
)

// MAV_CMD command codes used by this station.
const (
	CmdNavWaypoint       uint16 = 16
	CmdNavLoiterTime     uint16 = 19
	CmdNavReturnToLaunch uint16 = 20
	CmdNavLand           uint16 = 21
	CmdNavTakeoff        uint16 = 22
	CmdMissionStart      uint16 = 300
	CmdComponentArm      uint16 = 400
)

// FrameGlobalRelativeAlt is MAV_FRAME_GLOBAL_RELATIVE_ALT: altitude in
// meters above the home position.
const FrameGlobalRelativeAlt uint8 = 3

// MissionTypeMission selects the main mission (not geofence or rally).
const MissionTypeMission uint8 = 0

// MISSION_ACK result codes.
const (
	MissionAccepted uint8 = 0
	MissionError    uint8 = 1
)

// ParamTypeReal32 is MAV_PARAM_TYPE_REAL32; all parameter writes go out as
// 32-bit floats, as the protocol requires for ArduPilot.
const ParamTypeReal32 uint8 = 9

// ParamIDMaxLen is the wire limit for a parameter name.
const ParamIDMaxLen = 16

// Heartbeat signals the sender is alive and carries mode/armed state.
type Heartbeat struct {
	VehicleType  uint8
	Autopilot    uint8
	BaseMode     uint8
	CustomMode   uint32
	SystemStatus uint8 // MAV_STATE
}

func (Heartbeat) Type() Type { return TypeHeartbeat }

// Armed reports whether the safety-armed flag is set in base mode.
func (h Heartbeat) Armed() bool { return h.BaseMode&ModeFlagSafetyArmed != 0 }

// GlobalPositionInt is the fused global position estimate. Lat/Lon are
// degrees scaled by 1e7, Alt is millimeters AMSL, Hdg is centidegrees.
type GlobalPositionInt struct {
	TimeBootMs  uint32
	Lat         int32
	Lon         int32
	Alt         int32
	RelativeAlt int32
	Hdg         uint16
}

func (GlobalPositionInt) Type() Type { return TypeGlobalPositionInt }

// VfrHud carries HUD-style metrics; speeds already in m/s.
type VfrHud struct {
	Airspeed    float32
	Groundspeed float32
	Heading     int16
	Throttle    uint16
	Alt         float32
	Climb       float32
}

func (VfrHud) Type() Type { return TypeVfrHud }

// SysStatus carries onboard health. VoltageBattery is millivolts,
// BatteryRemaining is percent with -1 meaning unknown.
type SysStatus struct {
	VoltageBattery   uint16
	CurrentBattery   int16
	BatteryRemaining int8
}

func (SysStatus) Type() Type { return TypeSysStatus }

// MissionClearAll asks the vehicle to drop its stored mission.
type MissionClearAll struct {
	Target      Identity
	MissionType uint8
}

func (MissionClearAll) Type() Type { return TypeMissionClearAll }

// MissionCount announces how many items the following transfer holds.
type MissionCount struct {
	Target      Identity
	Count       uint16
	MissionType uint8
}

func (MissionCount) Type() Type { return TypeMissionCount }

// MissionRequest is the vehicle asking for item Seq. Target addresses the
// station the vehicle expects the item from.
type MissionRequest struct {
	Target Identity
	Seq    uint16
}

func (MissionRequest) Type() Type { return TypeMissionRequest }

// MissionItem is one navigation instruction of a mission transfer.
type MissionItem struct {
	Target       Identity
	Seq          uint16
	Frame        uint8
	Command      uint16
	Current      uint8
	Autocontinue uint8
	Param1       float32
	Param2       float32
	Param3       float32
	Param4       float32
	X            float32 // latitude, degrees
	Y            float32 // longitude, degrees
	Z            float32 // altitude, meters
	MissionType  uint8
}

func (MissionItem) Type() Type { return TypeMissionItem }

// MissionAck terminates a mission operation (clear or upload).
type MissionAck struct {
	Target      Identity
	Result      uint8
	MissionType uint8
}

func (MissionAck) Type() Type { return TypeMissionAck }

// CommandLong is a generic fire-and-forget vehicle command.
type CommandLong struct {
	Target       Identity
	Command      uint16
	Confirmation uint8
	Param1       float32
	Param2       float32
	Param3       float32
	Param4       float32
	Param5       float32
	Param6       float32
	Param7       float32
}

func (CommandLong) Type() Type { return TypeCommandLong }

// SetMode switches the vehicle flight mode via custom mode number.
type SetMode struct {
	TargetSystem uint8
	BaseMode     uint8
	CustomMode   uint32
}

func (SetMode) Type() Type { return TypeSetMode }

// ParamRequestList asks the vehicle to emit its full parameter table.
type ParamRequestList struct {
	Target Identity
}

func (ParamRequestList) Type() Type { return TypeParamRequestList }

// ParamValue is one onboard parameter, with its position in the table.
type ParamValue struct {
	ID    string
	Value float32
	Kind  uint8
	Count uint16
	Index uint16
}

func (ParamValue) Type() Type { return TypeParamValue }

// ParamSet writes a single parameter; no confirmation is carried.
type ParamSet struct {
	Target Identity
	ID     string
	Value  float32
	Kind   uint8
}

func (ParamSet) Type() Type { return TypeParamSet }

// SystemStatusName maps a MAV_STATE code to its name, "UNKNOWN" otherwise.
func SystemStatusName(state uint8) string {
	switch state {
	case 0:
		return "UNINIT"
	case 1:
		return "BOOT"
	case 2:
		return "CALIBRATING"
	case 3:
		return "STANDBY"
	case 4:
		return "ACTIVE"
	case 5:
		return "CRITICAL"
	case 6:
		return "EMERGENCY"
	case 7:
		return "POWEROFF"
	case 8:
		return "TERMINATION"
	default:
		return "UNKNOWN"
	}
}
