// Package mission holds waypoint missions, their on-disk store and the
// upload handshake that transfers a mission to the vehicle.
package mission

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Waypoint kinds. Each maps to a distinct navigation command on the wire.
const (
	TypeWaypoint       = "WAYPOINT"
	TypeTakeoff        = "TAKEOFF"
	TypeLand           = "LAND"
	TypeReturnToLaunch = "RETURN_TO_LAUNCH"
	TypeLoiterTime     = "LOITER_TIME"
)

// ErrIndexOutOfRange is returned by positional plan edits with a bad index.
var ErrIndexOutOfRange = errors.New("waypoint index out of range")

// Waypoint is one navigation instruction. It is a plain value; construct it
// and hand it over, it is never mutated by this package.
type Waypoint struct {
	Latitude     float64 `json:"latitude"`     // degrees
	Longitude    float64 `json:"longitude"`    // degrees
	Altitude     float64 `json:"altitude"`     // meters above reference
	Speed        float64 `json:"speed"`        // m/s, 0 = vehicle default
	HoldTime     int     `json:"holdTime"`     // seconds
	AcceptRadius float64 `json:"acceptRadius"` // meters
	PassRadius   float64 `json:"passRadius"`   // meters
	YawAngle     float64 `json:"yawAngle"`     // degrees
	Type         string  `json:"waypointType"`
	Autocontinue bool    `json:"autocontinue"`
}

// NewWaypoint returns a waypoint at the given position with the defaults
// the planner historically used.
func NewWaypoint(lat, lon, alt float64) Waypoint {
	return Waypoint{
		Latitude:     lat,
		Longitude:    lon,
		Altitude:     alt,
		AcceptRadius: 5.0,
		PassRadius:   2.0,
		Type:         TypeWaypoint,
		Autocontinue: true,
	}
}

// Mission is an ordered waypoint sequence with a name and creation time.
// The caller owns it exclusively until it is handed to an Uploader.
type Mission struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Created   time.Time  `json:"created"`
	Waypoints []Waypoint `json:"waypoints"`
}

// NewMission creates an empty named mission. An empty name gets a
// timestamp-derived one.
func NewMission(name string) *Mission {
	now := time.Now().UTC()
	if name == "" {
		name = fmt.Sprintf("mission_%d", now.Unix())
	}
	return &Mission{
		ID:      uuid.NewString(),
		Name:    name,
		Created: now,
	}
}

// Add appends a waypoint and returns its index.
func (m *Mission) Add(wp Waypoint) int {
	m.Waypoints = append(m.Waypoints, wp)
	return len(m.Waypoints) - 1
}

// InsertAt inserts a waypoint at index i, 0 <= i <= Len.
func (m *Mission) InsertAt(i int, wp Waypoint) error {
	if i < 0 || i > len(m.Waypoints) {
		return fmt.Errorf("insert at %d of %d: %w", i, len(m.Waypoints), ErrIndexOutOfRange)
	}
	m.Waypoints = append(m.Waypoints, Waypoint{})
	copy(m.Waypoints[i+1:], m.Waypoints[i:])
	m.Waypoints[i] = wp
	return nil
}

// RemoveAt deletes the waypoint at index i.
func (m *Mission) RemoveAt(i int) error {
	if i < 0 || i >= len(m.Waypoints) {
		return fmt.Errorf("remove at %d of %d: %w", i, len(m.Waypoints), ErrIndexOutOfRange)
	}
	m.Waypoints = append(m.Waypoints[:i], m.Waypoints[i+1:]...)
	return nil
}

// Clear drops all waypoints.
func (m *Mission) Clear() {
	m.Waypoints = nil
}

// Len returns the number of waypoints.
func (m *Mission) Len() int { return len(m.Waypoints) }
