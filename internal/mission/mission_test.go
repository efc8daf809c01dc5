package mission

import (
	"errors"
	"testing"
)

func TestMissionEdits(t *testing.T) {
	m := NewMission("survey")
	if m.ID == "" {
		t.Error("mission created without an id")
	}

	a := NewWaypoint(-33.85, 151.21, 30)
	b := NewWaypoint(-33.86, 151.22, 30)
	c := NewWaypoint(-33.87, 151.23, 30)

	if got := m.Add(a); got != 0 {
		t.Errorf("Add() = %d, want 0", got)
	}
	m.Add(c)

	if err := m.InsertAt(1, b); err != nil {
		t.Fatalf("InsertAt() = %v", err)
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
	if m.Waypoints[1].Latitude != b.Latitude {
		t.Errorf("waypoint 1 latitude = %v, want %v", m.Waypoints[1].Latitude, b.Latitude)
	}

	if err := m.RemoveAt(0); err != nil {
		t.Fatalf("RemoveAt() = %v", err)
	}
	if m.Len() != 2 || m.Waypoints[0].Latitude != b.Latitude {
		t.Errorf("after RemoveAt(0): len %d, first latitude %v", m.Len(), m.Waypoints[0].Latitude)
	}

	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", m.Len())
	}
}

func TestMissionEditRangeErrors(t *testing.T) {
	m := NewMission("short")
	m.Add(NewWaypoint(0, 0, 10))

	if err := m.InsertAt(-1, Waypoint{}); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("InsertAt(-1) = %v, want ErrIndexOutOfRange", err)
	}
	if err := m.InsertAt(2, Waypoint{}); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("InsertAt(2) = %v, want ErrIndexOutOfRange", err)
	}
	if err := m.InsertAt(1, Waypoint{}); err != nil {
		t.Errorf("InsertAt(len) = %v, appending insert must work", err)
	}
	if err := m.RemoveAt(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("RemoveAt(2) = %v, want ErrIndexOutOfRange", err)
	}
}

func TestMissionDefaultName(t *testing.T) {
	m := NewMission("")
	if m.Name == "" {
		t.Error("empty name not replaced with a generated one")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}

	m := NewMission("coastal-survey")
	m.Add(NewWaypoint(-33.8568, 151.2153, 30))
	wp := NewWaypoint(-33.8600, 151.2100, 45)
	wp.Type = TypeLoiterTime
	wp.HoldTime = 20
	m.Add(wp)

	if _, err := store.Save(m, ""); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	loaded, err := store.Load("coastal-survey")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if loaded.ID != m.ID || loaded.Name != m.Name {
		t.Errorf("loaded %q/%q, want %q/%q", loaded.ID, loaded.Name, m.ID, m.Name)
	}
	if loaded.Len() != 2 {
		t.Fatalf("loaded %d waypoints, want 2", loaded.Len())
	}
	if loaded.Waypoints[1].Type != TypeLoiterTime || loaded.Waypoints[1].HoldTime != 20 {
		t.Errorf("waypoint 1 = %+v, loiter hold time lost", loaded.Waypoints[1])
	}
}

func TestStoreList(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}

	for _, name := range []string{"alpha", "bravo"} {
		if _, err := store.Save(NewMission(name), name); err != nil {
			t.Fatalf("Save(%q) = %v", name, err)
		}
	}

	names, err := store.List()
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "bravo" {
		t.Errorf("List() = %v, want [alpha bravo]", names)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}

	if _, err := store.Load("nope"); err == nil {
		t.Error("Load() of a missing mission succeeded")
	}
}
