// Package platform is the boundary to the host automation platform:
// querying live device state, issuing device commands, and receiving
// state-change notifications. The core never talks to the network
// itself; it goes through these interfaces.
package platform

import (
	"context"
	"errors"
)

// RawState is a device's attribute map as the host platform reports it.
type RawState map[string]any

// ErrStateUnknown is returned when no live state has been observed yet
// for a device.
var ErrStateUnknown = errors.New("device state unknown")

// Platform queries and mutates real-world device state.
type Platform interface {
	// LiveState returns the current observed state of a device.
	LiveState(ctx context.Context, deviceID string) (RawState, error)

	// Apply issues a device command. May block on I/O.
	Apply(ctx context.Context, deviceID string, payload RawState) error
}

// StateChange is delivered on every observed live-state change.
type StateChange struct {
	DeviceID string
	Old      RawState
	New      RawState
}

// ChangeHandler consumes state-change notifications.
type ChangeHandler func(StateChange)
