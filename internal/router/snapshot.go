package router

import (
	"time"

	"github.com/srg/g1ctl/internal/protocol"
	"github.com/srg/g1ctl/internal/transport"
)

// FlagSourceDevice marks a flag set by a state change reported by the
// glasses; FlagSourceInferred marks one derived from interaction patterns.
const (
	FlagSourceDevice   = "device"
	FlagSourceInferred = "inferred"
)

// Entry records the most recent state-change observed in one category.
type Entry struct {
	Code  byte      `json:"code"`
	Name  string    `json:"name"`
	Label string    `json:"label"`
	At    time.Time `json:"at"`
}

// SideState holds the latest entry per category for a single earpiece.
type SideState struct {
	Physical    *Entry `json:"physical,omitempty"`
	Battery     *Entry `json:"battery,omitempty"`
	Device      *Entry `json:"device,omitempty"`
	Interaction *Entry `json:"interaction,omitempty"`
}

// Flag is a boolean device attribute together with how it was determined.
type Flag struct {
	Enabled bool   `json:"enabled"`
	Source  string `json:"source,omitempty"`
}

// Snapshot is a point-in-time view of the device state accumulated from
// notifications. It is a value copy; callers may retain it freely.
type Snapshot struct {
	Left          SideState `json:"left"`
	Right         SideState `json:"right"`
	SilentMode    Flag      `json:"silent_mode"`
	AssistantMode Flag      `json:"assistant_mode"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

func (s *SideState) clone() SideState {
	out := SideState{}
	if s.Physical != nil {
		e := *s.Physical
		out.Physical = &e
	}
	if s.Battery != nil {
		e := *s.Battery
		out.Battery = &e
	}
	if s.Device != nil {
		e := *s.Device
		out.Device = &e
	}
	if s.Interaction != nil {
		e := *s.Interaction
		out.Interaction = &e
	}
	return out
}

func (s *SideState) set(cat protocol.Category, e *Entry) {
	switch cat {
	case protocol.CategoryPhysical:
		s.Physical = e
	case protocol.CategoryBattery:
		s.Battery = e
	case protocol.CategoryDevice:
		s.Device = e
	case protocol.CategoryInteraction:
		s.Interaction = e
	}
}

func (s *Snapshot) side(side transport.Side) *SideState {
	if side == transport.Right {
		return &s.Right
	}
	return &s.Left
}
