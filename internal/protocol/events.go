package protocol

import "fmt"

// Category classifies a state-change code. Numeric codes are known to repeat
// across tables on different firmware generations (0x09 is both "battery
// fully charged" and a device state), so classification is resolved by a
// fixed priority order rather than by guessing the firmware revision:
// Physical, then Battery, then Device, then Interaction. First match wins.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryPhysical
	CategoryBattery
	CategoryDevice
	CategoryInteraction
)

func (c Category) String() string {
	switch c {
	case CategoryPhysical:
		return "physical"
	case CategoryBattery:
		return "battery"
	case CategoryDevice:
		return "device"
	case CategoryInteraction:
		return "interaction"
	default:
		return "unknown"
	}
}

// EventInfo names a state-change code: a stable system name plus a
// human-readable label.
type EventInfo struct {
	Name  string
	Label string
}

// Physical wear states.
var physicalStates = map[byte]EventInfo{
	0x06: {"WEARING", "Wearing"},
	0x07: {"TRANSITIONING", "Transitioning"},
	0x08: {"CRADLE", "In the cradle"},
}

// Battery states. 0x09 overlaps with the device table; battery wins by
// priority order.
var batteryStates = map[byte]EventInfo{
	0x09: {"BATTERY_CHARGED", "Battery fully charged"},
	0x0e: {"BATTERY_CHARGING", "Battery charging"},
}

// Device states, including connectivity. Several codes were only ever
// observed on the wire and have no documented meaning.
var deviceStates = map[byte]EventInfo{
	0x09: {"DEVICE_UNKNOWN_09", "Device unknown 09"},
	0x0a: {"DEVICE_UNKNOWN_0A", "Device unknown 0a"},
	0x0f: {"DEVICE_UNKNOWN_0F", "Device unknown 0f"},
	0x11: {"CONNECTED", "Successfully connected"},
	0x12: {"DEVICE_UNKNOWN_12", "Device unknown 12"},
	0x14: {"DEVICE_UNKNOWN_14", "Device unknown 14"},
	0x15: {"DEVICE_UNKNOWN_15", "Device unknown 15"},
}

// Interaction (touch) events.
var interactions = map[byte]EventInfo{
	0x00: {"DOUBLE_TAP", "Double tap"},
	0x01: {"SINGLE_TAP", "Single tap"},
	0x02: {"OPEN_DASHBOARD_START", "Open dashboard start"},
	0x03: {"CLOSE_DASHBOARD_START", "Close dashboard start"},
	0x04: {"SILENT_MODE_ON", "Silent mode enabled"},
	0x05: {"SILENT_MODE_OFF", "Silent mode disabled"},
	0x17: {"LONG_PRESS", "Long press"},
	0x1e: {"OPEN_DASHBOARD", "Open dashboard confirmed"},
	0x1f: {"CLOSE_DASHBOARD", "Close dashboard confirmed"},
}

// Codes seen on the wire whose purpose is unknown. Kept named so logs stay
// stable across firmware updates.
var unknownCodes = map[byte]EventInfo{
	0x0b: {"UNKNOWN_0B", "Unknown (0x0b)"},
	0x0c: {"UNKNOWN_0C", "Unknown (0x0c)"},
	0x0d: {"UNKNOWN_0D", "Unknown (0x0d)"},
	0x10: {"UNKNOWN_10", "Unknown (0x10)"},
	0x13: {"UNKNOWN_13", "Unknown (0x13)"},
	0x16: {"UNKNOWN_16", "Unknown (0x16)"},
	0x18: {"UNKNOWN_18", "Unknown (0x18)"},
	0x19: {"UNKNOWN_19", "Unknown (0x19)"},
	0x1a: {"UNKNOWN_1A", "Unknown (0x1a)"},
	0x1b: {"UNKNOWN_1B", "Unknown (0x1b)"},
	0x1c: {"UNKNOWN_1C", "Unknown (0x1c)"},
	0x1d: {"UNKNOWN_1D", "Unknown (0x1d)"},
}

// Interaction codes with derived semantics.
const (
	InteractionDoubleTap     byte = 0x00
	InteractionSilentModeOn  byte = 0x04
	InteractionSilentModeOff byte = 0x05
	InteractionLongPress     byte = 0x17
)

// Classify resolves a state-change code to its category and event info using
// the fixed table priority. Recognized reports whether the code matched any
// table, including the named-unknown set; callers use it to decide whether a
// diagnostic is worth logging.
func Classify(code byte) (cat Category, info EventInfo, recognized bool) {
	if info, ok := physicalStates[code]; ok {
		return CategoryPhysical, info, true
	}
	if info, ok := batteryStates[code]; ok {
		return CategoryBattery, info, true
	}
	if info, ok := deviceStates[code]; ok {
		return CategoryDevice, info, true
	}
	if info, ok := interactions[code]; ok {
		return CategoryInteraction, info, true
	}
	if info, ok := unknownCodes[code]; ok {
		return CategoryUnknown, info, true
	}
	return CategoryUnknown, EventInfo{
		Name:  "UNRECOGNIZED",
		Label: fmt.Sprintf("Unrecognized (0x%02x)", code),
	}, false
}
