package adsb

import "strings"

// Integrity carries the accuracy and integrity parameters broadcast in
// operational status, target state and position messages. Only the values a
// message carries are set.
type Integrity struct {
	NACp    *uint8
	NICBaro *uint8
	SIL     *uint8
	SILType *string // "perhour" or "persample"
	SDA     *uint8
	GVA     *uint8

	// NIC supplements. A comes from operational status, B from airborne
	// position messages and C from surface operational status.
	NICA *uint8
	NICB *uint8
	NICC *uint8
}

// AutopilotModes are the automation modes of a target state message
type AutopilotModes struct {
	Autopilot    bool
	VNAV         bool
	AltitudeHold bool
	Approach     bool
	LNAV         bool
	TCAS         bool
}

// Names lists the engaged modes
func (m AutopilotModes) Names() []string {
	names := []string{}
	for _, mode := range []struct {
		on   bool
		name string
	}{
		{m.Autopilot, "autopilot"},
		{m.VNAV, "vnav"},
		{m.AltitudeHold, "althold"},
		{m.Approach, "approach"},
		{m.LNAV, "lnav"},
		{m.TCAS, "tcas"},
	} {
		if mode.on {
			names = append(names, mode.name)
		}
	}
	return names
}

// TargetState holds the selected values of a target state and status
// message.
type TargetState struct {
	SelectedAltitude *int // ft
	FMS              bool // SelectedAltitude comes from the FMS rather than the MCP/FCU
	QNH              *float64
	SelectedHeading  *float64
	Modes            *AutopilotModes // nil unless the mode bits are valid
}

func silType(supplement uint64) string {
	if supplement == 1 {
		return "persample"
	}
	return "perhour"
}

// decodeTargetState handles TC29. Subtype 1 is the version 2 layout; the
// version 1 layout (subtype 0) is accepted without fields.
func decodeTargetState(frag *Fragment, data []byte) error {
	frag.Kind = KindTargetState

	switch st := bit(data, 37, 2); st {
	case 0:
		return nil
	case 1:
	default:
		return &FieldError{Field: "target state subtype", Value: st}
	}

	ts := &TargetState{}
	if alt := bit(data, 41, 11); alt != 0 {
		ts.SelectedAltitude = ptr(int(alt-1) * 32)
		ts.FMS = bit(data, 40, 1) == 1
	}
	if qnh := bit(data, 52, 9); qnh != 0 {
		ts.QNH = ptr(800 + float64(qnh-1)*0.8)
	}
	if bit(data, 61, 1) == 1 {
		ts.SelectedHeading = ptr(float64(bit(data, 62, 9)) * 180 / 256)
	}
	if bit(data, 78, 1) == 1 {
		ts.Modes = &AutopilotModes{
			Autopilot:    bit(data, 79, 1) == 1,
			VNAV:         bit(data, 80, 1) == 1,
			AltitudeHold: bit(data, 81, 1) == 1,
			Approach:     bit(data, 83, 1) == 1,
			TCAS:         bit(data, 84, 1) == 1,
			LNAV:         bit(data, 85, 1) == 1,
		}
	}
	frag.TargetState = ts

	frag.Integrity = &Integrity{
		NACp:    ptr(uint8(bit(data, 71, 4))),
		NICBaro: ptr(uint8(bit(data, 75, 1))),
		SIL:     ptr(uint8(bit(data, 76, 2))),
		SILType: ptr(silType(bit(data, 39, 1))),
	}
	return nil
}

// decodeCommB recognises a BDS 2,0 aircraft identification in the MB field
// of a DF20/21 reply. Other registers are not inferred.
func decodeCommB(frag *Fragment, data []byte) {
	if bit(data, 32, 8) != 0x20 {
		return
	}
	callsign := decodeCallsign(data)
	if callsign == "" || strings.ContainsRune(callsign, '#') {
		return
	}
	frag.Callsign = ptr(callsign)
}

type containment struct {
	nic    uint8
	radius float64 // metres, 0 when unknown
}

func (c containment) rc() *float64 {
	if c.radius == 0 {
		return nil
	}
	return ptr(c.radius)
}

// position type codes whose NIC needs no supplement
var fixedContainment = map[uint8]containment{
	5:  {11, 7.5},
	6:  {10, 25},
	9:  {11, 7.5},
	10: {10, 25},
	12: {7, 370.4},
	14: {5, 1852},
	15: {4, 3704},
	17: {1, 37040},
	18: {0, 0},
	20: {11, 7.5},
	21: {10, 25},
	22: {0, 0},
}

// keyed by type code, then NIC supplement A<<1 | B (airborne) or C (surface)
var supplementedContainment = map[uint8]map[uint8]containment{
	7:  {0b00: {8, 185.2}, 0b10: {9, 75}},
	8:  {0b00: {0, 0}, 0b01: {6, 1111.2}, 0b10: {6, 555.6}, 0b11: {7, 370.4}},
	11: {0b00: {8, 185.2}, 0b11: {9, 75}},
	13: {0b00: {6, 926}, 0b01: {6, 555.6}, 0b11: {6, 1111.2}},
	16: {0b00: {2, 14816}, 0b11: {3, 7408}},
}

// SurfaceTypeCode reports whether tc is a surface position type code
func SurfaceTypeCode(tc uint8) bool {
	return tc >= 5 && tc <= 8
}

// NavigationIntegrity derives the navigation integrity category and the
// radius of containment in metres from a position type code and the NIC
// supplements last received. sup is supplement B for airborne type codes
// and C for surface ones. rc is nil when the containment is unknown. ok is
// false when a needed supplement is missing or the combination is undefined.
func NavigationIntegrity(tc uint8, a, sup *uint8) (nic uint8, rc *float64, ok bool) {
	if c, found := fixedContainment[tc]; found {
		return c.nic, c.rc(), true
	}

	table, found := supplementedContainment[tc]
	if !found || a == nil || sup == nil {
		return 0, nil, false
	}
	c, found := table[(*a&1)<<1|*sup&1]
	if !found {
		return 0, nil, false
	}
	return c.nic, c.rc(), true
}
