package adsb

import "time"

// Kind classifies the content of a decoded frame
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAllCall
	KindSurveillanceAlt
	KindSurveillanceID
	KindIdentification
	KindSurfacePosition
	KindAirbornePosition
	KindVelocity
	KindAircraftStatus
	KindTargetState
	KindOperationalStatus
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindAllCall:           "all_call",
	KindSurveillanceAlt:   "surveillance_alt",
	KindSurveillanceID:    "surveillance_id",
	KindIdentification:    "identification",
	KindSurfacePosition:   "surface_position",
	KindAirbornePosition:  "airborne_position",
	KindVelocity:          "velocity",
	KindAircraftStatus:    "aircraft_status",
	KindTargetState:       "target_state",
	KindOperationalStatus: "operational_status",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// AltitudeSource distinguishes barometric from geometric measurements
type AltitudeSource uint8

const (
	SourceBaro AltitudeSource = iota
	SourceGNSS
)

func (s AltitudeSource) String() string {
	if s == SourceGNSS {
		return "gnss"
	}
	return "baro"
}

// Altitude in feet
type Altitude struct {
	Feet   int
	Source AltitudeSource
}

// AirspeedType is IAS or TAS
type AirspeedType uint8

const (
	IAS AirspeedType = iota
	TAS
)

// Velocity holds the fields of an airborne velocity message. Pointers are nil
// when the message marks the value as not available.
type Velocity struct {
	Subtype            uint8
	GroundSpeed        *float64 // knots
	Track              *float64 // degrees true
	Heading            *float64 // degrees magnetic
	Airspeed           *float64 // knots
	AirspeedType       AirspeedType
	VerticalRate       *int // ft/min
	VerticalRateSource AltitudeSource
	GNSSBaroDiff       *int // ft
}

// GroundMovement holds the speed and track of a surface position message
type GroundMovement struct {
	Speed *float64 // knots
	Track *float64 // degrees
}

// EmergencyState from the aircraft status message
type EmergencyState uint8

const (
	EmergencyNone EmergencyState = iota
	EmergencyGeneral
	EmergencyLifeguard
	EmergencyMinimumFuel
	EmergencyNoComms
	EmergencyUnlawful
	EmergencyDowned
	EmergencyReserved
)

var emergencyNames = [...]string{
	"none", "general", "lifeguard", "minfuel", "nordo", "unlawful", "downed", "reserved",
}

func (e EmergencyState) String() string {
	if int(e) < len(emergencyNames) {
		return emergencyNames[e]
	}
	return "reserved"
}

// Fragment is the partial aircraft record produced from one frame. Only the
// fields the frame carries are set.
type Fragment struct {
	ICAO          ICAO
	AddressSource AddressSource
	DF            DF
	TypeCode      uint8
	Kind          Kind
	Timestamp     time.Time
	Signal        float64

	Callsign  *string
	Category  *string
	Squawk    *string
	Altitude  *Altitude
	CPR       *CPRFrame
	OnGround  *bool
	Velocity  *Velocity
	Ground    *GroundMovement
	Emergency *EmergencyState
	Version   *uint8
	Alert     *bool
	SPI       *bool

	TargetState *TargetState
	Integrity   *Integrity

	// Errs joins MalformedField errors for fields left out of the fragment.
	Errs error
}

func ptr[T any](v T) *T {
	return &v
}
