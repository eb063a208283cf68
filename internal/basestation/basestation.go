// Package basestation renders aircraft updates as SBS BaseStation lines.
package basestation

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"decode1090/internal/adsb"
	"decode1090/internal/tracker"
)

// BaseStation message types
const (
	MessageSEL = "SEL" // Selection Change
	MessageID  = "ID"  // New ID
	MessageAIR = "AIR" // New Aircraft
	MessageSTA = "STA" // Status Change
	MessageCLK = "CLK" // Click
	MessageMSG = "MSG" // Transmission
)

// BaseStation transmission types
const (
	TransmissionIDCategory     = 1 // Extended Squitter Aircraft ID and Category
	TransmissionSurface        = 2 // Extended Squitter Surface Position
	TransmissionAirborne       = 3 // Extended Squitter Airborne Position
	TransmissionVelocity       = 4 // Extended Squitter Airborne Velocity
	TransmissionSurveillance   = 5 // Surveillance Alt, Squawk change
	TransmissionSurveillanceID = 6 // Surveillance ID change
	TransmissionAirToAir       = 7 // Air-to-Air Message
	TransmissionAllCall        = 8 // All Call Reply
)

// Message is one BaseStation line
type Message struct {
	MessageType      string
	TransmissionType int
	SessionID        int
	AircraftID       int
	HexIdent         string
	FlightID         int
	Generated        time.Time
	Logged           time.Time
	Callsign         string
	Altitude         string
	GroundSpeed      string
	Track            string
	Latitude         string
	Longitude        string
	VerticalRate     string
	Squawk           string
	Alert            string
	Emergency        string
	SPI              string
	IsOnGround       string
}

// String formats the message as CSV
func (m *Message) String() string {
	fields := []string{
		m.MessageType,
		strconv.Itoa(m.TransmissionType),
		strconv.Itoa(m.SessionID),
		strconv.Itoa(m.AircraftID),
		m.HexIdent,
		strconv.Itoa(m.FlightID),
		m.Generated.Format("2006/01/02"),
		m.Generated.Format("15:04:05.000"),
		m.Logged.Format("2006/01/02"),
		m.Logged.Format("15:04:05.000"),
		m.Callsign,
		m.Altitude,
		m.GroundSpeed,
		m.Track,
		m.Latitude,
		m.Longitude,
		m.VerticalRate,
		m.Squawk,
		m.Alert,
		m.Emergency,
		m.SPI,
		m.IsOnGround,
	}
	return strings.Join(fields, ",")
}

// Convert builds the line for a fragment using the merged snapshot for the
// values it carries. It returns nil for message kinds with no BaseStation
// equivalent.
func Convert(frag *adsb.Fragment, snap tracker.Snapshot, logged time.Time) *Message {
	msg := &Message{
		MessageType: MessageMSG,
		SessionID:   1,
		AircraftID:  1,
		FlightID:    1,
		HexIdent:    frag.ICAO.String(),
		Generated:   frag.Timestamp,
		Logged:      logged,
	}

	flags := false
	switch frag.Kind {
	case adsb.KindIdentification:
		msg.TransmissionType = TransmissionIDCategory
		msg.Callsign = deref(snap.Callsign)

	case adsb.KindSurfacePosition:
		msg.TransmissionType = TransmissionSurface
		msg.GroundSpeed = formatFloat(snap.GroundSpeed, 0)
		msg.Track = formatFloat(snap.Track, 0)
		msg.Latitude = formatFloat(snap.Latitude, 5)
		msg.Longitude = formatFloat(snap.Longitude, 5)
		msg.IsOnGround = flag(snap.OnGround)

	case adsb.KindAirbornePosition:
		msg.TransmissionType = TransmissionAirborne
		msg.Altitude = formatInt(snap.AltBaro)
		msg.Latitude = formatFloat(snap.Latitude, 5)
		msg.Longitude = formatFloat(snap.Longitude, 5)
		flags = true

	case adsb.KindVelocity:
		msg.TransmissionType = TransmissionVelocity
		msg.GroundSpeed = formatFloat(snap.GroundSpeed, 0)
		msg.Track = formatFloat(snap.Track, 0)
		if snap.BaroRate != nil {
			msg.VerticalRate = formatInt(snap.BaroRate)
		} else {
			msg.VerticalRate = formatInt(snap.GeomRate)
		}

	case adsb.KindSurveillanceAlt:
		msg.Altitude = formatInt(snap.AltBaro)
		if frag.DF == adsb.DFShortAirAir || frag.DF == adsb.DFLongAirAir {
			msg.TransmissionType = TransmissionAirToAir
			msg.IsOnGround = flag(snap.OnGround)
		} else {
			msg.TransmissionType = TransmissionSurveillance
			flags = true
		}

	case adsb.KindSurveillanceID:
		msg.TransmissionType = TransmissionSurveillanceID
		msg.Altitude = formatInt(snap.AltBaro)
		msg.Squawk = deref(snap.Squawk)
		flags = true

	case adsb.KindAllCall:
		msg.TransmissionType = TransmissionAllCall
		msg.IsOnGround = flag(snap.OnGround)

	default:
		return nil
	}

	if flags {
		msg.Alert = flag(snap.Alert)
		msg.Emergency = emergencyFlag(snap)
		msg.SPI = flag(snap.SPI)
		msg.IsOnGround = flag(snap.OnGround)
	}
	return msg
}

// Writer writes BaseStation lines to an output stream
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	logger *logrus.Logger

	Now func() time.Time
}

// NewWriter creates a writer on out
func NewWriter(out io.Writer, logger *logrus.Logger) *Writer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Writer{out: out, logger: logger, Now: time.Now}
}

// Write emits the line for one applied fragment. Fragments with no
// BaseStation equivalent are skipped.
func (w *Writer) Write(frag *adsb.Fragment, snap tracker.Snapshot) error {
	if frag == nil {
		return errors.New("fragment cannot be nil")
	}

	msg := Convert(frag, snap, w.Now())
	if msg == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.out, msg.String()+"\n"); err != nil {
		return fmt.Errorf("failed to write basestation message: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

// flag renders a boolean the BaseStation way: -1 for set, 0 for clear
func flag(v *bool) string {
	switch {
	case v == nil:
		return ""
	case *v:
		return "-1"
	default:
		return "0"
	}
}

func emergencyFlag(snap tracker.Snapshot) string {
	if snap.Emergency != nil && *snap.Emergency != adsb.EmergencyNone.String() {
		return "-1"
	}
	if snap.Squawk == nil {
		return ""
	}
	switch *snap.Squawk {
	case "7500", "7600", "7700":
		return "-1"
	}
	return "0"
}
