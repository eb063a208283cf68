package adsb

import (
	"math"
	"time"
)

// CPRFrame is one compact position report as stored by the resolver
type CPRFrame struct {
	LatCPR    uint32
	LonCPR    uint32
	Odd       bool
	Surface   bool
	Timestamp time.Time
}

// cprFrame reads the F flag and both 17-bit CPR fields of a position message.
func cprFrame(data []byte, surface bool, ts time.Time) *CPRFrame {
	return &CPRFrame{
		Odd:       bit(data, 53, 1) == 1,
		LatCPR:    uint32(bit(data, 54, 17)),
		LonCPR:    uint32(bit(data, 71, 17)),
		Surface:   surface,
		Timestamp: ts,
	}
}

// decodeAirbornePosition handles TC 9-18 (barometric) and 20-22 (GNSS height).
func decodeAirbornePosition(frag *Fragment, data []byte) error {
	frag.Kind = KindAirbornePosition
	frag.CPR = cprFrame(data, false, frag.Timestamp)
	frag.OnGround = ptr(false)
	frag.Integrity = &Integrity{NICB: ptr(uint8(bit(data, 39, 1)))}

	raw := bit(data, 40, 12)
	if frag.TypeCode >= 20 {
		if raw != 0 {
			frag.Altitude = &Altitude{
				Feet:   int(math.Round(float64(raw) * feetPerMetre)),
				Source: SourceGNSS,
			}
		}
		return nil
	}

	feet, ok, err := decodeAC12(raw)
	if err != nil {
		return err
	}
	if ok {
		frag.Altitude = &Altitude{Feet: feet, Source: SourceBaro}
	}
	return nil
}

// decodeSurfacePosition handles TC 5-8.
func decodeSurfacePosition(frag *Fragment, data []byte) error {
	frag.Kind = KindSurfacePosition
	frag.CPR = cprFrame(data, true, frag.Timestamp)
	frag.OnGround = ptr(true)

	ground := &GroundMovement{}
	frag.Ground = ground

	if bit(data, 44, 1) == 1 {
		ground.Track = ptr(float64(bit(data, 45, 7)) * 360.0 / 128.0)
	}

	movement := bit(data, 37, 7)
	speed, ok, err := movementSpeed(movement)
	if err != nil {
		return err
	}
	if ok {
		ground.Speed = ptr(speed)
	}
	return nil
}

// movementSpeed converts the 7-bit surface movement code to knots. Code 0
// means no information.
func movementSpeed(m uint64) (float64, bool, error) {
	v := float64(m)
	switch {
	case m == 0:
		return 0, false, nil
	case m == 1:
		return 0, true, nil
	case m <= 8:
		return 0.125 + (v-2)*0.125, true, nil
	case m <= 12:
		return 1 + (v-9)*0.25, true, nil
	case m <= 38:
		return 2 + (v-13)*0.5, true, nil
	case m <= 93:
		return 15 + (v - 39), true, nil
	case m <= 108:
		return 70 + (v-94)*2, true, nil
	case m <= 123:
		return 100 + (v-109)*5, true, nil
	case m == 124:
		return 175, true, nil
	default:
		return 0, false, &FieldError{Field: "movement", Value: m}
	}
}
