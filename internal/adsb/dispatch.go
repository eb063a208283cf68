package adsb

import (
	"errors"
	"fmt"
)

// Decode validates a frame and extracts every field it carries.
//
// The returned error is non-nil only when the whole frame is rejected:
// a length that does not match the downlink format (ErrOutOfRange), a parity
// failure (ErrCRCMismatch) or a format the decoder does not handle
// (ErrUnsupportedFormat). Malformed sub-fields are left out of the fragment
// and reported through Fragment.Errs.
func Decode(f *Frame) (*Fragment, error) {
	n := len(f.Data)
	if n == ModeACLen {
		return nil, fmt.Errorf("mode A/C reply: %w", ErrUnsupportedFormat)
	}
	if n == 0 {
		return nil, fmt.Errorf("empty frame: %w", ErrOutOfRange)
	}

	df := f.DF()
	want := ShortFrameLen
	if df.Long() {
		want = LongFrameLen
	}
	if n != want {
		return nil, fmt.Errorf("DF%d frame of %d bytes, want %d: %w", df, n, want, ErrOutOfRange)
	}

	icao, src, err := Validate(f.Data)
	if err != nil {
		return nil, err
	}

	frag := &Fragment{
		ICAO:          icao,
		AddressSource: src,
		DF:            df,
		Timestamp:     f.Timestamp,
		Signal:        f.Signal,
	}
	data := f.Data

	var fieldErr error
	switch df {
	case DFShortAirAir, DFLongAirAir:
		frag.Kind = KindSurveillanceAlt
		frag.OnGround = ptr(bit(data, 5, 1) == 1)
		fieldErr = decodeAltitudeCode(frag, data)

	case DFSurveillanceAlt, DFCommBAlt:
		frag.Kind = KindSurveillanceAlt
		fieldErr = errors.Join(flightStatus(frag, data), decodeAltitudeCode(frag, data))
		if df == DFCommBAlt {
			decodeCommB(frag, data)
		}

	case DFSurveillanceID, DFCommBID:
		frag.Kind = KindSurveillanceID
		fieldErr = flightStatus(frag, data)
		frag.Squawk = ptr(decodeSquawk(bit(data, 19, 13)))
		if df == DFCommBID {
			decodeCommB(frag, data)
		}

	case DFAllCall:
		frag.Kind = KindAllCall
		switch bit(data, 5, 3) {
		case 4:
			frag.OnGround = ptr(true)
		case 5:
			frag.OnGround = ptr(false)
		}

	case DFExtSquitter, DFExtSquitterNT:
		if df == DFExtSquitterNT {
			// only the ADS-B control field values share the DF17 layout
			switch cf := bit(data, 5, 3); cf {
			case 0, 1, 6:
			default:
				return nil, &FormatError{DF: df, TC: f.TypeCode()}
			}
		}
		fieldErr = decodeExtendedSquitter(frag, data)
		if errors.Is(fieldErr, ErrUnsupportedFormat) {
			return nil, fieldErr
		}

	default:
		return nil, &FormatError{DF: df}
	}

	frag.Errs = fieldErr
	return frag, nil
}

// decodeExtendedSquitter routes a DF17/18 message on its type code.
func decodeExtendedSquitter(frag *Fragment, data []byte) error {
	tc := uint8(bit(data, 32, 5))
	frag.TypeCode = tc

	switch {
	case tc >= 1 && tc <= 4:
		decodeIdentification(frag, data)
		return nil
	case tc >= 5 && tc <= 8:
		return decodeSurfacePosition(frag, data)
	case tc >= 9 && tc <= 18, tc >= 20 && tc <= 22:
		return decodeAirbornePosition(frag, data)
	case tc == 19:
		return decodeVelocity(frag, data)
	case tc == 28:
		return decodeAircraftStatus(frag, data)
	case tc == 29:
		return decodeTargetState(frag, data)
	case tc == 31:
		return decodeOperationalStatus(frag, data)
	default:
		return &FormatError{DF: frag.DF, TC: tc}
	}
}

// decodeAltitudeCode reads the AC13 field of DF0/4/16/20.
func decodeAltitudeCode(frag *Fragment, data []byte) error {
	feet, ok, err := decodeAC13(bit(data, 19, 13))
	if err != nil {
		return err
	}
	if ok {
		frag.Altitude = &Altitude{Feet: feet, Source: SourceBaro}
	}
	return nil
}
