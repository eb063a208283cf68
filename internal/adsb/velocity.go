package adsb

import "math"

// decodeVelocity handles TC19. Subtypes 1/2 carry ground velocity components,
// 3/4 carry airspeed and heading; subtypes 2 and 4 are supersonic.
func decodeVelocity(frag *Fragment, data []byte) error {
	frag.Kind = KindVelocity

	st := uint8(bit(data, 37, 3))
	if st < 1 || st > 4 {
		return &FieldError{Field: "velocity subtype", Value: uint64(st)}
	}

	v := &Velocity{Subtype: st}
	scale := 1.0
	if st == 2 || st == 4 {
		scale = 4
	}

	switch st {
	case 1, 2:
		ewRaw := bit(data, 46, 10)
		nsRaw := bit(data, 57, 10)
		if ewRaw != 0 && nsRaw != 0 {
			ew := float64(ewRaw-1) * scale
			ns := float64(nsRaw-1) * scale
			if bit(data, 45, 1) == 1 {
				ew = -ew
			}
			if bit(data, 56, 1) == 1 {
				ns = -ns
			}

			track := math.Atan2(ew, ns) * 180 / math.Pi
			if track < 0 {
				track += 360
			}
			v.GroundSpeed = ptr(math.Hypot(ew, ns))
			v.Track = ptr(track)
		}

	case 3, 4:
		if bit(data, 45, 1) == 1 {
			v.Heading = ptr(float64(bit(data, 46, 10)) * 360.0 / 1024.0)
		}
		if raw := bit(data, 57, 10); raw != 0 {
			v.Airspeed = ptr(float64(raw-1) * scale)
		}
		if bit(data, 56, 1) == 1 {
			v.AirspeedType = TAS
		}
	}

	if bit(data, 67, 1) == 1 {
		v.VerticalRateSource = SourceBaro
	} else {
		v.VerticalRateSource = SourceGNSS
	}
	if raw := bit(data, 69, 9); raw != 0 {
		rate := int(raw-1) * 64
		if bit(data, 68, 1) == 1 {
			rate = -rate
		}
		v.VerticalRate = ptr(rate)
	}

	if raw := bit(data, 81, 7); raw != 0 {
		diff := int(raw-1) * 25
		if bit(data, 80, 1) == 1 {
			diff = -diff
		}
		v.GNSSBaroDiff = ptr(diff)
	}

	frag.Velocity = v
	return nil
}
