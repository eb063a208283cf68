package adsb

// decodeAircraftStatus handles TC28. Subtype 1 carries the emergency state
// and Mode A code; subtype 2 is a TCAS resolution advisory broadcast.
func decodeAircraftStatus(frag *Fragment, data []byte) error {
	frag.Kind = KindAircraftStatus

	switch st := bit(data, 37, 3); st {
	case 1:
		frag.Emergency = ptr(EmergencyState(bit(data, 40, 3)))
		frag.Squawk = ptr(decodeSquawk(bit(data, 43, 13)))
		return nil
	case 2:
		return nil
	default:
		return &FieldError{Field: "aircraft status subtype", Value: st}
	}
}

// decodeOperationalStatus handles TC31: subtype 0 is airborne, 1 surface.
// Version 0 transmitters carry no integrity fields; GVA, SDA, the SIL type
// and NIC supplement C arrived with version 2.
func decodeOperationalStatus(frag *Fragment, data []byte) error {
	frag.Kind = KindOperationalStatus

	st := bit(data, 37, 3)
	if st > 1 {
		return &FieldError{Field: "operational status subtype", Value: st}
	}
	surface := st == 1

	version := uint8(bit(data, 72, 3))
	frag.Version = ptr(version)
	frag.OnGround = ptr(surface)
	if version == 0 {
		return nil
	}

	in := &Integrity{
		NICA: ptr(uint8(bit(data, 75, 1))),
		NACp: ptr(uint8(bit(data, 76, 4))),
		SIL:  ptr(uint8(bit(data, 82, 2))),
	}
	if !surface {
		in.NICBaro = ptr(uint8(bit(data, 84, 1)))
	}
	if version >= 2 {
		in.SILType = ptr(silType(bit(data, 86, 1)))
		in.SDA = ptr(uint8(bit(data, 62, 2)))
		if surface {
			in.NICC = ptr(uint8(bit(data, 51, 1)))
		} else {
			in.GVA = ptr(uint8(bit(data, 80, 2)))
		}
	}
	frag.Integrity = in
	return nil
}

// flightStatus decodes the FS field of DF4/5/20/21.
func flightStatus(frag *Fragment, data []byte) error {
	fs := bit(data, 5, 3)
	switch fs {
	case 0:
		frag.OnGround = ptr(false)
	case 1:
		frag.OnGround = ptr(true)
	case 2:
		frag.OnGround = ptr(false)
		frag.Alert = ptr(true)
	case 3:
		frag.OnGround = ptr(true)
		frag.Alert = ptr(true)
	case 4:
		frag.Alert = ptr(true)
		frag.SPI = ptr(true)
	case 5:
		frag.SPI = ptr(true)
	default:
		return &FieldError{Field: "flight status", Value: fs}
	}

	if fs < 4 {
		frag.Alert = ptr(fs >= 2)
		frag.SPI = ptr(false)
	} else if fs == 5 {
		frag.Alert = ptr(false)
	}
	return nil
}
