package adsb

import "fmt"

// MaxFieldWidth is the widest field Bits can extract.
const MaxFieldWidth = 56

// Bits returns the unsigned value of width bits starting at bit offset,
// most significant bit first.
func Bits(buf []byte, offset, width int) (uint64, error) {
	if width < 1 || width > MaxFieldWidth || offset < 0 || offset+width > len(buf)*8 {
		return 0, fmt.Errorf("%w: offset %d width %d in %d bits", ErrOutOfRange, offset, width, len(buf)*8)
	}

	first := offset / 8
	last := (offset + width - 1) / 8

	var acc uint64
	for i := first; i <= last; i++ {
		acc = acc<<8 | uint64(buf[i])
	}

	acc >>= uint((last+1)*8 - (offset + width))
	return acc & (1<<uint(width) - 1), nil
}

// SignedBits reads a two's complement field of the given width.
func SignedBits(buf []byte, offset, width int) (int64, error) {
	v, err := Bits(buf, offset, width)
	if err != nil {
		return 0, err
	}
	if v&(1<<uint(width-1)) != 0 {
		return int64(v) - int64(1)<<uint(width), nil
	}
	return int64(v), nil
}

// bit reads a field from a frame whose length has already been checked.
func bit(data []byte, offset, width int) uint64 {
	v, _ := Bits(data, offset, width)
	return v
}
