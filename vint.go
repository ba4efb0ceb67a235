package mkvsubs

import (
	"github.com/pkg/errors"
)

// sizeUnknown is the sentinel for a data size whose value bits are all ones.
// It is only legal on Segment and Cluster elements.
const sizeUnknown = int64(-1)

// vintWidth returns the number of bytes a VINT occupies, derived from the
// position of the most significant set bit of its first byte. A zero first
// byte has no marker and is invalid.
func vintWidth(first byte) int {
	for i := 0; i < 8; i++ {
		if first&(0x80>>i) != 0 {
			return i + 1
		}
	}
	return 0
}

// readVintID reads an EBML element ID at off. The length marker bit is kept,
// so the returned value matches the on-wire ID constants.
func readVintID(buf []byte, off int) (uint64, int, error) {
	if off >= len(buf) {
		return 0, 0, errors.New("vint: offset beyond buffer")
	}

	first := buf[off]
	if first == 0 {
		return 0, 0, errors.New("vint: first byte is zero")
	}

	width := vintWidth(first)
	if off+width > len(buf) {
		return 0, 0, errors.Errorf("vint: need %d bytes, have %d", width, len(buf)-off)
	}

	value := uint64(first)
	for i := 1; i < width; i++ {
		value = value<<8 | uint64(buf[off+i])
	}
	return value, width, nil
}

// readVintValue reads a data size or block track number at off. The length
// marker bit is masked out. If all remaining value bits are ones the result
// is sizeUnknown.
//
// Widths up to 8 bytes are accepted; the largest known value is 2^56-2 (2^56-1
// is the unknown-size marker), which fits an int64, so positions and sizes keep
// full precision.
func readVintValue(buf []byte, off int) (int64, int, error) {
	if off >= len(buf) {
		return 0, 0, errors.New("vint: offset beyond buffer")
	}

	first := buf[off]
	if first == 0 {
		return 0, 0, errors.New("vint: first byte is zero")
	}

	width := vintWidth(first)
	if off+width > len(buf) {
		return 0, 0, errors.Errorf("vint: need %d bytes, have %d", width, len(buf)-off)
	}

	marker := byte(0x80 >> (width - 1))
	value := uint64(first & (marker - 1))
	for i := 1; i < width; i++ {
		value = value<<8 | uint64(buf[off+i])
	}

	if value == 1<<(7*width)-1 {
		return sizeUnknown, width, nil
	}
	return int64(value), width, nil
}
