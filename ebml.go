package mkvsubs

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// element is a parsed EBML element header. Offsets are relative to the buffer
// the header was parsed from; callers working with file positions add their
// own base offset.
type element struct {
	id           uint64
	size         int64 // data size in bytes, sizeUnknown when the size is unknown
	headerOffset int64 // offset of the first header byte
	dataOffset   int64 // offset of the first data byte
	unknownSize  bool
}

// headerLen returns the encoded length of the element's ID and size VINTs.
func (el element) headerLen() int64 {
	return el.dataOffset - el.headerOffset
}

// parseElementAt parses an element header (ID then data size) at off.
func parseElementAt(buf []byte, off int64) (element, error) {
	id, idWidth, err := readVintID(buf, int(off))
	if err != nil {
		return element{}, errors.Wrap(err, "element id")
	}

	size, sizeWidth, err := readVintValue(buf, int(off)+idWidth)
	if err != nil {
		return element{}, errors.Wrap(err, "element size")
	}

	return element{
		id:           id,
		size:         size,
		headerOffset: off,
		dataOffset:   off + int64(idWidth) + int64(sizeWidth),
		unknownSize:  size == sizeUnknown,
	}, nil
}

// childWalker iterates the children of a parent element's data range.
//
// Iteration is lazy and stops cleanly on the first structural problem: a
// malformed header, a child with unknown size, or a child whose declared data
// overruns the range. Children parsed before the problem remain valid, which
// keeps a trailing garbage region from sinking the whole parse.
type childWalker struct {
	buf []byte
	pos int64
	end int64
}

// newChildWalker walks the children in buf[start:end).
func newChildWalker(buf []byte, start, end int64) *childWalker {
	if end > int64(len(buf)) {
		end = int64(len(buf))
	}
	return &childWalker{buf: buf, pos: start, end: end}
}

// next returns the next child header and a view of its data. ok is false once
// the range is exhausted or iteration has stopped.
func (w *childWalker) next() (element, []byte, bool) {
	if w.pos >= w.end {
		return element{}, nil, false
	}

	el, err := parseElementAt(w.buf, w.pos)
	if err != nil || el.unknownSize {
		w.pos = w.end
		return element{}, nil, false
	}
	if el.dataOffset+el.size > w.end {
		w.pos = w.end
		return element{}, nil, false
	}

	w.pos = el.dataOffset + el.size
	return el, w.buf[el.dataOffset : el.dataOffset+el.size], true
}

// readUint reads a big-endian unsigned integer of 0..8 bytes. Zero-length
// data reads as 0, matching the EBML default semantics.
func readUint(data []byte) uint64 {
	var value uint64
	for _, b := range data {
		value = value<<8 | uint64(b)
	}
	return value
}

// readInt reads a big-endian signed integer, sign-extending from the first
// byte.
func readInt(data []byte) int64 {
	if len(data) == 0 {
		return 0
	}

	value := readUint(data)
	shift := uint(64 - 8*len(data))
	return int64(value<<shift) >> shift
}

// readFloat reads a big-endian IEEE 754 float. Only 4 and 8 byte encodings
// are legal.
func readFloat(data []byte) (float64, error) {
	switch len(data) {
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
	default:
		return 0, errors.Errorf("float element has %d bytes, want 4 or 8", len(data))
	}
}

// readUTF8 reads a UTF-8 string, trimming any trailing NUL padding.
func readUTF8(data []byte) string {
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	return string(data)
}

// copyBytes copies element data out of a shared buffer so the result does not
// pin the reader's cache line.
func copyBytes(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
