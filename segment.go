package mkvsubs

import (
	"context"

	"go.uber.org/zap"
)

// maxHeaderLen is the worst-case encoded length of an element header: a
// 4-byte ID followed by an 8-byte size.
const maxHeaderLen = 12

// defaultTimestampScale is nanoseconds per timestamp unit when Info carries
// no TimestampScale, making raw units milliseconds.
const defaultTimestampScale = 1_000_000

// seekEntry maps an element ID to its byte position relative to the Segment
// data start.
type seekEntry struct {
	id  uint64
	pos int64
}

// segmentLayout is everything learned about the file before touching any
// cluster: where the Segment data lives, the timestamp scale, the SeekHead
// index and the positions of the top-level elements seen while scanning.
type segmentLayout struct {
	dataOffset     int64
	dataSize       int64
	timestampScale uint64
	seeks          []seekEntry
	firstCluster   int64 // absolute file offset of the first Cluster header, -1 if none seen

	// positions of top-level elements observed directly during the scan,
	// absolute file offsets; merged with SeekHead entries by elementPos.
	scanned map[uint64]int64
}

// elementPos resolves the absolute file offset of a top-level element,
// preferring SeekHead entries and falling back to positions seen during the
// metadata scan. Returns -1 when the element is not known.
func (l *segmentLayout) elementPos(id uint64) int64 {
	for _, s := range l.seeks {
		if s.id == id {
			return l.dataOffset + s.pos
		}
	}
	if pos, ok := l.scanned[id]; ok {
		return pos
	}
	return -1
}

// peekElement reads just enough bytes at the absolute offset off to parse an
// element header. The returned element's offsets are absolute file offsets.
func peekElement(ctx context.Context, r *RangeReader, off int64) (element, error) {
	buf, err := r.ReadAt(ctx, off, maxHeaderLen)
	if err != nil {
		return element{}, err
	}
	el, err := parseElementAt(buf, 0)
	if err != nil {
		return element{}, err
	}
	el.headerOffset = off
	el.dataOffset = off + el.dataOffset
	return el, nil
}

// parseSegmentLayout validates the EBML header and Segment, then scans the
// Segment's metadata children up to (but not into) the first Cluster,
// collecting SeekHead entries and the timestamp scale.
func parseSegmentLayout(ctx context.Context, r *RangeReader, log *zap.Logger) (*segmentLayout, error) {
	buf, err := r.ReadAt(ctx, 0, probeSize)
	if err != nil {
		return nil, err
	}

	ebmlHeader, err := parseElementAt(buf, 0)
	if err != nil || ebmlHeader.id != IDEBMLHeader || ebmlHeader.unknownSize {
		return nil, parseErrorf("missing EBML header")
	}
	if ebmlHeader.dataOffset+ebmlHeader.size <= int64(len(buf)) {
		w := newChildWalker(buf, ebmlHeader.dataOffset, ebmlHeader.dataOffset+ebmlHeader.size)
		for el, data, ok := w.next(); ok; el, data, ok = w.next() {
			if el.id == IDDocType {
				if doc := readUTF8(data); doc != "matroska" && doc != "webm" {
					return nil, parseErrorf("unsupported document type %q", doc)
				}
			}
		}
	}

	segment, err := parseElementAt(buf, ebmlHeader.dataOffset+ebmlHeader.size)
	if err != nil || segment.id != IDSegment {
		return nil, parseErrorf("missing Segment element")
	}

	layout := &segmentLayout{
		dataOffset:     segment.dataOffset,
		dataSize:       segment.size,
		timestampScale: defaultTimestampScale,
		firstCluster:   -1,
		scanned:        make(map[uint64]int64),
	}
	if segment.unknownSize {
		layout.dataSize = r.Size() - segment.dataOffset
	}

	segmentEnd := layout.dataOffset + layout.dataSize
	for off := layout.dataOffset; off < segmentEnd; {
		el, errPeek := peekElement(ctx, r, off)
		if errPeek != nil {
			break
		}

		if el.id == IDCluster {
			layout.firstCluster = off
			break
		}
		if el.unknownSize {
			// Only Segment and Cluster may be unknown-sized; anything else
			// here ends the metadata scan.
			break
		}

		switch el.id {
		case IDSeekHead:
			data, errRead := r.ReadAt(ctx, el.dataOffset, el.size)
			if errRead != nil {
				return nil, errRead
			}
			layout.seeks = append(layout.seeks, parseSeekHead(data)...)
		case IDSegmentInfo:
			data, errRead := r.ReadAt(ctx, el.dataOffset, el.size)
			if errRead != nil {
				return nil, errRead
			}
			parseSegmentInfo(data, layout)
		case IDTracks, IDAttachments, IDCues, IDChapters, IDTags:
			layout.scanned[el.id] = off
		}

		off = el.dataOffset + el.size
	}

	log.Debug("segment scanned",
		zap.Int64("data_offset", layout.dataOffset),
		zap.Int64("data_size", layout.dataSize),
		zap.Uint64("timestamp_scale", layout.timestampScale),
		zap.Int("seek_entries", len(layout.seeks)),
		zap.Int64("first_cluster", layout.firstCluster))

	return layout, nil
}

// parseSeekHead flattens one SeekHead: each Seek child contributes a
// (SeekID, SeekPosition) pair.
func parseSeekHead(data []byte) []seekEntry {
	var entries []seekEntry
	w := newChildWalker(data, 0, int64(len(data)))
	for el, seekData, ok := w.next(); ok; el, seekData, ok = w.next() {
		if el.id != IDSeek {
			continue
		}
		var entry seekEntry
		sw := newChildWalker(seekData, 0, int64(len(seekData)))
		for child, childData, okSeek := sw.next(); okSeek; child, childData, okSeek = sw.next() {
			switch child.id {
			case IDSeekID:
				entry.id = readUint(childData)
			case IDSeekPos:
				entry.pos = int64(readUint(childData))
			}
		}
		if entry.id != 0 {
			entries = append(entries, entry)
		}
	}
	return entries
}

// parseSegmentInfo extracts the timestamp scale from an Info element.
func parseSegmentInfo(data []byte, layout *segmentLayout) {
	w := newChildWalker(data, 0, int64(len(data)))
	for el, childData, ok := w.next(); ok; el, childData, ok = w.next() {
		if el.id == IDTimestampScale {
			if scale := readUint(childData); scale > 0 {
				layout.timestampScale = scale
			}
		}
	}
}
