package mkvsubs

import (
	"context"
)

// cueEntry is one index entry from the Cues element: where to find the block
// for a track at a given time.
type cueEntry struct {
	time        uint64 // raw timestamp units
	track       uint64
	clusterPos  int64 // relative to the Segment data start
	relativePos int64 // relative to the cluster data start, -1 when absent
}

// parseCues reads the Cues element at the absolute offset off and returns one
// entry per CueTrackPositions child.
func parseCues(ctx context.Context, r *RangeReader, off int64) ([]cueEntry, error) {
	el, err := peekElement(ctx, r, off)
	if err != nil || el.id != IDCues || el.unknownSize {
		// A missing or broken index is not fatal; the caller falls back to a
		// linear scan.
		return nil, nil
	}

	data, err := r.ReadAt(ctx, el.dataOffset, el.size)
	if err != nil {
		return nil, err
	}

	var entries []cueEntry
	w := newChildWalker(data, 0, int64(len(data)))
	for point, pointData, ok := w.next(); ok; point, pointData, ok = w.next() {
		if point.id != IDCuePoint {
			continue
		}

		var cueTime uint64
		pw := newChildWalker(pointData, 0, int64(len(pointData)))
		for child, childData, okPoint := pw.next(); okPoint; child, childData, okPoint = pw.next() {
			switch child.id {
			case IDCueTime:
				cueTime = readUint(childData)
			case IDCueTrackPositions:
				entry := cueEntry{time: cueTime, relativePos: -1}
				tw := newChildWalker(childData, 0, int64(len(childData)))
				for pos, posData, okTrack := tw.next(); okTrack; pos, posData, okTrack = tw.next() {
					switch pos.id {
					case IDCueTrack:
						entry.track = readUint(posData)
					case IDCueClusterPosition:
						entry.clusterPos = int64(readUint(posData))
					case IDCueRelativePosition:
						entry.relativePos = int64(readUint(posData))
					}
				}
				if entry.track != 0 {
					entries = append(entries, entry)
				}
			}
		}
	}
	return entries, nil
}
