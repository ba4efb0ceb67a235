package mkvsubs

import (
	"context"
	"strings"
)

// subtitleTrack is the metadata kept for one subtitle track.
type subtitleTrack struct {
	number          uint64
	codecID         string
	codecPrivate    []byte // nil when absent
	language        string // empty when undetermined
	name            string
	defaultDuration uint64 // ns, 0 when absent
}

// parseTracks reads the Tracks element at the absolute offset off and returns
// the subtitle track entries in file order.
func parseTracks(ctx context.Context, r *RangeReader, off int64) ([]subtitleTrack, error) {
	el, err := peekElement(ctx, r, off)
	if err != nil {
		return nil, parseErrorf("unreadable Tracks element: %v", err)
	}
	if el.id != IDTracks || el.unknownSize {
		return nil, parseErrorf("expected Tracks element at offset %d", off)
	}

	data, err := r.ReadAt(ctx, el.dataOffset, el.size)
	if err != nil {
		return nil, err
	}

	var tracks []subtitleTrack
	w := newChildWalker(data, 0, int64(len(data)))
	for child, entryData, ok := w.next(); ok; child, entryData, ok = w.next() {
		if child.id != IDTrackEntry {
			continue
		}
		if track, isSubtitle := parseTrackEntry(entryData); isSubtitle {
			tracks = append(tracks, track)
		}
	}
	return tracks, nil
}

// parseTrackEntry parses one TrackEntry. The second return is false for
// non-subtitle tracks.
func parseTrackEntry(data []byte) (subtitleTrack, bool) {
	track := subtitleTrack{}
	trackType := uint64(0)
	legacyLanguage := ""
	bcp47 := ""

	w := newChildWalker(data, 0, int64(len(data)))
	for el, childData, ok := w.next(); ok; el, childData, ok = w.next() {
		switch el.id {
		case IDTrackNum:
			track.number = readUint(childData)
		case IDTrackType:
			trackType = readUint(childData)
		case IDCodecID:
			track.codecID = readUTF8(childData)
		case IDCodecPriv:
			track.codecPrivate = copyBytes(childData)
		case IDLanguage:
			legacyLanguage = readUTF8(childData)
		case IDLanguageBCP47:
			bcp47 = readUTF8(childData)
		case IDTrackName:
			track.name = readUTF8(childData)
		case IDDefaultDuration:
			track.defaultDuration = readUint(childData)
		}
	}

	// BCP 47 wins over the legacy tag; "und" means no language at all.
	track.language = legacyLanguage
	if bcp47 != "" {
		track.language = bcp47
	}
	if strings.EqualFold(track.language, "und") {
		track.language = ""
	}

	return track, trackType == trackTypeSubtitle
}
