package mkvsubs

import (
	"sort"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Format tags the subtitle text format of a track result.
type Format string

const (
	FormatSRT Format = "srt"
	FormatASS Format = "ass"
	FormatSSA Format = "ssa"
	FormatVTT Format = "vtt"
)

// formatForCodec maps a Matroska CodecID to the output format. Unknown text
// codecs fall back to SRT assembly.
func formatForCodec(codecID string) Format {
	switch codecID {
	case "S_TEXT/UTF8":
		return FormatSRT
	case "S_TEXT/ASS":
		return FormatASS
	case "S_TEXT/SSA":
		return FormatSSA
	case "S_TEXT/WEBVTT":
		return FormatVTT
	default:
		return FormatSRT
	}
}

// decodeText converts subtitle bytes to a UTF-8 string. Payloads are UTF-8
// per the Matroska spec, but codec-private headers from older muxers show up
// with BOMs or as UTF-16; the BOM override handles both without touching
// plain UTF-8.
func decodeText(b []byte) string {
	t := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(t, b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// sortBlocksByTime orders blocks by start timestamp, keeping file order for
// equal timestamps.
func sortBlocksByTime(blocks []subtitleBlock) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].timestampMs < blocks[j].timestampMs
	})
}
