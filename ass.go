package mkvsubs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// assEventFormat is the canonical Format line appended when the codec-private
// header carries no [Events] section of its own.
const assEventFormat = "Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text"

// assEvent is one Dialogue event recovered from a block payload.
//
// Matroska stores ASS events as "ReadOrder,Layer,Style,Name,MarginL,MarginR,
// MarginV,Effect,Text": the first eight commas delimit fields, everything
// after them is Text verbatim.
type assEvent struct {
	readOrder int64
	layer     string
	style     string
	name      string
	marginL   string
	marginR   string
	marginV   string
	effect    string
	text      string

	startMs int64
	endMs   int64
}

// parseASSBlockPayload splits a block payload on its first eight commas.
// Returns false for payloads that do not carry all nine fields.
func parseASSBlockPayload(payload string) (assEvent, bool) {
	parts := strings.SplitN(payload, ",", 9)
	if len(parts) != 9 {
		return assEvent{}, false
	}
	readOrder, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return assEvent{}, false
	}
	return assEvent{
		readOrder: readOrder,
		layer:     parts[1],
		style:     parts[2],
		name:      parts[3],
		marginL:   parts[4],
		marginR:   parts[5],
		marginV:   parts[6],
		effect:    parts[7],
		text:      parts[8],
	}, true
}

// assembleASS reconstructs an ASS or SSA file from the codec-private header
// and the block payloads. Events are ordered by ReadOrder, the original
// muxing order, not by timestamp.
func assembleASS(codecPrivate []byte, blocks []subtitleBlock) []byte {
	header := decodeText(codecPrivate)

	le := "\n"
	if strings.Contains(header, "\r\n") {
		le = "\r\n"
	}

	var sb strings.Builder
	trimmed := strings.TrimRight(header, " \t\r\n")
	if strings.Contains(header, "[Events]") {
		sb.WriteString(trimmed)
		sb.WriteString(le)
	} else {
		sb.WriteString(trimmed)
		sb.WriteString(le)
		sb.WriteString(le)
		sb.WriteString("[Events]")
		sb.WriteString(le)
		sb.WriteString(assEventFormat)
		sb.WriteString(le)
	}

	var events []assEvent
	for _, block := range blocks {
		event, ok := parseASSBlockPayload(decodeText(block.payload))
		if !ok {
			continue
		}
		event.startMs = block.timestampMs
		event.endMs = block.timestampMs
		if block.durationMs >= 0 {
			event.endMs += block.durationMs
		}
		events = append(events, event)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].readOrder < events[j].readOrder })

	for _, e := range events {
		sb.WriteString("Dialogue: ")
		sb.WriteString(strings.Join([]string{
			e.layer,
			formatASSTime(e.startMs),
			formatASSTime(e.endMs),
			e.style,
			e.name,
			e.marginL,
			e.marginR,
			e.marginV,
			e.effect,
			e.text,
		}, ","))
		sb.WriteString(le)
	}

	sb.WriteString(le)
	return []byte(sb.String())
}

// formatASSTime renders milliseconds as H:MM:SS.cc, centisecond precision,
// hours not zero-padded.
func formatASSTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%d:%02d:%02d.%02d",
		ms/3_600_000, ms/60_000%60, ms/1_000%60, ms%1_000/10)
}
