package mkvsubs

import (
	"fmt"
	"strings"
)

// assembleVTT reconstructs a WebVTT file. The codec-private header (or a bare
// "WEBVTT" when absent) comes first; each cue may carry an identifier, cue
// settings and preceding comments transported in BlockAdditions.
func assembleVTT(codecPrivate []byte, blocks []subtitleBlock) []byte {
	header := "WEBVTT"
	if len(codecPrivate) > 0 {
		header = decodeText(codecPrivate)
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(header, " \t\r\n"))
	sb.WriteString("\n\n")

	sortBlocksByTime(blocks)
	for _, block := range blocks {
		identifier, settings, comments := parseVTTAdditions(block.additions)

		for _, comment := range comments {
			sb.WriteString(comment)
			sb.WriteString("\n\n")
		}
		if identifier != "" {
			sb.WriteString(identifier)
			sb.WriteString("\n")
		}

		start := block.timestampMs
		end := start
		if block.durationMs >= 0 {
			end = start + block.durationMs
		}
		sb.WriteString(formatVTTTime(start))
		sb.WriteString(" --> ")
		sb.WriteString(formatVTTTime(end))
		if settings != "" {
			sb.WriteString(" ")
			sb.WriteString(settings)
		}
		sb.WriteString("\n")
		sb.WriteString(decodeText(block.payload))
		sb.WriteString("\n\n")
	}

	return []byte(sb.String())
}

// parseVTTAdditions splits BlockAdditions text: line 1 is the cue identifier,
// line 2 the cue settings, lines 3+ are comment blocks preceding the cue. Any
// line may be empty.
func parseVTTAdditions(additions []byte) (identifier, settings string, comments []string) {
	if len(additions) == 0 {
		return "", "", nil
	}

	lines := strings.Split(decodeText(additions), "\n")
	if len(lines) > 0 {
		identifier = lines[0]
	}
	if len(lines) > 1 {
		settings = lines[1]
	}
	if len(lines) > 2 {
		for _, line := range lines[2:] {
			if line != "" {
				comments = append(comments, line)
			}
		}
	}
	return identifier, settings, comments
}

// formatVTTTime renders milliseconds as HH:MM:SS.mmm.
func formatVTTTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d",
		ms/3_600_000, ms/60_000%60, ms/1_000%60, ms%1_000)
}
