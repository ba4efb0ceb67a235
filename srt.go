package mkvsubs

import (
	"fmt"
	"strings"
)

// assembleSRT reconstructs a SubRip file: a 1-based index, a timestamp line,
// the payload text and a blank line per block.
func assembleSRT(blocks []subtitleBlock) []byte {
	sortBlocksByTime(blocks)

	var sb strings.Builder
	for i, block := range blocks {
		start := block.timestampMs
		end := start
		if block.durationMs >= 0 {
			end = start + block.durationMs
		}
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n",
			i+1, formatSRTTime(start), formatSRTTime(end), decodeText(block.payload))
	}
	return []byte(sb.String())
}

// formatSRTTime renders milliseconds as HH:MM:SS,mmm.
func formatSRTTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d,%03d",
		ms/3_600_000, ms/60_000%60, ms/1_000%60, ms%1_000)
}
