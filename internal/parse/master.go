package parse

import (
	"fmt"
	"strings"
)

// MasterInfo carries everything a master table is built from: header
// fields taken from the fights event and the four section strings taken
// from the master-info event.
type MasterInfo struct {
	LogVersion     int64
	GameVersion    int64
	LogFileDetails string

	Actors    string
	Abilities string
	Tuples    string
	Pets      string
}

// Table assembles the master-table text blob: one header line, then the
// actors, abilities, tuples, and pets sections in that fixed order.
// Each section is a count line followed by the counted lines. The blob
// is rebuilt fresh before every segment upload; the remote service
// expects the latest table immediately preceding each segment.
func (m MasterInfo) Table() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%d|%s\n", m.LogVersion, m.GameVersion, m.LogFileDetails)
	writeSection(&b, m.Actors)
	writeSection(&b, m.Abilities)
	writeSection(&b, m.Tuples)
	writeSection(&b, m.Pets)
	return b.String()
}

func writeSection(b *strings.Builder, text string) {
	lines := nonBlankLines(text)
	fmt.Fprintf(b, "%d\n", len(lines))
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// nonBlankLines drops whitespace-only lines entirely, not just their
// content, so the section count reflects real entries.
func nonBlankLines(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
