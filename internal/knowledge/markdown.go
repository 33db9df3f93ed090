package knowledge

import (
	"bufio"
	"bytes"
	"strings"
)

// FlattenTables rewrites Markdown so that every table row becomes its own
// paragraph ("cell cell cell") and separator rows disappear. Other lines are
// kept as they are. Input without tables is returned unchanged.
func FlattenTables(md []byte) []byte {
	if !bytes.Contains(md, []byte("|")) {
		return md
	}

	var b strings.Builder
	sc := bufio.NewScanner(bytes.NewReader(md))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	sawTable := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !(strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") && len(line) > 1) {
			b.WriteString(line)
			b.WriteByte('\n')
			continue
		}
		sawTable = true
		cells := make([]string, 0, 4)
		separator := true
		for _, c := range strings.Split(strings.Trim(line, "|"), "|") {
			cell := strings.TrimSpace(c)
			if strings.Trim(cell, ":- ") != "" {
				separator = false
			}
			if cell != "" {
				cells = append(cells, cell)
			}
		}
		if separator || len(cells) == 0 {
			continue
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(cells, " "))
		b.WriteString("\n\n")
	}
	if sc.Err() != nil || !sawTable {
		return md
	}
	return []byte(b.String())
}
