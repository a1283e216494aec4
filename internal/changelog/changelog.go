package changelog

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// MaxChunk is the largest message the chat transport accepts, in bytes.
const MaxChunk = 4096

// Read loads the changelog at path and splits it for sending.
func Read(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read changelog: %w", err)
	}
	return Split(string(b), MaxChunk), nil
}

// Split cuts text into chunks of at most limit bytes, breaking on line ends where possible.
// A line longer than limit is cut on rune boundaries.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return nil
	}
	if limit <= 0 {
		limit = MaxChunk
	}
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if s := strings.TrimRight(cur.String(), "\n"); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		if cur.Len()+len(strings.TrimRight(line, "\n")) > limit {
			flush()
		}
		for len(line) > limit {
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			out = append(out, line[:cut])
			line = line[cut:]
		}
		cur.WriteString(line)
	}
	flush()
	return out
}
