package compiler

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
)

// tokenPattern matches a double-quoted span (quotes kept) or a run of
// non-whitespace characters.
var tokenPattern = regexp.MustCompile(`"[^"]*"|\S+`)

// maxLineSize bounds a single script line.
const maxLineSize = 1 << 20

// Scan splits a script into token lines. Blank lines and lines whose first
// non-blank character is '#' are dropped; a token starting with '#' ends the
// line. Only reader errors are returned.
func Scan(r io.Reader) ([]domain.TokenLine, error) {
	var lines []domain.TokenLine

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if n == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		if text == "" || text[0] == '#' {
			continue
		}
		tokens := tokenize(text)
		if len(tokens) == 0 {
			continue
		}
		lines = append(lines, domain.TokenLine{Line: n, Tokens: tokens})
	}
	if err := sc.Err(); err != nil {
		return lines, fmt.Errorf("failed to scan script at line %d: %w", n+1, err)
	}
	return lines, nil
}

// ScanString is Scan over an in-memory script. A line longer than
// maxLineSize ends the scan early.
func ScanString(src string) []domain.TokenLine {
	lines, _ := Scan(strings.NewReader(src))
	return lines
}

func tokenize(line string) []string {
	var tokens []string
	for _, tok := range tokenPattern.FindAllString(line, -1) {
		if strings.HasPrefix(tok, "#") {
			break
		}
		tokens = append(tokens, tok)
	}
	return tokens
}
