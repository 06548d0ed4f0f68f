package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the callflow banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"            _ _  __ _               ", "#38bdf8"},
		{"   ___ __ _| | |/ _| | _____      __", "#22d3ee"},
		{"  / __/ _` | | | |_| |/ _ \\ \\ /\\ / /", "#2dd4bf"},
		{" | (_| (_| | | |  _| | (_) \\ V  V / ", "#34d399"},
		{"  \\___\\__,_|_|_|_| |_|\\___/ \\_/\\_/  ", "#4ade80"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// System styles a system notice for the terminal.
func System(text string) string {
	p := termenv.ColorProfile()
	return termenv.String(text).Foreground(p.Color("#f87171")).Bold().String()
}

// Faint styles secondary text such as hints.
func Faint(text string) string {
	return termenv.String(text).Faint().String()
}
