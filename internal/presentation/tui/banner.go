package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the wren banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{" __      __                 ", "#818cf8"},
		{"/  \\    /  \\_______   ____   ____  ", "#a78bfa"},
		{"\\   \\/\\/   /\\_  __ \\_/ __ \\ /    \\ ", "#c084fc"},
		{" \\        /  |  | \\/\\  ___/|   |  \\", "#e879f9"},
		{"  \\__/\\  /   |__|    \\___  >___|  /", "#f472b6"},
		{"       \\/                \\/     \\/ ", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
