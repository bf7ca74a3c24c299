package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{" _____                     _   _ _     ", "#34d399"},
	{"|_   _|   _ _ __ _ __  ___| |_(_) | ___", "#2dd4bf"},
	{"  | || | | | '__| '_ \\/ __| __| | |/ _ \\", "#22d3ee"},
	{"  | || |_| | |  | | | \\__ \\ |_| | |  __/", "#38bdf8"},
	{"  |_| \\__,_|_|  |_| |_|___/\\__|_|_|\\___|", "#60a5fa"},
}

// PrintBanner writes the Turnstile banner and version to w.
// Colors degrade to plain text when w is not a color terminal.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
