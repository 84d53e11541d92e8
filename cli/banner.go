package cli

import (
	"fmt"
	"io"
	"strings"
)

// PrintBanner announces the listeners a kernel has bound.
func PrintBanner(w io.Writer, address string, extra ...string) {
	p := DefaultPalette
	fmt.Fprintf(w, "%s %s...\n", p.style(p.Orange).Bold(true).Render("Listening at"), p.style(p.Cyan).Render(address))
	if len(extra) > 0 {
		fmt.Fprintln(w, p.muted().Render("  "+strings.Join(extra, "\n  ")))
	}
}
