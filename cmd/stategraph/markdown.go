package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// printAnswer writes the answer, rendering markdown when mode asks for it.
// "auto" renders only when w is a terminal.
func printAnswer(w io.Writer, answer, mode string) error {
	switch mode {
	case "always":
	case "auto":
		if !isTerminal(w) {
			mode = "never"
		}
	case "never":
	default:
		return fmt.Errorf("invalid --render %q: want auto, always or never", mode)
	}

	if mode == "never" {
		_, err := fmt.Fprintln(w, answer)
		return err
	}
	rendered, err := renderMarkdown(answer, terminalWidth(w))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, rendered)
	return err
}

func renderMarkdown(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}
