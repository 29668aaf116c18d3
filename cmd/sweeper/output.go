package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// printer writes command output, styled only when w is a terminal.
type printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w}
	if f, ok := w.(*os.File); ok && os.Getenv("NO_COLOR") == "" {
		p.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *printer) Title(format string, args ...any) {
	fmt.Fprintln(p.w, p.render(titleStyle, fmt.Sprintf(format, args...)))
}

func (p *printer) OK(format string, args ...any) {
	fmt.Fprintln(p.w, p.render(okStyle, fmt.Sprintf(format, args...)))
}

func (p *printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.w, p.render(warnStyle, fmt.Sprintf(format, args...)))
}

func (p *printer) Error(format string, args ...any) {
	fmt.Fprintln(p.w, p.render(errStyle, fmt.Sprintf(format, args...)))
}

func (p *printer) Dim(format string, args ...any) {
	fmt.Fprintln(p.w, p.render(dimStyle, fmt.Sprintf(format, args...)))
}

func (p *printer) Line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) JSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func bytesHuman(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
