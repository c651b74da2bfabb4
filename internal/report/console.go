// Package report renders check results for people and for machines.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/xkilldash9x/mobilecheck/api/schemas"
	"github.com/xkilldash9x/mobilecheck/internal/check"
)

// Console prints check progress as status lines. It is safe for concurrent use.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	// prefix adds the device name to every line when several devices run.
	prefix bool
}

// NewConsole creates a printer writing to out.
func NewConsole(out io.Writer, multiDevice bool) *Console {
	return &Console{out: out, prefix: multiDevice}
}

var _ check.Observer = (*Console)(nil)

func symbol(s check.Status) string {
	switch s {
	case check.StatusSuccess:
		return color.GreenString("✓")
	case check.StatusWarning:
		return color.YellowString("⚠")
	case check.StatusFailure:
		return color.RedString("✗")
	default:
		return color.CyanString("•")
	}
}

// Observe prints one event and its indented detail block.
func (c *Console) Observe(e check.Event) {
	var b strings.Builder
	b.WriteString(symbol(e.Status))
	b.WriteString(" ")
	if c.prefix && e.Device != "" {
		b.WriteString(color.CyanString("[%s] ", e.Device))
	}
	b.WriteString(e.Message)
	b.WriteString("\n")
	if e.Detail != "" {
		for _, line := range strings.Split(e.Detail, "\n") {
			b.WriteString("    ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, b.String())
}

// Warn prints a warning that belongs to no device, such as a preflight finding.
func (c *Console) Warn(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s\n", symbol(check.StatusWarning), msg)
}

// Summary prints the per device outcome. It is skipped for a single device,
// whose status lines already end with the verdict.
func (c *Console) Summary(rep *schemas.Report) {
	if len(rep.Runs) < 2 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out)
	for _, run := range rep.Runs {
		switch {
		case run.Failed():
			fmt.Fprintf(c.out, "%s %s: %s\n", symbol(check.StatusFailure), run.Device, run.Error)
		case len(run.Warnings) > 0:
			fmt.Fprintf(c.out, "%s %s: %d warning(s)\n", symbol(check.StatusWarning), run.Device, len(run.Warnings))
		default:
			fmt.Fprintf(c.out, "%s %s: passed\n", symbol(check.StatusSuccess), run.Device)
		}
	}
	failed := rep.Failures()
	fmt.Fprintf(c.out, "%s Passed: %d\n", symbol(check.StatusSuccess), len(rep.Runs)-failed)
	fmt.Fprintf(c.out, "%s Failed: %d\n", symbol(check.StatusFailure), failed)
}
