// Package ui renders a live one-line status display for an in-flight build
// run. It is purely cosmetic and is skipped entirely in CI mode.
package ui

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/gookit/color"

	"github.com/twangboy/relative-environment-for-python/internal/builder"
)

// SnapshotFunc reports the current state of every step in a run.
type SnapshotFunc func() map[string]builder.State

// Progress redraws a single status line in place on each tick.
type Progress struct {
	out      io.Writer
	snapshot SnapshotFunc
}

func New(out io.Writer, snapshot SnapshotFunc) *Progress {
	return &Progress{out: out, snapshot: snapshot}
}

func marker(s builder.State) string {
	switch s {
	case builder.Running:
		return color.Warn.Sprint("*")
	case builder.Succeeded:
		return color.Success.Sprint("+")
	case builder.Failed:
		return color.Danger.Sprint("x")
	case builder.Cancelled:
		return color.Danger.Sprint("-")
	default:
		return "."
	}
}

// Render draws the current snapshot over the previous line.
func (p *Progress) Render() {
	states := p.snapshot()
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s", name, marker(states[name])))
	}
	// \033[K clears any remnant of a longer previous line.
	fmt.Fprintf(p.out, "\r\033[K%s", strings.Join(parts, "  "))
}

// Watch redraws the status line every interval until ctx is cancelled, then
// draws the final snapshot and terminates the line.
func (p *Progress) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Render()
			fmt.Fprintln(p.out)
			return
		case <-ticker.C:
			p.Render()
		}
	}
}
