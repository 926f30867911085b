package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const progressBarWidth = 30

// Progress renders a single-line progress bar for a pyramid render.
type Progress struct {
	startTime time.Time
	output    io.Writer
	unit      string
	total     int
	completed int
	failed    int
	mu        sync.RWMutex
	enabled   bool
}

// NewProgress creates a progress tracker counting tiles.
func NewProgress(total int, enabled bool) *Progress {
	return &Progress{
		total:     total,
		startTime: time.Now(),
		output:    os.Stderr,
		unit:      "tiles",
		enabled:   enabled,
	}
}

// SetOutput redirects the progress line, os.Stderr by default.
func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	p.output = w
	p.mu.Unlock()
}

// Update records the latest counters and redraws when enabled.
func (p *Progress) Update(completed, total, failed int) {
	p.mu.Lock()
	p.completed = completed
	p.total = total
	p.failed = failed
	p.mu.Unlock()

	if p.enabled {
		p.Print()
	}
}

// Callback returns a ProgressFunc suitable for use with Pool.Config.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

type progressSnapshot struct {
	completed, total, failed int
	elapsed                  time.Duration
	rate                     float64
}

func (p *Progress) snapshot() progressSnapshot {
	p.mu.RLock()
	s := progressSnapshot{completed: p.completed, total: p.total, failed: p.failed}
	start := p.startTime
	p.mu.RUnlock()

	s.elapsed = time.Since(start)
	if s.completed > 0 && s.elapsed > 0 {
		s.rate = float64(s.completed) / s.elapsed.Seconds()
	}
	return s
}

// Print writes the current progress line.
func (p *Progress) Print() {
	s := p.snapshot()

	var eta time.Duration
	if s.rate > 0 {
		eta = time.Duration(float64(s.total-s.completed)/s.rate) * time.Second
	}

	filled := 0
	if s.total > 0 {
		filled = s.completed * progressBarWidth / s.total
	}
	filled = min(max(filled, 0), progressBarWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)

	var b strings.Builder
	fmt.Fprintf(&b, "\r[%s] %d/%d %s", bar, s.completed, s.total, p.unit)
	if s.failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", s.failed)
	}
	fmt.Fprintf(&b, " - %.1f %s/sec", s.rate, p.unit)
	if eta > 0 && s.completed < s.total {
		fmt.Fprintf(&b, " - ETA: %s", formatDuration(eta))
	}
	if s.completed == s.total {
		fmt.Fprintf(&b, " - Done in %s", formatDuration(s.elapsed))
	}
	// Pad to clear previous line content
	b.WriteString("          ")

	p.mu.RLock()
	out := p.output
	p.mu.RUnlock()
	fmt.Fprint(out, b.String())
}

// Done prints the final progress and a newline.
func (p *Progress) Done() {
	if !p.enabled {
		return
	}
	p.Print()
	p.mu.RLock()
	out := p.output
	p.mu.RUnlock()
	fmt.Fprintln(out)
}

// Summary returns a one-line summary of the completed work.
func (p *Progress) Summary() string {
	s := p.snapshot()
	return fmt.Sprintf("Rendered %d/%d %s (%d failed) in %s (%.1f %s/sec)",
		s.completed-s.failed, s.total, p.unit, s.failed, formatDuration(s.elapsed), s.rate, p.unit)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
