package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ProgressIndicator renders step-by-step feedback for a long-running run on
// a single terminal line
type ProgressIndicator struct {
	mu        sync.Mutex
	out       io.Writer
	name      string
	total     int
	current   int
	spin      int
	startTime time.Time
	done      bool
}

// NewProgressIndicator creates a progress indicator expecting total steps
func NewProgressIndicator(out io.Writer, name string, total int) *ProgressIndicator {
	return &ProgressIndicator{
		out:       out,
		name:      name,
		total:     total,
		startTime: time.Now(),
	}
}

// Step advances progress by one and shows message as the current activity
func (pi *ProgressIndicator) Step(message string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if pi.done {
		return
	}
	if pi.current < pi.total {
		pi.current++
	}
	pi.spin = (pi.spin + 1) % len(spinnerChars)
	pi.render(message)
}

// Finish completes the progress indicator
func (pi *ProgressIndicator) Finish(message string) {
	pi.end("✅", message)
}

// Fail marks the progress as failed
func (pi *ProgressIndicator) Fail(reason string) {
	pi.end("❌", "failed: "+reason)
}

func (pi *ProgressIndicator) end(mark, message string) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if pi.done {
		return
	}
	pi.done = true
	duration := time.Since(pi.startTime).Round(time.Millisecond)
	fmt.Fprintf(pi.out, "\r\033[K%s %s: %s (%v)\n", mark, pi.name, message, duration)
}

func (pi *ProgressIndicator) render(message string) {
	var b strings.Builder
	b.WriteString("\r\033[K")
	b.WriteString(spinnerChars[pi.spin])
	b.WriteString(" ")
	b.WriteString(pi.name)

	if pi.total > 0 {
		const barWidth = 20
		filled := barWidth * pi.current / pi.total
		b.WriteString(" [")
		b.WriteString(strings.Repeat("█", filled))
		b.WriteString(strings.Repeat("░", barWidth-filled))
		fmt.Fprintf(&b, "] %d/%d", pi.current, pi.total)
	}
	if message != "" {
		b.WriteString(" ")
		b.WriteString(message)
	}
	fmt.Fprint(pi.out, b.String())
}
