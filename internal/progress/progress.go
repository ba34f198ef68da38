// Package progress tracks the running total of indexed documents and renders
// it for humans.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Counter is the process-wide running total. Safe for concurrent use.
type Counter struct {
	n atomic.Int64

	mu       sync.Mutex
	onChange func(total int64)
}

// Add adds delta and returns the new total.
func (c *Counter) Add(delta int) int64 {
	total := c.n.Add(int64(delta))
	c.mu.Lock()
	f := c.onChange
	c.mu.Unlock()
	if f != nil {
		f(total)
	}
	return total
}

func (c *Counter) Total() int64 { return c.n.Load() }

// OnChange registers f to be called after every Add with the new total.
func (c *Counter) OnChange(f func(total int64)) {
	c.mu.Lock()
	c.onChange = f
	c.mu.Unlock()
}

// Printer writes the total to w. On a terminal it rewrites one line in place
// ("\r12,500 documents inserted"); otherwise it writes a log-style line at most
// once per interval. Totals lower than one already seen are ignored, since
// parallel workers may report out of order.
type Printer struct {
	w        io.Writer
	tty      bool
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	last    time.Time
	max     int64
	printed int64
	dirty   bool
}

// NewPrinter detects whether w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{w: w, tty: tty, interval: 5 * time.Second, now: time.Now}
}

// Update renders total.
func (p *Printer) Update(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if total <= p.max && p.dirty {
		return
	}
	if total > p.max {
		p.max = total
	}
	p.dirty = true

	if p.tty {
		fmt.Fprintf(p.w, "\r%s documents inserted", humanize.Comma(p.max))
		p.printed = p.max
		return
	}
	now := p.now()
	if !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.print()
}

func (p *Printer) print() {
	fmt.Fprintf(p.w, "stage=progress indexed=%s\n", humanize.Comma(p.max))
	p.printed = p.max
}

// Done terminates the in-place line so later output starts on a fresh line.
// Without a terminal it writes the final total if throttling held it back.
func (p *Printer) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty {
		return
	}
	if p.tty {
		fmt.Fprintln(p.w)
	} else if p.max != p.printed {
		p.print()
	}
	p.dirty = false
}
