// Package progress renders read and insert progress on a terminal or log.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/darianmavgo/parquet2sqlite/converters/common"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// DefaultWidth is the number of cells in the drawn bar.
const DefaultWidth = 30

// Bar implements common.Progress.
//
// When Interactive is set the bar redraws a single line with carriage
// returns. Otherwise it prints one line at start, one per 10% step and one
// at finish, which keeps redirected output readable.
type Bar struct {
	Interactive bool
	Width       int

	mu      sync.Mutex
	w       io.Writer
	total   int64
	current int64
	status  string
	step    int64 // last 10% step printed in line mode
	drawn   bool
}

// Ensure Bar implements Progress
var _ common.Progress = (*Bar)(nil)

// New returns a Bar writing to w. Interactive mode is enabled when w is a
// terminal.
func New(w io.Writer) *Bar {
	return &Bar{
		Interactive: IsTerminal(w),
		Width:       DefaultWidth,
		w:           w,
	}
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w interface{}) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Start implements common.Progress.
func (b *Bar) Start(total int64, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total = total
	b.current = 0
	b.status = status
	b.step = 0
	b.drawn = false

	if b.Interactive {
		b.redraw()
		return
	}
	fmt.Fprintf(b.w, "%s: 0/%s\n", status, humanize.Comma(total))
}

// Tick implements common.Progress.
func (b *Bar) Tick(current int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if current > b.total {
		current = b.total
	}
	b.current = current

	if b.Interactive {
		b.redraw()
		return
	}
	if b.total <= 0 {
		return
	}
	step := current * 10 / b.total
	if step > b.step && step < 10 {
		b.step = step
		fmt.Fprintf(b.w, "%s: %s/%s (%d%%)\n", b.status, humanize.Comma(current), humanize.Comma(b.total), step*10)
	}
}

// Finish implements common.Progress.
func (b *Bar) Finish(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Interactive && b.drawn {
		b.current = b.total
		b.redraw()
		fmt.Fprint(b.w, "\n")
	}
	fmt.Fprintln(b.w, status)
	b.drawn = false
}

func (b *Bar) redraw() {
	fmt.Fprintf(b.w, "\r%s", Render(b.status, b.current, b.total, b.width()))
	b.drawn = true
}

func (b *Bar) width() int {
	if b.Width <= 0 {
		return DefaultWidth
	}
	return b.Width
}

// Render formats one progress line, e.g.
// "Reading a.parquet [=======>      ]  52% 5,200/10,000".
func Render(status string, current, total int64, width int) string {
	pct := 100
	if total > 0 {
		pct = int(current * 100 / total)
	}
	if pct > 100 {
		pct = 100
	}

	filled := width * pct / 100
	var bar strings.Builder
	bar.WriteString(strings.Repeat("=", filled))
	if filled < width {
		bar.WriteString(">")
		bar.WriteString(strings.Repeat(" ", width-filled-1))
	}

	return fmt.Sprintf("%s [%s] %3d%% %s/%s", status, bar.String(), pct, humanize.Comma(current), humanize.Comma(total))
}
