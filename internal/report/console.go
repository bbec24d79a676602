// Package report renders engine events for people and for logs.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/willibrandon/copgy/internal/engine"
	"github.com/willibrandon/copgy/internal/errkind"
)

// Status markers.
const (
	MarkStart   = "🔊"
	MarkEnd     = "🏁"
	MarkCopy    = "🟦"
	MarkExecute = "🟨"
	MarkSuccess = "🟩"
	MarkError   = "🟥"
)

// TimeFormat is the timestamp layout of status lines.
const TimeFormat = "2006-01-02 15:04:05"

// DefaultSQLWidth is the display width SQL is truncated to in status lines.
const DefaultSQLWidth = 80

var (
	faint = color.New(color.Faint).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

// Console writes one timestamped status line per engine event. It is safe
// for concurrent use.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	now      func() time.Time
	sqlWidth int

	fragments int
	rate      ewma.MovingAverage
	lastBytes int64
	lastAt    time.Time
}

// NewConsole creates a console reporter writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:      out,
		now:      time.Now,
		sqlWidth: DefaultSQLWidth,
	}
}

// SetSQLWidth changes the truncation width for SQL. Zero disables truncation.
func (c *Console) SetSQLWidth(w int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sqlWidth = w
}

// Started prints the banner line.
func (c *Console) Started() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s copgy started\n", MarkStart)
}

// Ended prints the closing line.
func (c *Console) Ended() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s copgy ended\n", MarkEnd)
}

// Failed prints err with its kind. Used for failures outside an engine run,
// such as an unreadable manifest.
func (c *Console) Failed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s error: %s\n", MarkError, red(Diagnostic(err)))
}

// Observe implements engine.Observer.
func (c *Console) Observe(e engine.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case engine.EventValidationStarted:
		c.fragments = e.Fragments
	case engine.EventValidationPassed:
		c.line(e, MarkSuccess, "validate sql (%d statements)", c.fragments)
	case engine.EventConnected:
		c.line(e, MarkStart, "connected to %s %s", e.Role, e.Target)
	case engine.EventCopyStarted:
		c.rate = ewma.NewMovingAverage()
		c.lastBytes, c.lastAt = 0, e.Time
		c.line(e, MarkCopy, "copy to %q using %q", e.Table, c.truncate(e.SQL))
	case engine.EventCopyProgress:
		c.line(e, MarkCopy, "copy to %q: %s%s", e.Table, humanize.Bytes(uint64(e.Bytes)), c.throughput(e))
	case engine.EventCopyFinished:
		c.line(e, MarkSuccess, "copied %s rows (%s) to %q in %s",
			humanize.Comma(e.Rows), humanize.Bytes(uint64(e.Bytes)), e.Table, e.Duration.Round(time.Millisecond))
	case engine.EventExecuteStarted:
		c.line(e, MarkExecute, "execute on %s %q", e.Role, c.truncate(e.SQL))
	case engine.EventStepFailed:
		c.line(e, MarkError, "step %d failed", e.Step)
	case engine.EventRunCompleted:
		fmt.Fprintf(c.out, "%s finished process (%d steps in %s)\n", MarkSuccess, e.Steps, e.Duration.Round(time.Millisecond))
	case engine.EventRunFailed:
		fmt.Fprintf(c.out, "%s error: %s\n", MarkError, red(Diagnostic(e.Err)))
	}
}

func (c *Console) line(e engine.Event, mark, format string, args ...any) {
	ts := e.Time
	if ts.IsZero() {
		ts = c.now()
	}
	fmt.Fprintf(c.out, "%s %s %s\n", faint("["+ts.Format(TimeFormat)+"]"), mark, fmt.Sprintf(format, args...))
}

// throughput folds the bytes since the previous progress event into the
// moving average and renders it.
func (c *Console) throughput(e engine.Event) string {
	elapsed := e.Time.Sub(c.lastAt).Seconds()
	delta := e.Bytes - c.lastBytes
	c.lastBytes, c.lastAt = e.Bytes, e.Time
	if elapsed <= 0 || c.rate == nil {
		return ""
	}
	c.rate.Add(float64(delta) / elapsed)
	return fmt.Sprintf(" (%s/s)", humanize.Bytes(uint64(c.rate.Value())))
}

func (c *Console) truncate(sql string) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if c.sqlWidth <= 0 || runewidth.StringWidth(sql) <= c.sqlWidth {
		return sql
	}
	return runewidth.Truncate(sql, c.sqlWidth, "…")
}

// Diagnostic renders err as "Kind: message" for display.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}
	kind := errkind.Of(err)
	return bold(string(kind)) + ": " + err.Error()
}
