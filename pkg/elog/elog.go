// Package elog provides the logging and progress-reporting surface the
// container, scrubber, and CLI share. It generalizes the teacher pack's
// pkg/elog/logger.go to this module's cooperative-cancellation contract
// (spec section 5): a Progress can be asked whether its consumer has
// requested an abort, and long operations poll that between blocks.
package elog

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

// Logger is the subset of logging verbs every core package depends on.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Progress tracks one long-running operation's completion and carries the
// cooperative-abort flag described in spec section 5: the container and
// scrubber check ShouldAbort between blocks and, if set, unwind the
// in-progress mutation instead of completing it.
type Progress interface {
	// Increment advances the bar by n units (bytes, blocks, whatever the
	// caller chose when requesting it).
	Increment(n int64)

	// ShouldAbort reports whether the operation's consumer has requested
	// cancellation since the last call. Once it returns true it keeps
	// returning true for the life of this Progress.
	ShouldAbort() bool

	// RequestAbort marks this Progress for cancellation; the next
	// ShouldAbort call (and all subsequent ones) will return true. Safe
	// to call from a different goroutine than the one driving the
	// operation (e.g. a signal handler or UI cancel button).
	RequestAbort()

	// Finish closes out the bar. success indicates whether the
	// operation completed normally; a false value and/or an incomplete
	// bar render as an aborted/failed bar rather than a finished one.
	Finish(success bool)
}

// Reporter can create a Progress for a labeled operation with knownTotal
// units of work (0 means indeterminate, rendered as a spinner).
type Reporter interface {
	NewProgress(label string, knownTotal int64) Progress
}

// View bundles Logger and Reporter, the two things a core package needs
// from its caller.
type View interface {
	Logger
	Reporter
}

// CLI is a terminal-oriented View: logrus for structured records (routed
// through a buffer while a progress bar owns the terminal, same as the
// teacher's logger), mpb for bars, fatih/color for level coloring.
type CLI struct {
	DisableColors bool
	DisableTTY    bool
	Debug         bool

	mu      sync.Mutex
	active  bool
	bars    map[*mpb.Bar]bool
	buffer  *bytes.Buffer
	console *mpb.Progress
}

func (c *CLI) Debugf(format string, args ...interface{}) {
	if c.Debug {
		logrus.Debugf(format, args...)
	}
}

func (c *CLI) Infof(format string, args ...interface{})  { logrus.Infof(format, args...) }
func (c *CLI) Warnf(format string, args ...interface{})  { logrus.Warnf(format, args...) }
func (c *CLI) Errorf(format string, args ...interface{}) { logrus.Errorf(format, args...) }

// Format implements logrus.Formatter, coloring by level the way the
// teacher pack's CLI.Format does.
func (c *CLI) Format(entry *logrus.Entry) ([]byte, error) {
	msg := entry.Message
	if !c.DisableColors {
		switch entry.Level {
		case logrus.DebugLevel:
			msg = color.New(color.FgBlue).Sprint(msg)
		case logrus.WarnLevel:
			msg = color.New(color.FgYellow).Sprint(msg)
		case logrus.ErrorLevel:
			msg = color.New(color.FgRed).Sprint(msg)
		}
	}
	return []byte(msg + "\n"), nil
}

// NewProgress implements Reporter.
func (c *CLI) NewProgress(label string, knownTotal int64) Progress {
	if c.DisableTTY {
		return &silentProgress{total: knownTotal}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		c.active = true
		c.buffer = new(bytes.Buffer)
		logrus.SetOutput(c.buffer)
		c.console = mpb.New(mpb.WithWidth(80))
		c.bars = make(map[*mpb.Bar]bool)
	}

	var bar *mpb.Bar
	if knownTotal == 0 {
		bar = c.console.AddSpinner(0, mpb.SpinnerOnLeft,
			mpb.PrependDecorators(decor.Name(label, decor.WC{W: len(label) + 1, C: decor.DidentRight})))
	} else {
		bar = c.console.AddBar(knownTotal,
			mpb.PrependDecorators(
				decor.Name(label, decor.WC{W: len(label) + 1, C: decor.DidentRight}),
				decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "done"),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
	}
	c.bars[bar] = true

	return &barProgress{
		owner: c,
		bar:   bar,
		total: knownTotal,
	}
}

type silentProgress struct {
	total  int64
	cursor int64
	abort  int32
}

func (p *silentProgress) Increment(n int64)   { p.cursor += n }
func (p *silentProgress) ShouldAbort() bool   { return atomic.LoadInt32(&p.abort) != 0 }
func (p *silentProgress) RequestAbort()       { atomic.StoreInt32(&p.abort, 1) }
func (p *silentProgress) Finish(success bool) {}

type barProgress struct {
	owner *CLI
	bar   *mpb.Bar
	total int64
	cur   int64
	abort int32
	done  bool
}

func (p *barProgress) Increment(n int64) {
	p.cur += n
	p.bar.IncrInt64(n)
}

func (p *barProgress) ShouldAbort() bool { return atomic.LoadInt32(&p.abort) != 0 }
func (p *barProgress) RequestAbort()     { atomic.StoreInt32(&p.abort, 1) }

func (p *barProgress) Finish(success bool) {
	if p.done {
		return
	}
	p.done = true
	if !success || p.cur != p.total {
		p.bar.Abort(false)
	}

	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	delete(p.owner.bars, p.bar)
	if len(p.owner.bars) == 0 {
		p.owner.active = false
		p.owner.console.Wait()
		p.owner.console = nil
		logrus.SetOutput(os.Stdout)
		fmt.Fprint(os.Stdout, p.owner.buffer.String())
		p.owner.buffer = nil
	}
}

// Discard is a View that drops every log record and reports no progress;
// useful for tests and library callers that don't want terminal output.
var Discard View = discard{}

type discard struct{}

func (discard) Debugf(string, ...interface{}) {}
func (discard) Infof(string, ...interface{})  {}
func (discard) Warnf(string, ...interface{})  {}
func (discard) Errorf(string, ...interface{}) {}
func (discard) NewProgress(string, int64) Progress {
	return &silentProgress{}
}
