package elog

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

// Logger is an interface that has the ability to hide debug/info output
// depending on verbosity flags.
type Logger interface {
	Debugf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Printf(format string, x ...interface{})
	Warnf(format string, x ...interface{})
	IsInfoEnabled() bool
	IsDebugEnabled() bool
}

// Progress is an interface for reporting progress on a long scan, such
// as probing a multi-gigabyte stripe for its footer metadata.
type Progress interface {
	Finish(success bool)
	Increment(n int64)
}

// ProgressReporter creates Progress trackers.
type ProgressReporter interface {
	NewProgress(label string, total int64) Progress
}

// View bundles a Logger with a ProgressReporter.
type View interface {
	Logger
	ProgressReporter
}

// CLI is a View implementation for terminal output.
type CLI struct {
	DisableColors bool
	DisableTTY    bool
	IsDebug       bool
	IsVerbose     bool

	// RunID correlates every line emitted by this logger with a single
	// invocation of the tool, the same role a freshly generated GUID
	// plays when stamped into a GPT disk/partition entry.
	RunID uuid.UUID

	lock               sync.Mutex
	isTrackingProgress bool
	bars               map[*mpb.Bar]bool
	buffer             *bytes.Buffer
	progressContainer  *mpb.Progress
	out                io.Writer
}

// New constructs a CLI logger, generating a fresh run ID and deciding
// whether color output is appropriate based on whether stdout is a TTY.
func New(debug, verbose, disableColors bool, out io.Writer) *CLI {
	return &CLI{
		DisableColors: disableColors || !isatty.IsTerminal(uintptr(1)),
		IsDebug:       debug,
		IsVerbose:     verbose,
		RunID:         uuid.New(),
		out:           out,
	}
}

func (log *CLI) tag(format string) string {
	return fmt.Sprintf("[%s] %s", log.RunID.String()[:8], format)
}

// Debugf wraps logrus.Tracef, only emitting if debug mode is enabled.
func (log *CLI) Debugf(format string, x ...interface{}) {
	if log.IsDebug {
		logrus.Tracef(log.tag(format), x...)
	}
}

// Errorf wraps logrus.Errorf.
func (log *CLI) Errorf(format string, x ...interface{}) {
	logrus.Errorf(log.tag(format), x...)
}

// Infof wraps logrus.Debugf, only emitting if verbose mode is enabled.
func (log *CLI) Infof(format string, x ...interface{}) {
	if log.IsVerbose {
		logrus.Debugf(log.tag(format), x...)
	}
}

// Printf wraps logrus.Printf.
func (log *CLI) Printf(format string, x ...interface{}) {
	logrus.Printf(format, x...)
}

// Warnf wraps logrus.Warnf.
func (log *CLI) Warnf(format string, x ...interface{}) {
	logrus.Warnf(log.tag(format), x...)
}

// IsInfoEnabled reports whether InfoLevel logging is enabled.
func (log *CLI) IsInfoEnabled() bool {
	return logrus.IsLevelEnabled(logrus.InfoLevel)
}

// IsDebugEnabled reports whether DebugLevel logging is enabled.
func (log *CLI) IsDebugEnabled() bool {
	return logrus.IsLevelEnabled(logrus.DebugLevel)
}

// NewProgress creates a progress bar for a scan of total bytes/units.
// When output isn't a TTY the returned Progress silently no-ops.
func (log *CLI) NewProgress(label string, total int64) Progress {

	if log.DisableTTY || !isatty.IsTerminal(uintptr(1)) {
		return &nilProgress{}
	}

	log.lock.Lock()
	defer log.lock.Unlock()

	if !log.isTrackingProgress {
		log.isTrackingProgress = true
		log.buffer = new(bytes.Buffer)
		logrus.SetOutput(log.buffer)
		log.progressContainer = mpb.New(mpb.WithWidth(80))
		log.bars = make(map[*mpb.Bar]bool)
	}

	p := log.progressContainer.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(label, decor.WC{W: len(label) + 1, C: decor.DidentRight}),
			decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 4}), "done"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	log.bars[p] = true

	return &pb{log: log, p: p, total: total}
}

type nilProgress struct{}

func (np *nilProgress) Increment(n int64)   {}
func (np *nilProgress) Finish(success bool) {}

type pb struct {
	log    *CLI
	p      *mpb.Bar
	closed bool
	total  int64
	bar    int64
}

// Increment advances the bar by n units.
func (pb *pb) Increment(n int64) {
	pb.bar += n
	pb.p.IncrInt64(n)
}

// Finish closes the progress bar, restoring normal log output once every
// bar tracked by this logger has finished.
func (pb *pb) Finish(success bool) {
	if pb.closed {
		return
	}
	pb.closed = true
	if pb.bar != pb.total || !success {
		pb.p.Abort(false)
	}

	pb.log.lock.Lock()
	defer pb.log.lock.Unlock()
	delete(pb.log.bars, pb.p)

	if len(pb.log.bars) == 0 {
		pb.log.bars = nil
		pb.log.isTrackingProgress = false
		pb.log.progressContainer.Wait()
		pb.log.progressContainer = nil
		logrus.SetOutput(pb.log.out)
		_, _ = pb.log.buffer.WriteTo(pb.log.out)
		pb.log.buffer = nil
	}
}

// Format implements logrus.Formatter, colorizing by level the way the
// CLI is expected to render log lines for a human operator.
func (log *CLI) Format(entry *logrus.Entry) ([]byte, error) {

	faint := color.New(color.Faint).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	blue := color.New(color.FgBlue).SprintFunc()

	x := entry.Message
	if !log.DisableColors {
		switch entry.Level {
		case logrus.TraceLevel:
			x = fmt.Sprintf("%s\n", faint(x))
		case logrus.DebugLevel:
			x = fmt.Sprintf("%s\n", blue(x))
		case logrus.WarnLevel:
			x = fmt.Sprintf("%s\n", yellow(x))
		case logrus.ErrorLevel:
			x = fmt.Sprintf("%s\n", red(x))
		default:
			x = fmt.Sprintf("%s\n", x)
		}
	} else {
		x = fmt.Sprintf("%s\n", x)
	}

	return []byte(x), nil
}
