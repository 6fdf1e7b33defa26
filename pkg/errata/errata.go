// Package errata implements the error-aggregation chain used throughout
// cachetool: operations return a value plus a Chain of entries rather
// than a single error, so that a caller (the allocator, a dump command)
// can decide whether a failure is fatal for the whole operation or just
// worth reporting and continuing past.
package errata

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Severity classifies a Chain entry.
type Severity int

// Severity levels, ordered least to most severe.
const (
	Info Severity = iota
	Warn
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Code enumerates the error kinds surfaced by the core (spec §7).
type Code int

// Error kinds.
const (
	CodeNone Code = iota
	CodeOpen
	CodeDeviceGeometry
	CodeIoRead
	CodeIoWrite
	CodeAlignmentTooLarge
	CodeHeaderANotFound
	CodeFooterANotFound
	CodeStripeSyncInvalid
	CodeNoSpace
	CodeConfigParse
	CodePercentExceeds100
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeOpen:
		return "open"
	case CodeDeviceGeometry:
		return "device-geometry"
	case CodeIoRead:
		return "io-read"
	case CodeIoWrite:
		return "io-write"
	case CodeAlignmentTooLarge:
		return "alignment-too-large"
	case CodeHeaderANotFound:
		return "header-a-not-found"
	case CodeFooterANotFound:
		return "footer-a-not-found"
	case CodeStripeSyncInvalid:
		return "stripe-sync-invalid"
	case CodeNoSpace:
		return "no-space"
	case CodeConfigParse:
		return "config-parse"
	case CodePercentExceeds100:
		return "percent-exceeds-100"
	default:
		return "unknown"
	}
}

// Entry is a single (severity, code, message) record in a Chain. Cause
// holds the underlying wrapped error, if any, for stack-trace rendering.
type Entry struct {
	Severity Severity
	Code     Code
	Message  string
	Cause    error
}

func (e Entry) String() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Severity, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

// Chain is a sequence of Entry records, most-recent first.
type Chain []Entry

// Push prepends a new entry to the chain and returns the result.
func (c Chain) Push(sev Severity, code Code, format string, args ...interface{}) Chain {
	return append(Chain{{
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	}}, c...)
}

// PushErr prepends a new entry wrapping cause with pkg/errors so that a
// stack trace is captured at the point of failure.
func (c Chain) PushErr(sev Severity, code Code, cause error, format string, args ...interface{}) Chain {
	wrapped := errors.Wrap(cause, fmt.Sprintf(format, args...))
	return append(Chain{{
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Cause:    wrapped,
	}}, c...)
}

// Append concatenates another chain onto the front of c (other's entries,
// most-recent first, followed by c's).
func (c Chain) Append(other Chain) Chain {
	if len(other) == 0 {
		return c
	}
	out := make(Chain, 0, len(c)+len(other))
	out = append(out, other...)
	out = append(out, c...)
	return out
}

// OK reports whether the chain contains no entries at or above Error
// severity. Info/Warn-only chains are still "ok" for exit-code purposes.
func (c Chain) OK() bool {
	for _, e := range c {
		if e.Severity >= Error {
			return false
		}
	}
	return true
}

// Empty reports whether the chain has no entries at all.
func (c Chain) Empty() bool {
	return len(c) == 0
}

// Fprint renders each entry of the chain on its own line, most-recent
// first, to w.
func (c Chain) Fprint(w io.Writer) {
	for _, e := range c {
		fmt.Fprintln(w, e.String())
	}
}

// String renders the chain the same way Fprint does, for use in %s/%v.
func (c Chain) String() string {
	var b strings.Builder
	for i, e := range c {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.String())
	}
	return b.String()
}

// Cause unwraps an Entry's Cause to its root error, mirroring
// errors.Cause semantics used by the teacher stack.
func Cause(e Entry) error {
	if e.Cause == nil {
		return nil
	}
	return errors.Cause(e.Cause)
}
