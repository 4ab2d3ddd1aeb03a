// Package logger defines the structured diagnostic model shared by every
// pipeline stage. Components never return bare errors for user-facing
// failures; they append a Msg to a Log and keep working on the rest of the
// graph.
package logger

import (
	"fmt"
	"sort"
	"sync"
)

// Severity distinguishes diagnostics that fail a build from ones that don't.
type Severity uint8

const (
	Error Severity = iota
	Warning
	Note
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	default:
		return "unknown"
	}
}

// Kind is the taxonomy from spec.md §7: it labels *why* a Msg exists without
// introducing a distinct Go error type per case.
type Kind uint8

const (
	KindResolution Kind = iota
	KindParse
	KindTransform
	KindGraph
	KindCache
	KindIO
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindResolution:
		return "resolution"
	case KindParse:
		return "parse"
	case KindTransform:
		return "transform"
	case KindGraph:
		return "graph"
	case KindCache:
		return "cache"
	case KindIO:
		return "io"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Location is a 1-based line / 0-based column position inside a source file,
// plus enough of the surrounding text to render a caret excerpt.
type Location struct {
	File       string
	Line       int // 1-based
	Column     int // 0-based, in bytes
	Length     int // span length in bytes
	LineText   string
	Suggestion string
}

// Msg is the single structured diagnostic record spec.md §9 calls for.
type Msg struct {
	Severity Severity
	Kind     Kind
	Text     string
	Location *Location
	Hint     string
}

// Excerpt renders a three-line source excerpt with a caret under the span,
// matching spec.md §7's user-visible rendering contract.
func (m Msg) Excerpt() string {
	if m.Location == nil {
		return fmt.Sprintf("%s: %s: %s", m.Kind, m.Severity, m.Text)
	}
	loc := m.Location
	caret := make([]byte, loc.Column)
	for i := range caret {
		caret[i] = ' '
	}
	span := loc.Length
	if span < 1 {
		span = 1
	}
	underline := make([]byte, span)
	for i := range underline {
		underline[i] = '^'
	}
	out := fmt.Sprintf("%s: %s: %s:%d:%d: %s\n  %s\n  %s%s",
		m.Kind, m.Severity, loc.File, loc.Line, loc.Column+1, m.Text,
		loc.LineText, caret, underline)
	if loc.Suggestion != "" {
		out += "\n  hint: " + loc.Suggestion
	}
	if m.Hint != "" {
		out += "\n  hint: " + m.Hint
	}
	return out
}

// Log is a concurrency-safe sink for diagnostics. Workers append independently;
// no lock is held across a unit of work, only across the append itself.
type Log struct {
	mu   sync.Mutex
	msgs []Msg
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Add(m Msg) {
	l.mu.Lock()
	l.msgs = append(l.msgs, m)
	l.mu.Unlock()
}

func (l *Log) AddError(kind Kind, loc *Location, text string) {
	l.Add(Msg{Severity: Error, Kind: kind, Text: text, Location: loc})
}

func (l *Log) AddWarning(kind Kind, loc *Location, text string) {
	l.Add(Msg{Severity: Warning, Kind: kind, Text: text, Location: loc})
}

// HasErrors reports whether the build as a whole must fail: spec.md §7 says
// "a build succeeds iff the diagnostic set contains zero Error-severity
// entries."
func (l *Log) HasErrors() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if m.Severity == Error {
			return true
		}
	}
	return false
}

// Done returns a stable, sorted snapshot of all diagnostics collected so far.
func (l *Log) Done() []Msg {
	l.mu.Lock()
	out := make([]Msg, len(l.msgs))
	copy(out, l.msgs)
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		li, lj := out[i].Location, out[j].Location
		if li == nil || lj == nil {
			return lj != nil
		}
		if li.File != lj.File {
			return li.File < lj.File
		}
		if li.Line != lj.Line {
			return li.Line < lj.Line
		}
		return li.Column < lj.Column
	})
	return out
}
