// Package report prints the categorized console lines every command emits.
//
// Line shapes:
//
//	[TABLE] OK: 'orders' created.
//	[SNOWPIPE] WARN: Stage 'landing' does not exist. Skipping 'raw_pipe'.
//	[DRY RUN] [VIEW] 'v_sales' will be created.
//	ERR: Unrecognized tables configuration entry: {nonsense: true}
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level is the category of a console line.
type Level int

const (
	LevelInfo Level = iota
	LevelOK
	LevelWarn
	LevelError
	LevelDryRun
	LevelNote
)

func (l Level) tag() string {
	switch l {
	case LevelOK:
		return "OK"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERR"
	case LevelInfo:
		return "INFO"
	default:
		return ""
	}
}

// Options configures a Reporter.
type Options struct {
	// NoColor disables ANSI colors regardless of terminal detection.
	NoColor bool
}

// Reporter writes one line per event and counts warnings and errors.
// It is safe for concurrent use.
type Reporter struct {
	mu     sync.Mutex
	w      io.Writer
	colors map[Level]*color.Color

	warnings int
	errors   int
}

// New returns a Reporter writing to w.
func New(w io.Writer, opts Options) *Reporter {
	colors := map[Level]*color.Color{
		LevelInfo:   color.New(color.FgBlue),
		LevelOK:     color.New(color.FgGreen),
		LevelWarn:   color.New(color.FgYellow),
		LevelError:  color.New(color.FgRed),
		LevelDryRun: color.New(color.FgGreen, color.Bold),
		LevelNote:   color.New(color.FgBlue, color.Bold),
	}
	for _, c := range colors {
		if opts.NoColor {
			c.DisableColor()
		}
	}
	return &Reporter{w: w, colors: colors}
}

// Discard returns a Reporter that writes nowhere.
func Discard() *Reporter { return New(io.Discard, Options{NoColor: true}) }

// Line formats and writes one event. label is the object category prefix
// ("TABLE") and may be empty.
func (r *Reporter) Line(level Level, label, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	var b strings.Builder
	if level == LevelDryRun {
		b.WriteString("[DRY RUN] ")
	}
	if label != "" {
		b.WriteString("[")
		b.WriteString(label)
		b.WriteString("] ")
	}
	tag := level.tag()
	if level == LevelInfo && label == "" {
		tag = ""
	}
	if tag != "" {
		b.WriteString(tag)
		b.WriteString(": ")
	}
	b.WriteString(msg)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch level {
	case LevelWarn:
		r.warnings++
	case LevelError:
		r.errors++
	}
	_, _ = r.colors[level].Fprintln(r.w, b.String())
}

func (r *Reporter) Infof(label, format string, args ...any) {
	r.Line(LevelInfo, label, format, args...)
}

func (r *Reporter) OKf(label, format string, args ...any) {
	r.Line(LevelOK, label, format, args...)
}

func (r *Reporter) Warnf(label, format string, args ...any) {
	r.Line(LevelWarn, label, format, args...)
}

func (r *Reporter) Errorf(label, format string, args ...any) {
	r.Line(LevelError, label, format, args...)
}

func (r *Reporter) DryRunf(label, format string, args ...any) {
	r.Line(LevelDryRun, label, format, args...)
}

// Notef writes an unprefixed, emphasized line (headings, summaries).
func (r *Reporter) Notef(format string, args ...any) {
	r.Line(LevelNote, "", format, args...)
}

// Warnings returns the number of WARN lines written so far.
func (r *Reporter) Warnings() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warnings
}

// Errors returns the number of ERR lines written so far.
func (r *Reporter) Errors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}
