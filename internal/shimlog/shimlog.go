// Package shimlog wires up slog for the shim and its command: JSON
// records by default, optionally indented or rendered for a terminal, and
// helpers to parse records back in tests that assert on log output.
package shimlog

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/kmrgirish/sandtrap/internal/prettylog"
)

// Environment variables consulted for defaults when no flag is given.
const (
	EnvLevel  = "SANDTRAP_LOG_LEVEL"
	EnvFormat = "SANDTRAP_LOG_FORMAT"
)

type Format int

const (
	// FormatRaw prints one JSON record per line.
	FormatRaw Format = iota
	// FormatIndented prints each record as indented JSON.
	FormatIndented
	// FormatPretty renders records for a terminal.
	FormatPretty
)

// ParseFormat parses "raw", "indented", or "pretty".
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "raw":
		return FormatRaw, true
	case "indented":
		return FormatIndented, true
	case "pretty":
		return FormatPretty, true
	}
	return FormatRaw, false
}

// ParseLevel parses a slog level name like "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}

// DefaultLevel returns the level name from the environment, or "info".
func DefaultLevel() string {
	if v := os.Getenv(EnvLevel); v != "" {
		return v
	}
	return "info"
}

// DefaultFormat returns the format name from the environment, or "raw".
func DefaultFormat() string {
	if v := os.Getenv(EnvFormat); v != "" {
		return v
	}
	return "raw"
}

// Setup builds a logger writing records to w in the given format.
func Setup(w io.Writer, level slog.Level, format Format) *slog.Logger {
	out := w
	switch format {
	case FormatIndented:
		out = indentWriter{out: w}
	case FormatPretty:
		out = prettylog.NewWriter(w)
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     level,
		AddSource: format == FormatPretty,
	}))
}

// indentWriter re-indents each JSON record it receives.
type indentWriter struct {
	out io.Writer
}

func (w indentWriter) Write(p []byte) (int, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimRight(p, "\n"), "", "  "); err != nil {
		return w.out.Write(p)
	}
	buf.WriteByte('\n')
	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

type Stackframe struct {
	File     string `json:"file"`
	Function string `json:"function"`
	Line     int    `json:"line"`
}

// A Log is one parsed record, covering the attributes the shim emits.
type Log struct {
	Time      time.Time     `json:"time"`
	Level     slog.Level    `json:"level"`
	Msg       string        `json:"msg"`
	TID       int           `json:"tid"`
	Sys       string        `json:"sys"`
	Phase     string        `json:"phase"`
	Ret       int           `json:"ret"`
	Num       int           `json:"num"`
	PC        string        `json:"pc"`
	Traceback []*Stackframe `json:"traceback"`
}

// ParseLogs parses JSON records, one per line. Lines that do not parse
// are skipped so partial output stays usable.
func ParseLogs(logs []byte) []*Log {
	var out []*Log

	for _, line := range bytes.Split(logs, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var log Log
		if err := json.Unmarshal(line, &log); err != nil {
			continue
		}
		out = append(out, &log)
	}

	return out
}

// Stack returns a traceback attribute for the caller's stack, skipping
// skip frames above the caller.
func Stack(skip int) slog.Attr {
	var stackRaw [256]uintptr
	n := runtime.Callers(skip+2, stackRaw[:])

	var frames []Stackframe
	iter := runtime.CallersFrames(stackRaw[:n])
	for {
		frame, more := iter.Next()
		frames = append(frames, Stackframe{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return slog.Any("traceback", frames)
}
