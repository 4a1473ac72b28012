// Package logger provides the structured logging collaborator injected into
// every ingestion component. It keeps the text/JSON dual format and field
// helpers of the original package-level logger, but is exposed as an
// interface so components take a Logger instead of reaching for globals.
package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// Field represents a structured logging field.
type Field struct {
	Key   string
	Value interface{}
}

// F is the constructor shorthand used throughout the ingestion packages.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err wraps an error as a field, rendering nil safely.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is the collaborator injected into constructors across the
// ingestion core. There is no package-level logging singleton; callers pass
// a Logger (or nil, which Nop substitutes for) into the component they
// build.
type Logger interface {
	Event(event string, fields ...Field)
	Warn(event string, fields ...Field)
	Error(event string, err error, fields ...Field)
}

// std is the default Logger, a thin wrapper over the standard log package
// that preserves the original INFO:/WARN:/ERROR: prefix convention and the
// optional JSON rendering controlled by LOG_FORMAT=json.
type std struct {
	jsonFormat bool
}

// New returns the default stdlib-backed Logger. jsonFormat forces JSON line
// output; when false it falls back to checking LOG_FORMAT=json like the
// original package-level logger did.
func New(jsonFormat bool) Logger {
	return &std{jsonFormat: jsonFormat}
}

// Default returns a Logger using the LOG_FORMAT environment variable to pick
// between human-readable and JSON output, matching the teacher's habit of
// defaulting loggers from the environment when no explicit config is wired.
func Default() Logger {
	return &std{jsonFormat: os.Getenv("LOG_FORMAT") == "json"}
}

func (s *std) Event(event string, fields ...Field) {
	s.write("INFO", event, fields...)
}

func (s *std) Warn(event string, fields ...Field) {
	s.write("WARN", event, fields...)
}

func (s *std) Error(event string, err error, fields ...Field) {
	s.write("ERROR", event, append(fields, Err(err))...)
}

func (s *std) write(level, event string, fields ...Field) {
	if s.jsonFormat {
		entry := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"level":     level,
			"event":     event,
		}
		for _, f := range fields {
			entry[f.Key] = f.Value
		}
		data, _ := json.Marshal(entry)
		log.Println(string(data))
		return
	}

	fieldStr := ""
	for i, f := range fields {
		if i > 0 {
			fieldStr += " "
		} else {
			fieldStr = " "
		}
		fieldStr += fmt.Sprintf("%s=%v", f.Key, f.Value)
	}
	log.Printf("%s: %s%s", level, event, fieldStr)
}

// nop discards everything; used as the nil-safe default the teacher's
// constructors fall back to when no logger is supplied.
type nop struct{}

// Nop returns a Logger that discards all output.
func Nop() Logger { return nop{} }

func (nop) Event(string, ...Field)        {}
func (nop) Warn(string, ...Field)         {}
func (nop) Error(string, error, ...Field) {}

// OrNop returns l unchanged unless it is nil, in which case it returns Nop().
// Constructors across the ingestion packages call this so a caller can pass
// a nil Logger without every call site needing its own nil check.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
