package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// New creates a logger writing entries in the given format.
func New(writer io.Writer, level Level, format Format) *StreamLogger {
	return &StreamLogger{out: &output{
		writer: writer,
		level:  level,
		format: format,
		now:    time.Now,
	}}
}

// NewJSONLogger creates a logger writing one JSON object per line.
func NewJSONLogger(writer io.Writer, level Level) *StreamLogger {
	return New(writer, level, FormatJSON)
}

// NewTextLogger creates a logger writing key=value lines.
func NewTextLogger(writer io.Writer, level Level) *StreamLogger {
	return New(writer, level, FormatText)
}

// NewFromEnv creates a stderr logger configured by LOG_LEVEL and
// LOG_FORMAT, falling back to the given level string and JSON.
func NewFromEnv(fallback string) *StreamLogger {
	level := ParseLevel(fallback)
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		level = ParseLevel(s)
	}
	return New(os.Stderr, level, ParseFormat(os.Getenv("LOG_FORMAT")))
}

func (l *StreamLogger) log(level Level, msg string, fields ...Field) {
	o := l.out
	o.mu.Lock()
	defer o.mu.Unlock()

	if level < o.level {
		return
	}

	all := mergeFields(l.fields, fields)
	var data []byte
	switch o.format {
	case FormatText:
		data = encodeText(o.now(), level, msg, all)
	default:
		var err error
		data, err = encodeJSON(o.now(), level, msg, all)
		if err != nil {
			fmt.Fprintf(o.writer, "[ERROR] Failed to marshal log entry: %v\n", err)
			return
		}
	}
	if _, err := o.writer.Write(data); err != nil {
		o.dropped++
	}
}

// mergeFields appends call fields to preset ones. A later key replaces an
// earlier one in place so output order is stable.
func mergeFields(preset, call []Field) []Field {
	if len(call) == 0 {
		return preset
	}
	out := make([]Field, 0, len(preset)+len(call))
	out = append(out, preset...)
	for _, f := range call {
		replaced := false
		for i := range out {
			if out[i].Key == f.Key {
				out[i].Value = f.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, f)
		}
	}
	return out
}

func encodeJSON(at time.Time, level Level, msg string, fields []Field) ([]byte, error) {
	entry := LogEntry{
		Time:    at.Format(time.RFC3339Nano),
		Level:   level.String(),
		Message: msg,
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]any, len(fields))
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func encodeText(at time.Time, level Level, msg string, fields []Field) []byte {
	var b strings.Builder
	b.WriteString(at.Format("15:04:05.000"))
	fmt.Fprintf(&b, " %-5s %s", level, msg)
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(textValue(f.Value))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func textValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case string:
		s = x
	case time.Duration:
		s = x.String()
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// Debug logs a debug-level message
func (l *StreamLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields...)
}

// Info logs an info-level message
func (l *StreamLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields...)
}

// Warn logs a warning-level message
func (l *StreamLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields...)
}

// Error logs an error-level message
func (l *StreamLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields...)
}

// With creates a child logger with the given fields pre-set
func (l *StreamLogger) With(fields ...Field) Logger {
	return &StreamLogger{out: l.out, fields: mergeFields(l.fields, fields)}
}

// SetLevel sets the minimum log level for l and every logger sharing its output.
func (l *StreamLogger) SetLevel(level Level) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.level = level
}

// GetLevel returns the current log level
func (l *StreamLogger) GetLevel() Level {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.level
}

// Dropped returns the number of entries whose write failed.
func (l *StreamLogger) Dropped() int {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.dropped
}

// StartTimer begins timing an operation
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{
		logger: logger,
		msg:    msg,
		start:  time.Now(),
		fields: fields,
	}
}

// End logs the operation at info level with its duration
func (t *TimedOperation) End(extra ...Field) time.Duration {
	elapsed := time.Since(t.start)
	fields := append(append([]Field{}, t.fields...), extra...)
	t.logger.Info(t.msg, append(fields, Latency(elapsed))...)
	return elapsed
}

// EndError logs the operation as an error with its duration
func (t *TimedOperation) EndError(err error) time.Duration {
	elapsed := time.Since(t.start)
	fields := append(append([]Field{}, t.fields...), Latency(elapsed), Error(err))
	t.logger.Error(t.msg, fields...)
	return elapsed
}
