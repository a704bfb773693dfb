package process

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// LogParser parses a line of backend output and returns its log level and message.
type LogParser func(line string) (level, msg string)

var pythonLevels = []struct {
	prefix string
	level  string
}{
	{"CRITICAL:", "fatal"},
	{"ERROR:", "error"},
	{"WARNING:", "warning"},
	{"WARN:", "warning"},
	{"INFO:", "info"},
	{"DEBUG:", "debug"},
}

// ParsePythonLogLevel understands the prefixes written by the Python
// logging module ("WARNING:root:msg") and by uvicorn ("INFO:     msg").
// Traceback headers are reported as errors.
func ParsePythonLogLevel(line string) (level, msg string) {
	if strings.HasPrefix(line, "Traceback (most recent call last)") {
		return "error", line
	}
	for _, l := range pythonLevels {
		if rest, ok := strings.CutPrefix(line, l.prefix); ok {
			return l.level, strings.TrimSpace(rest)
		}
	}
	return "info", line
}

// maxLineLength caps a logged line. The rest of a longer line is read and
// discarded so the backend never blocks on a full pipe.
const maxLineLength = 64 * 1024

// streamOutput logs every line read from reader until EOF. It keeps reading
// until EOF even after a read error.
func streamOutput(reader io.Reader, source string, logger *slog.Logger, parse LogParser) {
	r := bufio.NewReaderSize(reader, 16*1024)
	line := make([]byte, 0, 1024)
	truncated := false

	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("Error reading output", "source", source, "error", err)
				_, _ = io.Copy(io.Discard, reader)
			}
			return
		}

		room := maxLineLength - len(line)
		if len(chunk) > room {
			chunk = chunk[:room]
			truncated = true
		}
		line = append(line, chunk...)
		if isPrefix {
			continue
		}

		logLine(logger, source, string(line), truncated, parse)
		line = line[:0]
		truncated = false
	}
}

func logLine(logger *slog.Logger, source, line string, truncated bool, parse LogParser) {
	level, msg := "info", line
	if parse != nil {
		level, msg = parse(line)
	}

	attrs := []any{"source", source}
	if truncated {
		attrs = append(attrs, "truncated", true)
	}

	switch level {
	case "fatal", "error":
		logger.Error(msg, attrs...)
	case "warning":
		logger.Warn(msg, attrs...)
	case "debug", "trace":
		logger.Debug(msg, attrs...)
	default:
		logger.Info(msg, attrs...)
	}
}
