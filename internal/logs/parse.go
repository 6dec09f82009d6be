package logs

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mcpregistry/dashboard/internal/domain"
)

// Timestamp layouts accepted at the start of a plain-text line.
// Two-field layouts are tried against "date time".
var (
	singleFieldLayouts = []string{time.RFC3339Nano, time.RFC3339}
	twoFieldLayouts    = []string{
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05,000",
		"2006-01-02 15:04:05",
		"2006/01/02 15:04:05",
	}
)

// NormalizeLevel maps a raw level to one of debug, info, warn, error.
// Unknown non-empty levels are returned lower-cased.
func NormalizeLevel(level string) string {
	l := strings.ToLower(strings.TrimSpace(level))
	switch l {
	case "":
		return domain.LevelInfo
	case "warn", "warning":
		return domain.LevelWarn
	case "err", "error", "fatal", "critical", "panic":
		return domain.LevelError
	case "debug", "trace":
		return domain.LevelDebug
	case "info", "notice":
		return domain.LevelInfo
	default:
		return l
	}
}

func isLevel(word string) bool {
	if strings.TrimSpace(word) == "" {
		return false
	}
	switch NormalizeLevel(word) {
	case domain.LevelDebug, domain.LevelInfo, domain.LevelWarn, domain.LevelError:
		return true
	}
	return false
}

// isBareLevel accepts an unbracketed level only in the forms loggers
// write it ("WARN", "Error:"), so ordinary sentences keep their first word.
func isBareLevel(word string) bool {
	if level, ok := strings.CutSuffix(word, ":"); ok {
		return isLevel(level)
	}
	return word == strings.ToUpper(word) && isLevel(word)
}

// ParseLine parses one log line. The workspace falls back to
// defaultWorkspace when the line carries no scope. Returns false for
// blank lines.
//
// Plain-text lines look like
//
//	2024-05-01T10:00:00Z [WARNING] [dev/filesystem] connection slow
//
// where every part but the message is optional. JSON object lines are
// also accepted.
func ParseLine(line, defaultWorkspace string) (domain.LogEntry, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return domain.LogEntry{}, false
	}

	if strings.HasPrefix(strings.TrimSpace(line), "{") {
		if e, ok := parseJSONLine(line, defaultWorkspace); ok {
			return e, true
		}
	}

	e := domain.LogEntry{Workspace: defaultWorkspace}
	rest := strings.TrimSpace(line)

	e.Timestamp, rest = parseTimestamp(rest)

	// Level, bracketed or bare ("[INFO]", "INFO", "WARNING:")
	if tag, after, ok := bracket(rest); ok && isLevel(tag) {
		e.Level = NormalizeLevel(tag)
		rest = after
	} else if word, after, _ := strings.Cut(rest, " "); isBareLevel(word) {
		e.Level = NormalizeLevel(strings.TrimSuffix(word, ":"))
		rest = strings.TrimSpace(after)
	}

	// Scope ("[workspace/server]", "[workspace:server]", "[workspace]")
	if tag, after, ok := bracket(rest); ok && tag != "" && !strings.ContainsAny(tag, " \t") {
		ws, srv := splitScope(tag)
		if ws != "" {
			e.Workspace = ws
		}
		e.Server = srv
		rest = after
	}

	if e.Level == "" {
		e.Level = domain.LevelInfo
	}
	e.Message = rest
	return e, true
}

func parseTimestamp(s string) (time.Time, string) {
	first, rest, _ := strings.Cut(s, " ")
	for _, layout := range singleFieldLayouts {
		if t, err := time.Parse(layout, first); err == nil {
			return t, strings.TrimSpace(rest)
		}
	}

	second, rest2, _ := strings.Cut(rest, " ")
	candidate := first + " " + second
	for _, layout := range twoFieldLayouts {
		if t, err := time.ParseInLocation(layout, candidate, time.Local); err == nil {
			return t, strings.TrimSpace(rest2)
		}
	}
	return time.Time{}, s
}

// bracket returns the content of a leading [..] group and what follows it
func bracket(s string) (string, string, bool) {
	if !strings.HasPrefix(s, "[") {
		return "", s, false
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return "", s, false
	}
	return strings.TrimSpace(s[1:end]), strings.TrimSpace(s[end+1:]), true
}

func splitScope(tag string) (string, string) {
	if ws, srv, ok := strings.Cut(tag, "/"); ok {
		return ws, srv
	}
	if ws, srv, ok := strings.Cut(tag, ":"); ok {
		return ws, srv
	}
	return tag, ""
}

type jsonLine struct {
	Timestamp string `json:"timestamp"`
	Time      string `json:"time"`
	Level     string `json:"level"`
	Workspace string `json:"workspace"`
	Server    string `json:"server"`
	Message   string `json:"message"`
	Msg       string `json:"msg"`
}

func parseJSONLine(line, defaultWorkspace string) (domain.LogEntry, bool) {
	var jl jsonLine
	if err := json.Unmarshal([]byte(line), &jl); err != nil {
		return domain.LogEntry{}, false
	}

	e := domain.LogEntry{
		Level:     NormalizeLevel(jl.Level),
		Workspace: jl.Workspace,
		Server:    jl.Server,
		Message:   jl.Message,
	}
	if e.Workspace == "" {
		e.Workspace = defaultWorkspace
	}
	if e.Message == "" {
		e.Message = jl.Msg
	}

	ts := jl.Timestamp
	if ts == "" {
		ts = jl.Time
	}
	if ts != "" {
		e.Timestamp, _ = parseTimestamp(ts)
	}
	return e, true
}
