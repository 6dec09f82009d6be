package domain

import "time"

// Normalized log levels
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// LogEntry is a single line parsed from a manager log file
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Workspace string    `json:"workspace"`
	Server    string    `json:"server,omitempty"`
	Message   string    `json:"message"`
	File      string    `json:"file"`
	// Line is 1-based within the parsed part of the file. For files
	// larger than the reader's tail window it counts from the window start.
	Line int `json:"line"`
}

// LogFile describes a log file in the manager's log directory
type LogFile struct {
	Name       string    `json:"name"`
	Workspace  string    `json:"workspace"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// LogGroup holds the entries of one workspace
type LogGroup struct {
	Workspace string     `json:"workspace"`
	Count     int        `json:"count"`
	Entries   []LogEntry `json:"entries"`
}
