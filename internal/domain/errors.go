package domain

import "errors"

var (
	// ErrNotFound is returned when a named record or file does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidDocument is returned when a config file is not valid JSON of the expected shape
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidPath is returned for file names that escape their directory
	ErrInvalidPath = errors.New("invalid path")

	// ErrCLIUnavailable is returned when no manager CLI is configured
	ErrCLIUnavailable = errors.New("manager CLI not configured")
)
