package config

import (
	"errors"

	"github.com/dshills/dispatchloop/internal/config/loader"
)

// Errors returned by configuration operations.
var (
	// ErrFileNotFound indicates the configuration file doesn't exist.
	ErrFileNotFound = errors.New("config: file not found")

	// ErrValidationFailed indicates a setting holds an unusable value.
	ErrValidationFailed = errors.New("config: validation failed")

	// ErrDecode indicates merged settings could not be decoded into Config.
	ErrDecode = errors.New("config: decode failed")
)

// ParseError represents an error while parsing a configuration file.
type ParseError = loader.ParseError
