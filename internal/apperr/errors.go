// Package apperr defines the error taxonomy shared across the engine.
// The repository layer translates storage- and index-level failures into
// these sentinels so callers never match on driver-specific error shapes.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that a note uid or file path does not exist.
	ErrNotFound = errors.New("not found")
	// ErrParse reports a malformed note file (exists but cannot be parsed).
	ErrParse = errors.New("parse error")
	// ErrStorage reports a low-level file or index failure.
	ErrStorage = errors.New("storage error")
	// ErrFilename reports that no usable file name could be derived.
	// Practically unreachable: the uid fallback always yields a name.
	ErrFilename = errors.New("filename generation failed")
)

// NotFound wraps ErrNotFound with the uid that was requested.
func NotFound(uid string) error {
	return fmt.Errorf("note %s: %w", uid, ErrNotFound)
}

// Parse wraps ErrParse with the offending file path.
func Parse(path string, err error) error {
	return fmt.Errorf("parse %s: %w: %w", path, ErrParse, err)
}

// Storage wraps a low-level failure with the operation label.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
