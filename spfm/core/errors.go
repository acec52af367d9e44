package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all solver packages.
var (
	ErrConfiguration = errors.New("spfm: configuration error")
	ErrNumerical     = errors.New("spfm: numerical error")
	ErrSelection     = errors.New("spfm: selection error")
)

// Configf returns an error wrapping ErrConfiguration.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Numericalf returns an error wrapping ErrNumerical.
func Numericalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNumerical, fmt.Sprintf(format, args...))
}

// Selectionf returns an error wrapping ErrSelection.
func Selectionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSelection, fmt.Sprintf(format, args...))
}
