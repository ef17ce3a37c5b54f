// Package errors holds the error types shared across the mapchete packages.
package errors

import (
	"errors"
	"fmt"
)

// ConfigError is returned when a pyramid, tile matrix set or STAC item
// configuration is invalid or cannot be derived from the given input.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

func Config(msg string) *ConfigError {
	return &ConfigError{Msg: msg}
}

func Configf(format string, a ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, a...)}
}

func IsConfig(err error) bool {
	var configError *ConfigError
	return errors.As(err, &configError)
}

// ReprojectionError is returned when a geometry or bounds cannot be
// reprojected between two coordinate reference systems.
type ReprojectionError struct {
	Msg string
	Err error
}

func (e *ReprojectionError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *ReprojectionError) Unwrap() error {
	return e.Err
}

func Reprojection(msg string) *ReprojectionError {
	return &ReprojectionError{Msg: msg}
}

func Reprojectionf(format string, a ...any) *ReprojectionError {
	return &ReprojectionError{Msg: fmt.Sprintf(format, a...)}
}

// ReprojectionWrap adds context to a reprojection failure without losing the cause.
func ReprojectionWrap(err error, format string, a ...any) *ReprojectionError {
	return &ReprojectionError{Msg: fmt.Sprintf(format, a...), Err: err}
}

func IsReprojection(err error) bool {
	var reprojectionError *ReprojectionError
	return errors.As(err, &reprojectionError)
}
