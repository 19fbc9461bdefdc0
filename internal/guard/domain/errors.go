package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConflict          = errors.New("rule conflict")
	ErrNotFound          = errors.New("file not found")
	ErrAlreadyConfigured = errors.New("cache driver already configured")
	ErrCacheConnection   = errors.New("cache connection failed")
	ErrForbidden         = errors.New("forbidden")
)

// ConflictError is returned when a pattern is registered again with a mode
// different from the one it already holds.
type ConflictError struct {
	Pattern   string
	Existing  Mode
	Requested Mode
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("the rule %q is already registered with %q", e.Pattern, e.Existing)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError is returned when an import path is missing or a directory.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("invalid filename %q: not a readable file", e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AlreadyConfiguredError is returned when a second cache driver is attached.
type AlreadyConfiguredError struct {
	Driver string // name of the driver already attached
}

func (e *AlreadyConfiguredError) Error() string {
	return fmt.Sprintf("the driver %q is already configured", e.Driver)
}

func (e *AlreadyConfiguredError) Is(target error) bool { return target == ErrAlreadyConfigured }

// CacheConnectionError is returned by a driver whose backend is unreachable.
type CacheConnectionError struct {
	Driver string
	Err    error
}

func (e *CacheConnectionError) Error() string {
	return fmt.Sprintf("error on %s connection: %v", e.Driver, e.Err)
}

func (e *CacheConnectionError) Is(target error) bool { return target == ErrCacheConnection }

func (e *CacheConnectionError) Unwrap() error { return e.Err }

// ForbiddenError describes a denied request.
type ForbiddenError struct {
	Address string
	Mode    string
	Pattern string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s is not allowed by rule %q with pattern %q", e.Address, e.Mode, e.Pattern)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }
