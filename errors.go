// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"errors"
	"fmt"
	"io"
)

// Sentinel errors. Every error returned by this package that belongs to one of
// these classes wraps the sentinel, so callers can test with errors.Is.
var (
	ErrBadMagic           = errors.New("bad SGA magic")
	ErrUnsupportedVersion = errors.New("unsupported SGA version")
	ErrTruncatedStream    = errors.New("truncated stream")
	ErrDanglingNameOffset = errors.New("dangling name offset")
	ErrDanglingRange      = errors.New("dangling range")
	ErrAmbiguousParent    = errors.New("ambiguous parent")
	ErrInvalidRecord      = errors.New("invalid record")
	ErrIntegrity          = errors.New("integrity check failed")
	ErrDecode             = errors.New("payload decode failed")
	ErrNameTooLong        = errors.New("name too long")
	ErrInvalidName        = errors.New("invalid name")
	ErrNotFound           = errors.New("file not found")
	ErrReadOnly           = errors.New("archive not opened for writing")
	ErrWriteOnly          = errors.New("archive not opened for reading")
)

// IntegrityError reports a checksum mismatch.
type IntegrityError struct {
	Digest string // "header" (TOC only) or "file" (TOC + data)
	Want   [16]byte
	Got    [16]byte
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %s digest %x, computed %x", ErrIntegrity, e.Digest, e.Want, e.Got)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// truncated maps short-read errors onto ErrTruncatedStream.
func truncated(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s", ErrTruncatedStream, what)
	}
	return fmt.Errorf("%s: %w", what, err)
}
