// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package textutil converts the fixed-width, NUL-padded string fields found in
// SGA headers and drive records.
package textutil

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

var (
	// ErrTooLong is returned when a string does not fit its fixed-width field.
	ErrTooLong = errors.New("string exceeds field width")
	// ErrNotASCII is returned when an ASCII field is given a non-ASCII string.
	ErrNotASCII = errors.New("string is not ASCII")
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeASCII returns the bytes of field up to the first NUL.
func DecodeASCII(field []byte) string {
	for i, c := range field {
		if c == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}

// EncodeASCII writes s into field and zero-fills the remainder.
func EncodeASCII(field []byte, s string) error {
	if len(s) > len(field) {
		return fmt.Errorf("%w: %q is %d bytes, field holds %d", ErrTooLong, s, len(s), len(field))
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return fmt.Errorf("%w: %q", ErrNotASCII, s)
		}
	}
	n := copy(field, s)
	clear(field[n:])
	return nil
}

// DecodeUTF16 decodes a UTF-16LE field, stopping at the first NUL code unit.
func DecodeUTF16(field []byte) (string, error) {
	end := len(field) &^ 1
	for i := 0; i+1 < len(field); i += 2 {
		if field[i] == 0 && field[i+1] == 0 {
			end = i
			break
		}
	}
	out, err := utf16le.NewDecoder().Bytes(field[:end])
	if err != nil {
		return "", fmt.Errorf("decode utf-16 name: %w", err)
	}
	return string(out), nil
}

// EncodeUTF16 writes s as UTF-16LE into field and zero-fills the remainder.
func EncodeUTF16(field []byte, s string) error {
	enc, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return fmt.Errorf("encode utf-16 name: %w", err)
	}
	if len(enc) > len(field) {
		return fmt.Errorf("%w: %q needs %d code units, field holds %d", ErrTooLong, s, len(enc)/2, len(field)/2)
	}
	n := copy(field, enc)
	clear(field[n:])
	return nil
}
