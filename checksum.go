// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"crypto/md5"
	"fmt"
	"hash"
	"io"
)

// VerifyMode selects how much of an archive Verify hashes.
type VerifyMode int

const (
	// VerifyNone skips checksum validation.
	VerifyNone VerifyMode = iota
	// VerifyFast checks the header digest, which covers the TOC only.
	VerifyFast
	// VerifyFull additionally checks the file digest over TOC and data (v2).
	VerifyFull
)

func (m VerifyMode) String() string {
	switch m {
	case VerifyNone:
		return "none"
	case VerifyFast:
		return "fast"
	case VerifyFull:
		return "full"
	}
	return fmt.Sprintf("VerifyMode(%d)", int(m))
}

// newSaltedMD5 returns an MD5 hash primed with one of the format's salts.
func newSaltedMD5(eigen string) hash.Hash {
	h := md5.New()
	io.WriteString(h, eigen)
	return h
}

// region is a span of the backing source.
type region struct {
	offset, size int64
}

// digestRegions hashes eigen followed by the given regions of src.
func digestRegions(src io.ReaderAt, eigen string, regions ...region) ([16]byte, error) {
	h := newSaltedMD5(eigen)
	for _, r := range regions {
		n, err := io.Copy(h, io.NewSectionReader(src, r.offset, r.size))
		if err != nil {
			return [16]byte{}, fmt.Errorf("hash %d bytes at %d: %w", r.size, r.offset, err)
		}
		if n != r.size {
			return [16]byte{}, fmt.Errorf("%w: hashed %d of %d bytes at %d", ErrTruncatedStream, n, r.size, r.offset)
		}
	}
	var sum [16]byte
	h.Sum(sum[:0])
	return sum, nil
}

// verifyChecksums validates the header digests of an archive read from src.
// Archives without checksums (v9) always pass. The file digest is checked in
// VerifyFull mode for v2 archives only; v5 file digests are carried but their
// coverage is unconfirmed.
func verifyChecksums(src io.ReaderAt, size int64, h *ArchiveHeader, mode VerifyMode) error {
	if mode == VerifyNone || h.Checksums == nil {
		return nil
	}
	toc := region{h.TOCOffset, h.TOCSize}

	got, err := digestRegions(src, headerEigen, toc)
	if err != nil {
		return err
	}
	if got != h.Checksums.Header {
		return &IntegrityError{Digest: "header", Want: h.Checksums.Header, Got: got}
	}

	if mode < VerifyFull || h.Version != V2 {
		return nil
	}
	got, err = digestRegions(src, fileEigen, toc, region{h.DataOffset, size - h.DataOffset})
	if err != nil {
		return err
	}
	if got != h.Checksums.File {
		return &IntegrityError{Digest: "file", Want: h.Checksums.File, Got: got}
	}
	return nil
}
