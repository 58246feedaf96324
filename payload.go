// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"errors"
	"fmt"
	"io"
	"sync"

	arc "github.com/hashicorp/golang-lru/arc/v2"
)

// PayloadLocation describes where a file's stored bytes live.
type PayloadLocation struct {
	Offset     int64 // absolute offset in the backing source
	StoredSize int64 // bytes on disk
	Size       int64 // bytes after decompression
}

// Compressed reports whether the stored bytes are a zlib stream. Equal sizes
// always mean the bytes are stored raw.
func (l PayloadLocation) Compressed() bool { return l.StoredSize != l.Size }

// PayloadReader resolves PayloadLocations against a positioned reader. It
// holds no per-file state, so one reader serves any number of files and
// concurrent calls are safe whenever the underlying io.ReaderAt is.
type PayloadReader struct {
	src   io.ReaderAt
	cache *arc.ARCCache[PayloadLocation, []byte]
}

// NewPayloadReader returns a reader over src. When cacheSize is positive the
// most useful cacheSize inflated payloads are kept in an ARC cache.
func NewPayloadReader(src io.ReaderAt, cacheSize int) (*PayloadReader, error) {
	p := &PayloadReader{src: src}
	if cacheSize > 0 {
		c, err := arc.NewARC[PayloadLocation, []byte](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create payload cache: %w", err)
		}
		p.cache = c
	}
	return p, nil
}

// ReadStored returns the bytes exactly as stored in the archive.
func (p *PayloadReader) ReadStored(loc PayloadLocation) ([]byte, error) {
	buf := make([]byte, loc.StoredSize)
	n, err := p.src.ReadAt(buf, loc.Offset)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, truncated(err, fmt.Sprintf("read %d payload bytes at %d", loc.StoredSize, loc.Offset))
}

// Read returns the payload at loc, inflating it when decompress is set and the
// payload is compressed. Returned slices may be shared with the cache and must
// not be modified.
func (p *PayloadReader) Read(loc PayloadLocation, decompress bool) ([]byte, error) {
	if !decompress || !loc.Compressed() {
		return p.ReadStored(loc)
	}
	if p.cache != nil {
		if b, ok := p.cache.Get(loc); ok {
			return b, nil
		}
	}
	stored, err := p.ReadStored(loc)
	if err != nil {
		return nil, err
	}
	out, err := decodeStored(stored, loc, true)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.Add(loc, out)
	}
	return out, nil
}

// decodeStored turns stored bytes into the requested representation.
func decodeStored(stored []byte, loc PayloadLocation, decompress bool) ([]byte, error) {
	if !decompress || !loc.Compressed() {
		return stored, nil
	}
	return decompressZlib(stored, loc.Size)
}

// seekReaderAt adapts an io.ReadSeeker to io.ReaderAt. The shared seek
// position is guarded by a mutex, so concurrent reads are serialized.
type seekReaderAt struct {
	mu sync.Mutex
	rs io.ReadSeeker
}

func (s *seekReaderAt) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(s.rs, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}
