// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"
)

// nameScanBufferSize is the read chunk used when scanning a counted name blob.
// Strings may straddle chunk boundaries.
const nameScanBufferSize = 4096

// nameTable maps an offset relative to the name blob start to its string.
type nameTable map[uint32]string

func (t nameTable) lookup(offset uint32) (string, error) {
	s, ok := t[offset]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrDanglingNameOffset, offset)
	}
	return s, nil
}

// readNamesCounted reads count NUL-terminated strings (v2/v5 form).
func readNamesCounted(r io.Reader, count int) (nameTable, error) {
	return scanNames(bufio.NewReaderSize(r, nameScanBufferSize), count)
}

func scanNames(br *bufio.Reader, count int) (nameTable, error) {
	names := make(nameTable, count)
	var offset uint32
	for i := 0; i < count; i++ {
		b, err := br.ReadBytes(0)
		if err != nil {
			return nil, truncated(err, fmt.Sprintf("read name %d of %d", i, count))
		}
		names[offset] = string(b[:len(b)-1])
		offset += uint32(len(b))
	}
	return names, nil
}

// readNamesSized reads a blob of exactly size bytes and splits it on NUL
// (v9 form). size is checked against the section before allocating.
func readNamesSized(r *io.SectionReader, size int64) (nameTable, error) {
	if size > r.Size() {
		return nil, fmt.Errorf("%w: %d byte name blob, %d bytes left in TOC", ErrTruncatedStream, size, r.Size())
	}
	blob := make([]byte, size)
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, truncated(err, fmt.Sprintf("read %d byte name blob", size))
	}
	names := make(nameTable)
	var offset uint32
	for len(blob) > 0 {
		i := bytes.IndexByte(blob, 0)
		if i < 0 {
			names[offset] = string(blob)
			break
		}
		names[offset] = string(blob[:i])
		offset += uint32(i + 1)
		blob = blob[i+1:]
	}
	return names, nil
}

// namePool builds a deduplicated name blob for writing.
type namePool struct {
	buf     bytes.Buffer
	offsets map[string]uint32
}

func newNamePool() *namePool {
	return &namePool{offsets: make(map[string]uint32)}
}

// add interns s and returns its offset in the blob.
func (p *namePool) add(s string) (uint32, error) {
	if off, ok := p.offsets[s]; ok {
		return off, nil
	}
	if strings.IndexByte(s, 0) >= 0 {
		return 0, fmt.Errorf("%w: %q contains NUL", ErrInvalidName, s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return 0, fmt.Errorf("%w: %q is not ASCII", ErrInvalidName, s)
		}
	}
	if int64(p.buf.Len())+int64(len(s))+1 > math.MaxUint32 {
		return 0, fmt.Errorf("%w: name blob exceeds 32 bits", ErrInvalidRecord)
	}
	off := uint32(p.buf.Len())
	p.buf.WriteString(s)
	p.buf.WriteByte(0)
	p.offsets[s] = off
	return off, nil
}

// count returns the value stored in the TOC pointer for the blob.
func (p *namePool) count(counted bool) uint32 {
	if counted {
		return uint32(len(p.offsets))
	}
	return uint32(p.buf.Len())
}

func (p *namePool) bytes() []byte { return p.buf.Bytes() }
