// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

const (
	// zlib CMF compression method
	zlibDeflate = 8

	// deflate cannot expand input by more than this factor
	maxDeflateRatio = 1032
)

// encodePayload applies the writer's compression policy: files under 16 KiB
// are stored, files up to 1 MiB use a 16 KiB window and larger files use a
// 32 KiB window. A stream that does not shrink the data is discarded.
// It returns the stored bytes and the window used (0 when stored).
func encodePayload(data []byte) ([]byte, int, error) {
	if len(data) < minCompressSize {
		return data, 0, nil
	}
	window := window16K
	if len(data) > smallWindowLimit {
		window = window32K
	}

	compressed, err := compressZlib(data, window)
	if err != nil {
		return nil, 0, err
	}
	if len(compressed) >= len(data) {
		return data, 0, nil
	}
	return compressed, window, nil
}

// compressZlib produces an RFC 1950 stream whose header advertises window and
// whose back references never reach further than window bytes.
func compressZlib(data []byte, window int) ([]byte, error) {
	var buf bytes.Buffer
	if window >= window32K {
		w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("create zlib writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("zlib write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zlib close: %w", err)
		}
		return buf.Bytes(), nil
	}

	buf.Write(zlibHeader(window))

	// Each window-sized segment is deflated with a fresh history, joined by
	// sync flushes, so no match distance crosses a segment boundary.
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("create deflate writer: %w", err)
	}
	for off := 0; off < len(data); off += window {
		end := min(off+window, len(data))
		if _, err := fw.Write(data[off:end]); err != nil {
			return nil, fmt.Errorf("deflate write: %w", err)
		}
		if end < len(data) {
			if err := fw.Flush(); err != nil {
				return nil, fmt.Errorf("deflate flush: %w", err)
			}
			fw.Reset(&buf)
		}
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("deflate close: %w", err)
	}

	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], adler32.Checksum(data))
	buf.Write(trailer[:])
	return buf.Bytes(), nil
}

// zlibHeader returns the CMF/FLG pair for a deflate stream with the given
// window size and the maximum-compression level hint.
func zlibHeader(window int) []byte {
	cinfo := 0
	for w := window >> 8; w > 1; w >>= 1 {
		cinfo++
	}
	cmf := byte(cinfo<<4 | zlibDeflate)
	flg := byte(3 << 6)
	if rem := (uint(cmf)<<8 | uint(flg)) % 31; rem != 0 {
		flg += byte(31 - rem)
	}
	return []byte{cmf, flg}
}

// decompressZlib inflates stored into exactly size bytes. The buffer grows
// with the output, so a forged size cannot force a large allocation.
func decompressZlib(stored []byte, size int64) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer r.Close()

	out := bytes.NewBuffer(make([]byte, 0, min(size, int64(len(stored))*maxDeflateRatio)))
	// Reading one byte past size drains the stream, which verifies the
	// Adler-32 trailer and exposes streams that inflate too far.
	n, err := io.Copy(out, io.LimitReader(r, size+1))
	if err != nil {
		return nil, fmt.Errorf("%w: inflate %d bytes: %v", ErrDecode, size, err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: stream inflates to %d bytes, want %d", ErrDecode, n, size)
	}
	return out.Bytes(), nil
}
