// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/zap"
)

// writeFile writes the complete archive to path.
func (a *Archive) writeFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer file.Close()

	bw := bufio.NewWriter(file)
	if _, err := a.WriteTo(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	return file.Close()
}

// WriteTo serializes the archive to w: header, TOC, then payloads in file
// index order. Ranges, name offsets, data offsets, sizes and checksums are
// recomputed; payloads of files read from an archive are copied as stored and
// their records keep every version-specific field. All validation happens
// before the first byte is written.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	l, err := layoutFor(a.Header.Version)
	if err != nil {
		return 0, err
	}
	ft, err := flatten(l, a.Drives, a.Folders, a.Files)
	if err != nil {
		return 0, fmt.Errorf("lay out tree: %w", err)
	}

	// Write payload data and build file records
	records := make([]FileRecord, len(ft.fileOrder))
	payloads := make([][]byte, len(ft.fileOrder))
	var dataSize int64
	for n, old := range ft.fileOrder {
		f := &a.Files[old]
		if !fitsUint32(dataSize) {
			return 0, fmt.Errorf("%w: data block exceeds 32-bit offsets at %q", ErrInvalidRecord, f.Name)
		}
		stored, rec, err := a.encodeFile(l, f, ft.fileNames[n], uint32(dataSize))
		if err != nil {
			return 0, fmt.Errorf("encode file %s: %w", f.Name, err)
		}
		records[n], payloads[n] = rec, stored
		dataSize += int64(len(stored))
	}

	toc, err := buildTOC(l, ft, records)
	if err != nil {
		return 0, err
	}

	h := a.Header
	h.TOCOffset = l.headerSize
	h.TOCSize = int64(len(toc))
	h.DataOffset = l.headerSize + h.TOCSize
	h.DataSize = dataSize
	if h.Version.HasChecksums() {
		h.Checksums = computeChecksums(toc, payloads)
	}

	var header bytes.Buffer
	if err := writeHeader(&header, &h); err != nil {
		return 0, err
	}
	if int64(header.Len()) != l.headerSize {
		return 0, fmt.Errorf("%w: %s header encoded to %d bytes, want %d",
			ErrInvalidRecord, h.Version, header.Len(), l.headerSize)
	}

	a.log.Debug("writing archive",
		zap.Stringer("version", h.Version),
		zap.Int("files", len(records)),
		zap.Int64("tocSize", h.TOCSize),
		zap.Int64("dataSize", dataSize))

	var written int64
	for _, chunk := range append([][]byte{header.Bytes(), toc}, payloads...) {
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write archive: %w", err)
		}
	}
	return written, nil
}

// encodeFile returns the stored bytes and record for one file.
func (a *Archive) encodeFile(l *layout, f *File, nameOffset, dataOffset uint32) ([]byte, FileRecord, error) {
	if f.record != nil {
		a.mu.RLock()
		stored, ok := f.data, f.resolved
		a.mu.RUnlock()
		if !ok {
			var err error
			if stored, err = a.payloads.ReadStored(f.loc); err != nil {
				return nil, nil, err
			}
		}
		if int64(len(stored)) != f.loc.StoredSize {
			return nil, nil, fmt.Errorf("%w: holds %d stored bytes, record says %d",
				ErrInvalidRecord, len(stored), f.loc.StoredSize)
		}
		return stored, f.record.withOffsets(nameOffset, dataOffset), nil
	}

	if int64(len(f.data)) > math.MaxUint32 {
		return nil, nil, fmt.Errorf("%w: %d bytes exceed 32-bit sizes", ErrInvalidRecord, len(f.data))
	}
	stored, window, err := encodePayload(f.data)
	if err != nil {
		return nil, nil, err
	}
	rec := l.newFile(fileFields{
		nameOffset:       nameOffset,
		dataOffset:       dataOffset,
		compressedSize:   uint32(len(stored)),
		decompressedSize: uint32(len(f.data)),
		window:           window,
	})
	return stored, rec, nil
}

// buildTOC encodes the pointer block, record tables and name blob.
func buildTOC(l *layout, ft *flatTOC, files []FileRecord) ([]byte, error) {
	var ptrs tocPointers
	off := l.pointerSize
	ptrs.Drives = tocPointer{Offset: uint32(off), Count: uint32(len(ft.drives))}
	off += int64(len(ft.drives)) * l.driveSize
	ptrs.Folders = tocPointer{Offset: uint32(off), Count: uint32(len(ft.folders))}
	off += int64(len(ft.folders)) * l.folderSize
	ptrs.Files = tocPointer{Offset: uint32(off), Count: uint32(len(files))}
	off += int64(len(files)) * l.fileSize
	ptrs.Names = tocPointer{Offset: uint32(off), Count: ft.names.count(l.countedNames)}
	if total := off + int64(len(ft.names.bytes())); !fitsUint32(total) {
		return nil, fmt.Errorf("%w: TOC of %d bytes exceeds 32-bit offsets", ErrInvalidRecord, total)
	}

	var buf bytes.Buffer
	if err := l.writePointers(&buf, ptrs); err != nil {
		return nil, err
	}
	for _, rec := range ft.drives {
		if _, err := packRecord(&buf, rec); err != nil {
			return nil, fmt.Errorf("pack drive: %w", err)
		}
	}
	for _, rec := range ft.folders {
		if _, err := packRecord(&buf, rec); err != nil {
			return nil, fmt.Errorf("pack folder: %w", err)
		}
	}
	for _, rec := range files {
		if _, err := packRecord(&buf, rec); err != nil {
			return nil, fmt.Errorf("pack file: %w", err)
		}
	}
	buf.Write(ft.names.bytes())
	return buf.Bytes(), nil
}

// computeChecksums returns the header digest over the TOC and the file digest
// over the TOC followed by the data block.
func computeChecksums(toc []byte, payloads [][]byte) *Checksums {
	var c Checksums
	hh := newSaltedMD5(headerEigen)
	hh.Write(toc)
	hh.Sum(c.Header[:0])

	fh := newSaltedMD5(fileEigen)
	fh.Write(toc)
	for _, p := range payloads {
		fh.Write(p)
	}
	fh.Sum(c.File[:0])
	return &c
}
