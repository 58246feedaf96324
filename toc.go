// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Pointer block sizes
const (
	pointerSize16 = 24 // 4x (u32 offset, u16 count)
	pointerSize32 = 32 // 4x (u32 offset, u32 count)
)

// tocPointer locates one table inside the TOC block.
type tocPointer struct {
	Offset uint32 // relative to the TOC start
	Count  uint32 // records, or for the name blob: strings (v2/v5) or bytes (v9)
}

// tocPointers locates the drive, folder and file tables and the name blob.
type tocPointers struct {
	Drives  tocPointer
	Folders tocPointer
	Files   tocPointer
	Names   tocPointer
}

func (p *tocPointers) all() []*tocPointer {
	return []*tocPointer{&p.Drives, &p.Folders, &p.Files, &p.Names}
}

type pointer16 struct {
	Offset uint32
	Count  uint16
}

type pointer32 struct {
	Offset uint32
	Count  uint32
}

func readPointers16(r io.Reader) (tocPointers, error) {
	var raw [4]pointer16
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return tocPointers{}, truncated(err, "read TOC pointers")
	}
	var p tocPointers
	for i, dst := range p.all() {
		*dst = tocPointer{Offset: raw[i].Offset, Count: uint32(raw[i].Count)}
	}
	return p, nil
}

func writePointers16(w io.Writer, p tocPointers) error {
	var raw [4]pointer16
	for i, src := range p.all() {
		if src.Count > math.MaxUint16 {
			return fmt.Errorf("%w: TOC count %d exceeds 16 bits", ErrInvalidRecord, src.Count)
		}
		raw[i] = pointer16{Offset: src.Offset, Count: uint16(src.Count)}
	}
	return binary.Write(w, binary.LittleEndian, &raw)
}

func readPointers32(r io.Reader) (tocPointers, error) {
	var raw [4]pointer32
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return tocPointers{}, truncated(err, "read TOC pointers")
	}
	var p tocPointers
	for i, dst := range p.all() {
		*dst = tocPointer(raw[i])
	}
	return p, nil
}

func writePointers32(w io.Writer, p tocPointers) error {
	var raw [4]pointer32
	for i, src := range p.all() {
		raw[i] = pointer32(*src)
	}
	return binary.Write(w, binary.LittleEndian, &raw)
}

// tocTables holds the decoded contents of a TOC block.
type tocTables struct {
	drives  []DriveRecord
	folders []FolderRecord
	files   []FileRecord
	names   nameTable
}

// readTOC decodes the pointer block, the three record tables and the name
// blob from a reader spanning exactly the TOC block.
func readTOC(toc *io.SectionReader, l *layout) (*tocTables, error) {
	ptrs, err := l.readPointers(io.NewSectionReader(toc, 0, toc.Size()))
	if err != nil {
		return nil, err
	}

	table := func(p tocPointer, recSize int64, what string) (*io.SectionReader, error) {
		if p.Count == 0 {
			return io.NewSectionReader(toc, 0, 0), nil
		}
		end := int64(p.Offset) + int64(p.Count)*recSize
		if int64(p.Offset) < l.pointerSize || end > toc.Size() {
			return nil, fmt.Errorf("%w: %s table [%d,%d) outside TOC of %d bytes",
				ErrTruncatedStream, what, p.Offset, end, toc.Size())
		}
		return io.NewSectionReader(toc, int64(p.Offset), end-int64(p.Offset)), nil
	}

	t := &tocTables{}

	sr, err := table(ptrs.Drives, l.driveSize, "drive")
	if err != nil {
		return nil, err
	}
	if t.drives, err = l.readDrives(sr, int(ptrs.Drives.Count)); err != nil {
		return nil, fmt.Errorf("read drives: %w", err)
	}

	if sr, err = table(ptrs.Folders, l.folderSize, "folder"); err != nil {
		return nil, err
	}
	if t.folders, err = l.readFolders(sr, int(ptrs.Folders.Count)); err != nil {
		return nil, fmt.Errorf("read folders: %w", err)
	}

	if sr, err = table(ptrs.Files, l.fileSize, "file"); err != nil {
		return nil, err
	}
	if t.files, err = l.readFiles(sr, int(ptrs.Files.Count)); err != nil {
		return nil, fmt.Errorf("read files: %w", err)
	}

	if ptrs.Names.Count == 0 {
		t.names = nameTable{}
		return t, nil
	}
	if int64(ptrs.Names.Offset) < l.pointerSize || int64(ptrs.Names.Offset) > toc.Size() {
		return nil, fmt.Errorf("%w: name blob offset %d outside TOC of %d bytes",
			ErrTruncatedStream, ptrs.Names.Offset, toc.Size())
	}
	blob := io.NewSectionReader(toc, int64(ptrs.Names.Offset), toc.Size()-int64(ptrs.Names.Offset))
	if l.countedNames {
		t.names, err = readNamesCounted(blob, int(ptrs.Names.Count))
	} else {
		t.names, err = readNamesSized(blob, int64(ptrs.Names.Count))
	}
	if err != nil {
		return nil, fmt.Errorf("read names: %w", err)
	}

	return t, nil
}
