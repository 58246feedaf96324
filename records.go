// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/suprsokr/go-sga/internal/textutil"
)

// Range is a half-open index interval [Start, End) into a flat record table.
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices covered by r.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether i lies in r.
func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

// Overlaps reports whether r and o share at least one index.
func (r Range) Overlaps(o Range) bool {
	return r.Len() > 0 && o.Len() > 0 && r.Start < o.End && o.Start < r.End
}

func (r Range) validFor(n int) bool {
	return r.Start >= 0 && r.Start <= r.End && r.End <= n
}

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// DriveRecord is the on-disk description of a virtual drive.
type DriveRecord interface {
	Alias() string
	DriveName() string
	FolderRange() Range
	FileRange() Range
	RootFolder() int
}

// FolderRecord is the on-disk description of a folder.
type FolderRecord interface {
	NameOffset() uint32
	FolderRange() Range
	FileRange() Range
}

// FileRecord is the on-disk description of a file. Version-specific fields
// live on the concrete types (FileRecordV2, FileRecordV5, FileRecordV9).
type FileRecord interface {
	NameOffset() uint32
	DataOffset() uint32 // relative to the data block
	CompressedSize() uint32
	DecompressedSize() uint32

	// withOffsets returns a copy pointing at new name and data offsets.
	withOffsets(nameOffset, dataOffset uint32) FileRecord
}

// DriveRecordV2 is the v2/v5 drive record (138 bytes).
type DriveRecordV2 struct {
	AliasField  [driveStringSize]byte
	NameField   [driveStringSize]byte
	FirstFolder uint16
	LastFolder  uint16
	FirstFile   uint16
	LastFile    uint16
	Root        uint16
}

func (d *DriveRecordV2) Alias() string      { return textutil.DecodeASCII(d.AliasField[:]) }
func (d *DriveRecordV2) DriveName() string  { return textutil.DecodeASCII(d.NameField[:]) }
func (d *DriveRecordV2) FolderRange() Range { return Range{int(d.FirstFolder), int(d.LastFolder)} }
func (d *DriveRecordV2) FileRange() Range   { return Range{int(d.FirstFile), int(d.LastFile)} }
func (d *DriveRecordV2) RootFolder() int    { return int(d.Root) }

// DriveRecordV9 is the v9 drive record (148 bytes).
type DriveRecordV9 struct {
	AliasField  [driveStringSize]byte
	NameField   [driveStringSize]byte
	FirstFolder uint32
	LastFolder  uint32
	FirstFile   uint32
	LastFile    uint32
	Root        uint32
}

func (d *DriveRecordV9) Alias() string      { return textutil.DecodeASCII(d.AliasField[:]) }
func (d *DriveRecordV9) DriveName() string  { return textutil.DecodeASCII(d.NameField[:]) }
func (d *DriveRecordV9) FolderRange() Range { return Range{int(d.FirstFolder), int(d.LastFolder)} }
func (d *DriveRecordV9) FileRange() Range   { return Range{int(d.FirstFile), int(d.LastFile)} }
func (d *DriveRecordV9) RootFolder() int    { return int(d.Root) }

// FolderRecordV2 is the v2/v5 folder record (12 bytes).
type FolderRecordV2 struct {
	NameOff     uint32
	FirstFolder uint16
	LastFolder  uint16
	FirstFile   uint16
	LastFile    uint16
}

func (f *FolderRecordV2) NameOffset() uint32 { return f.NameOff }
func (f *FolderRecordV2) FolderRange() Range { return Range{int(f.FirstFolder), int(f.LastFolder)} }
func (f *FolderRecordV2) FileRange() Range   { return Range{int(f.FirstFile), int(f.LastFile)} }

// FolderRecordV9 is the v9 folder record (20 bytes).
type FolderRecordV9 struct {
	NameOff     uint32
	FirstFolder uint32
	LastFolder  uint32
	FirstFile   uint32
	LastFile    uint32
}

func (f *FolderRecordV9) NameOffset() uint32 { return f.NameOff }
func (f *FolderRecordV9) FolderRange() Range { return Range{int(f.FirstFolder), int(f.LastFolder)} }
func (f *FolderRecordV9) FileRange() Range   { return Range{int(f.FirstFile), int(f.LastFile)} }

// FileRecordV2 is the v2 file record (20 bytes).
type FileRecordV2 struct {
	NameOff         uint32
	CompressionFlag uint32 // 0 stored, 16 or 32 zlib
	DataOff         uint32
	DecompSize      uint32
	CompSize        uint32
}

func (f *FileRecordV2) NameOffset() uint32       { return f.NameOff }
func (f *FileRecordV2) DataOffset() uint32       { return f.DataOff }
func (f *FileRecordV2) CompressedSize() uint32   { return f.CompSize }
func (f *FileRecordV2) DecompressedSize() uint32 { return f.DecompSize }

func (f *FileRecordV2) withOffsets(nameOffset, dataOffset uint32) FileRecord {
	c := *f
	c.NameOff, c.DataOff = nameOffset, dataOffset
	return &c
}

// FileRecordV5 is the v5 file record (24 bytes). The trailing fields have no
// confirmed meaning and are preserved verbatim.
type FileRecordV5 struct {
	NameOff    uint32
	DataOff    uint32
	CompSize   uint32
	DecompSize uint32
	Unknown1   uint32
	Unknown2   uint32
}

func (f *FileRecordV5) NameOffset() uint32       { return f.NameOff }
func (f *FileRecordV5) DataOffset() uint32       { return f.DataOff }
func (f *FileRecordV5) CompressedSize() uint32   { return f.CompSize }
func (f *FileRecordV5) DecompressedSize() uint32 { return f.DecompSize }

func (f *FileRecordV5) withOffsets(nameOffset, dataOffset uint32) FileRecord {
	c := *f
	c.NameOff, c.DataOff = nameOffset, dataOffset
	return &c
}

// FileRecordV9 is the v9 file record (36 bytes). Only the name offset, data
// offset and the two sizes are interpreted.
type FileRecordV9 struct {
	NameOff      uint32
	HashOff      uint32
	DataOff      uint32
	CompSize     uint32
	DecompSize   uint32
	Storage      uint32
	Verification uint32 // looks like a second compression indicator
	ModTime      uint32
	CRC          uint32
}

func (f *FileRecordV9) NameOffset() uint32       { return f.NameOff }
func (f *FileRecordV9) DataOffset() uint32       { return f.DataOff }
func (f *FileRecordV9) CompressedSize() uint32   { return f.CompSize }
func (f *FileRecordV9) DecompressedSize() uint32 { return f.DecompSize }

func (f *FileRecordV9) withOffsets(nameOffset, dataOffset uint32) FileRecord {
	c := *f
	c.NameOff, c.DataOff = nameOffset, dataOffset
	return &c
}

// unpackRecords reads n fixed-size records.
func unpackRecords[T any](r io.Reader, n int) ([]T, error) {
	recs := make([]T, n)
	if n == 0 {
		return recs, nil
	}
	if err := binary.Read(r, binary.LittleEndian, recs); err != nil {
		return nil, truncated(err, fmt.Sprintf("read %d records", n))
	}
	return recs, nil
}

func readDriveRecords[T any, PT interface {
	*T
	DriveRecord
}](r io.Reader, n int) ([]DriveRecord, error) {
	recs, err := unpackRecords[T](r, n)
	if err != nil {
		return nil, err
	}
	out := make([]DriveRecord, n)
	for i := range recs {
		out[i] = PT(&recs[i])
	}
	return out, nil
}

func readFolderRecords[T any, PT interface {
	*T
	FolderRecord
}](r io.Reader, n int) ([]FolderRecord, error) {
	recs, err := unpackRecords[T](r, n)
	if err != nil {
		return nil, err
	}
	out := make([]FolderRecord, n)
	for i := range recs {
		out[i] = PT(&recs[i])
	}
	return out, nil
}

func readFileRecords[T any, PT interface {
	*T
	FileRecord
}](r io.Reader, n int) ([]FileRecord, error) {
	recs, err := unpackRecords[T](r, n)
	if err != nil {
		return nil, err
	}
	out := make([]FileRecord, n)
	for i := range recs {
		out[i] = PT(&recs[i])
	}
	return out, nil
}

// packRecord writes one record and returns the number of bytes written.
func packRecord(w io.Writer, rec any) (int, error) {
	if err := binary.Write(w, binary.LittleEndian, rec); err != nil {
		return 0, err
	}
	return binary.Size(rec), nil
}

func encodeDriveString(field []byte, s, what string) error {
	if err := textutil.EncodeASCII(field, s); err != nil {
		if errors.Is(err, textutil.ErrTooLong) {
			return fmt.Errorf("%w: drive %s: %v", ErrNameTooLong, what, err)
		}
		return fmt.Errorf("%w: drive %s: %v", ErrInvalidName, what, err)
	}
	return nil
}

func newDriveRecordV2(alias, name string, folders, files Range, root int) (DriveRecord, error) {
	d := &DriveRecordV2{}
	if err := encodeDriveString(d.AliasField[:], alias, "alias"); err != nil {
		return nil, err
	}
	if err := encodeDriveString(d.NameField[:], name, "name"); err != nil {
		return nil, err
	}
	for _, v := range []int{folders.Start, folders.End, files.Start, files.End, root} {
		if v < 0 || v > math.MaxUint16 {
			return nil, fmt.Errorf("%w: drive %q index %d exceeds 16 bits", ErrInvalidRecord, alias, v)
		}
	}
	d.FirstFolder, d.LastFolder = uint16(folders.Start), uint16(folders.End)
	d.FirstFile, d.LastFile = uint16(files.Start), uint16(files.End)
	d.Root = uint16(root)
	return d, nil
}

func newDriveRecordV9(alias, name string, folders, files Range, root int) (DriveRecord, error) {
	d := &DriveRecordV9{}
	if err := encodeDriveString(d.AliasField[:], alias, "alias"); err != nil {
		return nil, err
	}
	if err := encodeDriveString(d.NameField[:], name, "name"); err != nil {
		return nil, err
	}
	d.FirstFolder, d.LastFolder = uint32(folders.Start), uint32(folders.End)
	d.FirstFile, d.LastFile = uint32(files.Start), uint32(files.End)
	d.Root = uint32(root)
	return d, nil
}

// Folder constructors assume the caller has checked indices against the
// layout's maxIndex.
func newFolderRecordV2(nameOffset uint32, folders, files Range) FolderRecord {
	return &FolderRecordV2{
		NameOff:     nameOffset,
		FirstFolder: uint16(folders.Start),
		LastFolder:  uint16(folders.End),
		FirstFile:   uint16(files.Start),
		LastFile:    uint16(files.End),
	}
}

func newFolderRecordV9(nameOffset uint32, folders, files Range) FolderRecord {
	return &FolderRecordV9{
		NameOff:     nameOffset,
		FirstFolder: uint32(folders.Start),
		LastFolder:  uint32(folders.End),
		FirstFile:   uint32(files.Start),
		LastFile:    uint32(files.End),
	}
}

// fileFields carries what the writer knows about a freshly encoded payload.
type fileFields struct {
	nameOffset       uint32
	dataOffset       uint32
	compressedSize   uint32
	decompressedSize uint32
	window           int // 0 when stored
}

func newFileRecordV2(f fileFields) FileRecord {
	flag := uint32(compressionStored)
	switch f.window {
	case window16K:
		flag = compression16K
	case window32K:
		flag = compression32K
	}
	return &FileRecordV2{
		NameOff:         f.nameOffset,
		CompressionFlag: flag,
		DataOff:         f.dataOffset,
		DecompSize:      f.decompressedSize,
		CompSize:        f.compressedSize,
	}
}

func newFileRecordV5(f fileFields) FileRecord {
	return &FileRecordV5{
		NameOff:    f.nameOffset,
		DataOff:    f.dataOffset,
		CompSize:   f.compressedSize,
		DecompSize: f.decompressedSize,
	}
}

func newFileRecordV9(f fileFields) FileRecord {
	return &FileRecordV9{
		NameOff:    f.nameOffset,
		DataOff:    f.dataOffset,
		CompSize:   f.compressedSize,
		DecompSize: f.decompressedSize,
	}
}
