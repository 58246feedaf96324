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

// SGA format constants
const (
	magicWord = "_ARCHIVE"

	// Header sizes, including the 8-byte magic and the 2x u16 version
	prefixSize   = 12
	headerSizeV2 = 180
	headerSizeV5 = 196
	headerSizeV9 = 432

	archiveNameSize = 128 // UTF-16LE, 64 code units
	driveStringSize = 64  // ASCII, NUL padded

	// MD5 salts prepended to the hashed buffers
	fileEigen   = "E01519D6-2DB7-4640-AF54-0A23319C56C3"
	headerEigen = "DFC9AF62-FC1B-4180-BC27-11CCE87D3EFF"

	// v2 file record compression flags
	compressionStored = 0
	compression16K    = 16
	compression32K    = 32

	// Writer compression policy
	minCompressSize  = 16 << 10 // smaller files are stored
	smallWindowLimit = 1 << 20  // files up to this size use a 16 KiB window
	window16K        = 16 << 10
	window32K        = 32 << 10
)

// Version identifies one of the supported on-disk layouts.
type Version int

const (
	// V2 is the Dawn of War layout (checksummed, 16-bit indices).
	V2 Version = 2
	// V5 is the Dawn of War II layout (checksummed, explicit TOC offset).
	V5 Version = 5
	// V9 is the Dawn of War III layout (64-bit offsets, 32-bit indices, no checksums).
	V9 Version = 9
)

func (v Version) String() string {
	return fmt.Sprintf("v%d.0", int(v))
}

// Major returns the major field of the on-disk version tag.
func (v Version) Major() uint16 { return uint16(v) }

// Minor returns the minor field of the on-disk version tag. It is always zero.
func (v Version) Minor() uint16 { return 0 }

// HasChecksums reports whether archives of this version carry MD5 digests.
func (v Version) HasChecksums() bool { return v == V2 || v == V5 }

func parseVersion(major, minor uint16) (Version, error) {
	if minor == 0 {
		switch Version(major) {
		case V2, V5, V9:
			return Version(major), nil
		}
	}
	return 0, fmt.Errorf("%w: (%d,%d)", ErrUnsupportedVersion, major, minor)
}

// layout is the codec set for one version. Codecs never dispatch on version
// themselves; callers select them through layoutFor.
type layout struct {
	version    Version
	headerSize int64
	newHeader  func() headerRecord

	pointerSize   int64
	readPointers  func(io.Reader) (tocPointers, error)
	writePointers func(io.Writer, tocPointers) error

	driveSize, folderSize, fileSize int64
	readDrives                      func(io.Reader, int) ([]DriveRecord, error)
	readFolders                     func(io.Reader, int) ([]FolderRecord, error)
	readFiles                       func(io.Reader, int) ([]FileRecord, error)
	newDrive                        func(alias, name string, folders, files Range, root int) (DriveRecord, error)
	newFolder                       func(nameOffset uint32, folders, files Range) FolderRecord
	newFile                         func(f fileFields) FileRecord

	countedNames bool // name blob count is a string count rather than a byte size
	maxIndex     int64
}

var (
	layoutV2 = layout{
		version:       V2,
		headerSize:    headerSizeV2,
		newHeader:     func() headerRecord { return &headerV2{} },
		pointerSize:   pointerSize16,
		readPointers:  readPointers16,
		writePointers: writePointers16,
		driveSize:     int64(binary.Size(DriveRecordV2{})),
		folderSize:    int64(binary.Size(FolderRecordV2{})),
		fileSize:      int64(binary.Size(FileRecordV2{})),
		readDrives:    readDriveRecords[DriveRecordV2],
		readFolders:   readFolderRecords[FolderRecordV2],
		readFiles:     readFileRecords[FileRecordV2],
		newDrive:      newDriveRecordV2,
		newFolder:     newFolderRecordV2,
		newFile:       newFileRecordV2,
		countedNames:  true,
		maxIndex:      math.MaxUint16,
	}
	layoutV5 = layout{
		version:       V5,
		headerSize:    headerSizeV5,
		newHeader:     func() headerRecord { return &headerV5{One: 1} },
		pointerSize:   pointerSize16,
		readPointers:  readPointers16,
		writePointers: writePointers16,
		driveSize:     int64(binary.Size(DriveRecordV2{})),
		folderSize:    int64(binary.Size(FolderRecordV2{})),
		fileSize:      int64(binary.Size(FileRecordV5{})),
		readDrives:    readDriveRecords[DriveRecordV2],
		readFolders:   readFolderRecords[FolderRecordV2],
		readFiles:     readFileRecords[FileRecordV5],
		newDrive:      newDriveRecordV2,
		newFolder:     newFolderRecordV2,
		newFile:       newFileRecordV5,
		countedNames:  true,
		maxIndex:      math.MaxUint16,
	}
	layoutV9 = layout{
		version:       V9,
		headerSize:    headerSizeV9,
		newHeader:     func() headerRecord { return &headerV9{One: 1} },
		pointerSize:   pointerSize32,
		readPointers:  readPointers32,
		writePointers: writePointers32,
		driveSize:     int64(binary.Size(DriveRecordV9{})),
		folderSize:    int64(binary.Size(FolderRecordV9{})),
		fileSize:      int64(binary.Size(FileRecordV9{})),
		readDrives:    readDriveRecords[DriveRecordV9],
		readFolders:   readFolderRecords[FolderRecordV9],
		readFiles:     readFileRecords[FileRecordV9],
		newDrive:      newDriveRecordV9,
		newFolder:     newFolderRecordV9,
		newFile:       newFileRecordV9,
		countedNames:  false,
		maxIndex:      math.MaxUint32,
	}
)

// layoutFor returns the codec set for v.
func layoutFor(v Version) (*layout, error) {
	switch v {
	case V2:
		return &layoutV2, nil
	case V5:
		return &layoutV5, nil
	case V9:
		return &layoutV9, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, int(v))
}

// Checksums holds the two MD5 digests carried by v2 and v5 headers.
type Checksums struct {
	File   [16]byte // TOC + data
	Header [16]byte // TOC only
}

// ArchiveHeader is the decoded fixed-size header of an archive.
type ArchiveHeader struct {
	Version    Version
	Name       string
	TOCOffset  int64
	TOCSize    int64
	DataOffset int64
	DataSize   int64 // stored in v9 headers only; zero for v2/v5 until computed
	Checksums  *Checksums

	raw headerRecord // preserves reserved fields for round trips
}

// headerRecord is a version-specific header body following magic and version.
type headerRecord interface {
	decode(h *ArchiveHeader) error
	encode(h *ArchiveHeader) error
	clone() headerRecord
	version() Version
}

type headerPrefix struct {
	Magic [8]byte
	Major uint16
	Minor uint16
}

// headerV2 is the v2 header body (168 bytes)
type headerV2 struct {
	FileMD5    [16]byte
	Name       [archiveNameSize]byte
	HeaderMD5  [16]byte
	TOCSize    uint32
	DataOffset uint32
}

// headerV5 is the v5 header body (184 bytes)
type headerV5 struct {
	FileMD5    [16]byte
	Name       [archiveNameSize]byte
	HeaderMD5  [16]byte
	TOCSize    uint32
	DataOffset uint32
	TOCOffset  uint32
	One        uint32 // always 1
	Zero       uint32 // always 0
	Unknown    uint32
}

// headerV9 is the v9 header body (420 bytes)
type headerV9 struct {
	Name       [archiveNameSize]byte
	TOCOffset  uint64
	TOCSize    uint32
	DataOffset uint64
	DataSize   uint32
	Zero       uint32 // always 0
	One        uint32 // always 1
	Zero2      uint32 // always 0
	Reserved   [256]byte
}

func (r *headerV2) decode(h *ArchiveHeader) error {
	name, err := textutil.DecodeUTF16(r.Name[:])
	if err != nil {
		return err
	}
	h.Name = name
	h.TOCOffset = headerSizeV2
	h.TOCSize = int64(r.TOCSize)
	h.DataOffset = int64(r.DataOffset)
	h.Checksums = &Checksums{File: r.FileMD5, Header: r.HeaderMD5}
	return nil
}

func (r *headerV2) encode(h *ArchiveHeader) error {
	if h.TOCOffset != headerSizeV2 {
		return fmt.Errorf("%w: v2 TOC must follow the header, got offset %d", ErrInvalidRecord, h.TOCOffset)
	}
	if err := encodeArchiveName(r.Name[:], h.Name); err != nil {
		return err
	}
	if !fitsUint32(h.TOCSize) || !fitsUint32(h.DataOffset) {
		return fmt.Errorf("%w: v2 offsets exceed 32 bits", ErrInvalidRecord)
	}
	r.TOCSize = uint32(h.TOCSize)
	r.DataOffset = uint32(h.DataOffset)
	if h.Checksums != nil {
		r.FileMD5 = h.Checksums.File
		r.HeaderMD5 = h.Checksums.Header
	}
	return nil
}

func (r *headerV2) clone() headerRecord { c := *r; return &c }
func (r *headerV2) version() Version    { return V2 }

func (r *headerV5) decode(h *ArchiveHeader) error {
	name, err := textutil.DecodeUTF16(r.Name[:])
	if err != nil {
		return err
	}
	h.Name = name
	h.TOCOffset = int64(r.TOCOffset)
	h.TOCSize = int64(r.TOCSize)
	h.DataOffset = int64(r.DataOffset)
	h.Checksums = &Checksums{File: r.FileMD5, Header: r.HeaderMD5}
	return nil
}

func (r *headerV5) encode(h *ArchiveHeader) error {
	if err := encodeArchiveName(r.Name[:], h.Name); err != nil {
		return err
	}
	if !fitsUint32(h.TOCOffset) || !fitsUint32(h.TOCSize) || !fitsUint32(h.DataOffset) {
		return fmt.Errorf("%w: v5 offsets exceed 32 bits", ErrInvalidRecord)
	}
	r.TOCOffset = uint32(h.TOCOffset)
	r.TOCSize = uint32(h.TOCSize)
	r.DataOffset = uint32(h.DataOffset)
	if h.Checksums != nil {
		r.FileMD5 = h.Checksums.File
		r.HeaderMD5 = h.Checksums.Header
	}
	return nil
}

func (r *headerV5) clone() headerRecord { c := *r; return &c }
func (r *headerV5) version() Version    { return V5 }

func (r *headerV9) decode(h *ArchiveHeader) error {
	name, err := textutil.DecodeUTF16(r.Name[:])
	if err != nil {
		return err
	}
	h.Name = name
	h.TOCOffset = int64(r.TOCOffset)
	h.TOCSize = int64(r.TOCSize)
	h.DataOffset = int64(r.DataOffset)
	h.DataSize = int64(r.DataSize)
	h.Checksums = nil
	if h.TOCOffset < 0 || h.DataOffset < 0 {
		return fmt.Errorf("%w: v9 offsets exceed 63 bits", ErrInvalidRecord)
	}
	return nil
}

func (r *headerV9) encode(h *ArchiveHeader) error {
	if err := encodeArchiveName(r.Name[:], h.Name); err != nil {
		return err
	}
	if !fitsUint32(h.TOCSize) || !fitsUint32(h.DataSize) {
		return fmt.Errorf("%w: v9 block sizes exceed 32 bits", ErrInvalidRecord)
	}
	r.TOCOffset = uint64(h.TOCOffset)
	r.TOCSize = uint32(h.TOCSize)
	r.DataOffset = uint64(h.DataOffset)
	r.DataSize = uint32(h.DataSize)
	return nil
}

func (r *headerV9) clone() headerRecord { c := *r; return &c }
func (r *headerV9) version() Version    { return V9 }

// readHeader reads the magic, version and version-specific header body.
// It never reads past the header.
func readHeader(r io.Reader) (ArchiveHeader, error) {
	var prefix headerPrefix
	if err := binary.Read(r, binary.LittleEndian, &prefix); err != nil {
		return ArchiveHeader{}, truncated(err, "read header prefix")
	}
	if string(prefix.Magic[:]) != magicWord {
		return ArchiveHeader{}, fmt.Errorf("%w: %q", ErrBadMagic, prefix.Magic[:])
	}

	version, err := parseVersion(prefix.Major, prefix.Minor)
	if err != nil {
		return ArchiveHeader{}, err
	}
	l, err := layoutFor(version)
	if err != nil {
		return ArchiveHeader{}, err
	}

	raw := l.newHeader()
	if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
		return ArchiveHeader{}, truncated(err, "read header body")
	}

	h := ArchiveHeader{Version: version, raw: raw}
	if err := raw.decode(&h); err != nil {
		return ArchiveHeader{}, fmt.Errorf("decode %s header: %w", version, err)
	}
	return h, nil
}

// writeHeader encodes h. Pointer fields are taken from h, which the caller
// must have recomputed from the actual TOC and data sizes; reserved fields are
// carried over from the header the archive was opened with.
func writeHeader(w io.Writer, h *ArchiveHeader) error {
	l, err := layoutFor(h.Version)
	if err != nil {
		return err
	}
	raw := l.newHeader()
	if h.raw != nil && h.raw.version() == h.Version {
		raw = h.raw.clone()
	}
	if err := raw.encode(h); err != nil {
		return fmt.Errorf("encode %s header: %w", h.Version, err)
	}

	var prefix headerPrefix
	copy(prefix.Magic[:], magicWord)
	prefix.Major = h.Version.Major()
	prefix.Minor = h.Version.Minor()

	if err := binary.Write(w, binary.LittleEndian, &prefix); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, raw)
}

func encodeArchiveName(field []byte, name string) error {
	if err := textutil.EncodeUTF16(field, name); err != nil {
		if errors.Is(err, textutil.ErrTooLong) {
			return fmt.Errorf("%w: archive name: %v", ErrNameTooLong, err)
		}
		return fmt.Errorf("%w: archive name: %v", ErrInvalidName, err)
	}
	return nil
}

func fitsUint32(v int64) bool { return v >= 0 && v <= math.MaxUint32 }
