// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSizes(t *testing.T) {
	tests := []struct {
		version Version
		want    int64
	}{
		{V2, 180},
		{V5, 196},
		{V9, 432},
	}
	for _, test := range tests {
		l, err := layoutFor(test.version)
		require.NoError(t, err)
		assert.Equal(t, test.want, l.headerSize, test.version.String())
		assert.Equal(t, test.want, int64(prefixSize+binary.Size(l.newHeader())), test.version.String())
	}
}

func TestRecordSizes(t *testing.T) {
	tests := []struct {
		version                       Version
		pointers, drive, folder, file int64
	}{
		{V2, 24, 138, 12, 20},
		{V5, 24, 138, 12, 24},
		{V9, 32, 148, 20, 36},
	}
	for _, test := range tests {
		l, err := layoutFor(test.version)
		require.NoError(t, err)
		assert.Equal(t, test.pointers, l.pointerSize, "%s pointers", test.version)
		assert.Equal(t, test.drive, l.driveSize, "%s drive", test.version)
		assert.Equal(t, test.folder, l.folderSize, "%s folder", test.version)
		assert.Equal(t, test.file, l.fileSize, "%s file", test.version)
	}
}

func TestUnsupportedVersion(t *testing.T) {
	_, err := layoutFor(Version(4))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = parseVersion(5, 1)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	var b bytes.Buffer
	b.WriteString(magicWord)
	binary.Write(&b, binary.LittleEndian, [2]uint16{4, 0})
	b.Write(make([]byte, 400))
	_, err = readHeader(&b)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestBadMagic(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("garbage_")
	binary.Write(&b, binary.LittleEndian, [2]uint16{9, 0})
	b.Write(make([]byte, headerSizeV9))

	_, err := readHeader(&b)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestTruncatedHeader(t *testing.T) {
	h := ArchiveHeader{Version: V5, Name: "short", TOCOffset: headerSizeV5, Checksums: &Checksums{}}
	var b bytes.Buffer
	require.NoError(t, writeHeader(&b, &h))

	_, err := readHeader(bytes.NewReader(b.Bytes()[:100]))
	assert.ErrorIs(t, err, ErrTruncatedStream)
}

func TestHeaderRoundTrip(t *testing.T) {
	tests := []ArchiveHeader{
		{
			Version:    V2,
			Name:       "Dawn of War",
			TOCOffset:  headerSizeV2,
			TOCSize:    223,
			DataOffset: headerSizeV2 + 223,
			Checksums:  &Checksums{File: [16]byte{1, 2, 3}, Header: [16]byte{4, 5, 6}},
		},
		{
			Version:    V5,
			Name:       "Dawn of War II",
			TOCOffset:  headerSizeV5,
			TOCSize:    1000,
			DataOffset: headerSizeV5 + 1000,
			Checksums:  &Checksums{File: [16]byte{7}, Header: [16]byte{8}},
		},
		{
			Version:    V9,
			Name:       "Dawn of War III",
			TOCOffset:  headerSizeV9,
			TOCSize:    512,
			DataOffset: 5 << 32,
			DataSize:   4096,
		},
	}
	for _, want := range tests {
		t.Run(want.Version.String(), func(t *testing.T) {
			var b bytes.Buffer
			require.NoError(t, writeHeader(&b, &want))
			l, err := layoutFor(want.Version)
			require.NoError(t, err)
			require.EqualValues(t, l.headerSize, b.Len())

			got, err := readHeader(&b)
			require.NoError(t, err)
			assert.Equal(t, want.Name, got.Name)
			assert.Equal(t, want.TOCOffset, got.TOCOffset)
			assert.Equal(t, want.TOCSize, got.TOCSize)
			assert.Equal(t, want.DataOffset, got.DataOffset)
			assert.Equal(t, want.DataSize, got.DataSize)
			assert.Equal(t, want.Checksums, got.Checksums)
		})
	}
}

func TestHeaderPreservesReservedFields(t *testing.T) {
	h := ArchiveHeader{Version: V5, Name: "x", TOCOffset: headerSizeV5, Checksums: &Checksums{}}
	var b bytes.Buffer
	require.NoError(t, writeHeader(&b, &h))
	raw := b.Bytes()
	// Unknown is the last u32 of the v5 header
	binary.LittleEndian.PutUint32(raw[headerSizeV5-4:], 0xDEADBEEF)

	got, err := readHeader(bytes.NewReader(raw))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeHeader(&out, &got))
	assert.Equal(t, raw, out.Bytes())
}

func TestHeaderRejectsLongName(t *testing.T) {
	h := ArchiveHeader{Version: V2, Name: string(bytes.Repeat([]byte("n"), 65)), TOCOffset: headerSizeV2}
	assert.ErrorIs(t, writeHeader(&bytes.Buffer{}, &h), ErrNameTooLong)
}

func TestPointerRoundTrip(t *testing.T) {
	want := tocPointers{
		Drives:  tocPointer{Offset: 24, Count: 1},
		Folders: tocPointer{Offset: 162, Count: 2},
		Files:   tocPointer{Offset: 186, Count: 1},
		Names:   tocPointer{Offset: 206, Count: 3},
	}

	var b bytes.Buffer
	require.NoError(t, writePointers16(&b, want))
	require.Equal(t, pointerSize16, b.Len())
	got, err := readPointers16(&b)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	b.Reset()
	want.Names.Count = 70000
	assert.ErrorIs(t, writePointers16(&b, want), ErrInvalidRecord)

	b.Reset()
	require.NoError(t, writePointers32(&b, want))
	require.Equal(t, pointerSize32, b.Len())
	got, err = readPointers32(&b)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = readPointers32(bytes.NewReader(make([]byte, 10)))
	assert.ErrorIs(t, err, ErrTruncatedStream)
}

func TestDriveRecordStrings(t *testing.T) {
	rec, err := newDriveRecordV2("data", "Data Drive", Range{0, 2}, Range{0, 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, "data", rec.Alias())
	assert.Equal(t, "Data Drive", rec.DriveName())
	assert.Equal(t, Range{0, 2}, rec.FolderRange())

	_, err = newDriveRecordV9(string(bytes.Repeat([]byte("a"), 65)), "n", Range{}, Range{}, 0)
	assert.ErrorIs(t, err, ErrNameTooLong)

	_, err = newDriveRecordV2("data", "n", Range{0, 70000}, Range{}, 0)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
