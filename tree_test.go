// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleTables describes one drive laid out depth first:
//
//	data:f0
//	data:f1            (root folder "")
//	data:A\f2
//	data:B
func sampleTables() *tocTables {
	drive := &DriveRecordV2{FirstFolder: 0, LastFolder: 3, FirstFile: 0, LastFile: 3, Root: 0}
	copy(drive.AliasField[:], "data")
	copy(drive.NameField[:], "Data")
	return &tocTables{
		drives: []DriveRecord{drive},
		folders: []FolderRecord{
			&FolderRecordV2{NameOff: 0, FirstFolder: 1, LastFolder: 3, FirstFile: 1, LastFile: 2},
			&FolderRecordV2{NameOff: 1, FirstFolder: 3, LastFolder: 3, FirstFile: 2, LastFile: 3},
			&FolderRecordV2{NameOff: 3, FirstFolder: 3, LastFolder: 3, FirstFile: 3, LastFile: 3},
		},
		files: []FileRecord{
			&FileRecordV2{NameOff: 5, DataOff: 0, DecompSize: 1, CompSize: 1},
			&FileRecordV2{NameOff: 8, DataOff: 1, DecompSize: 1, CompSize: 1},
			&FileRecordV2{NameOff: 11, DataOff: 2, DecompSize: 1, CompSize: 1},
		},
		names: nameTable{0: "", 1: "A", 3: "B", 5: "f0", 8: "f1", 11: "f2"},
	}
}

func TestAssemble(t *testing.T) {
	drives, folders, files, err := assemble(sampleTables())
	require.NoError(t, err)

	require.Len(t, drives, 1)
	assert.Equal(t, "data", drives[0].Alias)
	assert.Equal(t, "Data", drives[0].Name)
	assert.Equal(t, 0, drives[0].RootFolder)
	assert.Equal(t, []int{0}, drives[0].Folders)
	assert.Equal(t, []int{0}, drives[0].Files)

	assert.Equal(t, NodeRef{NodeDrive, 0}, folders[0].Parent)
	assert.Equal(t, []int{1, 2}, folders[0].Folders)
	assert.Equal(t, []int{1}, folders[0].Files)
	assert.Equal(t, NodeRef{NodeFolder, 0}, folders[1].Parent)
	assert.Equal(t, NodeRef{NodeFolder, 0}, folders[2].Parent)

	assert.Equal(t, NodeRef{NodeDrive, 0}, files[0].Parent)
	assert.Equal(t, NodeRef{NodeFolder, 0}, files[1].Parent)
	assert.Equal(t, NodeRef{NodeFolder, 1}, files[2].Parent)
	assert.Equal(t, "f2", files[2].Name)
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *tocTables)
		want   error
	}{
		{
			name: "folder claimed twice",
			mutate: func(t *tocTables) {
				t.folders[2] = &FolderRecordV2{NameOff: 3, FirstFolder: 1, LastFolder: 2}
			},
			want: ErrAmbiguousParent,
		},
		{
			name: "file claimed twice",
			mutate: func(t *tocTables) {
				t.folders[2] = &FolderRecordV2{NameOff: 3, FirstFile: 2, LastFile: 3}
			},
			want: ErrAmbiguousParent,
		},
		{
			name: "folder claims itself",
			mutate: func(t *tocTables) {
				t.folders[2] = &FolderRecordV2{NameOff: 3, FirstFolder: 2, LastFolder: 3}
			},
			want: ErrAmbiguousParent,
		},
		{
			name: "claim cycle",
			mutate: func(t *tocTables) {
				t.folders[0] = &FolderRecordV2{NameOff: 0, FirstFile: 1, LastFile: 2}
				t.folders[1] = &FolderRecordV2{NameOff: 1, FirstFolder: 2, LastFolder: 3, FirstFile: 2, LastFile: 3}
				t.folders[2] = &FolderRecordV2{NameOff: 3, FirstFolder: 1, LastFolder: 2}
			},
			want: ErrAmbiguousParent,
		},
		{
			name: "folder range past table",
			mutate: func(t *tocTables) {
				t.folders[1] = &FolderRecordV2{NameOff: 1, FirstFile: 2, LastFile: 9}
			},
			want: ErrDanglingRange,
		},
		{
			name: "drive range past table",
			mutate: func(t *tocTables) {
				t.drives[0].(*DriveRecordV2).LastFile = 4
			},
			want: ErrDanglingRange,
		},
		{
			name: "node outside every drive",
			mutate: func(t *tocTables) {
				t.drives[0].(*DriveRecordV2).LastFile = 2
			},
			want: ErrDanglingRange,
		},
		{
			name: "root folder outside drive",
			mutate: func(t *tocTables) {
				t.drives[0].(*DriveRecordV2).Root = 7
			},
			want: ErrDanglingRange,
		},
		{
			name: "dangling name offset",
			mutate: func(t *tocTables) {
				t.files[1] = &FileRecordV2{NameOff: 99}
			},
			want: ErrDanglingNameOffset,
		},
		{
			name: "compressed larger than decompressed",
			mutate: func(t *tocTables) {
				t.files[1] = &FileRecordV2{NameOff: 8, CompSize: 10, DecompSize: 5}
			},
			want: ErrInvalidRecord,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tables := sampleTables()
			test.mutate(tables)
			_, _, _, err := assemble(tables)
			assert.ErrorIs(t, err, test.want)
		})
	}
}

func TestAssembleTwoDrives(t *testing.T) {
	tables := sampleTables()
	tables.drives[0].(*DriveRecordV2).LastFolder = 1
	tables.drives[0].(*DriveRecordV2).LastFile = 2
	tables.folders[0] = &FolderRecordV2{NameOff: 0, FirstFolder: 1, LastFolder: 1, FirstFile: 1, LastFile: 2}
	tables.folders[1] = &FolderRecordV2{NameOff: 1, FirstFolder: 2, LastFolder: 3, FirstFile: 2, LastFile: 3}
	second := &DriveRecordV2{FirstFolder: 1, LastFolder: 3, FirstFile: 2, LastFile: 3, Root: 1}
	copy(second.AliasField[:], "attrib")
	tables.drives = append(tables.drives, second)

	drives, folders, _, err := assemble(tables)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, drives[1].Folders)
	assert.Equal(t, NodeRef{NodeFolder, 1}, folders[2].Parent)

	// A folder of one drive may not claim a folder of another.
	tables.drives[1].(*DriveRecordV2).FirstFolder = 2
	tables.drives[0].(*DriveRecordV2).LastFolder = 2
	_, _, _, err = assemble(tables)
	assert.ErrorIs(t, err, ErrAmbiguousParent)
}

func TestFlattenRoundTrip(t *testing.T) {
	tables := sampleTables()
	drives, folders, files, err := assemble(tables)
	require.NoError(t, err)

	ft, err := flatten(&layoutV2, drives, folders, files)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, ft.folderOrder)
	assert.Equal(t, []int{0, 1, 2}, ft.fileOrder)
	assert.Equal(t, tables.folders, ft.folders)
	assert.Equal(t, tables.drives, ft.drives)
	assert.Equal(t, []uint32{5, 8, 11}, ft.fileNames)
	assert.Equal(t, []byte("\x00A\x00B\x00f0\x00f1\x00f2\x00"), ft.names.bytes())
}

func TestFlattenRebuildsRanges(t *testing.T) {
	// Children listed out of index order are renumbered depth first.
	drives := []Drive{{Alias: "data", Name: "data", RootFolder: 2, Folders: []int{2}}}
	folders := []Folder{
		{Name: "Tests\\Sub", Parent: NodeRef{NodeFolder, 1}, Files: []int{0}},
		{Name: "Tests", Parent: NodeRef{NodeFolder, 2}, Folders: []int{0}, Files: []int{1}},
		{Name: "", Parent: NodeRef{NodeDrive, 0}, Folders: []int{1}},
	}
	files := []File{
		{Name: "deep.txt", Parent: NodeRef{NodeFolder, 0}},
		{Name: "hello.txt", Parent: NodeRef{NodeFolder, 1}},
	}

	ft, err := flatten(&layoutV9, drives, folders, files)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, ft.folderOrder)
	assert.Equal(t, []int{1, 0}, ft.fileOrder)
	assert.Equal(t, 0, ft.drives[0].RootFolder())
	assert.Equal(t, Range{0, 3}, ft.drives[0].FolderRange())
	assert.Equal(t, Range{0, 2}, ft.drives[0].FileRange())
	assert.Equal(t, Range{1, 2}, ft.folders[0].FolderRange())
	assert.Equal(t, Range{2, 3}, ft.folders[1].FolderRange())
	assert.Equal(t, Range{0, 1}, ft.folders[1].FileRange())
	assert.Equal(t, Range{1, 2}, ft.folders[2].FileRange())

	// Reassembling the flattened tables yields the same shape.
	records := make([]FileRecord, len(ft.fileOrder))
	for n := range records {
		records[n] = layoutV9.newFile(fileFields{nameOffset: ft.fileNames[n]})
	}
	blob := ft.names.bytes()
	names, err := readNamesSized(io.NewSectionReader(bytes.NewReader(blob), 0, int64(len(blob))), int64(len(blob)))
	require.NoError(t, err)
	d2, f2, fi2, err := assemble(&tocTables{drives: ft.drives, folders: ft.folders, files: records, names: names})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, d2[0].Folders)
	assert.Equal(t, "Tests\\Sub", f2[2].Name)
	assert.Equal(t, "Sub", f2[2].BaseName())
	assert.Equal(t, NodeRef{NodeFolder, 2}, fi2[1].Parent)
}

func TestFlattenRejectsSharedChild(t *testing.T) {
	drives := []Drive{{Alias: "data", RootFolder: 0, Folders: []int{0}}}
	folders := []Folder{{Files: []int{0, 0}}}
	files := []File{{Name: "x"}}
	_, err := flatten(&layoutV2, drives, folders, files)
	assert.ErrorIs(t, err, ErrAmbiguousParent)

	folders[0].Files = nil
	_, err = flatten(&layoutV2, drives, folders, files)
	assert.ErrorIs(t, err, ErrDanglingRange)
}
