// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"fmt"
	"strings"
)

// NodeKind tells whether a NodeRef points at a drive or a folder.
type NodeKind uint8

const (
	NodeNone NodeKind = iota
	NodeDrive
	NodeFolder
)

// NodeRef addresses a parent node by its index in Archive.Drives or
// Archive.Folders.
type NodeRef struct {
	Kind  NodeKind
	Index int
}

// Drive is a top-level namespace such as "data:".
type Drive struct {
	Alias      string
	Name       string
	RootFolder int   // index into Archive.Folders, -1 when the drive has no folders
	Folders    []int // direct child folders
	Files      []int // direct child files
}

// Folder is a directory node. Name is the string stored in the archive, which
// shipped archives set to the drive-relative path; BaseName returns the last
// element.
type Folder struct {
	Name    string
	Parent  NodeRef
	Folders []int
	Files   []int
}

// BaseName returns the last backslash-separated element of the folder name.
func (f *Folder) BaseName() string {
	if i := strings.LastIndexByte(f.Name, '\\'); i >= 0 {
		return f.Name[i+1:]
	}
	return f.Name
}

// File is a leaf node. Its payload is either resolved (held in memory) or
// described by a PayloadLocation and read on demand.
type File struct {
	Name   string
	Parent NodeRef

	index    int
	record   FileRecord      // nil for files added in write mode
	loc      PayloadLocation // valid when record != nil
	data     []byte          // stored bytes when resolved; raw bytes when added
	resolved bool
}

// Record returns the on-disk record the file was read from, or nil for files
// added in write mode.
func (f *File) Record() FileRecord { return f.record }

// Location returns where the file's stored bytes live in the backing source.
func (f *File) Location() PayloadLocation { return f.loc }

// Size returns the decompressed size of the file.
func (f *File) Size() int64 {
	if f.record == nil {
		return int64(len(f.data))
	}
	return f.loc.Size
}

// Compressed reports whether the stored bytes are a zlib stream.
func (f *File) Compressed() bool { return f.record != nil && f.loc.Compressed() }

// Resolved reports whether the file's bytes are held in memory.
func (f *File) Resolved() bool { return f.resolved }

// assemble builds the drive/folder/file arena from the flat TOC tables.
//
// Drive ranges span every transitive descendant, folder ranges only direct
// children. Folders claim their children first; whatever in a drive's range
// is left unclaimed is a direct child of the drive.
func assemble(t *tocTables) ([]Drive, []Folder, []File, error) {
	nFolders, nFiles := len(t.folders), len(t.files)

	folders := make([]Folder, nFolders)
	for i, rec := range t.folders {
		name, err := t.names.lookup(rec.NameOffset())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("folder %d: %w", i, err)
		}
		if !rec.FolderRange().validFor(nFolders) || !rec.FileRange().validFor(nFiles) {
			return nil, nil, nil, fmt.Errorf("%w: folder %d ranges %s %s exceed tables (%d folders, %d files)",
				ErrDanglingRange, i, rec.FolderRange(), rec.FileRange(), nFolders, nFiles)
		}
		folders[i] = Folder{Name: name}
	}

	files := make([]File, nFiles)
	for i, rec := range t.files {
		name, err := t.names.lookup(rec.NameOffset())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("file %d: %w", i, err)
		}
		if rec.CompressedSize() > rec.DecompressedSize() {
			return nil, nil, nil, fmt.Errorf("%w: file %d %q stores %d bytes for %d",
				ErrInvalidRecord, i, name, rec.CompressedSize(), rec.DecompressedSize())
		}
		files[i] = File{Name: name, index: i, record: rec}
	}

	// Pass 1: folders claim their direct children.
	folderClaim := filled(nFolders, -1)
	fileClaim := filled(nFiles, -1)
	for i, rec := range t.folders {
		r := rec.FolderRange()
		for j := r.Start; j < r.End; j++ {
			if j == i {
				return nil, nil, nil, fmt.Errorf("%w: folder %d claims itself", ErrAmbiguousParent, i)
			}
			if folderClaim[j] >= 0 {
				return nil, nil, nil, fmt.Errorf("%w: folder %d claimed by folders %d and %d",
					ErrAmbiguousParent, j, folderClaim[j], i)
			}
			folderClaim[j] = i
			folders[i].Folders = append(folders[i].Folders, j)
			folders[j].Parent = NodeRef{Kind: NodeFolder, Index: i}
		}
		r = rec.FileRange()
		for j := r.Start; j < r.End; j++ {
			if fileClaim[j] >= 0 {
				return nil, nil, nil, fmt.Errorf("%w: file %d claimed by folders %d and %d",
					ErrAmbiguousParent, j, fileClaim[j], i)
			}
			fileClaim[j] = i
			folders[i].Files = append(folders[i].Files, j)
			files[j].Parent = NodeRef{Kind: NodeFolder, Index: i}
		}
	}

	// Pass 2: every node belongs to exactly one drive range.
	folderDrive := filled(nFolders, -1)
	fileDrive := filled(nFiles, -1)
	for d, rec := range t.drives {
		fr, fi := rec.FolderRange(), rec.FileRange()
		if !fr.validFor(nFolders) || !fi.validFor(nFiles) {
			return nil, nil, nil, fmt.Errorf("%w: drive %d ranges %s %s exceed tables (%d folders, %d files)",
				ErrDanglingRange, d, fr, fi, nFolders, nFiles)
		}
		for j := fr.Start; j < fr.End; j++ {
			if folderDrive[j] >= 0 {
				return nil, nil, nil, fmt.Errorf("%w: folder %d in ranges of drives %d and %d",
					ErrAmbiguousParent, j, folderDrive[j], d)
			}
			folderDrive[j] = d
		}
		for j := fi.Start; j < fi.End; j++ {
			if fileDrive[j] >= 0 {
				return nil, nil, nil, fmt.Errorf("%w: file %d in ranges of drives %d and %d",
					ErrAmbiguousParent, j, fileDrive[j], d)
			}
			fileDrive[j] = d
		}
	}
	for j, d := range folderDrive {
		if d < 0 {
			return nil, nil, nil, fmt.Errorf("%w: folder %d is outside every drive", ErrDanglingRange, j)
		}
	}
	for j, d := range fileDrive {
		if d < 0 {
			return nil, nil, nil, fmt.Errorf("%w: file %d is outside every drive", ErrDanglingRange, j)
		}
	}

	// Filter: unclaimed members of a drive range are the drive's direct children.
	drives := make([]Drive, len(t.drives))
	for d, rec := range t.drives {
		drive := Drive{Alias: rec.Alias(), Name: rec.DriveName(), RootFolder: -1}
		fr, fi := rec.FolderRange(), rec.FileRange()
		for j := fr.Start; j < fr.End; j++ {
			if c := folderClaim[j]; c >= 0 {
				if folderDrive[c] != d {
					return nil, nil, nil, fmt.Errorf("%w: folder %d of drive %d claimed by folder %d of drive %d",
						ErrAmbiguousParent, j, d, c, folderDrive[c])
				}
				continue
			}
			drive.Folders = append(drive.Folders, j)
			folders[j].Parent = NodeRef{Kind: NodeDrive, Index: d}
		}
		for j := fi.Start; j < fi.End; j++ {
			if c := fileClaim[j]; c >= 0 {
				if folderDrive[c] != d {
					return nil, nil, nil, fmt.Errorf("%w: file %d of drive %d claimed by folder %d of drive %d",
						ErrAmbiguousParent, j, d, c, folderDrive[c])
				}
				continue
			}
			drive.Files = append(drive.Files, j)
			files[j].Parent = NodeRef{Kind: NodeDrive, Index: d}
		}
		if fr.Len() > 0 {
			if !fr.Contains(rec.RootFolder()) {
				return nil, nil, nil, fmt.Errorf("%w: drive %d root folder %d outside %s",
					ErrDanglingRange, d, rec.RootFolder(), fr)
			}
			drive.RootFolder = rec.RootFolder()
		}
		drives[d] = drive
	}

	if err := checkReachable(drives, folders, nFiles); err != nil {
		return nil, nil, nil, err
	}
	return drives, folders, files, nil
}

// checkReachable rejects claim cycles, which leave folders with a parent but
// no path to a drive.
func checkReachable(drives []Drive, folders []Folder, nFiles int) error {
	seen := make([]bool, len(folders))
	reachedFolders, reachedFiles := 0, 0
	var stack []int
	for _, d := range drives {
		stack = append(stack, d.Folders...)
		reachedFiles += len(d.Files)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[i] {
			continue
		}
		seen[i] = true
		reachedFolders++
		reachedFiles += len(folders[i].Files)
		stack = append(stack, folders[i].Folders...)
	}
	if reachedFolders != len(folders) {
		for i, ok := range seen {
			if !ok {
				return fmt.Errorf("%w: folder %d is part of a claim cycle", ErrAmbiguousParent, i)
			}
		}
	}
	if reachedFiles != nFiles {
		return fmt.Errorf("%w: %d of %d files unreachable", ErrAmbiguousParent, nFiles-reachedFiles, nFiles)
	}
	return nil
}

func filled(n, v int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// flatTOC is a tree laid out for writing.
type flatTOC struct {
	drives      []DriveRecord
	folders     []FolderRecord
	fileNames   []uint32 // name offsets, in new file order
	fileOrder   []int    // new file index -> index in Archive.Files
	folderOrder []int    // new folder index -> index in Archive.Folders
	names       *namePool
}

// flatten lays the tree out depth first. Each drive's nodes are contiguous;
// each folder's direct children are contiguous and allocated when the folder
// is visited, so a drive's range spans all of its descendants.
func flatten(l *layout, drives []Drive, folders []Folder, files []File) (*flatTOC, error) {
	ft := &flatTOC{names: newNamePool()}
	subRanges := make([]Range, len(folders))
	fileRanges := make([]Range, len(folders))
	placedFolder := make([]bool, len(folders))
	placedFile := make([]bool, len(files))

	place := func(folderIdx, fileIdx []int) error {
		for _, i := range folderIdx {
			if i < 0 || i >= len(folders) || placedFolder[i] {
				return fmt.Errorf("%w: folder %d listed twice or out of range", ErrAmbiguousParent, i)
			}
			placedFolder[i] = true
		}
		for _, i := range fileIdx {
			if i < 0 || i >= len(files) || placedFile[i] {
				return fmt.Errorf("%w: file %d listed twice or out of range", ErrAmbiguousParent, i)
			}
			placedFile[i] = true
		}
		ft.folderOrder = append(ft.folderOrder, folderIdx...)
		ft.fileOrder = append(ft.fileOrder, fileIdx...)
		return nil
	}

	var visit func(i int) error
	visit = func(i int) error {
		f := &folders[i]
		subRanges[i] = Range{len(ft.folderOrder), len(ft.folderOrder) + len(f.Folders)}
		fileRanges[i] = Range{len(ft.fileOrder), len(ft.fileOrder) + len(f.Files)}
		if err := place(f.Folders, f.Files); err != nil {
			return err
		}
		for _, c := range f.Folders {
			if err := visit(c); err != nil {
				return err
			}
		}
		return nil
	}

	type driveLayout struct{ folders, files Range }
	driveRanges := make([]driveLayout, len(drives))
	for d := range drives {
		drive := &drives[d]
		folderStart, fileStart := len(ft.folderOrder), len(ft.fileOrder)
		if err := place(drive.Folders, drive.Files); err != nil {
			return nil, fmt.Errorf("drive %q: %w", drive.Alias, err)
		}
		for _, c := range drive.Folders {
			if err := visit(c); err != nil {
				return nil, fmt.Errorf("drive %q: %w", drive.Alias, err)
			}
		}
		driveRanges[d] = driveLayout{
			folders: Range{folderStart, len(ft.folderOrder)},
			files:   Range{fileStart, len(ft.fileOrder)},
		}
	}

	if len(ft.folderOrder) != len(folders) || len(ft.fileOrder) != len(files) {
		return nil, fmt.Errorf("%w: %d folders and %d files are not reachable from any drive",
			ErrDanglingRange, len(folders)-len(ft.folderOrder), len(files)-len(ft.fileOrder))
	}
	if int64(len(folders)) > l.maxIndex || int64(len(files)) > l.maxIndex || int64(len(drives)) > l.maxIndex {
		return nil, fmt.Errorf("%w: %d drives, %d folders, %d files exceed %s limits",
			ErrInvalidRecord, len(drives), len(folders), len(files), l.version)
	}

	newFolderIdx := make([]int, len(folders))
	for n, old := range ft.folderOrder {
		newFolderIdx[old] = n
	}

	// Names: folders first, then files, both in new index order.
	folderNames := make([]uint32, len(folders))
	for n, old := range ft.folderOrder {
		off, err := ft.names.add(folders[old].Name)
		if err != nil {
			return nil, fmt.Errorf("folder %q: %w", folders[old].Name, err)
		}
		folderNames[n] = off
	}
	ft.fileNames = make([]uint32, len(files))
	for n, old := range ft.fileOrder {
		off, err := ft.names.add(files[old].Name)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", files[old].Name, err)
		}
		ft.fileNames[n] = off
	}

	ft.folders = make([]FolderRecord, len(folders))
	for n, old := range ft.folderOrder {
		ft.folders[n] = l.newFolder(folderNames[n], subRanges[old], fileRanges[old])
	}

	ft.drives = make([]DriveRecord, len(drives))
	for d := range drives {
		dr := driveRanges[d]
		root := dr.folders.Start
		if r := drives[d].RootFolder; r >= 0 && r < len(folders) && dr.folders.Contains(newFolderIdx[r]) {
			root = newFolderIdx[r]
		}
		rec, err := l.newDrive(drives[d].Alias, drives[d].Name, dr.folders, dr.files, root)
		if err != nil {
			return nil, err
		}
		ft.drives[d] = rec
	}
	return ft, nil
}
