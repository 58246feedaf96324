// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"
)

// defaultAlias is the drive used for paths that carry no "alias:" prefix
// when the archive has no drives yet.
const defaultAlias = "data"

// Options controls how an archive is opened.
type Options struct {
	// Eager reads every file's stored bytes during open. By default payloads
	// are read on demand.
	Eager bool
	// Workers bounds the goroutines used by an eager load. Zero means
	// GOMAXPROCS.
	Workers int
	// Verify selects checksum validation performed during open.
	Verify VerifyMode
	// Lenient downgrades checksum mismatches to a logged warning.
	Lenient bool
	// Mmap maps the archive file into memory instead of using pread.
	Mmap bool
	// CacheSize is the number of inflated payloads kept for lazy reads.
	// Zero disables the cache.
	CacheSize int
	// Logger receives debug and warning messages. Nil discards them.
	Logger *zap.Logger
}

// Archive is an SGA archive: a header plus a drive, folder and file arena.
// Drives, Folders and Files are addressed by index; see NodeRef.
type Archive struct {
	Header  ArchiveHeader
	Drives  []Drive
	Folders []Folder
	Files   []File

	path     string
	tempPath string
	mode     string // "r" for read, "w" for write

	src      io.ReaderAt
	size     int64
	closer   io.Closer
	payloads *PayloadReader
	log      *zap.Logger

	mu    sync.RWMutex // guards File.data and File.resolved
	index map[string]int
}

// Open opens an existing SGA archive for reading with default options.
func Open(path string) (*Archive, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions opens an existing SGA archive for reading.
func OpenWithOptions(path string, opts Options) (*Archive, error) {
	var (
		src    io.ReaderAt
		size   int64
		closer io.Closer
	)
	if opts.Mmap {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("mmap file: %w", err)
		}
		src, size, closer = m, int64(m.Len()), m
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("stat file: %w", err)
		}
		src, size, closer = file, info.Size(), file
	}

	a, err := load(src, size, opts)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	a.path = path
	a.closer = closer
	return a, nil
}

// OpenReader reads an archive from a seekable stream. Lazy reads share the
// stream's position and are serialized.
func OpenReader(rs io.ReadSeeker, opts Options) (*Archive, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seek to end: %w", err)
	}
	return load(&seekReaderAt{rs: rs}, size, opts)
}

// NewReader reads an archive of the given size from ra. Lazy reads run in
// parallel when ra supports concurrent ReadAt calls.
func NewReader(ra io.ReaderAt, size int64, opts Options) (*Archive, error) {
	return load(ra, size, opts)
}

// load parses header and TOC, assembles the tree and optionally verifies and
// resolves payloads. Structural errors abort with no partial archive.
func load(src io.ReaderAt, size int64, opts Options) (*Archive, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	h, err := readHeader(io.NewSectionReader(src, 0, size))
	if err != nil {
		return nil, err
	}
	l, err := layoutFor(h.Version)
	if err != nil {
		return nil, err
	}
	log.Debug("read header",
		zap.Stringer("version", h.Version),
		zap.String("name", h.Name),
		zap.Int64("tocOffset", h.TOCOffset),
		zap.Int64("tocSize", h.TOCSize),
		zap.Int64("dataOffset", h.DataOffset))

	if h.TOCOffset < l.headerSize || h.TOCSize < l.pointerSize || h.TOCOffset+h.TOCSize > size {
		return nil, fmt.Errorf("%w: TOC [%d,+%d) outside archive of %d bytes",
			ErrTruncatedStream, h.TOCOffset, h.TOCSize, size)
	}
	if h.DataOffset > size {
		return nil, fmt.Errorf("%w: data offset %d past end of %d bytes", ErrTruncatedStream, h.DataOffset, size)
	}
	if h.Version == V9 {
		if h.DataOffset+h.DataSize > size {
			return nil, fmt.Errorf("%w: data block [%d,+%d) outside archive of %d bytes",
				ErrTruncatedStream, h.DataOffset, h.DataSize, size)
		}
	} else {
		h.DataSize = size - h.DataOffset
	}

	tables, err := readTOC(io.NewSectionReader(src, h.TOCOffset, h.TOCSize), l)
	if err != nil {
		return nil, err
	}
	drives, folders, files, err := assemble(tables)
	if err != nil {
		return nil, err
	}
	for i := range files {
		f := &files[i]
		f.loc = PayloadLocation{
			Offset:     h.DataOffset + int64(f.record.DataOffset()),
			StoredSize: int64(f.record.CompressedSize()),
			Size:       int64(f.record.DecompressedSize()),
		}
		if f.loc.Offset+f.loc.StoredSize > h.DataOffset+h.DataSize {
			return nil, fmt.Errorf("%w: file %q payload [%d,+%d) outside data block",
				ErrTruncatedStream, f.Name, f.loc.Offset, f.loc.StoredSize)
		}
	}
	log.Debug("assembled tree",
		zap.Int("drives", len(drives)),
		zap.Int("folders", len(folders)),
		zap.Int("files", len(files)))

	if err := verifyChecksums(src, size, &h, opts.Verify); err != nil {
		var ie *IntegrityError
		if !opts.Lenient || !errors.As(err, &ie) {
			return nil, err
		}
		log.Warn("checksum mismatch", zap.String("digest", ie.Digest), zap.Error(err))
	}

	payloads, err := NewPayloadReader(src, opts.CacheSize)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		Header:   h,
		Drives:   drives,
		Folders:  folders,
		Files:    files,
		mode:     "r",
		src:      src,
		size:     size,
		payloads: payloads,
		log:      log,
	}
	a.buildIndex()

	if opts.Eager {
		if err := a.loadAll(opts.Workers); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// loadAll resolves every file in parallel.
func (a *Archive) loadAll(workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range a.Files {
		f := &a.Files[i]
		g.Go(func() error {
			return a.Resolve(f)
		})
	}
	return g.Wait()
}

// Create creates a new archive that is written to path on Close.
func Create(path string, version Version, name string) (*Archive, error) {
	a, err := New(version, name)
	if err != nil {
		return nil, err
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	// Create temp file in same directory for atomic write
	tempFile, err := os.CreateTemp(filepath.Dir(path), "sga_*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	a.tempPath = tempFile.Name()
	tempFile.Close()
	a.path = path
	return a, nil
}

// New returns an empty in-memory archive for writing with WriteTo.
func New(version Version, name string) (*Archive, error) {
	l, err := layoutFor(version)
	if err != nil {
		return nil, err
	}
	var scratch [archiveNameSize]byte
	if err := encodeArchiveName(scratch[:], name); err != nil {
		return nil, err
	}
	h := ArchiveHeader{
		Version:    version,
		Name:       name,
		TOCOffset:  l.headerSize,
		DataOffset: l.headerSize,
	}
	if version.HasChecksums() {
		h.Checksums = &Checksums{}
	}
	return &Archive{
		Header: h,
		mode:   "w",
		log:    zap.NewNop(),
		index:  make(map[string]int),
	}, nil
}

// SetLogger replaces the archive's logger. Nil discards messages.
func (a *Archive) SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	a.log = log
}

// AddFile adds a file from disk to the archive.
// The archivePath is "alias:Folder\\file.ext"; forward slashes are accepted.
// This method is only valid for archives opened with Create or New.
func (a *Archive) AddFile(srcPath, archivePath string) error {
	if a.mode != "w" {
		return ErrReadOnly
	}
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read file %s: %w", srcPath, err)
	}
	return a.AddData(archivePath, data)
}

// AddData adds data to the archive under archivePath, replacing any file
// already stored there. Missing drives and folders are created.
func (a *Archive) AddData(archivePath string, data []byte) error {
	if a.mode != "w" {
		return ErrReadOnly
	}
	alias, rel := a.splitPath(archivePath)
	parts := strings.Split(rel, "\\")
	base := parts[len(parts)-1]
	if base == "" || base == "." || base == ".." {
		return fmt.Errorf("%w: %q has no file name", ErrInvalidName, archivePath)
	}
	for _, p := range parts[:len(parts)-1] {
		if p == "" || p == "." || p == ".." {
			return fmt.Errorf("%w: %q has an empty or relative element", ErrInvalidName, archivePath)
		}
	}

	if i, ok := a.index[normalizePath(alias+":"+rel)]; ok {
		f := &a.Files[i]
		f.record, f.loc = nil, PayloadLocation{}
		f.data, f.resolved = data, true
		return nil
	}

	parent := a.ensureFolder(alias, parts[:len(parts)-1])
	idx := len(a.Files)
	a.Files = append(a.Files, File{
		Name:     base,
		Parent:   NodeRef{Kind: NodeFolder, Index: parent},
		index:    idx,
		data:     data,
		resolved: true,
	})
	a.Folders[parent].Files = append(a.Folders[parent].Files, idx)
	a.index[normalizePath(alias+":"+rel)] = idx
	return nil
}

// ensureFolder returns the folder for dirs under the drive's root folder,
// creating the drive and any missing folders.
func (a *Archive) ensureFolder(alias string, dirs []string) int {
	d := a.driveIndex(alias)
	if d < 0 {
		d = len(a.Drives)
		root := len(a.Folders)
		a.Folders = append(a.Folders, Folder{Parent: NodeRef{Kind: NodeDrive, Index: d}})
		a.Drives = append(a.Drives, Drive{Alias: alias, Name: alias, RootFolder: root, Folders: []int{root}})
	}
	drive := &a.Drives[d]
	if drive.RootFolder < 0 {
		root := len(a.Folders)
		a.Folders = append(a.Folders, Folder{Parent: NodeRef{Kind: NodeDrive, Index: d}})
		drive.RootFolder = root
		drive.Folders = append(drive.Folders, root)
	}

	cur := drive.RootFolder
	for n, dir := range dirs {
		next := -1
		for _, c := range a.Folders[cur].Folders {
			if strings.EqualFold(a.Folders[c].BaseName(), dir) {
				next = c
				break
			}
		}
		if next < 0 {
			next = len(a.Folders)
			a.Folders = append(a.Folders, Folder{
				Name:   strings.Join(dirs[:n+1], "\\"),
				Parent: NodeRef{Kind: NodeFolder, Index: cur},
			})
			a.Folders[cur].Folders = append(a.Folders[cur].Folders, next)
		}
		cur = next
	}
	return cur
}

func (a *Archive) driveIndex(alias string) int {
	for i := range a.Drives {
		if strings.EqualFold(a.Drives[i].Alias, alias) {
			return i
		}
	}
	return -1
}

// splitPath separates "alias:rest" and normalizes separators. Paths without
// an alias use the first drive.
func (a *Archive) splitPath(p string) (alias, rel string) {
	p = strings.ReplaceAll(p, "/", "\\")
	if i := strings.IndexByte(p, ':'); i >= 0 {
		alias, rel = p[:i], p[i+1:]
	} else {
		alias, rel = defaultAlias, p
		if len(a.Drives) > 0 {
			alias = a.Drives[0].Alias
		}
	}
	for strings.Contains(rel, "\\\\") {
		rel = strings.ReplaceAll(rel, "\\\\", "\\")
	}
	return alias, strings.TrimPrefix(rel, "\\")
}

// normalizePath builds the case-insensitive lookup key for an archive path.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "/", "\\")
	for strings.Contains(p, "\\\\") {
		p = strings.ReplaceAll(p, "\\\\", "\\")
	}
	p = strings.Replace(p, ":\\", ":", 1)
	return strings.ToUpper(p)
}

func (a *Archive) buildIndex() {
	a.index = make(map[string]int, len(a.Files))
	for i := range a.Files {
		key := normalizePath(a.FilePath(&a.Files[i]))
		if _, dup := a.index[key]; !dup {
			a.index[key] = i
		}
	}
}

// Lookup returns the file stored at archivePath.
func (a *Archive) Lookup(archivePath string) (*File, error) {
	alias, rel := a.splitPath(archivePath)
	i, ok := a.index[normalizePath(alias+":"+rel)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, archivePath)
	}
	return &a.Files[i], nil
}

// HasFile returns true if the archive contains the specified file.
func (a *Archive) HasFile(archivePath string) bool {
	_, err := a.Lookup(archivePath)
	return err == nil
}

// Path returns the archive path of a drive or folder, e.g. "data:Tests\\Sub".
func (a *Archive) Path(ref NodeRef) string {
	var parts []string
	for ref.Kind == NodeFolder {
		f := &a.Folders[ref.Index]
		if b := f.BaseName(); b != "" {
			parts = append(parts, b)
		}
		ref = f.Parent
	}
	alias := ""
	if ref.Kind == NodeDrive {
		alias = a.Drives[ref.Index].Alias
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return alias + ":" + strings.Join(parts, "\\")
}

// FilePath returns the archive path of f, e.g. "data:Tests\\hello.txt".
func (a *Archive) FilePath(f *File) string {
	dir := a.Path(f.Parent)
	if strings.HasSuffix(dir, ":") {
		return dir + f.Name
	}
	return dir + "\\" + f.Name
}

// Resolve reads a lazy file's stored bytes into memory. Later reads of the
// file no longer touch the backing source.
func (a *Archive) Resolve(f *File) error {
	a.mu.RLock()
	done := f.resolved
	a.mu.RUnlock()
	if done || f.record == nil {
		return nil
	}
	stored, err := a.payloads.ReadStored(f.loc)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", f.Name, err)
	}
	a.mu.Lock()
	f.data, f.resolved = stored, true
	a.mu.Unlock()
	return nil
}

// Read returns a file's bytes, inflated when decompress is set. Files added in
// write mode return the bytes they were added with. The returned slice must
// not be modified.
func (a *Archive) Read(f *File, decompress bool) ([]byte, error) {
	if f.record == nil {
		return f.data, nil
	}
	a.mu.RLock()
	stored, ok := f.data, f.resolved
	a.mu.RUnlock()

	var (
		b   []byte
		err error
	)
	if ok {
		b, err = decodeStored(stored, f.loc, decompress)
	} else {
		b, err = a.payloads.Read(f.loc, decompress)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return b, nil
}

// ReadFile returns the decompressed contents of the file at archivePath.
func (a *Archive) ReadFile(archivePath string) ([]byte, error) {
	f, err := a.Lookup(archivePath)
	if err != nil {
		return nil, err
	}
	return a.Read(f, true)
}

// WalkFunc is called for each file visited by Walk. Returning fs.SkipAll
// stops the walk; any other error is recorded and the walk continues.
type WalkFunc func(archivePath string, f *File) error

// Walk visits every file depth first, drive by drive. It returns the joined
// errors of all callbacks.
func (a *Archive) Walk(fn WalkFunc) error {
	var errs []error
	stop := false
	visitFiles := func(files []int) {
		for _, i := range files {
			if stop {
				return
			}
			f := &a.Files[i]
			if err := fn(a.FilePath(f), f); err != nil {
				if errors.Is(err, fs.SkipAll) {
					stop = true
					return
				}
				errs = append(errs, err)
			}
		}
	}
	var visit func(i int)
	visit = func(i int) {
		visitFiles(a.Folders[i].Files)
		for _, c := range a.Folders[i].Folders {
			if stop {
				return
			}
			visit(c)
		}
	}
	for d := range a.Drives {
		visitFiles(a.Drives[d].Files)
		for _, c := range a.Drives[d].Folders {
			if stop {
				break
			}
			visit(c)
		}
		if stop {
			break
		}
	}
	return errors.Join(errs...)
}

// ListFiles returns the path of every file in walk order.
func (a *Archive) ListFiles() []string {
	paths := make([]string, 0, len(a.Files))
	a.Walk(func(p string, _ *File) error {
		paths = append(paths, p)
		return nil
	})
	return paths
}

// ExtractFile extracts a file from the archive to the specified destination.
func (a *Archive) ExtractFile(archivePath, destPath string) error {
	data, err := a.ReadFile(archivePath)
	if err != nil {
		return err
	}
	return writeOut(destPath, data)
}

// ExtractTo writes the file at archivePath to destDir/alias/Folder/file and
// returns the path written. Names that would escape destDir are rejected.
func (a *Archive) ExtractTo(destDir, archivePath string) (string, error) {
	f, err := a.Lookup(archivePath)
	if err != nil {
		return "", err
	}
	dest, err := extractPath(destDir, a.FilePath(f))
	if err != nil {
		return "", err
	}
	data, err := a.Read(f, true)
	if err != nil {
		return "", err
	}
	if err := writeOut(dest, data); err != nil {
		return "", err
	}
	return dest, nil
}

// ExtractAll writes every file below destDir as destDir/alias/Folder/file.
// A file that fails to decode is skipped and reported in the returned error;
// the remaining files are still extracted.
func (a *Archive) ExtractAll(destDir string) error {
	return a.Walk(func(p string, f *File) error {
		dest, err := extractPath(destDir, p)
		if err != nil {
			a.log.Warn("skipping file", zap.String("path", p), zap.Error(err))
			return err
		}
		data, err := a.Read(f, true)
		if err == nil {
			err = writeOut(dest, data)
		}
		if err != nil {
			a.log.Warn("skipping file", zap.String("path", p), zap.Error(err))
			return fmt.Errorf("extract %s: %w", p, err)
		}
		return nil
	})
}

// extractPath maps an archive path to a location under destDir, rejecting
// elements that would escape it.
func extractPath(destDir, archivePath string) (string, error) {
	alias, rel, _ := strings.Cut(archivePath, ":")
	elems := []string{destDir, alias}
	for _, e := range strings.Split(rel, "\\") {
		if e == "" || e == "." || e == ".." || strings.ContainsAny(e, "/:") {
			return "", fmt.Errorf("%w: unsafe path %q", ErrInvalidName, archivePath)
		}
		elems = append(elems, e)
	}
	return filepath.Join(elems...), nil
}

func writeOut(destPath string, data []byte) error {
	// Ensure destination directory exists
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Verify checks the archive's checksums against the backing source.
func (a *Archive) Verify(mode VerifyMode) error {
	if a.mode != "r" {
		return ErrWriteOnly
	}
	return verifyChecksums(a.src, a.size, &a.Header, mode)
}

// Close closes the archive.
// For archives opened with Create, this writes the archive to disk.
func (a *Archive) Close() error {
	if a.mode == "r" {
		if a.closer != nil {
			return a.closer.Close()
		}
		return nil
	}
	if a.path == "" {
		return nil
	}

	if err := a.writeFile(a.tempPath); err != nil {
		os.Remove(a.tempPath)
		return err
	}

	// Move temp file to final path
	os.Remove(a.path)
	if err := os.Rename(a.tempPath, a.path); err != nil {
		if err := copyFile(a.tempPath, a.path); err != nil {
			os.Remove(a.tempPath)
			return fmt.Errorf("save archive: %w", err)
		}
		os.Remove(a.tempPath)
	}
	return nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
