// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"errors"
	"fmt"
)

// Chain represents a prioritized list of SGA archives, such as a base game
// archive followed by mod or patch archives.
type Chain struct {
	archives []*Archive
	fileMap  map[string]int // normalized path -> archive index
}

// OpenChain opens multiple SGA archives in order of increasing priority.
// The last archive in the list has the highest priority.
func OpenChain(paths []string, opts Options) (*Chain, error) {
	archives := make([]*Archive, 0, len(paths))
	for _, path := range paths {
		archive, err := OpenWithOptions(path, opts)
		if err != nil {
			for _, opened := range archives {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("open archive %s: %w", path, err)
		}
		archives = append(archives, archive)
	}

	c := &Chain{archives: archives}
	c.rebuildFileMap()
	return c, nil
}

// Close closes all archives in the chain.
func (c *Chain) Close() error {
	var errs []error
	for _, archive := range c.archives {
		if err := archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of archives in the chain.
func (c *Chain) Len() int { return len(c.archives) }

// Archive returns the i-th archive of the chain.
func (c *Chain) Archive(i int) *Archive { return c.archives[i] }

// Resolve returns the highest-priority archive holding archivePath and the
// file inside it.
func (c *Chain) Resolve(archivePath string) (*Archive, *File, error) {
	q := c.qualify(archivePath)
	i, ok := c.fileMap[normalizePath(q)]
	if !ok {
		return nil, nil, fmt.Errorf("%w in chain: %s", ErrNotFound, archivePath)
	}
	f, err := c.archives[i].Lookup(q)
	if err != nil {
		return nil, nil, err
	}
	return c.archives[i], f, nil
}

// HasFile returns true if any archive contains the specified file.
func (c *Chain) HasFile(archivePath string) bool {
	_, ok := c.fileMap[normalizePath(c.qualify(archivePath))]
	return ok
}

// ReadFile returns the decompressed contents of the highest-priority version
// of a file.
func (c *Chain) ReadFile(archivePath string) ([]byte, error) {
	a, f, err := c.Resolve(archivePath)
	if err != nil {
		return nil, err
	}
	return a.Read(f, true)
}

// ExtractFile extracts the highest-priority version of a file.
func (c *Chain) ExtractFile(archivePath, destPath string) error {
	data, err := c.ReadFile(archivePath)
	if err != nil {
		return err
	}
	return writeOut(destPath, data)
}

// ListFiles returns the union of file paths across the chain, each listed
// once in the order it is first seen.
func (c *Chain) ListFiles() []string {
	seen := make(map[string]struct{})
	var result []string
	for _, archive := range c.archives {
		for _, file := range archive.ListFiles() {
			key := normalizePath(file)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, file)
		}
	}
	return result
}

// qualify prefixes paths without an alias with the first drive of the
// lowest-priority archive, matching how Archive.Lookup treats them.
func (c *Chain) qualify(archivePath string) string {
	for _, a := range c.archives {
		if len(a.Drives) > 0 {
			alias, rel := a.splitPath(archivePath)
			return alias + ":" + rel
		}
	}
	return archivePath
}

// rebuildFileMap rebuilds the internal file map cache.
func (c *Chain) rebuildFileMap() {
	c.fileMap = make(map[string]int)

	// Process archives in reverse order (highest priority first)
	for i := len(c.archives) - 1; i >= 0; i-- {
		for _, file := range c.archives[i].ListFiles() {
			key := normalizePath(file)
			if _, exists := c.fileMap[key]; !exists {
				c.fileMap[key] = i
			}
		}
	}
}
