// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package sga

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArchive creates an archive at dir/name holding files.
func writeArchive(t testing.TB, dir, name string, version Version, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	a, err := Create(path, version, name)
	require.NoError(t, err)
	for p, content := range files {
		require.NoError(t, a.AddData(p, []byte(content)))
	}
	require.NoError(t, a.Close())
	return path
}

func TestChainPriority(t *testing.T) {
	dir := t.TempDir()
	base := writeArchive(t, dir, "base.sga", V2, map[string]string{
		"data:Tests\\hello.txt": "base hello",
		"data:Tests\\only.txt":  "only in base",
	})
	patch := writeArchive(t, dir, "patch.sga", V2, map[string]string{
		"data:tests\\HELLO.txt": "patched hello",
		"data:new.txt":          "new in patch",
	})

	chain, err := OpenChain([]string{base, patch}, Options{Verify: VerifyFast})
	require.NoError(t, err)
	defer chain.Close()

	assert.Equal(t, 2, chain.Len())
	assert.True(t, chain.HasFile("data:Tests\\hello.txt"))
	assert.True(t, chain.HasFile("data:Tests/only.txt"))
	assert.True(t, chain.HasFile("new.txt"))
	assert.False(t, chain.HasFile("data:missing.txt"))

	got, err := chain.ReadFile("data:Tests\\hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "patched hello", string(got))

	got, err = chain.ReadFile("data:Tests\\only.txt")
	require.NoError(t, err)
	assert.Equal(t, "only in base", string(got))

	a, _, err := chain.Resolve("data:new.txt")
	require.NoError(t, err)
	assert.Same(t, chain.Archive(1), a)

	_, err = chain.ReadFile("data:missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ElementsMatch(t, []string{
		"data:Tests\\hello.txt",
		"data:Tests\\only.txt",
		"data:new.txt",
	}, chain.ListFiles())

	dest := filepath.Join(dir, "out", "hello.txt")
	require.NoError(t, chain.ExtractFile("data:Tests\\hello.txt", dest))
	extracted, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "patched hello", string(extracted))
}

func TestChainMixedVersions(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeArchive(t, dir, "dow.sga", V2, map[string]string{"data:a.txt": "v2"}),
		writeArchive(t, dir, "dow2.sga", V5, map[string]string{"data:a.txt": "v5"}),
		writeArchive(t, dir, "dow3.sga", V9, map[string]string{"data:a.txt": "v9"}),
	}
	chain, err := OpenChain(paths, Options{})
	require.NoError(t, err)
	defer chain.Close()

	got, err := chain.ReadFile("data:a.txt")
	require.NoError(t, err)
	assert.Equal(t, "v9", string(got))
}

func TestChainOpenFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeArchive(t, dir, "good.sga", V2, map[string]string{"data:a.txt": "a"})
	bad := filepath.Join(dir, "bad.sga")
	require.NoError(t, os.WriteFile(bad, []byte("garbage_ not an archive at all"), 0644))

	_, err := OpenChain([]string{good, bad}, Options{})
	assert.ErrorIs(t, err, ErrBadMagic)
}
