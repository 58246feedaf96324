// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestPackListExtract(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "Tests"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "Tests", "hello.txt"), []byte("Hello, World!"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "big.rgd"), bytes.Repeat([]byte("squad marine "), 4000), 0644))

	for _, version := range []string{"2", "5", "9"} {
		t.Run("v"+version, func(t *testing.T) {
			archive := filepath.Join(dir, "mod"+version+".sga")
			out := run(t, "pack", "--version", version, src, archive)
			assert.Contains(t, out, "2 files")

			out = run(t, "ls", archive)
			assert.Contains(t, out, "data:Tests\\hello.txt")
			assert.Contains(t, out, "data:big.rgd")

			out = run(t, "info", archive)
			assert.Contains(t, out, "v"+version+".0")

			out = run(t, "verify", "--full", archive)
			assert.Contains(t, out, "OK")

			dest := filepath.Join(dir, "out"+version)
			run(t, "--eager", "extract", archive, dest)
			got, err := os.ReadFile(filepath.Join(dest, "data", "Tests", "hello.txt"))
			require.NoError(t, err)
			assert.Equal(t, "Hello, World!", string(got))

			single := filepath.Join(dir, "single"+version)
			run(t, "extract", "-f", "data:big.rgd", archive, single)
			assert.FileExists(t, filepath.Join(single, "data", "big.rgd"))
		})
	}
}

func TestVerifyFailure(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.sga")
	require.NoError(t, os.WriteFile(bad, []byte("not an archive"), 0644))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"verify", bad})
	assert.Error(t, root.Execute())
}
