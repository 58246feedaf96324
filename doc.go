// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package sga provides pure Go support for reading and writing SGA archives.

SGA is the archive format Relic Entertainment used in Dawn of War, Dawn of
War II and Dawn of War III. An archive is a small virtual filesystem: one or
more drives (such as "data:"), each holding folders and files, indexed by a
table of contents of flat, range-linked record arrays. This package supports
format versions 2, 5 and 9.

# Features

  - Read and write SGA archives
  - Versions 2 (Dawn of War), 5 (Dawn of War II) and 9 (Dawn of War III)
  - Lazy (default) or eager payload loading, with an optional inflate cache
  - Zlib compression with the window sizes the original tools choose
  - MD5 header and file checksums for versions 2 and 5
  - Byte-exact repacking of archives written by this package
  - Chains of archives where later archives override earlier ones

# Basic Usage

Creating an archive:

	archive, err := sga.Create("mod.sga", sga.V2, "My Mod")
	if err != nil {
		log.Fatal(err)
	}
	defer archive.Close()

	err = archive.AddFile("local/hello.txt", "data:Tests\\hello.txt")
	if err != nil {
		log.Fatal(err)
	}

Reading an archive:

	archive, err := sga.OpenWithOptions("W40kData.sga", sga.Options{Verify: sga.VerifyFast})
	if err != nil {
		log.Fatal(err)
	}
	defer archive.Close()

	data, err := archive.ReadFile("data:Tests\\hello.txt")
	if err != nil {
		log.Fatal(err)
	}

# Path Conventions

Archive paths take the form "alias:Folder\\Sub\\file.ext". Forward slashes are
accepted and lookups ignore case. A path without an alias refers to the first
drive of the archive.

# Integrity

Versions 2 and 5 carry two salted MD5 digests: one over the table of contents
and one over the table of contents plus the data block. [VerifyFast] checks the
former and [VerifyFull] additionally checks the latter on version 2 archives.
Version 9 archives carry no checksums. With [Options.Lenient] a mismatch is
logged instead of failing the open.

# Limitations

  - Payloads are stored or zlib compressed; other codecs are not supported
  - The chunky payload formats inside an archive are not decoded
  - Unknown record fields are preserved but not interpreted
*/
package sga
