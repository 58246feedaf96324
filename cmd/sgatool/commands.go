// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suprsokr/go-sga"
)

func (a *app) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <archive>",
		Short: "Print the archive header and table of contents summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.open(args[0], sga.VerifyNone)
			if err != nil {
				return err
			}
			defer archive.Close()

			h := archive.Header
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Version:\t%s\n", h.Version)
			fmt.Fprintf(w, "Name:\t%s\n", h.Name)
			fmt.Fprintf(w, "TOC:\t%d bytes at %d\n", h.TOCSize, h.TOCOffset)
			fmt.Fprintf(w, "Data:\t%d bytes at %d\n", h.DataSize, h.DataOffset)
			if h.Checksums != nil {
				fmt.Fprintf(w, "File MD5:\t%x\n", h.Checksums.File)
				fmt.Fprintf(w, "Header MD5:\t%x\n", h.Checksums.Header)
			}
			for _, d := range archive.Drives {
				fmt.Fprintf(w, "Drive:\t%s: (%s)\n", d.Alias, d.Name)
			}
			fmt.Fprintf(w, "Folders:\t%d\n", len(archive.Folders))
			fmt.Fprintf(w, "Files:\t%d\n", len(archive.Files))
			return w.Flush()
		},
	}
}

func (a *app) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls <archive>",
		Aliases: []string{"list"},
		Short:   "List files with their stored and decompressed sizes",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.open(args[0], sga.VerifyNone)
			if err != nil {
				return err
			}
			defer archive.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "STORED\tSIZE\t\tPATH")
			archive.Walk(func(p string, f *sga.File) error {
				loc := f.Location()
				mark := ""
				if f.Compressed() {
					mark = "z"
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", loc.StoredSize, loc.Size, mark, p)
				return nil
			})
			return w.Flush()
		},
	}
}

func (a *app) newVerifyCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "verify <archive>...",
		Short: "Check archive checksums",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := sga.VerifyFast
			if full {
				mode = sga.VerifyFull
			}
			failed := 0
			for _, path := range args {
				archive, err := a.open(path, mode)
				if err != nil {
					a.log.Error("verify failed", zap.String("path", path), zap.Error(err))
					failed++
					continue
				}
				archive.Close()
				fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%s, %s)\n", path, archive.Header.Version, mode)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d archives failed verification", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "also check the digest over the data block")
	return cmd
}

func (a *app) newExtractCmd() *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "extract <archive> <dest>",
		Short: "Extract all files, or only the named ones, below dest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.open(args[0], sga.VerifyNone)
			if err != nil {
				return err
			}
			defer archive.Close()

			if len(files) == 0 {
				return archive.ExtractAll(args[1])
			}
			for _, p := range files {
				dest, err := archive.ExtractTo(args[1], p)
				if err != nil {
					return err
				}
				a.log.Debug("extracted", zap.String("path", p), zap.String("dest", dest))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "archive path to extract (repeatable)")
	return cmd
}

func (a *app) newPackCmd() *cobra.Command {
	var (
		version int
		name    string
		alias   string
	)
	cmd := &cobra.Command{
		Use:   "pack <dir> <archive>",
		Short: "Pack a directory tree into a new archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := sga.Version(version)
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[1]), filepath.Ext(args[1]))
			}
			archive, err := sga.Create(args[1], v, name)
			if err != nil {
				return err
			}
			archive.SetLogger(a.log)

			err = filepath.WalkDir(args[0], func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return err
				}
				rel, err := filepath.Rel(args[0], path)
				if err != nil {
					return err
				}
				archivePath := alias + ":" + strings.ReplaceAll(filepath.ToSlash(rel), "/", "\\")
				a.log.Debug("adding", zap.String("src", path), zap.String("path", archivePath))
				return archive.AddFile(path, archivePath)
			})
			if err != nil {
				return err
			}
			if err := archive.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files (%s)\n", args[1], len(archive.Files), v)
			return nil
		},
	}
	cmd.Flags().IntVar(&version, "version", 2, "archive version: 2, 5 or 9")
	cmd.Flags().StringVar(&name, "name", "", "archive display name (default: file name)")
	cmd.Flags().StringVar(&alias, "alias", "data", "drive alias")
	return cmd
}
