// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Command sgatool inspects, verifies, extracts and packs SGA archives.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/suprsokr/go-sga"
)

// app carries configuration shared by all subcommands.
type app struct {
	v   *viper.Viper
	log *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix("SGATOOL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "sgatool",
		Short:        "Inspect and build Dawn of War SGA archives",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.Bool("mmap", false, "memory-map archives instead of using positioned reads")
	flags.Bool("eager", false, "read every payload while opening")
	flags.Bool("lenient", false, "log checksum mismatches instead of failing")
	flags.Int("cache", 64, "number of inflated payloads to cache")
	for _, name := range []string{"verbose", "mmap", "eager", "lenient", "cache"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		a.newInfoCmd(),
		a.newListCmd(),
		a.newVerifyCmd(),
		a.newExtractCmd(),
		a.newPackCmd(),
	)
	return root
}

func (a *app) setupLogger() error {
	var (
		log *zap.Logger
		err error
	)
	if a.v.GetBool("verbose") {
		log, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		log, err = cfg.Build()
	}
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.log = log
	return nil
}

// options builds archive options from flags and environment.
func (a *app) options(verify sga.VerifyMode) sga.Options {
	return sga.Options{
		Eager:     a.v.GetBool("eager"),
		Verify:    verify,
		Lenient:   a.v.GetBool("lenient"),
		Mmap:      a.v.GetBool("mmap"),
		CacheSize: a.v.GetInt("cache"),
		Logger:    a.log,
	}
}

func (a *app) open(path string, verify sga.VerifyMode) (*sga.Archive, error) {
	archive, err := sga.OpenWithOptions(path, a.options(verify))
	if err != nil {
		return nil, err
	}
	a.log.Debug("opened archive", zap.String("path", path), zap.Int("files", len(archive.Files)))
	return archive, nil
}
