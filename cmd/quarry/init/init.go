// Package initcmder provides the init command for initializing a local
// .quarry directory in the current working directory.
package initcmder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/pkg/config"
)

const (
	dirName = ".quarry"
)

const initLongDesc string = `Initialize a new .quarry/ directory in the current working directory.

Creates a local .quarry/ directory that takes precedence over the default
~/.quarry/ directory for storage and configuration.

This is useful for maintaining separate quarry state per project or directory.

With --preset, a config.toml pre-filled for the named embedding provider
is written into the new directory. Available presets: ollama, openai,
huggingface.

Examples:
  quarry init
  quarry init --preset ollama`

const initShortDesc string = "Initialize a local .quarry/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "",
		fmt.Sprintf("Write a config.toml for an embedding provider preset (%s)",
			strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func runInit(preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	alreadyExists := err == nil && info.IsDir()

	if !alreadyExists {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .quarry directory: %w", err)
		}
	}

	cfg := config.NewDefaultConfig()
	if preset != "" {
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return err
		}
	}

	configPath := filepath.Join(dir, "config.toml")
	_, err = os.Stat(configPath)
	configExists := err == nil

	// A preset always overwrites; a plain init never clobbers an existing file.
	if preset != "" || !configExists {
		cfger, err := config.NewConfiger(dir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if err := cfger.SaveConfig(cfg); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
	}

	if preset != "" {
		fmt.Printf("Wrote %s preset config: %s\n", preset, configPath)
	}

	if alreadyExists {
		fmt.Printf("Already initialized: %s\n", dir)
		return nil
	}

	fmt.Printf("Initialized .quarry directory: %s\n", dir)
	return nil
}
