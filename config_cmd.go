package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `narrate:
  # speech engine: mock or piper
  engine: "mock"

  # audio output
  sample_rate: 22050
  volume: 1.0

  # pipeline queue depths
  segment_queue_size: 10
  audio_queue_size: 5

  # look-ahead pre-synthesis
  buffer_ahead: 2
  max_buffered_pages: 5

  # timing model for text highlighting
  narration_wpm: 150
  dialog_wpm: 140

  # read everything in the base voice
  disable_emotion: false

  # synthesized-audio cache
  cache:
    enabled: true
    memory_capacity: 52428800
    disk_capacity: 524288000
    # disk_path: "/path/to/cache"
    compression: 3
    ttl_days: 30

  # piper subprocess engine
  piper:
    binary: "piper"
    # model_path: "/path/to/model.onnx"
    speaker_id: 0
    timeout: "30s"
    rate_limit: 4

  # mock engine (for testing)
  mock:
    generation_delay: "10ms"
    words_per_minute: 150
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the voxbook config file",
	Long:    "\nEdit the voxbook config file. We'll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.",
	Example: "voxbook config\nvoxbook config --config path/to/config.yml",
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		ed := os.Getenv("EDITOR")
		if ed == "" {
			fmt.Println("Config file is at:", configFile)
			return nil
		}
		c := exec.Command(ed, configFile)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run %s: %w", ed, err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if configFile == "" {
			configFile = filepath.Join(dataDir(), "voxbook.yaml")
		}
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
