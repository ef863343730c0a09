package main

import (
	"os"
	"path/filepath"

	"github.com/jacoelho/xmlhub/internal/config"
)

// loadConfig reads the config file, if any, then applies environment and
// command line overrides.
func loadConfig(flags *globalFlags) (*config.Config, string, error) {
	cfg := config.Default()
	baseDir := "."
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
		baseDir = filepath.Dir(flags.configPath)
	}
	cfg.ApplyEnv(os.Getenv)
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	return cfg, baseDir, nil
}
