package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v2"

	"mlserve/classifier"
	qhttp "mlserve/http"
	"mlserve/logging"
)

const defaultConfigPath = "config.yaml"

type Config struct {
	HTTP    qhttp.ServerConfig `yaml:"http"`
	Log     logging.Config     `yaml:"log"`
	History struct {
		// Path of the sqlite training log; empty disables history.
		Path string `yaml:"path"`
	} `yaml:"history"`
	Flowers struct {
		TestRatio   float64 `yaml:"test_ratio"`
		ForestTrees int     `yaml:"forest_trees"`
		CacheSize   int     `yaml:"cache_size"`
	} `yaml:"flowers"`
	Titanic struct {
		// DatasetPath overrides the bundled titanic.csv excerpt.
		DatasetPath   string  `yaml:"dataset_path"`
		TestRatio     float64 `yaml:"test_ratio"`
		Seed          int64   `yaml:"seed"`
		MaxDepth      int     `yaml:"max_depth"`
		ArtifactPath  string  `yaml:"artifact_path"`
		SaveOnTrain   bool    `yaml:"save_on_train"`
		WatchArtifact bool    `yaml:"watch_artifact"`
		CacheSize     int     `yaml:"cache_size"`
	} `yaml:"titanic"`
}

func defaultConfig() *Config {
	config := &Config{
		HTTP: qhttp.DefaultServerConfig(),
		Log:  logging.Config{Level: "info"},
	}
	config.History.Path = "data/history.db"
	config.Flowers.TestRatio = 0.5
	config.Flowers.ForestTrees = 100
	config.Flowers.CacheSize = 1024
	config.Titanic.TestRatio = 0.25
	config.Titanic.Seed = 42
	config.Titanic.MaxDepth = 3
	config.Titanic.ArtifactPath = classifier.DefaultArtifactPath
	config.Titanic.SaveOnTrain = true
	config.Titanic.CacheSize = 1024
	return config
}

// loadConfig overlays the yaml file at path on the defaults. A missing file
// is only an error when the path was given explicitly.
func loadConfig(path string, explicit bool) (*Config, error) {
	config := defaultConfig()
	file, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return config, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	for name, ratio := range map[string]float64{
		"flowers.test_ratio": c.Flowers.TestRatio,
		"titanic.test_ratio": c.Titanic.TestRatio,
	} {
		if ratio <= 0 || ratio >= 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, ratio)
		}
	}
	if c.Titanic.ArtifactPath == "" {
		return errors.New("titanic.artifact_path must not be empty")
	}
	return nil
}
