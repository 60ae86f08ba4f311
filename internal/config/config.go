// Package config loads the doublezero YAML configuration file onto the
// per-package defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/storage/badger"
	"github.com/zeusync/doublezero/internal/core/store"
	"github.com/zeusync/doublezero/internal/server"
	"github.com/zeusync/doublezero/sdk/go/client"
)

var ErrUnknownStorageKind = errors.New("unknown storage kind")

// Config is the whole configuration file.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Server   server.Config `yaml:"server"`
	Client   client.Config `yaml:"client"`
	Storage  Storage       `yaml:"storage"`
}

// Storage selects where local stores keep their history.
type Storage struct {
	// Kind is "persistent" or "ephemeral".
	Kind      string        `yaml:"kind"`
	Partition string        `yaml:"partition"`
	Store     string        `yaml:"store"`
	Badger    badger.Config `yaml:"badger"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	b := badger.DefaultConfig()
	b.Path = "./data"
	return Config{
		LogLevel: log.LevelInfo.String(),
		Server:   server.DefaultServerConfig(),
		Client:   client.DefaultClientConfig(),
		Storage: Storage{
			Kind:      store.KindPersistent.String(),
			Partition: store.DefaultPartition,
			Store:     "cursors",
			Badger:    b,
		},
	}
}

// Load decodes YAML from r over the defaults.
func Load(r io.Reader) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.apply()
	return c, nil
}

// LoadFile loads path, or the defaults when path is empty.
func LoadFile(path string) (Config, error) {
	if path == "" {
		c := Default()
		c.apply()
		return c, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Load(f)
}

// Level returns the configured log level.
func (c Config) Level() log.Level {
	return log.ParseLevel(c.LogLevel)
}

// StoreKind maps the storage kind name to a store kind.
func (s Storage) StoreKind() (store.Kind, error) {
	switch s.Kind {
	case store.KindPersistent.String():
		return store.KindPersistent, nil
	case store.KindEphemeral.String():
		return store.KindEphemeral, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStorageKind, s.Kind)
	}
}

// StoreOptions returns options for the configured store.
func (s Storage) StoreOptions(logger log.Log) store.Options {
	opts := store.DefaultOptions(s.Store)
	opts.Partition = s.Partition
	opts.Badger = s.Badger
	opts.Logger = logger
	return opts
}

func (c *Config) apply() {
	level := c.Level()
	c.Server.LogLevel = level
	c.Client.LogLevel = level
}
