package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/golobby/config/v3/pkg/feeder"
	"gopkg.in/yaml.v3"
)

// Feeder mirrors the teacher's config.Feeder contract: populate structure
// from whatever source the feeder wraps.
type Feeder interface {
	Feed(structure interface{}) error
}

// TomlFeeder loads RuntimeConfig from a TOML file.
type TomlFeeder struct {
	feeder.Toml
}

// NewTomlFeeder constructs a TomlFeeder over path.
func NewTomlFeeder(path string) TomlFeeder {
	return TomlFeeder{feeder.Toml{Path: path}}
}

// Feed implements Feeder by delegating straight to golobby's Toml feeder.
func (t TomlFeeder) Feed(structure interface{}) error {
	if err := t.Toml.Feed(structure); err != nil {
		return fmt.Errorf("toml feed: %w", err)
	}
	return nil
}

// FeedKey loads only the subtree under key (e.g. "param", "stream") from
// the TOML file into target, mirroring the teacher's own TomlFeeder.FeedKey:
// read the whole document, re-marshal the named subtree, then unmarshal it
// directly into target's concrete type. Used to reload a single subsystem's
// config section without touching the rest of RuntimeConfig.
func (t TomlFeeder) FeedKey(key string, target interface{}) error {
	var all map[string]interface{}
	if err := t.Toml.Feed(&all); err != nil {
		return fmt.Errorf("toml feed: %w", err)
	}
	value, ok := all[key]
	if !ok {
		return nil
	}
	raw, err := toml.Marshal(value)
	if err != nil {
		return fmt.Errorf("toml feed key %q: marshal: %w", key, err)
	}
	if err := toml.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("toml feed key %q: unmarshal: %w", key, err)
	}
	return nil
}

// YamlFeeder loads RuntimeConfig from a YAML file.
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder constructs a YamlFeeder over path.
func NewYamlFeeder(path string) YamlFeeder {
	return YamlFeeder{Path: path}
}

// Feed implements Feeder.
func (y YamlFeeder) Feed(structure interface{}) error {
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("yaml feed: %w", err)
	}
	if err := yaml.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("yaml feed: unmarshal %s: %w", y.Path, err)
	}
	return nil
}

// EnvFeeder loads RuntimeConfig from environment variables using each
// field's `env` struct tag.
type EnvFeeder = feeder.Env

// NewEnvFeeder constructs an EnvFeeder.
func NewEnvFeeder() EnvFeeder {
	return EnvFeeder{}
}

// ForPath selects a Feeder by file extension: ".toml" -> TomlFeeder,
// ".yaml"/".yml" -> YamlFeeder. Any other extension is an error — there is
// no silent default format.
func ForPath(path string) (Feeder, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	default:
		return nil, fmt.Errorf("config: unsupported file extension %q for %s", ext, path)
	}
}

// Load applies feeders in order against target, each one layering over
// fields the previous feeders already set (a later feeder's zero values
// don't clobber an earlier feeder's non-zero ones only if the feeder
// itself respects that — feeder.Env and the toml/yaml feeders here always
// overwrite every matching field, so order is significant: put env last
// to let it override file-based configuration).
func Load(feeders []Feeder, target interface{}) error {
	for _, f := range feeders {
		if err := f.Feed(target); err != nil {
			return err
		}
	}
	return nil
}
