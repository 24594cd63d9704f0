package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "JSONLS_"

// FileSystem is the file access a Loader needs.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Loader assembles a Config from defaults, a file and the environment.
type Loader struct {
	fs  FileSystem
	env *EnvLoader
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFileSystem sets the file system config files are read from.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(l *Loader) {
		l.fs = fs
	}
}

// WithEnvLoader replaces the environment loader.
func WithEnvLoader(env *EnvLoader) LoaderOption {
	return func(l *Loader) {
		l.env = env
	}
}

// NewLoader creates a loader reading the OS file system and JSONLS_*
// variables.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		fs:  OSFS{},
		env: NewEnvLoader(EnvPrefix),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds the configuration with the default loader.
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Load builds the configuration. The file at path is skipped when path is
// empty; a named file that doesn't exist is an error. Relative schema
// paths in the file are resolved against the file's directory.
func (l *Loader) Load(path string) (*Config, error) {
	var file map[string]any
	if path != "" {
		var err error
		if file, err = l.LoadFile(path); err != nil {
			return nil, err
		}
	}

	env, err := l.env.Load()
	if err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := decode(DeepMerge(file, env), cfg); err != nil {
		source := "environment"
		if path != "" {
			source = path
		}
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}

	if path != "" {
		dir := filepath.Dir(path)
		for i, a := range cfg.Schemas {
			if a.Path != "" && !filepath.IsAbs(a.Path) {
				cfg.Schemas[i].Path = filepath.Join(dir, a.Path)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a config file into a map. The format follows the file
// extension: .toml, or .yaml and .yml.
func (l *Loader) LoadFile(path string) (map[string]any, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return parseTOML(path, data)
	case ".yaml", ".yml":
		return parseYAML(path, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseTOML(source string, data []byte) (map[string]any, error) {
	var config map[string]any
	if err := toml.Unmarshal(data, &config); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}
	return config, nil
}

func parseYAML(source string, data []byte) (map[string]any, error) {
	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	return config, nil
}

// decode applies data onto cfg. Settings cfg has no field for are
// rejected.
func decode(data map[string]any, cfg *Config) error {
	if len(data) == 0 {
		return nil
	}
	raw, err := toml.Marshal(data)
	if err != nil {
		return err
	}
	dec := toml.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			keys := make([]string, len(strict.Errors))
			for i, e := range strict.Errors {
				keys[i] = strings.Join(e.Key(), ".")
			}
			return fmt.Errorf("unknown settings: %s", strings.Join(keys, ", "))
		}
		return err
	}
	return nil
}

// DeepMerge recursively merges src into dst.
// Values in src override values in dst.
// Maps are merged recursively; other types are replaced.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
		} else {
			dst[key] = srcVal
		}
	}
	return dst
}
