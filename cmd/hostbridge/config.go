package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/hostbridge/ir"
)

const defaultConfigFile = "hostbridge.toml"

// Config is the hostbridge.toml file.
type Config struct {
	Log  LogConfig  `toml:"log"`
	Heap HeapConfig `toml:"heap"`
	IR   IRConfig   `toml:"ir"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type HeapConfig struct {
	// Capacity caps live wrappers; 0 is unlimited.
	Capacity int `toml:"capacity"`
}

type IRConfig struct {
	// Format is the output format when it cannot be derived from a path.
	Format string `toml:"format"`
}

func defaultConfig() Config {
	return Config{IR: IRConfig{Format: string(ir.FormatTOML)}}
}

// LoadConfig reads path. A missing file is only an error when the path was
// given explicitly.
func LoadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if !explicit && stderrors.Is(err, fs.ErrNotExist) {
			return defaultConfig(), nil
		}
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if cfg.Heap.Capacity < 0 {
		return Config{}, fmt.Errorf("config %s: heap.capacity must not be negative", path)
	}
	if _, err := ir.ParseFormat(cfg.IR.Format); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// writeOutput writes data to path, or to w when path is empty or "-".
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
