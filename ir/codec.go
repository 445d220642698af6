package ir

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/hostbridge/errors"
)

// Format is a serialization format for module files.
type Format string

const (
	FormatTOML    Format = "toml"
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// Formats lists the supported formats.
var Formats = []Format{FormatTOML, FormatJSON, FormatMsgpack}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTOML, FormatJSON, FormatMsgpack:
		return f, nil
	case "mp", "msgp":
		return FormatMsgpack, nil
	default:
		return "", errors.Unsupported(errors.PhaseLoad, "format "+s)
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", errors.Unsupported(errors.PhaseLoad, "file without extension "+path)
	}
	return ParseFormat(ext)
}

// Decode reads a module file and builds a module from it.
func Decode(r io.Reader, format Format) (*Module, error) {
	f, err := DecodeFile(r, format)
	if err != nil {
		return nil, err
	}
	return New(f)
}

// DecodeFile reads a module file without validating it.
func DecodeFile(r io.Reader, format Format) (*File, error) {
	var f File
	switch format {
	case FormatTOML:
		meta, err := toml.NewDecoder(r).Decode(&f)
		if err != nil {
			return nil, errors.Load("decode toml", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Value(keys).
				Detail("unknown keys: %s", strings.Join(keys, ", ")).
				Build()
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, errors.Load("decode json", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(&f); err != nil {
			return nil, errors.Load("decode msgpack", err)
		}
	default:
		return nil, errors.Unsupported(errors.PhaseLoad, "format "+string(format))
	}
	return &f, nil
}

// Encode writes m in the given format. Field and variant order is kept.
func Encode(w io.Writer, format Format, m *Module) error {
	if m == nil {
		return errors.InvalidInput(errors.PhaseLoad, "nil module")
	}
	return EncodeFile(w, format, m.file)
}

// EncodeFile writes a module file in the given format.
func EncodeFile(w io.Writer, format Format, f *File) error {
	switch format {
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(f); err != nil {
			return errors.Load("encode toml", err)
		}
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(f); err != nil {
			return errors.Load("encode json", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewEncoder(w).Encode(f); err != nil {
			return errors.Load("encode msgpack", err)
		}
	default:
		return errors.Unsupported(errors.PhaseLoad, "format "+string(format))
	}
	return nil
}

// Marshal encodes m into a byte slice.
func Marshal(format Format, m *Module) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, format, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a module from data.
func Unmarshal(format Format, data []byte) (*Module, error) {
	return Decode(bytes.NewReader(data), format)
}

// Load reads a module from disk, picking the format from the extension.
func Load(path string) (*Module, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Load("open "+path, err)
	}
	defer fh.Close()
	return Decode(fh, format)
}
