// Package loader reads dispatchloop configuration sources into plain maps.
//
// Files are parsed as TOML or YAML depending on their extension, and
// environment variables with a common prefix are folded into the same
// dotted key space. Maps from several sources are combined with DeepMerge
// before being decoded into typed configuration.
package loader

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Loader produces one configuration layer. A source that does not exist
// yields a nil map and no error.
type Loader interface {
	Load() (map[string]any, error)
}

// FileLoader is a Loader backed by a file that can also parse other paths
// or readers in the same format.
type FileLoader interface {
	Loader
	LoadFrom(path string) (map[string]any, error)
	LoadFromReader(r io.Reader) (map[string]any, error)
}

// FileSystem is the subset of file access the loaders need; tests supply
// an in-memory one.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
}

// OSFS reads from the operating system.
type OSFS struct{}

func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// DefaultFS returns OSFS.
func DefaultFS() FileSystem { return OSFS{} }

// Format identifies a configuration file syntax.
type Format int

const (
	// FormatUnknown is returned for unsupported extensions.
	FormatUnknown Format = iota
	// FormatTOML is TOML v1.0.
	FormatTOML
	// FormatYAML is YAML 1.2.
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// FormatFor picks the format from the file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// ForPath returns a loader for path in the format its extension names. A
// nil fsys reads from the OS.
func ForPath(fsys FileSystem, path string) (FileLoader, error) {
	format := FormatFor(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return NewFile(fsys, path, format), nil
}

// readFile reads path, mapping a missing file to (nil, nil).
func readFile(fsys FileSystem, path string) ([]byte, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return data, nil
}

// DeepMerge folds src into dst and returns dst. Nested maps merge key by
// key; any other value in src replaces the one in dst.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}

// Get returns the value at a dotted key such as "dispatcher.maxFrameDepth".
func Get(data map[string]any, key string) (any, bool) {
	parent, leaf, ok := walk(data, key, false)
	if !ok {
		return nil, false
	}
	v, ok := parent[leaf]
	return v, ok
}

// Set stores value at a dotted key, creating or replacing the maps on the
// way.
func Set(data map[string]any, key string, value any) {
	parent, leaf, _ := walk(data, key, true)
	parent[leaf] = value
}

// walk returns the map holding the last segment of key. With create set,
// missing or non-map segments are replaced by empty maps.
func walk(data map[string]any, key string, create bool) (map[string]any, string, bool) {
	segs := strings.Split(key, ".")
	cur := data
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			if !create {
				return nil, "", false
			}
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	return cur, segs[len(segs)-1], true
}
