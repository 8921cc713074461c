package loader

import (
	"fmt"
	"io"
)

// File reads one configuration file in a fixed format.
type File struct {
	fs     FileSystem
	path   string
	format Format
}

// NewFile returns a loader for path in the given format. A nil fsys reads
// from the OS.
func NewFile(fsys FileSystem, path string, format Format) *File {
	if fsys == nil {
		fsys = DefaultFS()
	}
	return &File{fs: fsys, path: path, format: format}
}

// Format returns the syntax the loader parses.
func (f *File) Format() Format { return f.format }

// Path returns the file the loader reads by default.
func (f *File) Path() string { return f.path }

// Load parses the loader's file. A missing file yields a nil map.
func (f *File) Load() (map[string]any, error) {
	return f.LoadFrom(f.path)
}

// LoadFrom parses the file at path instead of the loader's own.
func (f *File) LoadFrom(path string) (map[string]any, error) {
	data, err := readFile(f.fs, path)
	if err != nil || data == nil {
		return nil, err
	}
	return f.parse(path, data)
}

// LoadFromReader parses everything r yields.
func (f *File) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return f.parse("<reader>", data)
}

func (f *File) parse(source string, data []byte) (map[string]any, error) {
	switch f.format {
	case FormatTOML:
		return parseTOML(source, data)
	case FormatYAML:
		return parseYAML(source, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.format)
	}
}
