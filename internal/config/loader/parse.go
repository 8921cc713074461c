package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

func parseTOML(source string, data []byte) (map[string]any, error) {
	var m map[string]any
	err := toml.Unmarshal(data, &m)
	if err == nil {
		return m, nil
	}

	perr := &ParseError{Path: source, Format: FormatTOML, Message: err.Error(), Err: err}
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		perr.Line, perr.Column = derr.Position()
	}
	return nil, perr
}

func parseYAML(source string, data []byte) (map[string]any, error) {
	var m map[string]any
	err := yaml.Unmarshal(data, &m)
	if err == nil {
		return m, nil
	}

	msg := err.Error()
	perr := &ParseError{Path: source, Format: FormatYAML, Message: strings.TrimPrefix(msg, "yaml: "), Err: err}
	// syntax errors read "yaml: line N: ..."
	var line int
	if _, serr := fmt.Sscanf(msg, "yaml: line %d:", &line); serr == nil {
		perr.Line = line
	}
	return nil, perr
}
