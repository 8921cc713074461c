package loader

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned for a file extension no parser handles.
var ErrUnsupportedFormat = errors.New("loader: unsupported config format")

// ParseError reports malformed file content. Line and Column are zero when
// the parser does not say where the problem is.
type ParseError struct {
	Path    string
	Format  Format
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	where := e.Path
	switch {
	case e.Line > 0 && e.Column > 0:
		where = fmt.Sprintf("%s:%d:%d", e.Path, e.Line, e.Column)
	case e.Line > 0:
		where = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	return fmt.Sprintf("%s: invalid %s: %s", where, e.Format, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }
