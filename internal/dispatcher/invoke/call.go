package invoke

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors for callback preparation.
var (
	// ErrNilCallback is returned when a nil function is posted.
	ErrNilCallback = errors.New("invoke: callback cannot be nil")

	// ErrNotFunc is returned when the callback is not a function.
	ErrNotFunc = errors.New("invoke: callback is not a function")

	// ErrArgCount is returned when the argument count does not match.
	ErrArgCount = errors.New("invoke: wrong number of arguments")

	// ErrArgType is returned when an argument is not assignable to its parameter.
	ErrArgType = errors.New("invoke: argument type mismatch")
)

var errorType = reflect.TypeFor[error]()

// Call is a prepared callback with bound arguments.
type Call struct {
	// fast paths avoid reflection for the common zero-argument shapes
	fast func() (any, error)

	fn   reflect.Value
	args []reflect.Value
	name string
}

// Prepare validates fn against args and binds them.
func Prepare(fn any, args ...any) (*Call, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}

	if len(args) == 0 {
		if fast := fastPath(fn); fast != nil {
			return &Call{fast: fast, name: fmt.Sprintf("%T", fn)}, nil
		}
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: got %T", ErrNotFunc, fn)
	}
	if v.IsNil() {
		return nil, ErrNilCallback
	}

	t := v.Type()
	in, err := bindArgs(t, args)
	if err != nil {
		return nil, err
	}

	return &Call{fn: v, args: in, name: t.String()}, nil
}

// MustPrepare is like Prepare but panics on error.
func MustPrepare(fn any, args ...any) *Call {
	c, err := Prepare(fn, args...)
	if err != nil {
		panic(err)
	}
	return c
}

// Name describes the callback's type for logs.
func (c *Call) Name() string { return c.name }

// call runs the callback without recovery.
func (c *Call) call() (any, error) {
	if c.fast != nil {
		return c.fast()
	}

	// Call packs trailing arguments of a variadic function itself.
	return splitResults(c.fn.Call(c.args))
}

func fastPath(fn any) func() (any, error) {
	switch f := fn.(type) {
	case func():
		if f == nil {
			return nil
		}
		return func() (any, error) { f(); return nil, nil }
	case func() error:
		if f == nil {
			return nil
		}
		return func() (any, error) { return nil, f() }
	case func() any:
		if f == nil {
			return nil
		}
		return func() (any, error) { return f(), nil }
	case func() (any, error):
		if f == nil {
			return nil
		}
		return f
	}
	return nil
}

func bindArgs(t reflect.Type, args []any) ([]reflect.Value, error) {
	n := t.NumIn()
	variadic := t.IsVariadic()

	if variadic {
		if len(args) < n-1 {
			return nil, fmt.Errorf("%w: want at least %d, got %d", ErrArgCount, n-1, len(args))
		}
	} else if len(args) != n {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrArgCount, n, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		switch {
		case variadic && i >= n-1:
			pt = t.In(n - 1).Elem()
		default:
			pt = t.In(i)
		}

		v, err := argValue(a, pt)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d: %v", ErrArgType, i, err)
		}
		in[i] = v
	}
	return in, nil
}

func argValue(a any, pt reflect.Type) (reflect.Value, error) {
	if a == nil {
		switch pt.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(pt), nil
		}
		return reflect.Value{}, fmt.Errorf("nil is not assignable to %s", pt)
	}

	v := reflect.ValueOf(a)
	if v.Type().AssignableTo(pt) {
		return v, nil
	}
	return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), pt)
}

func splitResults(out []reflect.Value) (any, error) {
	var err error
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if e := out[n-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		out = out[:n-1]
	}

	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	default:
		values := make([]any, len(out))
		for i, v := range out {
			values[i] = v.Interface()
		}
		return values, err
	}
}
