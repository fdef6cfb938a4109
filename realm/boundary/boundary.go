package boundary

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/jsrealm/realm/intrinsics"
)

// Boundary rebuilds exceptions crossing between host code and confined
// code so that only errors made from the captured constructors, carrying
// plain string fields, reach the other side.
type Boundary struct {
	set *intrinsics.Set
	rt  *goja.Runtime
}

// New returns the boundary for an intrinsics set.
func New(set *intrinsics.Set) *Boundary {
	return &Boundary{set: set, rt: set.Runtime()}
}

// Call runs fn, a host operation invoked by confined code, and rethrows
// whatever it raises as a confined exception. Violations and interrupts
// pass through unchanged.
func (b *Boundary) Call(fn func() goja.Value) goja.Value {
	defer func() {
		if x := recover(); x != nil {
			panic(b.rethrow(x))
		}
	}()
	return fn()
}

// Func wraps a Go callback so that it can be installed in confined code.
func (b *Boundary) Func(fn func(call goja.FunctionCall) goja.Value) goja.Value {
	return b.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		return b.Call(func() goja.Value { return fn(call) })
	})
}

// Constructor wraps a Go callback as a function that can be called or
// constructed with new. fn receives the arguments and returns the result
// object either way.
func (b *Boundary) Constructor(fn func(args []goja.Value) *goja.Object) goja.Value {
	return b.rt.ToValue(func(call goja.ConstructorCall) *goja.Object {
		var out *goja.Object
		b.Call(func() goja.Value {
			out = fn(call.Arguments)
			return out
		})
		return out
	})
}

// Wrap returns a function that calls the callable fn through the boundary.
// Non-callable values are returned unchanged.
func (b *Boundary) Wrap(v goja.Value) goja.Value {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return v
	}
	return b.Func(func(call goja.FunctionCall) goja.Value {
		res, err := fn(call.This, call.Arguments...)
		if err != nil {
			panic(err)
		}
		return res
	})
}

// Capture runs fn for a Go caller. Confined exceptions come back as
// *Error; Violation and *goja.InterruptedError are returned as is.
func (b *Boundary) Capture(fn func() (goja.Value, error)) (v goja.Value, err error) {
	defer func() {
		if x := recover(); x != nil {
			v, err = nil, b.capture(x)
		}
	}()
	v, err = fn()
	if err != nil {
		return nil, b.capture(err)
	}
	return v, nil
}

// rethrow turns a recovered panic into the value to panic with inside the
// runtime. Uncatchable engine errors keep unwinding; a stack overflow only
// becomes a RangeError once it reaches a Go caller.
func (b *Boundary) rethrow(x any) any {
	switch e := x.(type) {
	case Violation, *goja.InterruptedError, *goja.StackOverflowError:
		return x
	case *Error:
		return e.Value
	case error:
		var overflow *goja.StackOverflowError
		if errors.As(e, &overflow) {
			return overflow
		}
	}
	thrown, _ := b.convert(x)
	if thrown == nil {
		return x
	}
	return thrown.Value
}

func (b *Boundary) capture(x any) error {
	switch e := x.(type) {
	case Violation:
		return e
	case *goja.InterruptedError:
		return e
	case *Error:
		return e
	}
	thrown, passthrough := b.convert(x)
	if thrown == nil {
		return passthrough
	}
	return thrown
}

// convert rebuilds any recovered value or returned error. A nil *Error
// comes with the error to pass through untouched.
func (b *Boundary) convert(x any) (*Error, error) {
	switch e := x.(type) {
	case Violation:
		return nil, e
	case *goja.InterruptedError:
		return nil, e
	case *goja.StackOverflowError:
		return b.build("RangeError", "Maximum call stack size exceeded", ""), nil
	case *goja.Exception:
		return b.fromValue(e.Value()), nil
	case goja.Value:
		return b.fromValue(e), nil
	case error:
		var violation Violation
		if errors.As(e, &violation) {
			return nil, violation
		}
		var interrupted *goja.InterruptedError
		if errors.As(e, &interrupted) {
			return nil, interrupted
		}
		var overflow *goja.StackOverflowError
		if errors.As(e, &overflow) {
			return b.build("RangeError", "Maximum call stack size exceeded", ""), nil
		}
		var ex *goja.Exception
		if errors.As(e, &ex) {
			return b.fromValue(ex.Value()), nil
		}
		name := "Error"
		var named Named
		if errors.As(e, &named) {
			name = named.ErrorName()
		}
		rebuilt := b.build(normalizeName(name), e.Error(), "")
		rebuilt.Cause = e
		return rebuilt, nil
	default:
		return b.build("Error", fmt.Sprint(x), ""), nil
	}
}

// fromValue rebuilds a thrown value. Primitives are kept; objects are
// coerced to name, message and stack by a helper running in the confined
// runtime, then rebuilt from the captured constructors.
func (b *Boundary) fromValue(v goja.Value) *Error {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return &Error{Name: "Error", Message: fmt.Sprint(v), Value: v}
	}
	if _, ok := v.(*goja.Object); !ok {
		return &Error{Name: "Error", Message: v.String(), Value: v}
	}

	name, message, stack, ok := b.coerce(v)
	if !ok {
		return b.build("Error", "unknown error", "")
	}
	return b.build(normalizeName(name), message, stack)
}

func (b *Boundary) coerce(v goja.Value) (name, message, stack string, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	res, err := b.set.CoerceError()(goja.Undefined(), v)
	if err != nil {
		return "", "", "", false
	}
	parts, isObj := res.(*goja.Object)
	if !isObj {
		return "", "", "", false
	}
	return parts.Get("0").String(), parts.Get("1").String(), parts.Get("2").String(), true
}

// build constructs a fresh error object with a captured constructor and
// overwrites its stack.
func (b *Boundary) build(name, message, stack string) *Error {
	e := &Error{Name: name, Message: message, Stack: stack}
	obj, err := b.rt.New(b.set.ErrorConstructor(name), b.rt.ToValue(message))
	if err != nil {
		e.Value = b.rt.ToValue(message)
		return e
	}
	if stack == "" {
		if s := obj.Get("stack"); s != nil && !goja.IsUndefined(s) {
			stack = s.String()
		}
		e.Stack = stack
	} else {
		_ = obj.Set("stack", stack)
	}
	e.Value = obj
	return e
}
