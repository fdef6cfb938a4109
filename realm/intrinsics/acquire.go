package intrinsics

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsrealm/internal/logging"
	"github.com/GriffinCanCode/jsrealm/internal/shared/id"
)

var (
	// ErrUnsupportedHost is returned when the runtime cannot provide the
	// primitives confinement relies on.
	ErrUnsupportedHost = errors.New("intrinsics: host does not support confined evaluation")
)

// Source provides repaired intrinsics sets.
type Source interface {
	Acquire(ctx context.Context) (*Set, error)
}

// DefaultMaxCallStackSize bounds the call stack of fresh runtimes that set
// no limit, so runaway recursion ends in a RangeError.
const DefaultMaxCallStackSize = 1024

// Fresh acquires intrinsics from a brand-new runtime nobody has executed
// code in.
type Fresh struct {
	// MaxCallStackSize limits the runtime call stack; 0 selects
	// DefaultMaxCallStackSize.
	MaxCallStackSize int
	Logger           *zap.Logger
}

// Acquire creates a runtime, repairs it and captures its intrinsics.
func (f Fresh) Acquire(ctx context.Context) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rt := goja.New()
	limit := f.MaxCallStackSize
	if limit <= 0 {
		limit = DefaultMaxCallStackSize
	}
	rt.SetMaxCallStackSize(limit)
	return capture(rt, logging.OrNop(f.Logger).With(zap.String("source", "fresh")))
}

// Current acquires intrinsics from a runtime the embedder already owns.
// The runtime's prototypes are repaired in place.
type Current struct {
	Runtime *goja.Runtime
	Logger  *zap.Logger
}

// Acquire repairs the runtime and captures its intrinsics.
func (c Current) Acquire(ctx context.Context) (*Set, error) {
	if c.Runtime == nil {
		return nil, fmt.Errorf("no current runtime: %w", ErrUnsupportedHost)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return capture(c.Runtime, logging.OrNop(c.Logger).With(zap.String("source", "current")))
}

func capture(rt *goja.Runtime, log *zap.Logger) (*Set, error) {
	feral, err := repair(rt)
	if err != nil {
		return nil, err
	}

	global := rt.GlobalObject()
	eval, ok := global.Get("eval").(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("global eval missing: %w", ErrUnsupportedHost)
	}
	if err := probeDirectEval(rt, feral, eval); err != nil {
		return nil, err
	}

	objectCtor, ok := global.Get("Object").(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("global Object missing: %w", ErrUnsupportedHost)
	}
	objProto, ok := objectCtor.Get("prototype").(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("Object.prototype missing: %w", ErrUnsupportedHost)
	}
	gopd, ok := goja.AssertFunction(objectCtor.Get("getOwnPropertyDescriptor"))
	if !ok {
		return nil, fmt.Errorf("Object.getOwnPropertyDescriptor missing: %w", ErrUnsupportedHost)
	}

	errs := make(map[string]*goja.Object, len(errorNames))
	for _, name := range errorNames {
		ctor, ok := global.Get(name).(*goja.Object)
		if !ok {
			return nil, fmt.Errorf("global %s missing: %w", name, ErrUnsupportedHost)
		}
		errs[name] = ctor
	}

	coerce, err := compileFunction(rt, "coerce-error", coerceErrorSource)
	if err != nil {
		return nil, err
	}

	has, err := compileFunction(rt, "has-property", hasPropertySource)
	if err != nil {
		return nil, err
	}

	s := &Set{
		id:       id.NewRealmID(),
		rt:       rt,
		eval:     eval,
		fn:       feral,
		global:   global,
		objProto: objProto,
		globals:  captureGlobals(global),
		errors:   errs,
		coerce:   coerce,
		gopd:     gopd,
		has:      has,
	}
	log.Debug("intrinsics acquired",
		zap.String("realm", s.id.String()),
		zap.Int("globals", len(s.globals)))
	return s, nil
}

func captureGlobals(global *goja.Object) []Global {
	lists := []struct {
		names     []string
		stability Stability
	}{
		{frozenGlobals, Frozen},
		{stableGlobals, Stable},
		{unstableGlobals, Unstable},
	}

	var out []Global
	for _, list := range lists {
		for _, name := range list.names {
			v := global.Get(name)
			if v == nil {
				continue
			}
			out = append(out, Global{Name: name, Value: v, Stability: list.stability})
		}
	}
	return out
}
