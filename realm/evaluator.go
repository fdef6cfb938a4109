package realm

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/dop251/goja"
	"github.com/golang/groupcache/lru"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/jsrealm/internal/logging"
	"github.com/GriffinCanCode/jsrealm/realm/boundary"
	"github.com/GriffinCanCode/jsrealm/realm/intrinsics"
	"github.com/GriffinCanCode/jsrealm/realm/scope"
	"github.com/GriffinCanCode/jsrealm/realm/transform"
)

// maxFactories bounds the compiled scoped-evaluator factories kept per
// context, one per distinct list of optimized names.
const maxFactories = 64

// scopedEvaluatorSource is compiled by the raw Function constructor. The
// outer sloppy function installs the scope object with a with statement
// and snapshots the optimized constants from its this; the inner strict
// function performs the single direct eval.
const scopedEvaluatorSource = `with (arguments[0]) {
  %s
  return function () {
    'use strict';
    return eval(arguments[0]);
  };
}`

var identifierPattern = regexp2.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`, regexp2.ECMAScript)

// reservedNames can never be destructured into a const binding, or must
// not be shadowed by one.
var reservedNames = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true, "class": true,
	"const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "enum": true, "export": true,
	"extends": true, "false": true, "finally": true, "for": true,
	"function": true, "if": true, "implements": true, "import": true,
	"in": true, "instanceof": true, "interface": true, "let": true,
	"new": true, "null": true, "package": true, "private": true,
	"protected": true, "public": true, "return": true, "static": true,
	"super": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "var": true, "void": true, "while": true,
	"with": true, "yield": true,
	"eval": true, "arguments": true,
}

// evaluator runs confined source against one sandbox global.
type evaluator struct {
	set        *intrinsics.Set
	rt         *goja.Runtime
	global     *goja.Object
	sloppy     bool
	writes     scope.WritePolicy
	transforms []transform.Transform
	bound      *boundary.Boundary
	log        *zap.Logger
	metrics    *monitoring.Metrics

	factories *lru.Cache

	constants     []string
	constantsSeen int
}

func newEvaluator(set *intrinsics.Set, global *goja.Object, cfg Config, bound *boundary.Boundary, log *zap.Logger, metrics *monitoring.Metrics) *evaluator {
	return &evaluator{
		set:        set,
		rt:         set.Runtime(),
		global:     global,
		sloppy:     cfg.SloppyGlobals,
		writes:     cfg.EndowmentWrites,
		transforms: append([]transform.Transform(nil), cfg.Transforms...),
		bound:      bound,
		log:        log,
		metrics:    metrics,
		factories:  lru.New(maxFactories),

		constantsSeen: -1,
	}
}

// evaluate runs the pipeline and evaluates the result exactly once under a
// fresh interposer. The caller holds the runtime lock. span may be nil.
func (e *evaluator) evaluate(src string, endowments scope.Endowments, call []transform.Transform, span *tracing.Span) (goja.Value, error) {
	if reason, broken := e.set.Broken(); broken {
		return nil, boundary.Violation(reason)
	}

	state, err := transform.Apply(transform.State{Source: src, Endowments: endowments},
		transform.Chain(call, e.transforms)...)
	if err != nil {
		var rejected *transform.RejectedSourceError
		if errors.As(err, &rejected) {
			e.metrics.RecordRejection(string(rejected.Reason))
			e.log.Debug("source rejected",
				zap.String("reason", string(rejected.Reason)),
				logging.Source(src))
		}
		return nil, err
	}
	span.Log("transformed", map[string]interface{}{
		"source_bytes": len(state.Source),
		"endowments":   len(state.Endowments),
	})

	names, snapshot := e.optimize(state.Endowments)
	factory, cached, err := e.factory(names)
	if err != nil {
		return nil, err
	}
	span.Log("scoped", map[string]interface{}{
		"constants": len(names),
		"cached":    cached,
	})

	interposer := scope.New(scope.Config{
		Set:           e.set,
		Global:        e.global,
		Endowments:    e.guard(state.Endowments),
		SloppyGlobals: e.sloppy,
		Writes:        e.writes,
		Logger:        e.log,
	})

	inner, err := factory(snapshot, interposer.Object())
	if err != nil {
		return nil, err
	}
	run, ok := goja.AssertFunction(inner)
	if !ok {
		return nil, fmt.Errorf("scoped evaluator is not callable")
	}

	if err := interposer.Arm(); err != nil {
		return nil, err
	}
	res, err := run(e.global, e.rt.ToValue(state.Source))
	if hostAborted(err) && interposer.Abort() {
		return nil, err
	}
	if violation := interposer.Settle(); violation != nil {
		e.metrics.RecordViolation()
		return nil, violation
	}
	return res, err
}

// hostAborted reports whether err is the runtime stopping confined code
// on its own: call stack exhaustion or an interrupt.
func hostAborted(err error) bool {
	var overflow *goja.StackOverflowError
	var interrupted *goja.InterruptedError
	return errors.As(err, &overflow) || errors.As(err, &interrupted)
}

// guard routes accessor endowments through the error boundary. Their
// callbacks run inside interposer traps, where a Go panic would otherwise
// escape confined exception handling.
func (e *evaluator) guard(endowments scope.Endowments) scope.Endowments {
	out := endowments.Clone()
	for name, b := range out {
		if b.Get != nil {
			get := b.Get
			b.Get = func(this goja.Value) goja.Value {
				return e.bound.Call(func() goja.Value { return get(this) })
			}
		}
		if b.Set != nil {
			set := b.Set
			b.Set = func(this, v goja.Value) {
				e.bound.Call(func() goja.Value {
					set(this, v)
					return goja.Undefined()
				})
			}
		}
		out[name] = b
	}
	return out
}

// factory returns the compiled scoped-evaluator factory for names, and
// whether it came from the cache.
func (e *evaluator) factory(names []string) (goja.Callable, bool, error) {
	key := strings.Join(names, ",")
	if cached, ok := e.factories.Get(key); ok {
		return cached.(goja.Callable), true, nil
	}

	ctor, ok := goja.AssertFunction(e.set.Function())
	if !ok {
		return nil, false, fmt.Errorf("raw Function is not callable: %w", intrinsics.ErrUnsupportedHost)
	}
	var decl string
	if len(names) > 0 {
		decl = fmt.Sprintf("const {%s} = this;", strings.Join(names, ", "))
	}
	v, err := ctor(goja.Undefined(), e.rt.ToValue(fmt.Sprintf(scopedEvaluatorSource, decl)))
	if err != nil {
		return nil, false, fmt.Errorf("compile scoped evaluator: %w", err)
	}
	factory, ok := goja.AssertFunction(v)
	if !ok {
		return nil, false, fmt.Errorf("scoped evaluator factory is not callable")
	}

	e.factories.Add(key, factory)
	e.log.Debug("scoped evaluator compiled", zap.Int("constants", len(names)))
	return factory, false, nil
}

// optimize picks the names bound as local constants: non-writable,
// non-configurable data properties of the global plus endowments that can
// never be assigned. Endowments shadow global constants of the same name.
// It returns the sorted names and an object holding their current values.
func (e *evaluator) optimize(endowments scope.Endowments) ([]string, *goja.Object) {
	snapshot := e.rt.CreateObject(nil)
	var names []string

	for _, name := range e.globalConstants() {
		if _, shadowed := endowments[name]; shadowed {
			continue
		}
		names = append(names, name)
		_ = snapshot.Set(name, e.global.Get(name))
	}
	for name, b := range endowments {
		if b.IsAccessor() || e.writes.AllowsData(b) || !optimizable(name) {
			continue
		}
		names = append(names, name)
		v := b.Value
		if v == nil {
			v = goja.Undefined()
		}
		_ = snapshot.Set(name, v)
	}

	sort.Strings(names)
	return names, snapshot
}

// globalConstants lists the immutable data properties of the global.
// Immutability is permanent, so the list is only recomputed when the
// global gained properties.
func (e *evaluator) globalConstants() []string {
	own := e.global.GetOwnPropertyNames()
	if len(own) == e.constantsSeen {
		return e.constants
	}

	gopd := e.set.GetOwnPropertyDescriptor()
	var constants []string
	for _, name := range own {
		if !optimizable(name) {
			continue
		}
		v, err := gopd(goja.Undefined(), e.global, e.rt.ToValue(name))
		if err != nil {
			continue
		}
		desc, ok := v.(*goja.Object)
		if !ok {
			continue
		}
		if ownKey(desc, "get") || ownKey(desc, "set") {
			continue
		}
		if desc.Get("writable").ToBoolean() || desc.Get("configurable").ToBoolean() {
			continue
		}
		constants = append(constants, name)
	}

	e.constants, e.constantsSeen = constants, len(own)
	return constants
}

// invalidate drops the cached constant list, for when properties of the
// global were frozen in place.
func (e *evaluator) invalidate() {
	e.constants, e.constantsSeen = nil, -1
}

func optimizable(name string) bool {
	ok, err := identifierPattern.MatchString(name)
	return err == nil && ok && !reservedNames[name]
}
