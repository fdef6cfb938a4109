package scope

import (
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsrealm/internal/logging"
	"github.com/GriffinCanCode/jsrealm/realm/boundary"
	"github.com/GriffinCanCode/jsrealm/realm/intrinsics"
)

// State represents the interposer's escape-hatch state
type State int

const (
	// StateIdle: the raw eval cannot be obtained.
	StateIdle State = iota
	// StateArmed: the next lookup of eval returns the raw eval.
	StateArmed
	// StateConsumed: the raw eval was handed out once.
	StateConsumed
	// StateViolated: the evaluation step finished without consuming the
	// raw eval. The interposer is revoked.
	StateViolated
	// StateAborted: the host stopped the evaluation step before the raw
	// eval was reached. The interposer is revoked.
	StateAborted
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateConsumed:
		return "consumed"
	case StateViolated:
		return "violated"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Config configures an Interposer.
type Config struct {
	Set    *intrinsics.Set
	Global *goja.Object
	// Endowments are copied; the interposer never writes to this map.
	Endowments    Endowments
	SloppyGlobals bool
	Writes        WritePolicy
	Logger        *zap.Logger
}

// Interposer mediates every free-variable lookup, assignment and existence
// check of one evaluation. It is the with-scope object of the scoped
// evaluator and owns the single-use escape hatch to the raw eval.
type Interposer struct {
	set        *intrinsics.Set
	rt         *goja.Runtime
	global     *goja.Object
	endowments Endowments
	sloppy     bool
	writes     WritePolicy
	log        *zap.Logger

	state State
	proxy goja.Proxy
	obj   *goja.Object
}

// New creates an idle interposer.
func New(cfg Config) *Interposer {
	i := &Interposer{
		set:        cfg.Set,
		rt:         cfg.Set.Runtime(),
		global:     cfg.Global,
		endowments: cfg.Endowments.Clone(),
		sloppy:     cfg.SloppyGlobals,
		writes:     cfg.Writes,
		log:        logging.OrNop(cfg.Logger),
	}
	i.proxy = i.rt.NewProxy(i.rt.NewObject(), i.traps())
	i.obj = i.rt.ToValue(i.proxy).(*goja.Object)
	return i
}

// Object returns the scope object to install with a with statement.
func (i *Interposer) Object() *goja.Object { return i.obj }

// State returns the current state.
func (i *Interposer) State() State { return i.state }

// Arm enables the escape hatch for exactly one lookup of eval.
func (i *Interposer) Arm() error {
	if i.state != StateIdle {
		return fmt.Errorf("arm interposer in state %s", i.state)
	}
	i.state = StateArmed
	return nil
}

// Settle checks the escape hatch after the evaluation step. If the raw
// eval was not consumed, the interposer is revoked, the intrinsics set is
// marked broken and a boundary.Violation is returned.
func (i *Interposer) Settle() error {
	if i.state == StateConsumed {
		return nil
	}
	reason := fmt.Sprintf("raw eval not consumed (state %s)", i.state)
	i.state = StateViolated
	i.proxy.Revoke()
	i.set.Break(reason)
	i.log.Error("scope invariant violated",
		zap.String("realm", i.set.ID().String()),
		zap.String("reason", reason))
	return boundary.Violation(reason)
}

// Abort revokes an armed interposer whose evaluation step the host cut
// short (call stack exhausted, runtime interrupted) before the raw eval
// could be consumed. The intrinsics set stays usable. It reports false
// when the interposer was not armed.
func (i *Interposer) Abort() bool {
	if i.state != StateArmed {
		return false
	}
	i.state = StateAborted
	i.proxy.Revoke()
	i.log.Debug("evaluation aborted before scope entry",
		zap.String("realm", i.set.ID().String()))
	return true
}

// Lookup resolves a free variable.
func (i *Interposer) Lookup(name string) goja.Value {
	if name == "eval" && i.state == StateArmed {
		i.state = StateConsumed
		return i.set.Eval()
	}
	if b, ok := i.endowments[name]; ok {
		if b.IsAccessor() {
			if b.Get == nil {
				return goja.Undefined()
			}
			return orUndefined(b.Get(i.global))
		}
		return orUndefined(b.Value)
	}
	return orUndefined(i.global.Get(name))
}

// Assign writes a free variable. Rejected writes throw a confined
// TypeError.
func (i *Interposer) Assign(name string, v goja.Value) {
	if b, ok := i.endowments[name]; ok {
		if b.IsAccessor() {
			if !i.writes.AllowsAccessor(b) {
				panic(i.rt.NewTypeError("Cannot assign to read only endowment '%s'", name))
			}
			b.Set(i.global, v)
			return
		}
		if !i.writes.AllowsData(b) {
			panic(i.rt.NewTypeError("Cannot assign to read only endowment '%s'", name))
		}
		b.Value = v
		i.endowments[name] = b
		return
	}
	if err := i.global.Set(name, v); err != nil {
		if ex, ok := err.(*goja.Exception); ok {
			panic(ex.Value())
		}
		panic(i.rt.NewTypeError(err.Error()))
	}
}

// Exists reports whether name resolves through this scope. Names that
// only exist on the host global report true so that they read through the
// sandbox global instead of reaching the host.
func (i *Interposer) Exists(name string) bool {
	if i.sloppy || name == "eval" {
		return true
	}
	if _, ok := i.endowments[name]; ok {
		return true
	}
	return i.set.HasProperty(i.global, name) || i.set.HasProperty(i.set.HostGlobal(), name)
}

// Endowment returns the current binding of an endowment, including writes
// made during the evaluation.
func (i *Interposer) Endowment(name string) (Binding, bool) {
	b, ok := i.endowments[name]
	return b, ok
}

func (i *Interposer) unexpected() *goja.Object {
	return i.rt.NewTypeError("unexpected scope handler trap called")
}

func (i *Interposer) traps() *goja.ProxyTrapConfig {
	return &goja.ProxyTrapConfig{
		Has: func(_ *goja.Object, name string) bool {
			return i.Exists(name)
		},
		Get: func(_ *goja.Object, name string, _ goja.Value) goja.Value {
			return i.Lookup(name)
		},
		GetSym: func(*goja.Object, *goja.Symbol, goja.Value) goja.Value {
			return goja.Undefined()
		},
		Set: func(_ *goja.Object, name string, v goja.Value, _ goja.Value) bool {
			i.Assign(name, v)
			return true
		},
		// Strict assignment to a with binding first probes for an own
		// property. The placeholder carries no value.
		GetOwnPropertyDescriptor: func(_ *goja.Object, name string) goja.PropertyDescriptor {
			if !i.Exists(name) {
				return goja.PropertyDescriptor{}
			}
			return goja.PropertyDescriptor{
				Value:        goja.Undefined(),
				Writable:     goja.FLAG_TRUE,
				Configurable: goja.FLAG_TRUE,
				Enumerable:   goja.FLAG_FALSE,
			}
		},
		GetPrototypeOf: func(*goja.Object) *goja.Object {
			panic(i.unexpected())
		},
		SetPrototypeOf: func(*goja.Object, *goja.Object) bool {
			panic(i.unexpected())
		},
		IsExtensible: func(*goja.Object) bool {
			panic(i.unexpected())
		},
		PreventExtensions: func(*goja.Object) bool {
			panic(i.unexpected())
		},
		DefineProperty: func(*goja.Object, string, goja.PropertyDescriptor) bool {
			panic(i.unexpected())
		},
		DeleteProperty: func(*goja.Object, string) bool {
			panic(i.unexpected())
		},
		OwnKeys: func(*goja.Object) *goja.Object {
			panic(i.unexpected())
		},
	}
}

func orUndefined(v goja.Value) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	return v
}
